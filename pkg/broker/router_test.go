package broker

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbusd/dbusd/internal/wire"
)

// readMessage reads exactly one framed message off conn, failing the test if
// none arrives within the deadline.
func readMessage(t *testing.T, conn net.Conn) *wire.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rb wire.ReadBuffer
	buf := make([]byte, 4096)
	for {
		if m, ok, err := rb.ReadMessage(); err == nil && ok {
			return m
		}
		n, err := conn.Read(buf)
		require.NoError(t, err)
		rb.WriteBytes(buf[:n])
	}
}

func writeMessage(t *testing.T, conn net.Conn, m *wire.Message) {
	t.Helper()
	var wb wire.WriteBuffer
	require.NoError(t, wb.WriteMessage(m))
	_, err := conn.Write(wb.Data())
	require.NoError(t, err)
}

// TestHelloGateClosesSessionAndReplies covers spec.md §8's scenario 1: a call
// to a non-Hello method before Hello gets an AccessDenied reply and the
// session is then closed.
func TestHelloGateClosesSessionAndReplies(t *testing.T) {
	r := NewRouter(NewRegistry(), nil)
	s, client := newAuthenticatedSession(":1.0", 1, "deadbeefcafebabe0000000000000000")
	r.AddSession(s)
	go s.Pump(r.Submit)
	defer client.Close()

	writeMessage(t, client, &wire.Message{
		Type:        wire.TypeMethodCall,
		Serial:      1,
		Path:        "/org/freedesktop/DBus",
		Interface:   "org.freedesktop.DBus.Peer",
		Member:      "Ping",
		Destination: wire.BusName,
	})

	reply := readMessage(t, client)
	assert.Equal(t, wire.TypeError, reply.Type)
	assert.Equal(t, uint32(1), reply.ReplySerial)
	assert.Equal(t, "org.freedesktop.DBus.Error.AccessDenied", reply.ErrorName)

	// the session must be closed right after: a further write fails.
	time.Sleep(20 * time.Millisecond)
	_, err := client.Write([]byte("x"))
	assert.Error(t, err)
}

// TestHelloThenPingSucceeds is the companion happy path: Hello followed by a
// Peer.Ping both succeed and the assigned unique name round-trips.
func TestHelloThenPingSucceeds(t *testing.T) {
	r := NewRouter(NewRegistry(), nil)
	s, client := newAuthenticatedSession(":1.0", 1, "deadbeefcafebabe0000000000000000")
	r.AddSession(s)
	go s.Pump(r.Submit)
	defer client.Close()

	writeMessage(t, client, &wire.Message{
		Type:        wire.TypeMethodCall,
		Serial:      1,
		Path:        wire.BusPath,
		Interface:   wire.BusInterface,
		Member:      "Hello",
		Destination: wire.BusName,
	})
	reply := readMessage(t, client)
	require.Equal(t, wire.TypeMethodReturn, reply.Type)
	require.Len(t, reply.Values, 1)
	assert.Equal(t, ":1.0", reply.Values[0])

	writeMessage(t, client, &wire.Message{
		Type:        wire.TypeMethodCall,
		Serial:      2,
		Path:        wire.BusPath,
		Interface:   "org.freedesktop.DBus.Peer",
		Member:      "Ping",
		Destination: wire.BusName,
	})
	reply = readMessage(t, client)
	assert.Equal(t, wire.TypeMethodReturn, reply.Type)
	assert.Equal(t, uint32(2), reply.ReplySerial)
}

// TestServiceUnknownRouting covers routing a call to a well-known name with
// no owner: the caller gets a ServiceUnknown error instead of the message
// being silently dropped.
func TestServiceUnknownRouting(t *testing.T) {
	r := NewRouter(NewRegistry(), nil)
	s, client := newAuthenticatedSession(":1.0", 1, "deadbeefcafebabe0000000000000000")
	r.AddSession(s)
	go s.Pump(r.Submit)
	defer client.Close()

	writeMessage(t, client, &wire.Message{
		Type: wire.TypeMethodCall, Serial: 1, Path: wire.BusPath,
		Interface: wire.BusInterface, Member: "Hello", Destination: wire.BusName,
	})
	readMessage(t, client) // Hello reply

	writeMessage(t, client, &wire.Message{
		Type:        wire.TypeMethodCall,
		Serial:      2,
		Path:        "/com/example/Thing",
		Interface:   "com.example.Thing",
		Member:      "DoSomething",
		Destination: "com.example.NotThere",
	})
	reply := readMessage(t, client)
	assert.Equal(t, wire.TypeError, reply.Type)
	assert.Equal(t, "org.freedesktop.DBus.Error.ServiceUnknown", reply.ErrorName)
	assert.Equal(t, uint32(2), reply.ReplySerial)
}

// TestRequestNameSignalOrderingAndDelivery covers spec.md §9's mandated
// NameOwnerChanged-before-NameAcquired ordering, end to end: the requesting
// session observes its own RequestName call's reply only after the
// NameAcquired signal it is subscribed to via destination addressing.
func TestRequestNameSignalOrderingAndDelivery(t *testing.T) {
	r := NewRouter(NewRegistry(), nil)
	s, client := newAuthenticatedSession(":1.0", 1, "deadbeefcafebabe0000000000000000")
	r.AddSession(s)
	go s.Pump(r.Submit)
	defer client.Close()

	writeMessage(t, client, &wire.Message{
		Type: wire.TypeMethodCall, Serial: 1, Path: wire.BusPath,
		Interface: wire.BusInterface, Member: "Hello", Destination: wire.BusName,
	})
	readMessage(t, client)

	// subscribe to every signal, so the broadcast NameOwnerChanged (which has
	// no destination) is delivered back to this session too.
	writeMessage(t, client, &wire.Message{
		Type: wire.TypeMethodCall, Serial: 2, Path: wire.BusPath,
		Interface: wire.BusInterface, Member: "AddMatch", Destination: wire.BusName,
		Signature: "s", Values: []any{"type='signal'"},
	})
	readMessage(t, client) // AddMatch reply

	writeMessage(t, client, &wire.Message{
		Type: wire.TypeMethodCall, Serial: 3, Path: wire.BusPath,
		Interface: wire.BusInterface, Member: "RequestName", Destination: wire.BusName,
		Signature: "su", Values: []any{"com.example.Foo", uint32(0)},
	})

	first := readMessage(t, client)
	assert.Equal(t, wire.TypeSignal, first.Type)
	assert.Equal(t, "NameOwnerChanged", first.Member)

	second := readMessage(t, client)
	assert.Equal(t, wire.TypeSignal, second.Type)
	assert.Equal(t, "NameAcquired", second.Member)

	third := readMessage(t, client)
	assert.Equal(t, wire.TypeMethodReturn, third.Type)
	assert.Equal(t, uint32(3), third.ReplySerial)
	require.Len(t, third.Values, 1)
	assert.Equal(t, RequestNamePrimaryOwner, third.Values[0])
}

// TestGetIdDiffersPerListener covers spec.md §8's scenario that two
// listeners must hand out distinct GetId values to their own sessions.
func TestGetIdDiffersPerListener(t *testing.T) {
	r := NewRouter(NewRegistry(), nil)

	sA, clientA := newAuthenticatedSession(":1.0", 1, "11111111111111111111111111111111")
	r.AddSession(sA)
	go sA.Pump(r.Submit)
	defer clientA.Close()

	sB, clientB := newAuthenticatedSession(":1.1", 2, "22222222222222222222222222222222")
	r.AddSession(sB)
	go sB.Pump(r.Submit)
	defer clientB.Close()

	for _, pair := range []struct {
		client net.Conn
		serial uint32
		who    string
	}{{clientA, 1, ":1.0"}, {clientB, 1, ":1.1"}} {
		writeMessage(t, pair.client, &wire.Message{
			Type: wire.TypeMethodCall, Serial: pair.serial, Path: wire.BusPath,
			Interface: wire.BusInterface, Member: "Hello", Destination: wire.BusName,
		})
		readMessage(t, pair.client)
	}

	writeMessage(t, clientA, &wire.Message{
		Type: wire.TypeMethodCall, Serial: 2, Path: wire.BusPath,
		Interface: wire.BusInterface, Member: "GetId", Destination: wire.BusName,
	})
	replyA := readMessage(t, clientA)
	idA, _ := replyA.Values[0].(string)

	writeMessage(t, clientB, &wire.Message{
		Type: wire.TypeMethodCall, Serial: 2, Path: wire.BusPath,
		Interface: wire.BusInterface, Member: "GetId", Destination: wire.BusName,
	})
	replyB := readMessage(t, clientB)
	idB, _ := replyB.Values[0].(string)

	assert.NotEqual(t, idA, idB)
	assert.Len(t, idA, 32)
	assert.Len(t, idB, 32)
}
