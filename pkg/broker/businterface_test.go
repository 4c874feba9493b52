package broker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbusd/dbusd/internal/wire"
	"github.com/dbusd/dbusd/pkg/broker/dbuserr"
)

func newTestBus() (*BusInterface, *Registry) {
	reg := NewRegistry()
	return NewBusInterface(reg, func() []string { return nil }, nil), reg
}

func TestIntrospectAdvertisesChildNodeAtRoot(t *testing.T) {
	bus, _ := newTestBus()
	sender, client := newAuthenticatedSession(":1.0", 1, "uuid")
	defer client.Close()

	result, err := bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Path: "/", Interface: "org.freedesktop.DBus.Introspectable",
		Member: "Introspect",
	})
	require.Nil(t, err)
	xml, _ := result.values[0].(string)
	assert.Contains(t, xml, `<node name="org"/>`)
}

func TestIntrospectAtBusPathHasNoChildNode(t *testing.T) {
	bus, _ := newTestBus()
	sender, client := newAuthenticatedSession(":1.0", 1, "uuid")
	defer client.Close()

	result, err := bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Path: wire.BusPath, Interface: "org.freedesktop.DBus.Introspectable",
		Member: "Introspect",
	})
	require.Nil(t, err)
	xml, _ := result.values[0].(string)
	assert.False(t, strings.Contains(xml, "<node name="))
}

func TestPropertiesGetFeatures(t *testing.T) {
	bus, _ := newTestBus()
	sender, client := newAuthenticatedSession(":1.0", 1, "uuid")
	defer client.Close()

	result, err := bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Interface: "org.freedesktop.DBus.Properties", Member: "Get",
		Signature: "ss", Values: []any{wire.BusInterface, "Features"},
	})
	require.Nil(t, err)
	v, ok := result.values[0].(wire.Variant)
	require.True(t, ok)
	assert.Equal(t, wire.Signature("as"), v.Sig)
}

func TestPropertiesGetUnknownInterfaceFailsUnknownProperty(t *testing.T) {
	bus, _ := newTestBus()
	sender, client := newAuthenticatedSession(":1.0", 1, "uuid")
	defer client.Close()

	_, err := bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Interface: "org.freedesktop.DBus.Properties", Member: "Get",
		Signature: "ss", Values: []any{"com.example.NotTheBus", "Whatever"},
	})
	require.NotNil(t, err)
	assert.True(t, dbuserr.Is(err, dbuserr.UnknownProperty))
}

func TestPropertiesSetIsAlwaysReadOnly(t *testing.T) {
	bus, _ := newTestBus()
	sender, client := newAuthenticatedSession(":1.0", 1, "uuid")
	defer client.Close()

	_, err := bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Interface: "org.freedesktop.DBus.Properties", Member: "Set",
		Signature: "ssv", Values: []any{wire.BusInterface, "Features", wire.Variant{Sig: "as", Value: []string{}}},
	})
	require.NotNil(t, err)
	assert.True(t, dbuserr.Is(err, dbuserr.PropertyReadOnly))
}

func TestGetNameOwnerUnownedFails(t *testing.T) {
	bus, _ := newTestBus()
	sender, client := newAuthenticatedSession(":1.0", 1, "uuid")
	defer client.Close()

	_, err := bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Interface: wire.BusInterface, Member: "GetNameOwner",
		Signature: "s", Values: []any{"com.example.Nobody"},
	})
	require.NotNil(t, err)
	assert.True(t, dbuserr.Is(err, dbuserr.NameHasNoOwner))
}

func TestStartServiceByNameReportsAlreadyRunning(t *testing.T) {
	bus, reg := newTestBus()
	sender, client := newAuthenticatedSession(":1.0", 1, "uuid")
	defer client.Close()

	_, _, regErr := reg.RequestName("com.example.Running", ":1.0", 0)
	require.NoError(t, regErr)

	result, err := bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Interface: wire.BusInterface, Member: "StartServiceByName",
		Signature: "su", Values: []any{"com.example.Running", uint32(0)},
	})
	require.Nil(t, err)
	assert.Equal(t, StartServiceAlreadyRunning, result.values[0])
}

func TestStartServiceByNameUnknownFails(t *testing.T) {
	bus, _ := newTestBus()
	sender, client := newAuthenticatedSession(":1.0", 1, "uuid")
	defer client.Close()

	_, err := bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Interface: wire.BusInterface, Member: "StartServiceByName",
		Signature: "su", Values: []any{"com.example.NeverActivatable", uint32(0)},
	})
	require.NotNil(t, err)
	assert.True(t, dbuserr.Is(err, dbuserr.ServiceNotFound))
}

func TestAddMatchThenRemoveMatchRoundTrips(t *testing.T) {
	bus, _ := newTestBus()
	sender, client := newAuthenticatedSession(":1.0", 1, "uuid")
	defer client.Close()

	_, err := bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Interface: wire.BusInterface, Member: "AddMatch",
		Signature: "s", Values: []any{"type='signal',member='NameLost'"},
	})
	require.Nil(t, err)

	_, err = bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Interface: wire.BusInterface, Member: "RemoveMatch",
		Signature: "s", Values: []any{"member='NameLost',type='signal'"},
	})
	require.Nil(t, err)

	_, err = bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Interface: wire.BusInterface, Member: "RemoveMatch",
		Signature: "s", Values: []any{"type='signal',member='NameLost'"},
	})
	require.NotNil(t, err)
	assert.True(t, dbuserr.Is(err, dbuserr.MatchRuleNotFound))
}

func TestUnknownInterfaceFails(t *testing.T) {
	bus, _ := newTestBus()
	sender, client := newAuthenticatedSession(":1.0", 1, "uuid")
	defer client.Close()

	_, err := bus.Dispatch(sender, &wire.Message{
		Type: wire.TypeMethodCall, Interface: "com.example.NotTheBus", Member: "Anything",
	})
	require.NotNil(t, err)
	assert.True(t, dbuserr.Is(err, dbuserr.UnknownInterface))
}
