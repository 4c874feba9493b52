package broker

import (
	"net"
	"sync"

	"github.com/dbusd/dbusd/internal/logger"
	"github.com/dbusd/dbusd/internal/sasl"
	"github.com/dbusd/dbusd/internal/wire"
)

// Session is one accepted connection's framing state machine (spec.md
// §4.1): AUTH until the embedded AuthServer reports authenticated, then
// MSG. It owns the connection's read/write buffers and match-rule list;
// the Listener owns the Session itself (closing a listener closes every
// session it accepted).
type Session struct {
	conn       net.Conn
	uniqueName string
	listenerID uint64
	uuid       string

	auth *sasl.AuthServer
	rb   wire.ReadBuffer

	mu           sync.Mutex
	helloReceived bool
	matchRules   []*MatchRule

	writeMu sync.Mutex
}

// NewSession wraps an accepted connection. uuid is the owning listener's
// hex-encoded UUID, handed to the SASL dialogue's OK line and to GetId.
func NewSession(conn net.Conn, uniqueName string, listenerID uint64, uuid string) *Session {
	return &Session{
		conn:       conn,
		uniqueName: uniqueName,
		listenerID: listenerID,
		uuid:       uuid,
		auth:       sasl.NewAuthServer(uuid),
	}
}

func (s *Session) UniqueName() string { return s.uniqueName }
func (s *Session) ListenerID() uint64  { return s.listenerID }

// UUID is the owning listener's hex-encoded id, returned by GetId so that
// different listeners on the same server advertise different ids.
func (s *Session) UUID() string { return s.uuid }

func (s *Session) HelloReceived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.helloReceived
}

func (s *Session) SetHelloReceived() {
	s.mu.Lock()
	s.helloReceived = true
	s.mu.Unlock()
}

// AddMatchRule appends rule to the session's list, per AddMatch.
func (s *Session) AddMatchRule(rule *MatchRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchRules = append(s.matchRules, rule)
}

// RemoveMatchRule removes the first rule equal to target, reporting whether
// one was found.
func (s *Session) RemoveMatchRule(target *MatchRule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.matchRules {
		if r.Equal(target) {
			s.matchRules = append(s.matchRules[:i], s.matchRules[i+1:]...)
			return true
		}
	}
	return false
}

// Matches reports whether m should be delivered to this session: either it
// is the addressed destination, or any of its match rules matches.
func (s *Session) Matches(m *wire.Message) bool {
	if m.Destination == s.uniqueName {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.matchRules {
		if r.Matches(m) {
			return true
		}
	}
	return false
}

// Deliver marshals and writes m to the session's transport. Writes are
// serialised independently of the framing loop, since replies and signals
// can be enqueued for a session from a different goroutine than the one
// running its read loop.
func (s *Session) Deliver(m *wire.Message) error {
	var wb wire.WriteBuffer
	if err := wb.WriteMessage(m); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(wb.Data())
	return err
}

// writeLine writes a single SASL response line with its trailing CRLF.
func (s *Session) writeLine(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write([]byte(line + "\r\n"))
	return err
}

// Close closes the underlying transport. Idempotent-safe: net.Conn.Close
// tolerates being called more than once with a benign error on the second
// call, which callers here ignore.
func (s *Session) Close() {
	_ = s.conn.Close()
}

// RemoteAddr is used for logging only.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Pump runs the session's read loop until the connection closes or a fatal
// protocol violation forces it shut. submit is called with each fully
// framed message, already sender-rewritten to this session's unique name;
// the router decides everything from there (spec.md §4.4).
func (s *Session) Pump(submit func(*Session, *wire.Message)) {
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.rb.WriteBytes(buf[:n])
			s.drain(submit)
		}
		if err != nil {
			logger.Debug("session closed", logger.KeyClientAddr, s.RemoteAddr(), logger.KeyUniqueName, s.uniqueName, logger.KeyError, err.Error())
			return
		}
	}
}

// drain runs the "loop until the buffer makes no further progress" pass of
// spec.md §4.1: in AUTH, consume \r\n lines; in MSG, decode whole messages.
// Either phase stops as soon as it cannot make progress, and the buffer is
// compacted after each pass.
func (s *Session) drain(submit func(*Session, *wire.Message)) {
	for {
		progressed := false
		if !s.auth.IsAuthenticated() {
			line, ok := s.rb.ReadLine()
			if !ok {
				break
			}
			progressed = true
			for _, resp := range s.auth.ProcessRequest(line) {
				_ = s.writeLine(resp)
			}
		} else {
			m, ok, err := s.rb.ReadMessage()
			if err != nil {
				// Malformed message deeper than a short read: spec.md §7
				// leaves this undefined; close the session rather than
				// spin on an unparseable buffer.
				s.Close()
				return
			}
			if !ok {
				break
			}
			progressed = true
			m.Sender = s.uniqueName
			submit(s, m)
		}
		if !progressed {
			break
		}
	}
	s.rb.Flush()
}
