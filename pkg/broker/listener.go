package broker

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dbusd/dbusd/internal/logger"
)

// Listener is one bound transport (spec.md §3): it owns every Session it
// has accepted and advertises a single UUID, hex-encoded on demand for the
// SASL handshake and GetId. Different listeners of the same process
// advertise different UUIDs and different unique-name connection-id
// namespaces, by design.
type Listener struct {
	id   uint64
	uuid string
	ln   net.Listener
	addr string

	router  *Router
	metrics Metrics

	nextSeq uint64

	mu       sync.Mutex
	sessions map[string]*Session

	closed atomic.Bool
}

// NewListener wraps an already-bound net.Listener. id is the server's
// monotonic connId counter value assigned to this listener. metrics may be
// nil.
func NewListener(id uint64, ln net.Listener, addr string, router *Router, metrics Metrics) *Listener {
	return &Listener{
		id:       id,
		uuid:     uuidHex(),
		ln:       ln,
		addr:     addr,
		router:   router,
		metrics:  metrics,
		sessions: make(map[string]*Session),
	}
}

func uuidHex() string {
	u := uuid.New()
	return hexNoDashes(u.String())
}

func hexNoDashes(s string) string {
	out := make([]byte, 0, len(s))
	for _, c := range s {
		if c != '-' {
			out = append(out, byte(c))
		}
	}
	return string(out)
}

// ID is the listener's connId, used as the prefix of every unique name it
// assigns: ":<id>.<seq>".
func (l *Listener) ID() uint64 { return l.id }

// UUID is the hex-encoded 128-bit id this listener hands out in SASL OK
// lines and GetId replies.
func (l *Listener) UUID() string { return l.uuid }

// Addr returns the bound address string (reflecting a kernel-assigned port
// for tcp: addresses that requested one).
func (l *Listener) Addr() string { return l.addr }

// Serve accepts connections until the listener is closed. Each accepted
// connection gets its own unique name and its own read-pump goroutine,
// matching the teacher's accept-loop idiom (one goroutine per connection,
// shared state serialised elsewhere).
func (l *Listener) Serve() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() {
				return
			}
			logger.Warn("listener accept error", logger.KeyListenAddr, l.addr, logger.KeyError, err.Error())
			return
		}
		seq := atomic.AddUint64(&l.nextSeq, 1) - 1
		uniqueName := uniqueNameFor(l.id, seq)
		session := NewSession(conn, uniqueName, l.id, l.uuid)

		l.mu.Lock()
		l.sessions[uniqueName] = session
		l.mu.Unlock()
		l.router.AddSession(session)
		if l.metrics != nil {
			l.metrics.ConnectionAccepted(l.addr)
		}

		logger.Info("session accepted",
			logger.KeyUniqueName, uniqueName,
			logger.KeyClientAddr, conn.RemoteAddr().String(),
			logger.KeyListenAddr, l.addr)

		go func() {
			session.Pump(l.router.Submit)
			l.router.RemoveSession(session)
			l.mu.Lock()
			delete(l.sessions, uniqueName)
			l.mu.Unlock()
			if l.metrics != nil {
				l.metrics.ConnectionClosed(l.addr)
			}
		}()
	}
}

func uniqueNameFor(connID, seq uint64) string {
	return ":" + strconv.FormatUint(connID, 10) + "." + strconv.FormatUint(seq, 10)
}

// Close stops accepting new connections and closes every accepted session.
// Closing a unix: net.Listener created by net.Listen also removes its socket
// file; Server.Close additionally calls the transport's Close after this
// returns, which removes the path explicitly.
func (l *Listener) Close() error {
	l.closed.Store(true)
	err := l.ln.Close()

	l.mu.Lock()
	sessions := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return err
}
