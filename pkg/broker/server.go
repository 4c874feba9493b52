package broker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dbusd/dbusd/internal/logger"
	"github.com/dbusd/dbusd/pkg/transport"
)

// Server owns every listener of one broker instance, the shared name
// Registry, and the single Router every listener's sessions submit
// through (spec.md §3: "a list of listeners; ... the name registry").
type Server struct {
	registry *Registry
	router   *Router
	metrics  Metrics

	mu          sync.Mutex
	listeners   []*boundListener
	nextConnID  atomic.Uint64

	shutdownOnce sync.Once
	shutdownTimeout time.Duration
}

type boundListener struct {
	bound *transport.Bound
	l     *Listener
}

// NewServer creates an empty server; call Listen for each configured
// address before Serve.
func NewServer(metrics Metrics, shutdownTimeout time.Duration) *Server {
	registry := NewRegistry()
	return &Server{
		registry:        registry,
		router:          NewRouter(registry, metrics),
		metrics:         metrics,
		shutdownTimeout: shutdownTimeout,
	}
}

// Listen binds address (spec.md §6 grammar) and registers a new Listener
// for it, assigning it the next monotonic connId. It does not start
// accepting connections; call Serve for that.
func (s *Server) Listen(address string) (*Listener, error) {
	bound, err := transport.Bind(address)
	if err != nil {
		return nil, fmt.Errorf("broker: listen %q: %w", address, err)
	}
	id := s.nextConnID.Add(1)
	l := NewListener(id, bound.Listener, bound.Addr, s.router, s.metrics)

	s.mu.Lock()
	s.listeners = append(s.listeners, &boundListener{bound: bound, l: l})
	s.mu.Unlock()

	logger.Info("listener bound", logger.KeyListenAddr, bound.Addr, logger.KeyConnID, id)
	return l, nil
}

// Serve runs every listener's accept loop. It blocks until Close is
// called, at which point every listener's Serve goroutine returns on its
// own accept error.
func (s *Server) Serve() {
	s.mu.Lock()
	listeners := append([]*boundListener(nil), s.listeners...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, bl := range listeners {
		wg.Add(1)
		go func(l *Listener) {
			defer wg.Done()
			l.Serve()
		}(bl.l)
	}
	wg.Wait()
}

// Close stops every listener (closing their accepted sessions) and
// unlinks any unix: socket paths, per spec.md §5's cancellation clause.
// Idempotent.
func (s *Server) Close() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		listeners := append([]*boundListener(nil), s.listeners...)
		s.mu.Unlock()

		for _, bl := range listeners {
			if err := bl.l.Close(); err != nil {
				logger.Debug("listener close error", logger.KeyListenAddr, bl.bound.Addr, logger.KeyError, err.Error())
			}
			if err := bl.bound.Close(); err != nil {
				logger.Debug("transport close error", logger.KeyListenAddr, bl.bound.Addr, logger.KeyError, err.Error())
			}
		}
	})
}

// Registry exposes the shared name registry, for tests and admin tooling.
func (s *Server) Registry() *Registry { return s.registry }

// Router exposes the shared router, for tests.
func (s *Server) Router() *Router { return s.router }
