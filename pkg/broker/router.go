package broker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dbusd/dbusd/internal/logger"
	"github.com/dbusd/dbusd/internal/wire"
	"github.com/dbusd/dbusd/pkg/broker/dbuserr"
)

// Router is the server's single routing critical section (spec.md §4.4,
// §5). Every inbound and broker-originated message passes through route,
// which runs under mu: message handling is effectively atomic, matching
// the cooperative-scheduling model translated to Go's one-mutex-many-
// readers idiom.
type Router struct {
	mu       sync.Mutex
	sessions map[string]*Session

	registry *Registry
	bus      *BusInterface

	serial atomic.Uint64

	metrics Metrics
}

// Metrics is the observability seam the router and the bus interface it
// owns report through; nil is a valid, no-op value for tests and for a
// broker run without metrics configured.
type Metrics interface {
	MessageRouted(msgType, outcome string)
	SessionCount(delta int)
	ConnectionAccepted(listenAddr string)
	ConnectionClosed(listenAddr string)
	NameRequestResult(result string)
	NameReleaseResult(result string)
	MatchRuleCount(delta int)
	DispatchDuration(member string, d time.Duration)
}

func NewRouter(registry *Registry, metrics Metrics) *Router {
	r := &Router{
		sessions: make(map[string]*Session),
		registry: registry,
		metrics:  metrics,
	}
	r.bus = NewBusInterface(registry, r.liveUniqueNames, metrics)
	return r
}

func (r *Router) AddSession(s *Session) {
	r.mu.Lock()
	r.sessions[s.UniqueName()] = s
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.SessionCount(1)
	}
}

// RemoveSession purges s from routing and from every name queue it held,
// emitting the resulting ownership-change signals — spec.md §9's mandated
// resolution of the disconnect open question.
func (r *Router) RemoveSession(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.UniqueName())
	for _, change := range r.registry.RemoveSession(s.UniqueName()) {
		for _, sig := range ownerChangeSignals(change) {
			sig.Serial = r.nextSerial()
			r.route(nil, sig)
		}
	}
	if r.metrics != nil {
		s.mu.Lock()
		rules := len(s.matchRules)
		s.mu.Unlock()
		if rules > 0 {
			r.metrics.MatchRuleCount(-rules)
		}
		r.metrics.SessionCount(-1)
	}
}

// liveUniqueNames is called only from within route (via the bus interface's
// ListNames), so mu is already held.
func (r *Router) liveUniqueNames() []string {
	out := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		out = append(out, name)
	}
	return out
}

func (r *Router) nextSerial() uint32 {
	return uint32(r.serial.Add(1))
}

// Submit is the Session read-pump's entry point into routing.
func (r *Router) Submit(sender *Session, m *wire.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.route(sender, m)
}

// route implements spec.md §4.4. sender is nil for broker-originated
// messages (replies and signals), which never re-trigger the Hello gate.
// It must only be called while mu is held, directly (Submit) or by
// recursion from within itself.
func (r *Router) route(sender *Session, m *wire.Message) {
	outcome := "no_match"
	for _, s := range r.sessions {
		if s.Matches(m) {
			if err := s.Deliver(m); err != nil {
				outcome = "error"
				logger.Debug("delivery failed", logger.KeyUniqueName, s.UniqueName(), logger.KeyError, err.Error())
			} else if outcome == "no_match" {
				outcome = "delivered"
			}
		}
	}
	if r.metrics != nil {
		r.metrics.MessageRouted(m.Type.String(), outcome)
	}

	var resp *wire.Message
	var closeSender *Session

	switch {
	case sender != nil && !sender.HelloReceived() && !m.IsHello():
		resp = r.errorReply(m, dbuserr.NewAccessDenied("Only messages from the bus itself are accepted before Hello"))
		closeSender = sender

	case m.Destination == wire.BusName && m.Type == wire.TypeMethodCall:
		result, err := r.bus.Dispatch(sender, m)
		if err != nil {
			resp = r.errorReply(m, err)
			break
		}
		for _, sig := range result.signals {
			sig.Serial = r.nextSerial()
			r.route(nil, sig)
		}
		resp = r.methodReturn(m, result.values)

	case m.Destination != "" && !r.isKnownDestination(m.Destination):
		resp = r.errorReply(m, dbuserr.NewServiceUnknown(string(m.Destination)))
	}

	if resp != nil {
		resp.Serial = r.nextSerial()
		r.route(nil, resp)
	}
	if closeSender != nil {
		closeSender.Close()
	}
}

func (r *Router) isKnownDestination(destination string) bool {
	if destination == wire.BusName {
		return true
	}
	if _, ok := r.sessions[destination]; ok {
		return true
	}
	return r.registry.NameHasOwner(destination)
}

func (r *Router) methodReturn(req *wire.Message, values []any) *wire.Message {
	return &wire.Message{
		Type:        wire.TypeMethodReturn,
		Flags:       wire.FlagNoReplyExpected,
		ReplySerial: req.Serial,
		Sender:      wire.BusName,
		Destination: req.Sender,
		Values:      values,
	}
}

func (r *Router) errorReply(req *wire.Message, derr *dbuserr.Error) *wire.Message {
	return &wire.Message{
		Type:        wire.TypeError,
		Flags:       wire.FlagNoReplyExpected,
		ReplySerial: req.Serial,
		ErrorName:   derr.WireName(),
		Sender:      wire.BusName,
		Destination: req.Sender,
		Values:      []any{derr.Message},
	}
}
