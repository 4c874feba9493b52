package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a single dispatched
// message: which session sent it, which bus member it invoked, and the
// tracing identifiers of the span it is running under.
type LogContext struct {
	TraceID    string    // OpenTelemetry trace ID
	SpanID     string    // OpenTelemetry span ID
	UniqueName string    // sender's bus-assigned unique name
	ConnID     uint64    // listener-scoped connection id
	ClientAddr string    // remote address of the session's transport
	Member     string    // bus method/signal member being handled
	StartTime  time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a session's remote address.
func NewLogContext(clientAddr string) *LogContext {
	return &LogContext{
		ClientAddr: clientAddr,
		StartTime:  time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:    lc.TraceID,
		SpanID:     lc.SpanID,
		UniqueName: lc.UniqueName,
		ConnID:     lc.ConnID,
		ClientAddr: lc.ClientAddr,
		Member:     lc.Member,
		StartTime:  lc.StartTime,
	}
}

// WithMember returns a copy with the dispatched member set.
func (lc *LogContext) WithMember(member string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Member = member
	}
	return clone
}

// WithSender returns a copy with the sender's identity set.
func (lc *LogContext) WithSender(uniqueName string, connID uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.UniqueName = uniqueName
		clone.ConnID = connID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
