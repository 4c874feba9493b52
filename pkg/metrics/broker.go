// Package metrics defines dbusd's observability seam and a package-level
// Prometheus registry, mirroring the teacher's pkg/metrics split between
// an interface package (this one) and a pkg/metrics/prometheus
// implementation registered back in through a constructor variable, which
// avoids an import cycle between the two.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BrokerMetrics is the full observability surface for the broker, a
// superset of the narrow broker.Metrics seam the router depends on
// directly. Passing nil anywhere a BrokerMetrics is expected must be safe
// and free of overhead, exactly like the teacher's NFSMetrics contract.
type BrokerMetrics interface {
	// MessageRouted records one message handled by the router, broken
	// down by wire type ("method_call", "method_return", "error",
	// "signal") and outcome ("delivered", "no_match", "error").
	MessageRouted(msgType, outcome string)

	// SessionCount adjusts the active-session gauge by delta (+1 on
	// accept, -1 on disconnect).
	SessionCount(delta int)

	// ConnectionAccepted/Closed track listener-level connection churn,
	// independent of whether a session ever completed Hello.
	ConnectionAccepted(listenAddr string)
	ConnectionClosed(listenAddr string)

	// NameRequestResult records the outcome of a RequestName call
	// ("primary_owner", "in_queue", "exists", "already_owner").
	NameRequestResult(result string)

	// NameReleaseResult records the outcome of a ReleaseName call
	// ("released", "non_existent", "not_owned").
	NameReleaseResult(result string)

	// MatchRuleCount updates the gauge of currently registered match
	// rules across all sessions.
	MatchRuleCount(delta int)

	// DispatchDuration records how long a single org.freedesktop.DBus
	// method call took to handle, by member name.
	DispatchDuration(member string, d time.Duration)
}

var (
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection and installs reg as the
// registry every BrokerMetrics implementation registers its collectors
// against. Passing nil creates a fresh prometheus.NewRegistry().
func InitRegistry(reg *prometheus.Registry) *prometheus.Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	registry = reg
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called. NewBrokerMetrics
// checks this and returns nil when it hasn't, giving callers zero-overhead
// metrics the same way the teacher's prometheus.NewCacheMetrics does.
func IsEnabled() bool {
	return enabled
}

// GetRegistry returns the active registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// NewBrokerMetrics constructs the Prometheus-backed BrokerMetrics, or nil
// if metrics are disabled. The concrete constructor is registered by
// pkg/metrics/prometheus's package init, mirroring
// RegisterCacheMetricsConstructor in the teacher's pkg/metrics/cache.go.
func NewBrokerMetrics() BrokerMetrics {
	if !IsEnabled() || newBrokerMetrics == nil {
		return nil
	}
	return newBrokerMetrics()
}

var newBrokerMetrics func() BrokerMetrics

// RegisterBrokerMetricsConstructor is called by pkg/metrics/prometheus's
// package init to wire its implementation in without an import cycle.
func RegisterBrokerMetricsConstructor(constructor func() BrokerMetrics) {
	newBrokerMetrics = constructor
}
