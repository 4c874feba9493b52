package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dbusd/dbusd/pkg/metrics"
)

func init() {
	metrics.RegisterBrokerMetricsConstructor(newBrokerMetrics)
}

// brokerMetrics is the Prometheus implementation of metrics.BrokerMetrics.
type brokerMetrics struct {
	messagesRouted     *prometheus.CounterVec
	sessions           prometheus.Gauge
	connectionsAccepted *prometheus.CounterVec
	connectionsClosed   *prometheus.CounterVec
	nameRequests       *prometheus.CounterVec
	nameReleases       *prometheus.CounterVec
	matchRules         prometheus.Gauge
	dispatchDuration   *prometheus.HistogramVec
}

func newBrokerMetrics() metrics.BrokerMetrics {
	reg := metrics.GetRegistry()

	return &brokerMetrics{
		messagesRouted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbusd_messages_routed_total",
				Help: "Total number of messages routed, by wire type and outcome",
			},
			[]string{"msg_type", "outcome"},
		),
		sessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dbusd_sessions",
				Help: "Current number of connected sessions",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbusd_connections_accepted_total",
				Help: "Total number of accepted transport connections, by listen address",
			},
			[]string{"listen_addr"},
		),
		connectionsClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbusd_connections_closed_total",
				Help: "Total number of closed transport connections, by listen address",
			},
			[]string{"listen_addr"},
		),
		nameRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbusd_name_requests_total",
				Help: "Total number of RequestName calls, by result",
			},
			[]string{"result"},
		),
		nameReleases: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbusd_name_releases_total",
				Help: "Total number of ReleaseName calls, by result",
			},
			[]string{"result"},
		),
		matchRules: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dbusd_match_rules",
				Help: "Current number of registered match rules across all sessions",
			},
		),
		dispatchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dbusd_bus_dispatch_duration_milliseconds",
				Help: "Duration of org.freedesktop.DBus method dispatch, by member",
				Buckets: []float64{
					0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500,
				},
			},
			[]string{"member"},
		),
	}
}

func (m *brokerMetrics) MessageRouted(msgType, outcome string) {
	if m == nil {
		return
	}
	m.messagesRouted.WithLabelValues(msgType, outcome).Inc()
}

func (m *brokerMetrics) SessionCount(delta int) {
	if m == nil {
		return
	}
	m.sessions.Add(float64(delta))
}

func (m *brokerMetrics) ConnectionAccepted(listenAddr string) {
	if m == nil {
		return
	}
	m.connectionsAccepted.WithLabelValues(listenAddr).Inc()
}

func (m *brokerMetrics) ConnectionClosed(listenAddr string) {
	if m == nil {
		return
	}
	m.connectionsClosed.WithLabelValues(listenAddr).Inc()
}

func (m *brokerMetrics) NameRequestResult(result string) {
	if m == nil {
		return
	}
	m.nameRequests.WithLabelValues(result).Inc()
}

func (m *brokerMetrics) NameReleaseResult(result string) {
	if m == nil {
		return
	}
	m.nameReleases.WithLabelValues(result).Inc()
}

func (m *brokerMetrics) MatchRuleCount(delta int) {
	if m == nil {
		return
	}
	m.matchRules.Add(float64(delta))
}

func (m *brokerMetrics) DispatchDuration(member string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(member).Observe(d.Seconds() * 1000)
}
