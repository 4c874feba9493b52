package prometheus

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/dbusd/dbusd/pkg/metrics"
)

func TestNewBrokerMetricsRecordsSessionCount(t *testing.T) {
	reg := metrics.InitRegistry(nil)
	t.Cleanup(func() {
		metrics.InitRegistry(nil)
	})

	m := metrics.NewBrokerMetrics()
	require.NotNil(t, m)

	m.SessionCount(1)
	m.SessionCount(1)
	m.MessageRouted("method_call", "delivered")

	families, err := reg.Gather()
	require.NoError(t, err)

	var sessions *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "dbusd_sessions" {
			sessions = f
		}
	}
	require.NotNil(t, sessions)
	require.Len(t, sessions.Metric, 1)
	require.Equal(t, 2.0, sessions.Metric[0].GetGauge().GetValue())
}
