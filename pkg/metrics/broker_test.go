package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBrokerMetricsNilWhenDisabled(t *testing.T) {
	enabled = false
	registry = nil
	assert.False(t, IsEnabled())
	assert.Nil(t, NewBrokerMetrics())
}

func TestInitRegistryEnablesMetrics(t *testing.T) {
	t.Cleanup(func() {
		enabled = false
		registry = nil
	})

	reg := InitRegistry(nil)
	require.NotNil(t, reg)
	assert.True(t, IsEnabled())
	assert.Same(t, reg, GetRegistry())
}
