package metrics

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Collectors register on the process-global registry, so this package
// creates exactly one Manager across all its tests.
func TestCollectorUpdatesGauges(t *testing.T) {
	m := NewManager()

	var healthy atomic.Bool
	healthy.Store(true)

	m.StartCollector(5*time.Millisecond, []HealthSource{
		{Name: "storage", Healthy: healthy.Load},
	})
	defer m.StopCollector()

	// The first collection is synchronous
	pm := m.GetPrometheusMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.ComponentHealth.WithLabelValues("storage")))
	assert.Greater(t, testutil.ToFloat64(pm.GoroutineCount), 0.0)
	assert.Greater(t, testutil.ToFloat64(pm.MemoryUsage), 0.0)

	healthy.Store(false)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(pm.ComponentHealth.WithLabelValues("storage")) == 0.0
	}, 2*time.Second, 5*time.Millisecond)

	m.StopCollector()
}
