package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// HealthSource reports one component's liveness for the health gauge.
type HealthSource struct {
	Name    string
	Healthy func() bool
}

// Manager owns the Prometheus collectors and the periodic collection of
// system gauges and component health.
type Manager struct {
	prometheus *PrometheusMetrics
	logger     *logrus.Entry
	startTime  time.Time
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewManager creates a new metrics manager
func NewManager() *Manager {
	return &Manager{
		prometheus: NewPrometheusMetrics(),
		logger:     utils.GetLogger().WithField("component", "metrics"),
		startTime:  time.Now(),
		stopChan:   make(chan struct{}),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prometheus
}

// StartCollector begins periodic collection of system metrics and component
// health. The first collection happens synchronously so the gauges are
// populated for the first scrape.
func (m *Manager) StartCollector(interval time.Duration, sources []HealthSource) {
	m.collect(sources)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.collect(sources)
			}
		}
	}()

	m.logger.WithField("interval", interval).Debug("Metrics collector started")
}

// StopCollector stops the periodic collection
func (m *Manager) StopCollector() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

func (m *Manager) collect(sources []HealthSource) {
	m.UpdateSystemMetrics()
	for _, src := range sources {
		m.prometheus.UpdateComponentHealth(src.Name, src.Healthy())
	}
}

// UpdateSystemMetrics updates system-level metrics like memory and goroutines
func (m *Manager) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.prometheus.UpdateMemoryUsage(memStats.Alloc)
	m.prometheus.UpdateGoroutineCount(runtime.NumGoroutine())
	m.prometheus.UpdateApplicationUptime(m.startTime)
}
