// File: internal/health/tracker.go
package health

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/campaignwatch/campaign-watch/internal/metrics"
	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/internal/storage"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// Config holds endpoint health policy
type Config struct {
	// MaxFailures auto-deactivates an endpoint once its cumulative failure
	// count reaches this value. Zero disables the policy; only explicit
	// re-activation through the management surface clears the counter.
	MaxFailures int64
}

// Tracker folds delivery outcomes back into endpoint records: it stamps
// lastTriggeredAt after every delivery and increments the cumulative
// failure counter on failures.
type Tracker struct {
	storage        storage.Storage
	config         *Config
	logger         *logrus.Entry
	metricsManager *metrics.Manager
}

// NewTracker creates an endpoint health tracker
func NewTracker(store storage.Storage, config *Config, metricsManager *metrics.Manager) *Tracker {
	return &Tracker{
		storage:        store,
		config:         config,
		logger:         utils.GetLogger().WithField("component", "health_tracker"),
		metricsManager: metricsManager,
	}
}

// RecordOutcome records a completed delivery (success or exhausted retries)
// against the endpoint. Success leaves the failure counter unchanged.
func (t *Tracker) RecordOutcome(ctx context.Context, endpoint *models.Endpoint, success bool) error {
	now := time.Now()
	if err := t.storage.RecordEndpointDelivery(ctx, endpoint.ID, success, now); err != nil {
		return err
	}

	if success || t.config.MaxFailures <= 0 {
		return nil
	}

	// Re-read for the post-increment counter; increments happen in the
	// store so concurrent deliveries stay atomic.
	current, err := t.storage.GetEndpoint(ctx, endpoint.ID)
	if err != nil {
		return err
	}

	if current.Active && current.FailureCount >= t.config.MaxFailures {
		if err := t.storage.DeactivateEndpoint(ctx, endpoint.ID); err != nil {
			return err
		}
		if t.metricsManager != nil {
			t.metricsManager.GetPrometheusMetrics().EndpointsDeactivated.Inc()
		}
		t.logger.WithFields(logrus.Fields{
			"endpoint_id":   endpoint.ID,
			"failure_count": current.FailureCount,
		}).Warn("Endpoint deactivated after repeated delivery failures")
	}

	return nil
}
