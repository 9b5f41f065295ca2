// File: internal/delivery/engine.go
package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/campaignwatch/campaign-watch/internal/health"
	"github.com/campaignwatch/campaign-watch/internal/metrics"
	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/internal/storage"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// Config holds delivery engine configuration
type Config struct {
	Workers              int           `json:"workers"`
	PollInterval         time.Duration `json:"poll_interval"`
	BatchSize            int           `json:"batch_size"`
	BaseRetryDelay       time.Duration `json:"base_retry_delay"`
	MaxRetryDelay        time.Duration `json:"max_retry_delay"`
	MaxResponseBodyBytes int           `json:"max_response_body_bytes"`
}

// Stats provides delivery engine statistics
type Stats struct {
	IsRunning       bool       `json:"is_running"`
	TotalDelivered  uint64     `json:"total_delivered"`
	TotalFailed     uint64     `json:"total_failed"`
	TotalAttempts   uint64     `json:"total_attempts"`
	LastDeliveryAt  *time.Time `json:"last_delivery_at,omitempty"`
	LastError       *string    `json:"last_error,omitempty"`
	LastErrorTime   *time.Time `json:"last_error_time,omitempty"`
	QueueLength     int        `json:"queue_length"`
	Workers         int        `json:"workers"`
}

// Outcome summarizes one completed delivery including all retries
type Outcome struct {
	Success      bool          `json:"success"`
	StatusCode   *int          `json:"status_code,omitempty"`
	ResponseBody *string       `json:"response_body,omitempty"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	AttemptCount int           `json:"attempt_count"`
	Duration     time.Duration `json:"duration"`
}

// Engine consumes freshly written triggers and posts them to subscriber
// endpoints with bounded retries. Delivery runs on its own worker pool so
// a slow endpoint cannot stall metric evaluation.
type Engine struct {
	storage storage.Storage
	sender  Sender
	tracker *health.Tracker
	config  *Config
	logger  *logrus.Entry

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	queue    chan *models.Trigger

	stats          *Stats
	metricsManager *metrics.Manager
}

// NewEngine creates a delivery engine
func NewEngine(store storage.Storage, sender Sender, tracker *health.Tracker,
	config *Config, metricsManager *metrics.Manager) *Engine {

	return &Engine{
		storage:        store,
		sender:         sender,
		tracker:        tracker,
		config:         config,
		logger:         utils.GetLogger().WithField("component", "delivery_engine"),
		stopChan:       make(chan struct{}),
		queue:          make(chan *models.Trigger, config.BatchSize),
		stats:          &Stats{Workers: config.Workers},
		metricsManager: metricsManager,
	}
}

// Start starts the dispatcher and the delivery worker pool
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Delivery engine already running", "")
	}
	e.running = true
	e.stats.IsRunning = true

	// Reclaim triggers a previous run claimed but never finished, so a
	// crash between claim and delivery cannot strand them.
	if n, err := e.storage.RequeueDeliveringTriggers(ctx); err != nil {
		e.recordError(err)
		e.logger.WithField("error", err).Error("Failed to requeue stranded triggers")
	} else if n > 0 {
		e.logger.WithField("requeued", n).Info("Requeued stranded triggers")
	}

	for i := 0; i < e.config.Workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}

	e.wg.Add(1)
	go e.dispatchLoop(ctx)

	e.logger.WithFields(logrus.Fields{
		"workers":       e.config.Workers,
		"poll_interval": e.config.PollInterval,
	}).Info("Delivery engine started")
	return nil
}

// Stop stops the engine. In-flight deliveries finish or are abandoned at
// the endpoint's timeout boundary.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.stats.IsRunning = false
	e.mu.Unlock()

	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
	e.wg.Wait()

	// Workers are drained; any trigger still marked delivering was claimed
	// but never posted (sitting in the queue, or claimed mid-shutdown).
	// Hand it back so the next run delivers it.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if n, err := e.storage.RequeueDeliveringTriggers(ctx); err != nil {
		e.logger.WithField("error", err).Error("Failed to requeue undelivered triggers")
	} else if n > 0 {
		e.logger.WithField("requeued", n).Info("Requeued undelivered triggers")
	}

	e.logger.Info("Delivery engine stopped")
	return nil
}

// IsRunning returns whether the engine is active
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *Engine) dispatchLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.dispatchPending(ctx)
		}
	}
}

func (e *Engine) dispatchPending(ctx context.Context) {
	pending, err := e.storage.GetPendingTriggers(ctx, e.config.BatchSize)
	if err != nil {
		e.recordError(err)
		e.logger.WithField("error", err).Error("Failed to load pending triggers")
		return
	}

	if e.metricsManager != nil {
		e.metricsManager.GetPrometheusMetrics().PendingTriggers.Set(float64(len(pending)))
	}

	for _, trigger := range pending {
		claimed, err := e.storage.ClaimTrigger(ctx, trigger.ID)
		if err != nil {
			e.recordError(err)
			continue
		}
		if !claimed {
			continue
		}

		select {
		case e.queue <- trigger:
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case trigger := <-e.queue:
			e.Deliver(ctx, trigger)
		}
	}
}

// Deliver posts one trigger to its endpoint and records the outcome on the
// trigger, the delivery log, and the endpoint health counters.
func (e *Engine) Deliver(ctx context.Context, trigger *models.Trigger) *Outcome {
	endpoint, err := e.storage.GetEndpoint(ctx, trigger.EndpointID)
	if err != nil {
		outcome := failedOutcome(err)
		e.finishTrigger(ctx, trigger, outcome)
		return outcome
	}

	if !endpoint.Active {
		err := utils.NewAppError(utils.ErrCodeDelivery, "Endpoint is inactive", endpoint.ID)
		outcome := failedOutcome(err)
		e.finishTrigger(ctx, trigger, outcome)
		return outcome
	}

	outcome := e.deliverWithRetry(ctx, endpoint, trigger.Payload, trigger.ID, true)

	e.finishTrigger(ctx, trigger, outcome)

	if err := e.tracker.RecordOutcome(ctx, endpoint, outcome.Success); err != nil {
		e.recordError(err)
		e.logger.WithFields(logrus.Fields{
			"endpoint_id": endpoint.ID,
			"error":       err,
		}).Error("Failed to record endpoint health")
	}

	if e.metricsManager != nil {
		label := "failed"
		if outcome.Success {
			label = "delivered"
		}
		e.metricsManager.GetPrometheusMetrics().RecordDelivery(
			string(trigger.EventType), label, outcome.Duration)
	}

	return outcome
}

// TestDelivery sends a synthetic payload through the full retry/timeout
// path without touching triggers, watermarks, or endpoint health.
func (e *Engine) TestDelivery(ctx context.Context, endpointID string) (*Outcome, error) {
	endpoint, err := e.storage.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event_type": "test",
		"message":    "Campaign Watch test delivery",
		"sent_at":    time.Now().UTC(),
	})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal test payload", err.Error())
	}

	outcome := e.deliverWithRetry(ctx, endpoint, payload, "", false)
	return outcome, nil
}

// deliverWithRetry drives the retry state machine for one payload.
// Retries for a single trigger are strictly ordered: one attempt at a time.
func (e *Engine) deliverWithRetry(ctx context.Context, endpoint *models.Endpoint,
	payload []byte, triggerID string, persistAttempts bool) *Outcome {

	start := time.Now()
	state := newRetryState(endpoint.RetryCount, e.config.BaseRetryDelay, e.config.MaxRetryDelay)
	outcome := &Outcome{}

	for {
		delay, ok := state.Next()
		if !ok {
			break
		}

		if delay > 0 {
			if e.metricsManager != nil {
				e.metricsManager.GetPrometheusMetrics().DeliveryRetriesTotal.Inc()
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				msg := ctx.Err().Error()
				outcome.ErrorMessage = &msg
				outcome.Duration = time.Since(start)
				return outcome
			}
		}

		result := e.sender.Send(ctx, endpoint, payload)
		outcome.AttemptCount = state.Attempt()

		e.mu.Lock()
		e.stats.TotalAttempts++
		e.mu.Unlock()
		if e.metricsManager != nil {
			e.metricsManager.GetPrometheusMetrics().DeliveryAttemptsTotal.Inc()
		}

		if persistAttempts {
			e.logAttempt(ctx, triggerID, state.Attempt(), result)
		}

		if result.StatusCode != 0 {
			code := result.StatusCode
			outcome.StatusCode = &code
		}
		if result.Body != "" {
			body := result.Body
			outcome.ResponseBody = &body
		}
		if result.Error != nil {
			msg := result.Error.Error()
			outcome.ErrorMessage = &msg
		} else {
			outcome.ErrorMessage = nil
		}

		if result.Success {
			outcome.Success = true
			break
		}

		e.logger.WithFields(logrus.Fields{
			"endpoint_id": endpoint.ID,
			"attempt":     state.Attempt(),
			"max":         endpoint.RetryCount,
			"status_code": result.StatusCode,
			"error":       result.Error,
		}).Warn("Webhook attempt failed")
	}

	outcome.Duration = time.Since(start)
	return outcome
}

func (e *Engine) logAttempt(ctx context.Context, triggerID string, attempt int, result *AttemptResult) {
	entry := &models.DeliveryAttempt{
		ID:            uuid.NewString(),
		TriggerID:     triggerID,
		AttemptNumber: attempt,
		Latency:       result.Latency,
		CreatedAt:     time.Now(),
	}
	if result.StatusCode != 0 {
		code := result.StatusCode
		entry.StatusCode = &code
	}
	if result.Body != "" {
		body := result.Body
		entry.ResponseBody = &body
	}
	if result.Error != nil {
		msg := result.Error.Error()
		entry.Error = &msg
	}

	if err := e.storage.SaveDeliveryAttempt(ctx, entry); err != nil {
		e.recordError(err)
		e.logger.WithFields(logrus.Fields{
			"trigger_id": triggerID,
			"error":      err,
		}).Error("Failed to log delivery attempt")
	}
}

func (e *Engine) finishTrigger(ctx context.Context, trigger *models.Trigger, outcome *Outcome) {
	now := time.Now()

	trigger.StatusCode = outcome.StatusCode
	trigger.ResponseBody = outcome.ResponseBody
	trigger.ErrorMessage = outcome.ErrorMessage
	trigger.AttemptCount = outcome.AttemptCount
	trigger.IsSuccess = outcome.Success
	trigger.DeliveredAt = &now
	if outcome.Success {
		trigger.Status = models.TriggerStatusDelivered
	} else {
		trigger.Status = models.TriggerStatusFailed
	}

	if err := e.storage.UpdateTriggerOutcome(ctx, trigger); err != nil {
		e.recordError(err)
		e.logger.WithFields(logrus.Fields{
			"trigger_id": trigger.ID,
			"error":      err,
		}).Error("Failed to record trigger outcome")
		return
	}

	e.mu.Lock()
	if outcome.Success {
		e.stats.TotalDelivered++
	} else {
		e.stats.TotalFailed++
	}
	e.stats.LastDeliveryAt = &now
	e.mu.Unlock()
}

func failedOutcome(err error) *Outcome {
	msg := err.Error()
	return &Outcome{ErrorMessage: &msg}
}

func (e *Engine) recordError(err error) {
	msg := err.Error()
	now := time.Now()

	e.mu.Lock()
	e.stats.LastError = &msg
	e.stats.LastErrorTime = &now
	e.mu.Unlock()
}

// GetStats returns a snapshot of delivery statistics
func (e *Engine) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := *e.stats
	stats.QueueLength = len(e.queue)
	return &stats
}
