// File: internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/campaignwatch/campaign-watch/internal/evaluator"
	"github.com/campaignwatch/campaign-watch/internal/metrics"
	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/internal/scope"
	"github.com/campaignwatch/campaign-watch/internal/storage"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// Scheduler defines the monitoring scheduler interface
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool

	RunTick(ctx context.Context) *TickResult
	GetStats() *Stats
}

// Config holds scheduler configuration
type Config struct {
	TickInterval    time.Duration `json:"tick_interval"`
	Workers         int           `json:"workers"`
	EvaluateTimeout time.Duration `json:"evaluate_timeout"`
}

// Stats provides scheduler statistics
type Stats struct {
	StartTime        time.Time     `json:"start_time"`
	Uptime           time.Duration `json:"uptime"`
	IsRunning        bool          `json:"is_running"`
	TotalTicks       uint64        `json:"total_ticks"`
	TotalEvaluations uint64        `json:"total_evaluations"`
	TotalTriggers    uint64        `json:"total_triggers"`
	TotalSkipped     uint64        `json:"total_skipped"`
	ErrorCount       uint64        `json:"error_count"`
	LastTickAt       *time.Time    `json:"last_tick_at,omitempty"`
	LastError        *string       `json:"last_error,omitempty"`
	LastErrorTime    *time.Time    `json:"last_error_time,omitempty"`
}

// TickResult summarizes one scheduler tick
type TickResult struct {
	ConfigsLoaded    int           `json:"configs_loaded"`
	ConfigsEvaluated int           `json:"configs_evaluated"`
	ConfigsSkipped   int           `json:"configs_skipped"`
	TriggersFired    int           `json:"triggers_fired"`
	Duration         time.Duration `json:"duration"`
	Errors           []error       `json:"-"`
}

// MonitoringScheduler implements the Scheduler interface. On a fixed tick
// it loads active schedule-driven configurations, fans them out to a
// bounded worker pool, and advances each configuration's watermarks.
type MonitoringScheduler struct {
	storage   storage.Storage
	resolver  scope.Resolver
	evaluator *evaluator.Evaluator
	config    *Config
	logger    *logrus.Entry

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// inFlight guards against overlapping evaluation of the same
	// configuration across ticks; a config still being evaluated when the
	// next tick arrives is skipped, not queued.
	inFlightMu sync.Mutex
	inFlight   map[string]bool

	stats          *Stats
	metricsManager *metrics.Manager
}

// NewScheduler creates a monitoring scheduler
func NewScheduler(store storage.Storage, resolver scope.Resolver, eval *evaluator.Evaluator,
	config *Config, metricsManager *metrics.Manager) *MonitoringScheduler {

	return &MonitoringScheduler{
		storage:        store,
		resolver:       resolver,
		evaluator:      eval,
		config:         config,
		logger:         utils.GetLogger().WithField("component", "scheduler"),
		stopChan:       make(chan struct{}),
		inFlight:       make(map[string]bool),
		stats:          &Stats{StartTime: time.Now()},
		metricsManager: metricsManager,
	}
}

// Start starts the scheduler loop
func (s *MonitoringScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Scheduler already running", "")
	}

	s.running = true
	s.stats.StartTime = time.Now()
	s.stats.IsRunning = true

	s.wg.Add(1)
	go s.tickLoop(ctx)

	s.logger.WithField("tick_interval", s.config.TickInterval).Info("Monitoring scheduler started")
	return nil
}

// Stop stops the scheduler. New ticks stop immediately; in-flight
// evaluations finish before Stop returns.
func (s *MonitoringScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stats.IsRunning = false
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()

	s.logger.Info("Monitoring scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler loop is active
func (s *MonitoringScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *MonitoringScheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunTick(ctx)
		}
	}
}

// RunTick evaluates all due configurations once. Exported so operators
// (and tests) can force an immediate pass.
func (s *MonitoringScheduler) RunTick(ctx context.Context) *TickResult {
	start := time.Now()
	result := &TickResult{}

	configs, err := s.storage.GetActiveConfigs(ctx, true)
	if err != nil {
		// Store unavailable is fatal to the tick; watermarks stay put so
		// the next tick retries the same window.
		s.recordError(err)
		result.Errors = append(result.Errors, err)
		s.logger.WithField("error", err).Error("Tick aborted: failed to load configurations")
		return result
	}
	result.ConfigsLoaded = len(configs)

	// Bounded fan-out, one unit of work per configuration.
	sem := make(chan struct{}, s.config.Workers)
	var (
		wg       sync.WaitGroup
		resultMu sync.Mutex
	)

	for _, cfg := range configs {
		if !s.claimConfig(cfg.ID) {
			resultMu.Lock()
			result.ConfigsSkipped++
			resultMu.Unlock()
			if s.metricsManager != nil {
				s.metricsManager.GetPrometheusMetrics().RecordConfigSkipped("in_flight")
			}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(cfg *models.MonitoringConfig) {
			defer wg.Done()
			defer func() { <-sem }()
			defer s.releaseConfig(cfg.ID)

			fired, err := s.evaluateConfig(ctx, cfg)

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, err)
				s.recordError(err)
				return
			}
			result.ConfigsEvaluated++
			result.TriggersFired += fired
		}(cfg)
	}

	wg.Wait()

	result.Duration = time.Since(start)
	now := time.Now()

	s.mu.Lock()
	s.stats.TotalTicks++
	s.stats.TotalEvaluations += uint64(result.ConfigsEvaluated)
	s.stats.TotalTriggers += uint64(result.TriggersFired)
	s.stats.TotalSkipped += uint64(result.ConfigsSkipped)
	s.stats.LastTickAt = &now
	s.mu.Unlock()

	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordTick(result.Duration)
	}

	s.logger.WithFields(logrus.Fields{
		"configs":  result.ConfigsLoaded,
		"skipped":  result.ConfigsSkipped,
		"triggers": result.TriggersFired,
		"duration": result.Duration,
		"errors":   len(result.Errors),
	}).Debug("Scheduler tick completed")

	return result
}

func (s *MonitoringScheduler) evaluateConfig(ctx context.Context, cfg *models.MonitoringConfig) (int, error) {
	start := time.Now()
	evalCtx, cancel := context.WithTimeout(ctx, s.config.EvaluateTimeout)
	defer cancel()

	campaigns, err := s.resolver.Resolve(evalCtx, cfg.Scope)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"config_id": cfg.ID,
			"error":     err,
		}).Error("Scope resolution failed")
		s.recordConfigMetrics(cfg, "resolve_error", start)
		return 0, err
	}

	result, err := s.evaluator.Evaluate(evalCtx, cfg, campaigns)
	if err != nil {
		// Fatal for this configuration: the watermark stays at its
		// pre-tick value so the same window is retried next tick.
		s.logger.WithFields(logrus.Fields{
			"config_id": cfg.ID,
			"error":     err,
		}).Error("Evaluation failed")
		s.recordConfigMetrics(cfg, "error", start)
		return 0, err
	}

	for _, err := range result.Errors {
		s.logger.WithFields(logrus.Fields{
			"config_id": cfg.ID,
			"error":     err,
		}).Warn("Partial evaluation failure")
	}
	if s.metricsManager != nil && len(result.Errors) > 0 {
		for range result.Errors {
			s.metricsManager.GetPrometheusMetrics().FeedErrorsTotal.Inc()
		}
	}

	now := time.Now()
	if err := s.storage.SetConfigLastCheckedAt(ctx, cfg.ID, now); err != nil {
		return 0, err
	}
	if len(result.Triggers) > 0 {
		if err := s.storage.SetConfigLastTriggeredAt(ctx, cfg.ID, now); err != nil {
			return 0, err
		}
		if s.metricsManager != nil {
			for range result.Triggers {
				s.metricsManager.GetPrometheusMetrics().RecordTriggerFired(string(cfg.EventType))
			}
		}
	}

	s.recordConfigMetrics(cfg, "ok", start)
	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().CampaignsEvaluated.Add(float64(result.Evaluated))
	}

	return len(result.Triggers), nil
}

func (s *MonitoringScheduler) recordConfigMetrics(cfg *models.MonitoringConfig, status string, start time.Time) {
	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordConfigEvaluated(
			string(cfg.EventType), status, time.Since(start))
	}
}

func (s *MonitoringScheduler) claimConfig(id string) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *MonitoringScheduler) releaseConfig(id string) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, id)
}

func (s *MonitoringScheduler) recordError(err error) {
	msg := err.Error()
	now := time.Now()

	s.mu.Lock()
	s.stats.ErrorCount++
	s.stats.LastError = &msg
	s.stats.LastErrorTime = &now
	s.mu.Unlock()
}

// GetStats returns a snapshot of scheduler statistics
func (s *MonitoringScheduler) GetStats() *Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := *s.stats
	stats.Uptime = time.Since(s.stats.StartTime)
	return &stats
}
