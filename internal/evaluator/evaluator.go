// File: internal/evaluator/evaluator.go
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/campaignwatch/campaign-watch/internal/feed"
	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/internal/storage"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// Config holds rule evaluation settings
type Config struct {
	// MinimumSentVolume is the minimum-volume guard: campaigns with fewer
	// sent messages in the monitoring window are skipped.
	MinimumSentVolume int64
}

// Result summarizes one evaluation pass of a configuration over its scope
type Result struct {
	Triggers  []*models.Trigger `json:"triggers"`
	Evaluated int               `json:"evaluated"`
	Skipped   int               `json:"skipped"`
	Errors    []error           `json:"-"`
}

// Evaluator applies the per-event-type decision rules to a configuration's
// resolved campaign set and writes the resulting triggers.
type Evaluator struct {
	feed    feed.Feed
	storage storage.Storage
	config  *Config
	logger  *logrus.Entry

	// now is swappable for tests
	now func() time.Time
}

// NewEvaluator creates a rule evaluator
func NewEvaluator(metricsFeed feed.Feed, store storage.Storage, config *Config) *Evaluator {
	return &Evaluator{
		feed:    metricsFeed,
		storage: store,
		config:  config,
		logger:  utils.GetLogger().WithField("component", "evaluator"),
		now:     time.Now,
	}
}

// Evaluate runs one configuration against its resolved campaigns. Feed
// errors for single campaigns are collected and do not abort the rest of
// the scope; a storage error writing a trigger is fatal and returned.
func (e *Evaluator) Evaluate(ctx context.Context, cfg *models.MonitoringConfig, campaigns []*models.Campaign) (*Result, error) {
	// Malformed parameters can still reach us if a config was written
	// before a validation rule changed.
	params, err := cfg.Params()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			"Monitoring config failed parameter validation", err.Error())
	}

	switch p := params.(type) {
	case models.ReplyRateDropParams:
		return e.evaluateRate(ctx, cfg, campaigns, p.RateParams, replyRateRule{})
	case models.BounceRateHighParams:
		return e.evaluateRate(ctx, cfg, campaigns, p.RateParams, bounceRateRule{})
	case models.NoReplyParams:
		return e.evaluateNoReply(ctx, cfg, campaigns, p)
	case models.CampaignCreatedParams:
		// Push-based; the scheduler never polls this type.
		return &Result{}, nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported event type", string(cfg.EventType))
	}
}

// rateRule is the behavior that differs between the two rate-based event
// types sharing the window/guard/dedup machinery.
type rateRule interface {
	// fires reports whether the rule condition is met and the rate values
	// to report (current, previous, delta).
	fires(current, previous *models.CampaignMetrics, threshold float64) (bool, float64, float64, float64)
	// payload builds the typed outbound payload for a firing.
	payload(campaign *models.Campaign, current, previous *models.CampaignMetrics,
		accounts []models.AccountImpact, thresholds models.Thresholds) interface{}
}

type replyRateRule struct{}

func (replyRateRule) fires(current, previous *models.CampaignMetrics, threshold float64) (bool, float64, float64, float64) {
	cur, prev := current.ReplyRate(), previous.ReplyRate()
	drop := prev - cur
	return drop >= threshold, cur, prev, drop
}

func (replyRateRule) payload(campaign *models.Campaign, current, previous *models.CampaignMetrics,
	accounts []models.AccountImpact, thresholds models.Thresholds) interface{} {
	return models.ReplyRateDropPayload{
		CampaignID:    campaign.ID,
		CampaignName:  campaign.Name,
		Current:       windowMetrics(current, current.ReplyRate()),
		Previous:      windowMetrics(previous, previous.ReplyRate()),
		ReplyRateDrop: previous.ReplyRate() - current.ReplyRate(),
		Accounts:      accounts,
		Thresholds:    thresholds,
	}
}

type bounceRateRule struct{}

func (bounceRateRule) fires(current, previous *models.CampaignMetrics, threshold float64) (bool, float64, float64, float64) {
	cur, prev := current.BounceRate(), previous.BounceRate()
	return cur >= threshold, cur, prev, cur - prev
}

func (bounceRateRule) payload(campaign *models.Campaign, current, previous *models.CampaignMetrics,
	accounts []models.AccountImpact, thresholds models.Thresholds) interface{} {
	return models.BounceRateHighPayload{
		CampaignID:   campaign.ID,
		CampaignName: campaign.Name,
		Current:      windowMetrics(current, current.BounceRate()),
		Previous:     windowMetrics(previous, previous.BounceRate()),
		BounceRate:   current.BounceRate(),
		Accounts:     accounts,
		Thresholds:   thresholds,
	}
}

func windowMetrics(m *models.CampaignMetrics, rate float64) models.WindowMetrics {
	return models.WindowMetrics{
		Start: m.WindowStart.Unix(),
		End:   m.WindowEnd.Unix(),
		Sent:  m.Sent,
		Rate:  rate,
	}
}

func (e *Evaluator) evaluateRate(ctx context.Context, cfg *models.MonitoringConfig,
	campaigns []*models.Campaign, params models.RateParams, rule rateRule) (*Result, error) {

	now := e.now()
	windowStart := now.AddDate(0, 0, -params.MonitoringPeriodDays)
	prevStart := windowStart.AddDate(0, 0, -params.MonitoringPeriodDays)
	// Day-granular feed rows and inclusive window queries: the previous
	// window must stop a day short of the current one or the boundary
	// day is counted twice.
	prevEnd := windowStart.AddDate(0, 0, -1)

	thresholds := models.Thresholds{
		ThresholdPercent:     params.ThresholdPercent,
		MonitoringPeriodDays: params.MonitoringPeriodDays,
		MinimumSentVolume:    e.config.MinimumSentVolume,
	}

	result := &Result{}
	for _, campaign := range campaigns {
		// Dedup watermark: do not re-notify for a condition already
		// reported within the current monitoring window.
		lastFired, err := e.storage.GetLastTriggerTime(ctx, cfg.ID, campaign.ID)
		if err != nil {
			return nil, err
		}
		if lastFired != nil && lastFired.After(windowStart) {
			result.Skipped++
			continue
		}

		current, err := e.feed.GetCampaignMetrics(ctx, campaign.ID, windowStart, now)
		if err != nil {
			e.logFeedError(cfg, campaign, err)
			result.Errors = append(result.Errors, err)
			continue
		}

		// Minimum-volume guard
		if current.Sent < e.config.MinimumSentVolume {
			result.Skipped++
			continue
		}

		previous, err := e.feed.GetCampaignMetrics(ctx, campaign.ID, prevStart, prevEnd)
		if err != nil {
			e.logFeedError(cfg, campaign, err)
			result.Errors = append(result.Errors, err)
			continue
		}

		result.Evaluated++

		fired, currentRate, previousRate, delta := rule.fires(current, previous, params.ThresholdPercent)
		if !fired {
			continue
		}

		accounts, err := e.accountImpacts(ctx, cfg.EventType, campaign.ID, windowStart, now)
		if err != nil {
			// Ranked accounts enrich the payload; a feed error here must
			// not suppress the firing itself.
			e.logFeedError(cfg, campaign, err)
			result.Errors = append(result.Errors, err)
		}

		payload := rule.payload(campaign, current, previous, accounts, thresholds)
		trigger, err := e.writeTrigger(ctx, cfg, campaign.ID, campaign.Name, payload, now)
		if err != nil {
			return nil, err
		}

		e.logger.WithFields(logrus.Fields{
			"config_id":     cfg.ID,
			"event_type":    cfg.EventType,
			"campaign_id":   campaign.ID,
			"current_rate":  currentRate,
			"previous_rate": previousRate,
			"delta":         delta,
		}).Info("Monitoring condition fired")

		result.Triggers = append(result.Triggers, trigger)
	}

	return result, nil
}

func (e *Evaluator) evaluateNoReply(ctx context.Context, cfg *models.MonitoringConfig,
	campaigns []*models.Campaign, params models.NoReplyParams) (*Result, error) {

	now := e.now()
	cutoff := now.AddDate(0, 0, -params.DaysSinceLastReply)
	positiveOnly := cfg.EventType == models.EventTypeNoPositiveReply

	// The no-reply variants fire one batch trigger per configuration, so
	// the dedup watermark is the configuration's own lastTriggeredAt.
	if cfg.LastTriggeredAt != nil && cfg.LastTriggeredAt.After(cutoff) {
		return &Result{Skipped: len(campaigns)}, nil
	}

	result := &Result{}
	var affected []models.SilentCampaign
	for _, campaign := range campaigns {
		metrics, err := e.feed.GetCampaignMetrics(ctx, campaign.ID, cutoff, now)
		if err != nil {
			e.logFeedError(cfg, campaign, err)
			result.Errors = append(result.Errors, err)
			continue
		}

		if metrics.Sent < e.config.MinimumSentVolume {
			result.Skipped++
			continue
		}

		lastReply, err := e.feed.GetLastReplyAt(ctx, campaign.ID, positiveOnly)
		if err != nil {
			e.logFeedError(cfg, campaign, err)
			result.Errors = append(result.Errors, err)
			continue
		}

		result.Evaluated++

		if lastReply != nil && lastReply.After(cutoff) {
			continue
		}

		silent := models.SilentCampaign{
			CampaignID:   campaign.ID,
			CampaignName: campaign.Name,
			LastReplyAt:  lastReply,
		}
		since := campaign.CreatedAt
		if lastReply != nil {
			since = *lastReply
		}
		silent.DaysSilent = int(now.Sub(since).Hours() / 24)
		affected = append(affected, silent)
	}

	if len(affected) == 0 {
		return result, nil
	}

	payload := models.NoReplyPayload{
		PositiveOnly: positiveOnly,
		CutoffUnix:   cutoff.Unix(),
		Campaigns:    affected,
		Thresholds: models.Thresholds{
			DaysSinceLastReply: params.DaysSinceLastReply,
			MinimumSentVolume:  e.config.MinimumSentVolume,
		},
	}

	name := fmt.Sprintf("%d silent campaigns", len(affected))
	trigger, err := e.writeTrigger(ctx, cfg, "", name, payload, now)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"config_id":  cfg.ID,
		"event_type": cfg.EventType,
		"affected":   len(affected),
	}).Info("Monitoring condition fired")

	result.Triggers = append(result.Triggers, trigger)
	return result, nil
}

// EvaluateCampaignCreated handles the push-based campaign.created event:
// it fires synchronously at creation time for every active configuration
// whose scope covers the new campaign.
func (e *Evaluator) EvaluateCampaignCreated(ctx context.Context, campaign *models.Campaign) ([]*models.Trigger, error) {
	configs, err := e.storage.GetActiveConfigsByEventType(ctx, models.EventTypeCampaignCreated)
	if err != nil {
		return nil, err
	}

	now := e.now()
	payload := models.CampaignCreatedPayload{
		CampaignID:   campaign.ID,
		CampaignName: campaign.Name,
		ClientID:     campaign.ClientID,
		UserID:       campaign.UserID,
		CreatedAt:    campaign.CreatedAt,
	}

	var triggers []*models.Trigger
	for _, cfg := range configs {
		if !scopeCovers(cfg.Scope, campaign) {
			continue
		}

		trigger, err := e.writeTrigger(ctx, cfg, campaign.ID, campaign.Name, payload, now)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, trigger)
	}
	return triggers, nil
}

func scopeCovers(scope models.Scope, campaign *models.Campaign) bool {
	var key string
	switch scope.Type {
	case models.ScopeTypeCampaigns:
		key = campaign.ID
	case models.ScopeTypeClients:
		key = campaign.ClientID
	case models.ScopeTypeUsers:
		key = campaign.UserID
	default:
		return false
	}
	for _, id := range scope.IDs {
		if id == key {
			return true
		}
	}
	return false
}

// writeTrigger persists a firing. Storage failures here are fatal to the
// tick so the watermark is never advanced past unconfirmed work.
func (e *Evaluator) writeTrigger(ctx context.Context, cfg *models.MonitoringConfig,
	campaignID, campaignName string, payload interface{}, now time.Time) (*models.Trigger, error) {

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal trigger payload", err.Error())
	}

	trigger := &models.Trigger{
		ID:           uuid.NewString(),
		ConfigID:     cfg.ID,
		EndpointID:   cfg.EndpointID,
		EventType:    cfg.EventType,
		CampaignID:   campaignID,
		CampaignName: campaignName,
		Payload:      body,
		Status:       models.TriggerStatusPending,
		CreatedAt:    now,
	}

	if err := e.storage.SaveTrigger(ctx, trigger); err != nil {
		return nil, err
	}
	return trigger, nil
}

func (e *Evaluator) logFeedError(cfg *models.MonitoringConfig, campaign *models.Campaign, err error) {
	e.logger.WithFields(logrus.Fields{
		"config_id":   cfg.ID,
		"campaign_id": campaign.ID,
		"error":       err,
	}).Warn("Metrics feed error, skipping campaign")
}
