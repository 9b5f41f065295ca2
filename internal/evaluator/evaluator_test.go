package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignwatch/campaign-watch/internal/feed"
	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/internal/storage"
)

// Evaluation windows are anchored here via the evaluator's clock hook.
var testNow = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()

	cfg := &storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "evaluator_test.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	}

	store := storage.NewSQLiteStorage(cfg)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	return store
}

func newTestEvaluator(store storage.Storage) *Evaluator {
	e := NewEvaluator(feed.NewStorageFeed(store), store, &Config{MinimumSentVolume: 50})
	e.now = func() time.Time { return testNow }
	return e
}

func seedPipeline(t *testing.T, store storage.Storage, eventType models.EventType, params string) *models.MonitoringConfig {
	t.Helper()
	ctx := context.Background()

	ep := &models.Endpoint{
		ID:         "ep-1",
		UserID:     "u1",
		Name:       "webhook",
		URL:        "https://hooks.example.com/x",
		Active:     true,
		RetryCount: 3,
		Timeout:    5 * time.Second,
		CreatedAt:  testNow,
	}
	require.NoError(t, store.SaveEndpoint(ctx, ep))

	cfg := &models.MonitoringConfig{
		ID:         "cfg-1",
		UserID:     "u1",
		EndpointID: ep.ID,
		EventType:  eventType,
		Name:       "watch",
		Parameters: json.RawMessage(params),
		Scope:      models.Scope{Type: models.ScopeTypeCampaigns, IDs: []string{"cmp-1"}},
		Active:     true,
		CreatedAt:  testNow,
	}
	require.NoError(t, store.SaveConfig(ctx, cfg))
	return cfg
}

func seedCampaign(t *testing.T, store storage.Storage, id string, createdAt time.Time) *models.Campaign {
	t.Helper()

	c := &models.Campaign{
		ID:        id,
		Name:      id + " campaign",
		ClientID:  "cl-1",
		UserID:    "u1",
		Status:    "active",
		CreatedAt: createdAt,
	}
	require.NoError(t, store.SaveCampaign(context.Background(), c))
	return c
}

func seedDay(t *testing.T, store storage.Storage, campaignID, account string, day time.Time, sent, replied, positive, bounced int64) {
	t.Helper()

	require.NoError(t, store.SaveMetricsDay(context.Background(), &models.MetricsDay{
		CampaignID:      campaignID,
		EmailAccount:    account,
		Day:             day,
		Sent:            sent,
		Opened:          sent / 2,
		Replied:         replied,
		PositiveReplied: positive,
		Bounced:         bounced,
	}))
}

func day(offset int) time.Time {
	return testNow.AddDate(0, 0, offset)
}

func TestEvaluateReplyRateDropFires(t *testing.T) {
	store := newTestStorage(t)
	cfg := seedPipeline(t, store, models.EventTypeReplyRateDrop,
		`{"threshold_percent": 5, "monitoring_period_days": 7}`)
	campaign := seedCampaign(t, store, "cmp-1", day(-60))

	// Previous window (days -14..-8): 100 sent, 15 replied = 15%
	seedDay(t, store, "cmp-1", "a@sender.io", day(-12), 50, 10, 5, 0)
	seedDay(t, store, "cmp-1", "b@sender.io", day(-10), 50, 5, 2, 0)
	// Current window (days -7..0): 100 sent, 5 replied = 5%
	seedDay(t, store, "cmp-1", "a@sender.io", day(-5), 50, 1, 0, 0)
	seedDay(t, store, "cmp-1", "b@sender.io", day(-3), 50, 4, 1, 0)

	e := newTestEvaluator(store)
	result, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{campaign})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Evaluated)
	require.Len(t, result.Triggers, 1)
	assert.Empty(t, result.Errors)

	trigger := result.Triggers[0]
	assert.Equal(t, cfg.ID, trigger.ConfigID)
	assert.Equal(t, "ep-1", trigger.EndpointID)
	assert.Equal(t, "cmp-1", trigger.CampaignID)
	assert.Equal(t, models.TriggerStatusPending, trigger.Status)

	var payload models.ReplyRateDropPayload
	require.NoError(t, json.Unmarshal(trigger.Payload, &payload))
	assert.InDelta(t, 10.0, payload.ReplyRateDrop, 0.001)
	assert.InDelta(t, 5.0, payload.Current.Rate, 0.001)
	assert.InDelta(t, 15.0, payload.Previous.Rate, 0.001)
	assert.Equal(t, int64(100), payload.Current.Sent)
	assert.Equal(t, 5.0, payload.Thresholds.ThresholdPercent)

	// Worst reply rate first: a@ sent 50 replied 1 (2%), b@ 50/4 (8%)
	require.Len(t, payload.Accounts, 2)
	assert.Equal(t, "a@sender.io", payload.Accounts[0].EmailAccount)
	assert.Equal(t, models.ImpactLevelHigh, payload.Accounts[0].Impact)
	assert.Equal(t, "b@sender.io", payload.Accounts[1].EmailAccount)
	assert.Equal(t, models.ImpactLevelMedium, payload.Accounts[1].Impact)
}

func TestEvaluateReplyRateDropDedup(t *testing.T) {
	store := newTestStorage(t)
	cfg := seedPipeline(t, store, models.EventTypeReplyRateDrop,
		`{"threshold_percent": 5, "monitoring_period_days": 7}`)
	campaign := seedCampaign(t, store, "cmp-1", day(-60))

	seedDay(t, store, "cmp-1", "a@sender.io", day(-10), 100, 20, 10, 0)
	seedDay(t, store, "cmp-1", "a@sender.io", day(-3), 100, 5, 2, 0)

	e := newTestEvaluator(store)
	first, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{campaign})
	require.NoError(t, err)
	require.Len(t, first.Triggers, 1)

	// Same window, same condition: the earlier trigger is the watermark
	second, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{campaign})
	require.NoError(t, err)
	assert.Empty(t, second.Triggers)
	assert.Equal(t, 1, second.Skipped)
}

func TestEvaluateReplyRateBelowThreshold(t *testing.T) {
	store := newTestStorage(t)
	cfg := seedPipeline(t, store, models.EventTypeReplyRateDrop,
		`{"threshold_percent": 15, "monitoring_period_days": 7}`)
	campaign := seedCampaign(t, store, "cmp-1", day(-60))

	// 15% -> 10%, a five point drop against a fifteen point threshold
	seedDay(t, store, "cmp-1", "a@sender.io", day(-10), 100, 15, 5, 0)
	seedDay(t, store, "cmp-1", "a@sender.io", day(-3), 100, 10, 5, 0)

	e := newTestEvaluator(store)
	result, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{campaign})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Empty(t, result.Triggers)
}

func TestEvaluateMinimumVolumeGuard(t *testing.T) {
	store := newTestStorage(t)
	cfg := seedPipeline(t, store, models.EventTypeReplyRateDrop,
		`{"threshold_percent": 5, "monitoring_period_days": 7}`)
	campaign := seedCampaign(t, store, "cmp-1", day(-60))

	// Steep drop but only 30 sent in the current window
	seedDay(t, store, "cmp-1", "a@sender.io", day(-10), 100, 30, 10, 0)
	seedDay(t, store, "cmp-1", "a@sender.io", day(-3), 30, 0, 0, 0)

	e := newTestEvaluator(store)
	result, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{campaign})
	require.NoError(t, err)
	assert.Empty(t, result.Triggers)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Evaluated)
}

func TestEvaluateBounceRateHighFires(t *testing.T) {
	store := newTestStorage(t)
	cfg := seedPipeline(t, store, models.EventTypeBounceRateHigh,
		`{"threshold_percent": 10, "monitoring_period_days": 7}`)
	campaign := seedCampaign(t, store, "cmp-1", day(-60))

	seedDay(t, store, "cmp-1", "a@sender.io", day(-10), 100, 10, 5, 2)
	seedDay(t, store, "cmp-1", "a@sender.io", day(-3), 100, 10, 5, 12)

	e := newTestEvaluator(store)
	result, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{campaign})
	require.NoError(t, err)
	require.Len(t, result.Triggers, 1)

	var payload models.BounceRateHighPayload
	require.NoError(t, json.Unmarshal(result.Triggers[0].Payload, &payload))
	assert.InDelta(t, 12.0, payload.BounceRate, 0.001)
}

func TestEvaluateNoReplyFires(t *testing.T) {
	store := newTestStorage(t)
	cfg := seedPipeline(t, store, models.EventTypeNoReply, `{"days_since_last_reply": 7}`)
	silent := seedCampaign(t, store, "cmp-1", day(-60))
	replied := seedCampaign(t, store, "cmp-2", day(-60))

	// cmp-1 last replied ten days ago, outside the seven day cutoff
	seedDay(t, store, "cmp-1", "a@sender.io", day(-10), 40, 2, 1, 0)
	seedDay(t, store, "cmp-1", "a@sender.io", day(-4), 60, 0, 0, 0)
	// cmp-2 replied three days ago
	seedDay(t, store, "cmp-2", "a@sender.io", day(-3), 60, 1, 0, 0)

	e := newTestEvaluator(store)
	result, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{silent, replied})
	require.NoError(t, err)

	require.Len(t, result.Triggers, 1)
	trigger := result.Triggers[0]
	assert.Empty(t, trigger.CampaignID, "batch trigger carries no single campaign")

	var payload models.NoReplyPayload
	require.NoError(t, json.Unmarshal(trigger.Payload, &payload))
	assert.False(t, payload.PositiveOnly)
	require.Len(t, payload.Campaigns, 1)
	assert.Equal(t, "cmp-1", payload.Campaigns[0].CampaignID)
	assert.NotNil(t, payload.Campaigns[0].LastReplyAt)
	assert.GreaterOrEqual(t, payload.Campaigns[0].DaysSilent, 9)
}

func TestEvaluateNoPositiveReplyNeverReplied(t *testing.T) {
	store := newTestStorage(t)
	cfg := seedPipeline(t, store, models.EventTypeNoPositiveReply, `{"days_since_last_reply": 7}`)
	campaign := seedCampaign(t, store, "cmp-1", day(-20))

	// Plain replies exist inside the window but no positive ones ever
	seedDay(t, store, "cmp-1", "a@sender.io", day(-3), 60, 5, 0, 0)

	e := newTestEvaluator(store)
	result, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{campaign})
	require.NoError(t, err)

	require.Len(t, result.Triggers, 1)
	var payload models.NoReplyPayload
	require.NoError(t, json.Unmarshal(result.Triggers[0].Payload, &payload))
	assert.True(t, payload.PositiveOnly)
	require.Len(t, payload.Campaigns, 1)
	assert.Nil(t, payload.Campaigns[0].LastReplyAt)
	// Silence is measured from campaign creation when no reply ever arrived
	assert.Equal(t, 20, payload.Campaigns[0].DaysSilent)
}

func TestEvaluateNoReplyConfigLevelDedup(t *testing.T) {
	store := newTestStorage(t)
	cfg := seedPipeline(t, store, models.EventTypeNoReply, `{"days_since_last_reply": 7}`)
	campaign := seedCampaign(t, store, "cmp-1", day(-60))
	seedDay(t, store, "cmp-1", "a@sender.io", day(-4), 60, 0, 0, 0)

	lastTriggered := day(-1)
	cfg.LastTriggeredAt = &lastTriggered

	e := newTestEvaluator(store)
	result, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{campaign})
	require.NoError(t, err)
	assert.Empty(t, result.Triggers)
	assert.Equal(t, 1, result.Skipped)
}

// failingFeed returns an error for one campaign and delegates the rest.
type failingFeed struct {
	feed.Feed
	failFor string
}

func (f *failingFeed) GetCampaignMetrics(ctx context.Context, campaignID string, from, to time.Time) (*models.CampaignMetrics, error) {
	if campaignID == f.failFor {
		return nil, errors.New("metrics source unavailable")
	}
	return f.Feed.GetCampaignMetrics(ctx, campaignID, from, to)
}

func TestEvaluatePartialFeedFailure(t *testing.T) {
	store := newTestStorage(t)
	cfg := seedPipeline(t, store, models.EventTypeReplyRateDrop,
		`{"threshold_percent": 5, "monitoring_period_days": 7}`)
	broken := seedCampaign(t, store, "cmp-broken", day(-60))
	healthy := seedCampaign(t, store, "cmp-1", day(-60))

	seedDay(t, store, "cmp-1", "a@sender.io", day(-10), 100, 20, 10, 0)
	seedDay(t, store, "cmp-1", "a@sender.io", day(-3), 100, 5, 2, 0)

	e := newTestEvaluator(store)
	e.feed = &failingFeed{Feed: e.feed, failFor: "cmp-broken"}

	result, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{broken, healthy})
	require.NoError(t, err, "a single campaign's feed failure must not abort the scope")

	assert.Len(t, result.Errors, 1)
	require.Len(t, result.Triggers, 1)
	assert.Equal(t, "cmp-1", result.Triggers[0].CampaignID)
}

func TestEvaluateCampaignCreated(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	ep := &models.Endpoint{
		ID: "ep-1", UserID: "u1", Name: "webhook", URL: "https://hooks.example.com/x",
		Active: true, RetryCount: 3, Timeout: 5 * time.Second, CreatedAt: testNow,
	}
	require.NoError(t, store.SaveEndpoint(ctx, ep))

	cfg := &models.MonitoringConfig{
		ID:         "cfg-created",
		UserID:     "u1",
		EndpointID: ep.ID,
		EventType:  models.EventTypeCampaignCreated,
		Name:       "creation watch",
		Scope:      models.Scope{Type: models.ScopeTypeClients, IDs: []string{"cl-1"}},
		Active:     true,
		CreatedAt:  testNow,
	}
	require.NoError(t, store.SaveConfig(ctx, cfg))

	e := newTestEvaluator(store)

	covered := &models.Campaign{ID: "cmp-new", Name: "fresh", ClientID: "cl-1", UserID: "u1", CreatedAt: testNow}
	triggers, err := e.EvaluateCampaignCreated(ctx, covered)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, models.EventTypeCampaignCreated, triggers[0].EventType)

	var payload models.CampaignCreatedPayload
	require.NoError(t, json.Unmarshal(triggers[0].Payload, &payload))
	assert.Equal(t, "cmp-new", payload.CampaignID)

	outside := &models.Campaign{ID: "cmp-other", Name: "other", ClientID: "cl-9", UserID: "u1", CreatedAt: testNow}
	triggers, err = e.EvaluateCampaignCreated(ctx, outside)
	require.NoError(t, err)
	assert.Empty(t, triggers)
}

func TestEvaluateScheduledSkipsCampaignCreated(t *testing.T) {
	store := newTestStorage(t)
	cfg := seedPipeline(t, store, models.EventTypeCampaignCreated, ``)
	campaign := seedCampaign(t, store, "cmp-1", day(-10))

	e := newTestEvaluator(store)
	result, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{campaign})
	require.NoError(t, err)
	assert.Empty(t, result.Triggers)
	assert.Equal(t, 0, result.Evaluated)
}

func TestEvaluateWindowBoundaryDayCountedOnce(t *testing.T) {
	store := newTestStorage(t)
	cfg := seedPipeline(t, store, models.EventTypeReplyRateDrop,
		`{"threshold_percent": 5, "monitoring_period_days": 7}`)
	campaign := seedCampaign(t, store, "cmp-1", day(-60))

	// Previous window (days -14..-8): 100 sent, 15 replied = 15%
	seedDay(t, store, "cmp-1", "a@sender.io", day(-10), 100, 15, 5, 0)
	// Day -7 starts the current window and must not also count as the
	// previous window's last day
	seedDay(t, store, "cmp-1", "a@sender.io", day(-7), 100, 0, 0, 0)
	// Rest of the current window
	seedDay(t, store, "cmp-1", "a@sender.io", day(-3), 100, 5, 1, 0)

	e := newTestEvaluator(store)
	result, err := e.Evaluate(context.Background(), cfg, []*models.Campaign{campaign})
	require.NoError(t, err)
	require.Len(t, result.Triggers, 1)

	var payload models.ReplyRateDropPayload
	require.NoError(t, json.Unmarshal(result.Triggers[0].Payload, &payload))

	// Current: 200 sent, 5 replied = 2.5%. Previous: 100 sent, 15 = 15%.
	assert.Equal(t, int64(200), payload.Current.Sent)
	assert.Equal(t, int64(100), payload.Previous.Sent)
	assert.InDelta(t, 2.5, payload.Current.Rate, 0.001)
	assert.InDelta(t, 15.0, payload.Previous.Rate, 0.001)
	assert.InDelta(t, 12.5, payload.ReplyRateDrop, 0.001)
}
