package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignwatch/campaign-watch/internal/config"
	"github.com/campaignwatch/campaign-watch/internal/models"
)

func newSQLiteTestStorage(t *testing.T) Storage {
	t.Helper()

	cfg := &StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "storage_test.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	}

	store := NewSQLiteStorage(cfg)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	require.NoError(t, store.Ping())
	t.Cleanup(func() { store.Close() })

	return store
}

func testEndpoint(id string) *models.Endpoint {
	return &models.Endpoint{
		ID:         id,
		UserID:     "u1",
		Name:       "primary hook",
		URL:        "https://hooks.example.com/abc",
		Headers:    map[string]string{"X-Api-Key": "secret"},
		Active:     true,
		RetryCount: 3,
		Timeout:    10 * time.Second,
		CreatedAt:  time.Now().UTC(),
	}
}

func testConfig(id, endpointID string, eventType models.EventType, params string) *models.MonitoringConfig {
	return &models.MonitoringConfig{
		ID:         id,
		UserID:     "u1",
		EndpointID: endpointID,
		EventType:  eventType,
		Name:       "watch " + id,
		Parameters: json.RawMessage(params),
		Scope:      models.Scope{Type: models.ScopeTypeClients, IDs: []string{"cl-1", "cl-2"}},
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestEndpointRoundTrip(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()

	ep := testEndpoint("ep-1")
	require.NoError(t, store.SaveEndpoint(ctx, ep))

	got, err := store.GetEndpoint(ctx, "ep-1")
	require.NoError(t, err)
	assert.Equal(t, ep.URL, got.URL)
	assert.Equal(t, ep.Headers, got.Headers)
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, 10*time.Second, got.Timeout)
	assert.True(t, got.Active)
	assert.Equal(t, int64(0), got.FailureCount)

	_, err = store.GetEndpoint(ctx, "missing")
	assert.Error(t, err)
}

func TestConfigRoundTrip(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEndpoint(ctx, testEndpoint("ep-1")))
	cfg := testConfig("cfg-1", "ep-1", models.EventTypeReplyRateDrop,
		`{"threshold_percent": 5, "monitoring_period_days": 7}`)
	require.NoError(t, store.SaveConfig(ctx, cfg))

	got, err := store.GetConfig(ctx, "cfg-1")
	require.NoError(t, err)
	assert.Equal(t, models.EventTypeReplyRateDrop, got.EventType)
	assert.Equal(t, models.ScopeTypeClients, got.Scope.Type)
	assert.Equal(t, []string{"cl-1", "cl-2"}, got.Scope.IDs)
	assert.Nil(t, got.LastCheckedAt)
	assert.Nil(t, got.LastTriggeredAt)

	params, err := got.Params()
	require.NoError(t, err)
	assert.Equal(t, models.EventTypeReplyRateDrop, params.EventType())
}

func TestConfigWatermarks(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEndpoint(ctx, testEndpoint("ep-1")))
	cfg := testConfig("cfg-1", "ep-1", models.EventTypeNoReply, `{"days_since_last_reply": 7}`)
	require.NoError(t, store.SaveConfig(ctx, cfg))

	at := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetConfigLastCheckedAt(ctx, "cfg-1", at))
	require.NoError(t, store.SetConfigLastTriggeredAt(ctx, "cfg-1", at))

	got, err := store.GetConfig(ctx, "cfg-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastCheckedAt)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, got.LastCheckedAt.Equal(at))
	assert.True(t, got.LastTriggeredAt.Equal(at))
}

func TestGetActiveConfigsScheduledOnly(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEndpoint(ctx, testEndpoint("ep-1")))
	require.NoError(t, store.SaveConfig(ctx, testConfig("cfg-rate", "ep-1",
		models.EventTypeReplyRateDrop, `{"threshold_percent": 5, "monitoring_period_days": 7}`)))
	require.NoError(t, store.SaveConfig(ctx, testConfig("cfg-push", "ep-1",
		models.EventTypeCampaignCreated, ``)))

	inactive := testConfig("cfg-off", "ep-1", models.EventTypeNoReply, `{"days_since_last_reply": 7}`)
	inactive.Active = false
	require.NoError(t, store.SaveConfig(ctx, inactive))

	all, err := store.GetActiveConfigs(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scheduled, err := store.GetActiveConfigs(ctx, true)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "cfg-rate", scheduled[0].ID)

	push, err := store.GetActiveConfigsByEventType(ctx, models.EventTypeCampaignCreated)
	require.NoError(t, err)
	require.Len(t, push, 1)
	assert.Equal(t, "cfg-push", push[0].ID)
}

func seedTriggerFixtures(t *testing.T, store Storage) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SaveEndpoint(ctx, testEndpoint("ep-1")))
	require.NoError(t, store.SaveConfig(ctx, testConfig("cfg-1", "ep-1",
		models.EventTypeReplyRateDrop, `{"threshold_percent": 5, "monitoring_period_days": 7}`)))
}

func newTrigger(id string, createdAt time.Time) *models.Trigger {
	return &models.Trigger{
		ID:           id,
		ConfigID:     "cfg-1",
		EndpointID:   "ep-1",
		EventType:    models.EventTypeReplyRateDrop,
		CampaignID:   "cmp-1",
		CampaignName: "alpha",
		Payload:      json.RawMessage(`{"reply_rate_drop": 10}`),
		Status:       models.TriggerStatusPending,
		CreatedAt:    createdAt,
	}
}

func TestClaimTriggerIsExclusive(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()
	seedTriggerFixtures(t, store)

	require.NoError(t, store.SaveTrigger(ctx, newTrigger("trg-1", time.Now().UTC())))

	claimed, err := store.ClaimTrigger(ctx, "trg-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim loses the race
	claimed, err = store.ClaimTrigger(ctx, "trg-1")
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := store.GetTrigger(ctx, "trg-1")
	require.NoError(t, err)
	assert.Equal(t, models.TriggerStatusDelivering, got.Status)
}

func TestPendingTriggersOldestFirst(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()
	seedTriggerFixtures(t, store)

	now := time.Now().UTC()
	require.NoError(t, store.SaveTrigger(ctx, newTrigger("trg-new", now)))
	require.NoError(t, store.SaveTrigger(ctx, newTrigger("trg-old", now.Add(-time.Hour))))

	pending, err := store.GetPendingTriggers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "trg-old", pending[0].ID)
	assert.Equal(t, "trg-new", pending[1].ID)
}

func TestUpdateTriggerOutcome(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()
	seedTriggerFixtures(t, store)

	trigger := newTrigger("trg-1", time.Now().UTC())
	require.NoError(t, store.SaveTrigger(ctx, trigger))

	code := 200
	body := `{"ok":true}`
	now := time.Now().UTC()
	trigger.Status = models.TriggerStatusDelivered
	trigger.StatusCode = &code
	trigger.ResponseBody = &body
	trigger.AttemptCount = 2
	trigger.IsSuccess = true
	trigger.DeliveredAt = &now
	require.NoError(t, store.UpdateTriggerOutcome(ctx, trigger))

	got, err := store.GetTrigger(ctx, "trg-1")
	require.NoError(t, err)
	assert.Equal(t, models.TriggerStatusDelivered, got.Status)
	require.NotNil(t, got.StatusCode)
	assert.Equal(t, 200, *got.StatusCode)
	assert.Equal(t, 2, got.AttemptCount)
	assert.True(t, got.IsSuccess)
	assert.NotNil(t, got.DeliveredAt)
}

func TestGetTriggersFilter(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()
	seedTriggerFixtures(t, store)

	now := time.Now().UTC()
	require.NoError(t, store.SaveTrigger(ctx, newTrigger("trg-1", now.Add(-2*time.Hour))))

	other := newTrigger("trg-2", now)
	other.CampaignID = "cmp-2"
	other.Status = models.TriggerStatusFailed
	require.NoError(t, store.SaveTrigger(ctx, other))

	byCampaign, err := store.GetTriggers(ctx, models.TriggerFilter{CampaignID: "cmp-2"})
	require.NoError(t, err)
	require.Len(t, byCampaign, 1)
	assert.Equal(t, "trg-2", byCampaign[0].ID)

	byStatus, err := store.GetTriggers(ctx, models.TriggerFilter{Status: models.TriggerStatusPending})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "trg-1", byStatus[0].ID)

	limited, err := store.GetTriggers(ctx, models.TriggerFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "trg-2", limited[0].ID, "newest first")
}

func TestGetLastTriggerTime(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()
	seedTriggerFixtures(t, store)

	at, err := store.GetLastTriggerTime(ctx, "cfg-1", "cmp-1")
	require.NoError(t, err)
	assert.Nil(t, at, "no firing yet")

	older := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
	newer := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.SaveTrigger(ctx, newTrigger("trg-1", older)))
	require.NoError(t, store.SaveTrigger(ctx, newTrigger("trg-2", newer)))

	at, err = store.GetLastTriggerTime(ctx, "cfg-1", "cmp-1")
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.WithinDuration(t, newer, *at, time.Second)
}

func TestCampaignMetricsAggregation(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []models.MetricsDay{
		{CampaignID: "cmp-1", EmailAccount: "a@x.io", Day: now.AddDate(0, 0, -3), Sent: 50, Opened: 25, Replied: 5, PositiveReplied: 2, Bounced: 1},
		{CampaignID: "cmp-1", EmailAccount: "b@x.io", Day: now.AddDate(0, 0, -2), Sent: 30, Opened: 10, Replied: 3, PositiveReplied: 1, Bounced: 2},
		// Outside the window
		{CampaignID: "cmp-1", EmailAccount: "a@x.io", Day: now.AddDate(0, 0, -20), Sent: 99, Replied: 9},
		// Different campaign
		{CampaignID: "cmp-2", EmailAccount: "a@x.io", Day: now.AddDate(0, 0, -2), Sent: 70, Replied: 7},
	}
	for i := range rows {
		require.NoError(t, store.SaveMetricsDay(ctx, &rows[i]))
	}

	m, err := store.GetCampaignMetrics(ctx, "cmp-1", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	assert.Equal(t, int64(80), m.Sent)
	assert.Equal(t, int64(8), m.Replied)
	assert.Equal(t, int64(3), m.PositiveReplied)
	assert.Equal(t, int64(3), m.Bounced)

	accounts, err := store.GetAccountMetrics(ctx, "cmp-1", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "a@x.io", accounts[0].EmailAccount, "highest volume first")
	assert.Equal(t, int64(50), accounts[0].Sent)
}

func TestGetLastReplyAt(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []models.MetricsDay{
		{CampaignID: "cmp-1", EmailAccount: "a@x.io", Day: now.AddDate(0, 0, -10), Sent: 50, Replied: 5, PositiveReplied: 1},
		{CampaignID: "cmp-1", EmailAccount: "a@x.io", Day: now.AddDate(0, 0, -4), Sent: 50, Replied: 2},
	}
	for i := range rows {
		require.NoError(t, store.SaveMetricsDay(ctx, &rows[i]))
	}

	last, err := store.GetLastReplyAt(ctx, "cmp-1", false)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, now.AddDate(0, 0, -4), *last, 24*time.Hour)

	// The positive variant looks further back
	lastPositive, err := store.GetLastReplyAt(ctx, "cmp-1", true)
	require.NoError(t, err)
	require.NotNil(t, lastPositive)
	assert.WithinDuration(t, now.AddDate(0, 0, -10), *lastPositive, 24*time.Hour)

	never, err := store.GetLastReplyAt(ctx, "cmp-silent", false)
	require.NoError(t, err)
	assert.Nil(t, never)
}

func TestDeliveryAttemptLog(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()
	seedTriggerFixtures(t, store)
	require.NoError(t, store.SaveTrigger(ctx, newTrigger("trg-1", time.Now().UTC())))

	code := 500
	errMsg := "upstream down"
	require.NoError(t, store.SaveDeliveryAttempt(ctx, &models.DeliveryAttempt{
		ID: "att-1", TriggerID: "trg-1", AttemptNumber: 1,
		StatusCode: &code, Error: &errMsg, Latency: 120 * time.Millisecond,
		CreatedAt: time.Now().UTC(),
	}))
	okCode := 200
	require.NoError(t, store.SaveDeliveryAttempt(ctx, &models.DeliveryAttempt{
		ID: "att-2", TriggerID: "trg-1", AttemptNumber: 2,
		StatusCode: &okCode, Latency: 80 * time.Millisecond,
		CreatedAt: time.Now().UTC(),
	}))

	attempts, err := store.GetDeliveryAttempts(ctx, "trg-1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].AttemptNumber)
	assert.Equal(t, 120*time.Millisecond, attempts[0].Latency)
	require.NotNil(t, attempts[0].Error)
	assert.Equal(t, 2, attempts[1].AttemptNumber)
	assert.Nil(t, attempts[1].Error)
}

func TestStorageStatsAndCleanup(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()
	seedTriggerFixtures(t, store)

	require.NoError(t, store.SaveTrigger(ctx, newTrigger("trg-old", time.Now().UTC().AddDate(0, 0, -120))))
	require.NoError(t, store.SaveTrigger(ctx, newTrigger("trg-new", time.Now().UTC())))
	require.NoError(t, store.SaveDeliveryAttempt(ctx, &models.DeliveryAttempt{
		ID: "att-1", TriggerID: "trg-old", AttemptNumber: 1, CreatedAt: time.Now().UTC().AddDate(0, 0, -120),
	}))

	stats, err := store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalConfigs)
	assert.Equal(t, int64(1), stats.ActiveConfigs)
	assert.Equal(t, int64(1), stats.TotalEndpoints)
	assert.Equal(t, int64(2), stats.TotalTriggers)
	assert.Equal(t, int64(2), stats.PendingTriggers)
	assert.Equal(t, int64(1), stats.DeliveryAttempts)
	assert.NotNil(t, stats.OldestTrigger)

	require.NoError(t, store.Cleanup(ctx, 90))

	stats, err = store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalTriggers)
	assert.Equal(t, int64(0), stats.DeliveryAttempts)
}

func TestValidateStorageConfig(t *testing.T) {
	assert.NoError(t, ValidateStorageConfig(&config.StorageConfig{
		Type: "sqlite", ConnectionString: "./x.db", MaxConnections: 5}))
	assert.NoError(t, ValidateStorageConfig(&config.StorageConfig{
		Type: "postgres", ConnectionString: "postgres://x", MaxConnections: 5}))
	assert.Error(t, ValidateStorageConfig(&config.StorageConfig{
		Type: "mysql", ConnectionString: "x", MaxConnections: 5}))
	assert.Error(t, ValidateStorageConfig(&config.StorageConfig{
		Type: "sqlite", MaxConnections: 5}))
	assert.Error(t, ValidateStorageConfig(&config.StorageConfig{
		Type: "sqlite", ConnectionString: "./x.db"}))
}

func TestRequeueDeliveringTriggers(t *testing.T) {
	store := newSQLiteTestStorage(t)
	ctx := context.Background()
	seedTriggerFixtures(t, store)

	require.NoError(t, store.SaveTrigger(ctx, newTrigger("trg-1", time.Now().UTC())))
	require.NoError(t, store.SaveTrigger(ctx, newTrigger("trg-2", time.Now().UTC())))

	claimed, err := store.ClaimTrigger(ctx, "trg-1")
	require.NoError(t, err)
	require.True(t, claimed)

	n, err := store.RequeueDeliveringTriggers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetTrigger(ctx, "trg-1")
	require.NoError(t, err)
	assert.Equal(t, models.TriggerStatusPending, got.Status)

	pending, err := store.GetPendingTriggers(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// Finished triggers are left alone
	n, err = store.RequeueDeliveringTriggers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
