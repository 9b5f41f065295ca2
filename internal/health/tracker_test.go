package health

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/internal/storage"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()

	cfg := &storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "health_test.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	}

	store := storage.NewSQLiteStorage(cfg)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	return store
}

func seedEndpoint(t *testing.T, store storage.Storage) *models.Endpoint {
	t.Helper()

	ep := &models.Endpoint{
		ID:         "ep-1",
		UserID:     "u1",
		Name:       "flaky endpoint",
		URL:        "https://hooks.example.com/x",
		Active:     true,
		RetryCount: 3,
		Timeout:    5 * time.Second,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.SaveEndpoint(context.Background(), ep))
	return ep
}

func TestTrackerCountsFailures(t *testing.T) {
	store := newTestStorage(t)
	ep := seedEndpoint(t, store)
	tracker := NewTracker(store, &Config{MaxFailures: 0}, nil)
	ctx := context.Background()

	require.NoError(t, tracker.RecordOutcome(ctx, ep, false))
	require.NoError(t, tracker.RecordOutcome(ctx, ep, false))
	require.NoError(t, tracker.RecordOutcome(ctx, ep, true))

	updated, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)

	// Success never resets the cumulative counter
	assert.Equal(t, int64(2), updated.FailureCount)
	assert.True(t, updated.Active, "deactivation is disabled when MaxFailures is zero")
	assert.NotNil(t, updated.LastTriggeredAt)
}

func TestTrackerDeactivatesAtThreshold(t *testing.T) {
	store := newTestStorage(t)
	ep := seedEndpoint(t, store)
	tracker := NewTracker(store, &Config{MaxFailures: 3}, nil)
	ctx := context.Background()

	require.NoError(t, tracker.RecordOutcome(ctx, ep, false))
	require.NoError(t, tracker.RecordOutcome(ctx, ep, false))

	updated, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.True(t, updated.Active, "below threshold stays active")

	require.NoError(t, tracker.RecordOutcome(ctx, ep, false))

	updated, err = store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, int64(3), updated.FailureCount)
}

func TestReactivateClearsCounter(t *testing.T) {
	store := newTestStorage(t)
	ep := seedEndpoint(t, store)
	tracker := NewTracker(store, &Config{MaxFailures: 2}, nil)
	ctx := context.Background()

	require.NoError(t, tracker.RecordOutcome(ctx, ep, false))
	require.NoError(t, tracker.RecordOutcome(ctx, ep, false))

	updated, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	require.False(t, updated.Active)

	require.NoError(t, store.ReactivateEndpoint(ctx, ep.ID))

	updated, err = store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.True(t, updated.Active)
	assert.Equal(t, int64(0), updated.FailureCount)
}
