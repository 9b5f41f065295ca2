// File: internal/feed/feed.go
package feed

import (
	"context"
	"time"

	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/internal/storage"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// Feed supplies aggregated campaign metrics for a window. The aggregation
// job that produces the underlying rows is an external collaborator; this
// interface is the read side the evaluator depends on.
type Feed interface {
	GetCampaignMetrics(ctx context.Context, campaignID string, from, to time.Time) (*models.CampaignMetrics, error)
	GetAccountMetrics(ctx context.Context, campaignID string, from, to time.Time) ([]*models.AccountMetrics, error)
	GetLastReplyAt(ctx context.Context, campaignID string, positiveOnly bool) (*time.Time, error)
}

// StorageFeed reads the daily aggregate rows through the storage layer
type StorageFeed struct {
	storage storage.Storage
}

// NewStorageFeed creates a storage-backed metrics feed
func NewStorageFeed(store storage.Storage) *StorageFeed {
	return &StorageFeed{storage: store}
}

// GetCampaignMetrics returns campaign-aggregate counts for a window
func (f *StorageFeed) GetCampaignMetrics(ctx context.Context, campaignID string, from, to time.Time) (*models.CampaignMetrics, error) {
	m, err := f.storage.GetCampaignMetrics(ctx, campaignID, from, to)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeFeed, "Metrics feed query failed", err.Error())
	}
	return m, nil
}

// GetAccountMetrics returns per-sending-identity counts for a window
func (f *StorageFeed) GetAccountMetrics(ctx context.Context, campaignID string, from, to time.Time) ([]*models.AccountMetrics, error) {
	accounts, err := f.storage.GetAccountMetrics(ctx, campaignID, from, to)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeFeed, "Account metrics feed query failed", err.Error())
	}
	return accounts, nil
}

// GetLastReplyAt returns the most recent (positive) reply time, nil when
// the campaign has never had one
func (f *StorageFeed) GetLastReplyAt(ctx context.Context, campaignID string, positiveOnly bool) (*time.Time, error) {
	at, err := f.storage.GetLastReplyAt(ctx, campaignID, positiveOnly)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeFeed, "Last reply feed query failed", err.Error())
	}
	return at, nil
}
