// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/campaignwatch/campaign-watch/internal/models"
)

// Storage defines the interface for monitoring pipeline persistence
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Monitoring configuration reads and watermarks
	GetConfig(ctx context.Context, id string) (*models.MonitoringConfig, error)
	GetActiveConfigs(ctx context.Context, scheduledOnly bool) ([]*models.MonitoringConfig, error)
	GetActiveConfigsByEventType(ctx context.Context, eventType models.EventType) ([]*models.MonitoringConfig, error)
	SetConfigLastCheckedAt(ctx context.Context, configID string, at time.Time) error
	SetConfigLastTriggeredAt(ctx context.Context, configID string, at time.Time) error

	// Endpoint reads and health bookkeeping
	GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error)
	RecordEndpointDelivery(ctx context.Context, endpointID string, success bool, at time.Time) error
	DeactivateEndpoint(ctx context.Context, endpointID string) error
	ReactivateEndpoint(ctx context.Context, endpointID string) error

	// Campaign ownership feed (read-only)
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	GetCampaignsByIDs(ctx context.Context, ids []string) ([]*models.Campaign, error)
	GetCampaignsByClients(ctx context.Context, clientIDs []string) ([]*models.Campaign, error)
	GetCampaignsByUsers(ctx context.Context, userIDs []string) ([]*models.Campaign, error)

	// Writes owned by the management surface and the aggregation job. This
	// service owns the schema, so the storage layer carries them; the
	// pipeline itself only writes campaigns on campaign.created ingestion.
	SaveEndpoint(ctx context.Context, endpoint *models.Endpoint) error
	SaveConfig(ctx context.Context, config *models.MonitoringConfig) error
	SaveCampaign(ctx context.Context, campaign *models.Campaign) error
	SaveMetricsDay(ctx context.Context, row *models.MetricsDay) error

	// Campaign metrics feed (read-only daily aggregates)
	GetCampaignMetrics(ctx context.Context, campaignID string, from, to time.Time) (*models.CampaignMetrics, error)
	GetAccountMetrics(ctx context.Context, campaignID string, from, to time.Time) ([]*models.AccountMetrics, error)
	GetLastReplyAt(ctx context.Context, campaignID string, positiveOnly bool) (*time.Time, error)

	// Trigger operations
	SaveTrigger(ctx context.Context, trigger *models.Trigger) error
	GetTrigger(ctx context.Context, id string) (*models.Trigger, error)
	GetTriggers(ctx context.Context, filter models.TriggerFilter) ([]*models.Trigger, error)
	GetPendingTriggers(ctx context.Context, limit int) ([]*models.Trigger, error)
	ClaimTrigger(ctx context.Context, id string) (bool, error)
	RequeueDeliveringTriggers(ctx context.Context) (int64, error)
	UpdateTriggerOutcome(ctx context.Context, trigger *models.Trigger) error
	GetLastTriggerTime(ctx context.Context, configID, campaignID string) (*time.Time, error)

	// Delivery attempt log
	SaveDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
	GetDeliveryAttempts(ctx context.Context, triggerID string) ([]*models.DeliveryAttempt, error)

	// Statistics and maintenance
	GetStorageStats(ctx context.Context) (*StorageStats, error)
	Cleanup(ctx context.Context, retentionDays int) error
	Vacuum() error
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalConfigs     int64      `json:"total_configs"`
	ActiveConfigs    int64      `json:"active_configs"`
	TotalEndpoints   int64      `json:"total_endpoints"`
	TotalTriggers    int64      `json:"total_triggers"`
	PendingTriggers  int64      `json:"pending_triggers"`
	FailedTriggers   int64      `json:"failed_triggers"`
	OldestTrigger    *time.Time `json:"oldest_trigger,omitempty"`
	LatestTrigger    *time.Time `json:"latest_trigger,omitempty"`
	DatabaseSize     int64      `json:"database_size_bytes"`
	LastCleanup      *time.Time `json:"last_cleanup,omitempty"`
	DeliveryAttempts int64      `json:"delivery_attempts"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
	RetentionDays    int           `json:"retention_days"`
}
