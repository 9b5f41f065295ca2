// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// GetConfig loads a single monitoring configuration
func (s *SQLiteStorage) GetConfig(ctx context.Context, id string) (*models.MonitoringConfig, error) {
	query := configSelectColumns + ` FROM monitoring_configs WHERE id = ?`

	cfg, err := scanConfig(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Monitoring config not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get config", err.Error())
	}
	return cfg, nil
}

// GetActiveConfigs loads active configurations. With scheduledOnly set,
// push-based event types are excluded.
func (s *SQLiteStorage) GetActiveConfigs(ctx context.Context, scheduledOnly bool) ([]*models.MonitoringConfig, error) {
	query := configSelectColumns + ` FROM monitoring_configs WHERE active = TRUE`
	args := []interface{}{}
	if scheduledOnly {
		query += ` AND event_type != ?`
		args = append(args, string(models.EventTypeCampaignCreated))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query configs", err.Error())
	}
	defer rows.Close()

	return scanConfigs(rows)
}

// GetActiveConfigsByEventType loads active configurations for one event type
func (s *SQLiteStorage) GetActiveConfigsByEventType(ctx context.Context, eventType models.EventType) ([]*models.MonitoringConfig, error) {
	query := configSelectColumns + ` FROM monitoring_configs WHERE active = TRUE AND event_type = ? ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, string(eventType))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query configs by event type", err.Error())
	}
	defer rows.Close()

	return scanConfigs(rows)
}

// SetConfigLastCheckedAt advances a configuration's evaluation watermark
func (s *SQLiteStorage) SetConfigLastCheckedAt(ctx context.Context, configID string, at time.Time) error {
	query := `UPDATE monitoring_configs SET last_checked_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), configID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set last_checked_at", err.Error())
	}
	return nil
}

// SetConfigLastTriggeredAt advances a configuration's firing watermark
func (s *SQLiteStorage) SetConfigLastTriggeredAt(ctx context.Context, configID string, at time.Time) error {
	query := `UPDATE monitoring_configs SET last_triggered_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), configID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set last_triggered_at", err.Error())
	}
	return nil
}

// GetEndpoint loads a webhook endpoint
func (s *SQLiteStorage) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	query := `
		SELECT id, user_id, name, url, headers, active, retry_count, timeout_ms,
		       last_triggered_at, failure_count, created_at, updated_at
		FROM endpoints WHERE id = ?
	`

	var (
		ep          models.Endpoint
		headersJSON sql.NullString
		timeoutMs   int64
		lastAt      sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ep.ID, &ep.UserID, &ep.Name, &ep.URL, &headersJSON, &ep.Active,
		&ep.RetryCount, &timeoutMs, &lastAt, &ep.FailureCount,
		&ep.CreatedAt, &ep.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Endpoint not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get endpoint", err.Error())
	}

	ep.Timeout = time.Duration(timeoutMs) * time.Millisecond
	if lastAt.Valid {
		t := lastAt.Time
		ep.LastTriggeredAt = &t
	}
	if headersJSON.Valid && headersJSON.String != "" {
		if err := json.Unmarshal([]byte(headersJSON.String), &ep.Headers); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal endpoint headers", err.Error())
		}
	}
	return &ep, nil
}

// RecordEndpointDelivery folds a delivery outcome into the endpoint record.
// The failure counter increment is a single UPDATE so concurrent deliveries
// to the same endpoint remain atomic.
func (s *SQLiteStorage) RecordEndpointDelivery(ctx context.Context, endpointID string, success bool, at time.Time) error {
	var query string
	if success {
		query = `UPDATE endpoints SET last_triggered_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	} else {
		query = `UPDATE endpoints SET last_triggered_at = ?, failure_count = failure_count + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	}
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), endpointID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record endpoint delivery", err.Error())
	}
	return nil
}

// DeactivateEndpoint marks an endpoint inactive
func (s *SQLiteStorage) DeactivateEndpoint(ctx context.Context, endpointID string) error {
	query := `UPDATE endpoints SET active = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, endpointID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to deactivate endpoint", err.Error())
	}
	return nil
}

// ReactivateEndpoint re-enables an endpoint and clears its failure counter
func (s *SQLiteStorage) ReactivateEndpoint(ctx context.Context, endpointID string) error {
	query := `UPDATE endpoints SET active = TRUE, failure_count = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, endpointID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to reactivate endpoint", err.Error())
	}
	return nil
}

// GetCampaign loads a single campaign ownership record
func (s *SQLiteStorage) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	query := `SELECT id, name, client_id, user_id, status, created_at FROM campaigns WHERE id = ?`

	var c models.Campaign
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.ClientID, &c.UserID, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Campaign not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get campaign", err.Error())
	}
	return &c, nil
}

// GetCampaignsByIDs loads campaigns by id list
func (s *SQLiteStorage) GetCampaignsByIDs(ctx context.Context, ids []string) ([]*models.Campaign, error) {
	return s.queryCampaigns(ctx, "id", ids)
}

// GetCampaignsByClients loads campaigns assigned to the given clients
func (s *SQLiteStorage) GetCampaignsByClients(ctx context.Context, clientIDs []string) ([]*models.Campaign, error) {
	return s.queryCampaigns(ctx, "client_id", clientIDs)
}

// GetCampaignsByUsers loads campaigns owned by clients assigned to the users
func (s *SQLiteStorage) GetCampaignsByUsers(ctx context.Context, userIDs []string) ([]*models.Campaign, error) {
	return s.queryCampaigns(ctx, "user_id", userIDs)
}

func (s *SQLiteStorage) queryCampaigns(ctx context.Context, column string, ids []string) ([]*models.Campaign, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf(
		`SELECT id, name, client_id, user_id, status, created_at FROM campaigns WHERE %s IN (%s)`,
		column, placeholders)

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query campaigns", err.Error())
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.ClientID, &c.UserID, &c.Status, &c.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan campaign", err.Error())
		}
		campaigns = append(campaigns, &c)
	}
	return campaigns, rows.Err()
}

// SaveEndpoint inserts or replaces a webhook endpoint
func (s *SQLiteStorage) SaveEndpoint(ctx context.Context, ep *models.Endpoint) error {
	headersJSON, err := json.Marshal(ep.Headers)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal endpoint headers", err.Error())
	}

	query := `
		INSERT OR REPLACE INTO endpoints
		(id, user_id, name, url, headers, active, retry_count, timeout_ms,
		 last_triggered_at, failure_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	_, err = s.db.ExecContext(ctx, query,
		ep.ID, ep.UserID, ep.Name, ep.URL, string(headersJSON), ep.Active,
		ep.RetryCount, ep.Timeout.Milliseconds(), ep.LastTriggeredAt,
		ep.FailureCount, ep.CreatedAt.UTC())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save endpoint", err.Error())
	}
	return nil
}

// SaveConfig inserts or replaces a monitoring configuration
func (s *SQLiteStorage) SaveConfig(ctx context.Context, cfg *models.MonitoringConfig) error {
	scopeIDsJSON, err := json.Marshal(cfg.Scope.IDs)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal scope ids", err.Error())
	}

	query := `
		INSERT OR REPLACE INTO monitoring_configs
		(id, user_id, endpoint_id, event_type, name, description, parameters,
		 scope_type, scope_ids, active, last_checked_at, last_triggered_at,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	_, err = s.db.ExecContext(ctx, query,
		cfg.ID, cfg.UserID, cfg.EndpointID, string(cfg.EventType), cfg.Name,
		cfg.Description, string(cfg.Parameters), string(cfg.Scope.Type),
		string(scopeIDsJSON), cfg.Active, cfg.LastCheckedAt, cfg.LastTriggeredAt,
		cfg.CreatedAt.UTC())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save config", err.Error())
	}
	return nil
}

// SaveCampaign inserts or replaces a campaign ownership record
func (s *SQLiteStorage) SaveCampaign(ctx context.Context, c *models.Campaign) error {
	query := `
		INSERT OR REPLACE INTO campaigns (id, name, client_id, user_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.ClientID, c.UserID, c.Status, c.CreatedAt.UTC())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save campaign", err.Error())
	}
	return nil
}

// SaveMetricsDay inserts or replaces one daily feed row
func (s *SQLiteStorage) SaveMetricsDay(ctx context.Context, row *models.MetricsDay) error {
	query := `
		INSERT OR REPLACE INTO campaign_metrics_daily
		(campaign_id, email_account, day, sent, opened, replied, positive_replied, bounced)
		VALUES (?, ?, DATE(?), ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		row.CampaignID, row.EmailAccount, row.Day.UTC(), row.Sent, row.Opened,
		row.Replied, row.PositiveReplied, row.Bounced)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save metrics row", err.Error())
	}
	return nil
}

// GetCampaignMetrics aggregates the daily feed rows for one campaign window
func (s *SQLiteStorage) GetCampaignMetrics(ctx context.Context, campaignID string, from, to time.Time) (*models.CampaignMetrics, error) {
	query := `
		SELECT COALESCE(SUM(sent), 0), COALESCE(SUM(opened), 0), COALESCE(SUM(replied), 0),
		       COALESCE(SUM(positive_replied), 0), COALESCE(SUM(bounced), 0)
		FROM campaign_metrics_daily
		WHERE campaign_id = ? AND day >= DATE(?) AND day <= DATE(?)
	`

	m := models.CampaignMetrics{CampaignID: campaignID, WindowStart: from, WindowEnd: to}
	err := s.db.QueryRowContext(ctx, query, campaignID, from.UTC(), to.UTC()).Scan(
		&m.Sent, &m.Opened, &m.Replied, &m.PositiveReplied, &m.Bounced)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to aggregate campaign metrics", err.Error())
	}
	return &m, nil
}

// GetAccountMetrics aggregates per-sending-identity feed rows for one window
func (s *SQLiteStorage) GetAccountMetrics(ctx context.Context, campaignID string, from, to time.Time) ([]*models.AccountMetrics, error) {
	query := `
		SELECT email_account, COALESCE(SUM(sent), 0), COALESCE(SUM(opened), 0), COALESCE(SUM(replied), 0),
		       COALESCE(SUM(positive_replied), 0), COALESCE(SUM(bounced), 0)
		FROM campaign_metrics_daily
		WHERE campaign_id = ? AND day >= DATE(?) AND day <= DATE(?)
		GROUP BY email_account
		ORDER BY SUM(sent) DESC
	`

	rows, err := s.db.QueryContext(ctx, query, campaignID, from.UTC(), to.UTC())
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to aggregate account metrics", err.Error())
	}
	defer rows.Close()

	var accounts []*models.AccountMetrics
	for rows.Next() {
		var a models.AccountMetrics
		if err := rows.Scan(&a.EmailAccount, &a.Sent, &a.Opened, &a.Replied, &a.PositiveReplied, &a.Bounced); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan account metrics", err.Error())
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// GetLastReplyAt returns the most recent day with a (positive) reply
func (s *SQLiteStorage) GetLastReplyAt(ctx context.Context, campaignID string, positiveOnly bool) (*time.Time, error) {
	column := "replied"
	if positiveOnly {
		column = "positive_replied"
	}
	query := fmt.Sprintf(
		`SELECT MAX(day) FROM campaign_metrics_daily WHERE campaign_id = ? AND %s > 0`, column)

	var day sql.NullTime
	if err := s.db.QueryRowContext(ctx, query, campaignID).Scan(&day); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get last reply time", err.Error())
	}
	if !day.Valid {
		return nil, nil
	}
	t := day.Time
	return &t, nil
}

// SaveTrigger persists a freshly fired trigger
func (s *SQLiteStorage) SaveTrigger(ctx context.Context, trigger *models.Trigger) error {
	query := `
		INSERT INTO triggers
		(id, config_id, endpoint_id, event_type, campaign_id, campaign_name, payload,
		 status, status_code, response_body, error_message, attempt_count, is_success,
		 created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		trigger.ID, trigger.ConfigID, trigger.EndpointID, string(trigger.EventType),
		trigger.CampaignID, trigger.CampaignName, string(trigger.Payload),
		string(trigger.Status), trigger.StatusCode, trigger.ResponseBody,
		trigger.ErrorMessage, trigger.AttemptCount, trigger.IsSuccess,
		trigger.CreatedAt.UTC(), trigger.DeliveredAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save trigger", err.Error())
	}
	return nil
}

// GetTrigger loads a trigger by id
func (s *SQLiteStorage) GetTrigger(ctx context.Context, id string) (*models.Trigger, error) {
	query := triggerSelectColumns + ` FROM triggers WHERE id = ?`

	tr, err := scanTrigger(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Trigger not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get trigger", err.Error())
	}
	return tr, nil
}

// GetTriggers loads triggers matching a filter
func (s *SQLiteStorage) GetTriggers(ctx context.Context, filter models.TriggerFilter) ([]*models.Trigger, error) {
	query := triggerSelectColumns + ` FROM triggers WHERE 1=1`
	var args []interface{}

	if filter.ConfigID != "" {
		query += ` AND config_id = ?`
		args = append(args, filter.ConfigID)
	}
	if filter.EndpointID != "" {
		query += ` AND endpoint_id = ?`
		args = append(args, filter.EndpointID)
	}
	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	if filter.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(filter.EventType))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.FromTime != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.FromTime.UTC())
	}
	if filter.ToTime != nil {
		query += ` AND created_at <= ?`
		args = append(args, filter.ToTime.UTC())
	}

	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query triggers", err.Error())
	}
	defer rows.Close()

	return scanTriggers(rows)
}

// GetPendingTriggers loads triggers awaiting delivery, oldest first
func (s *SQLiteStorage) GetPendingTriggers(ctx context.Context, limit int) ([]*models.Trigger, error) {
	query := triggerSelectColumns + ` FROM triggers WHERE status = ? ORDER BY created_at ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, string(models.TriggerStatusPending), limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query pending triggers", err.Error())
	}
	defer rows.Close()

	return scanTriggers(rows)
}

// ClaimTrigger transitions a pending trigger to delivering. Returns false
// when another worker already claimed it.
func (s *SQLiteStorage) ClaimTrigger(ctx context.Context, id string) (bool, error) {
	query := `UPDATE triggers SET status = ? WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, query,
		string(models.TriggerStatusDelivering), id, string(models.TriggerStatusPending))
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to claim trigger", err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read claim result", err.Error())
	}
	return n == 1, nil
}

// RequeueDeliveringTriggers returns claimed-but-unfinished triggers to the
// pending queue. This process is the only delivery consumer, so any
// delivering row seen while no worker holds it is an orphan from a crash
// or shutdown.
func (s *SQLiteStorage) RequeueDeliveringTriggers(ctx context.Context) (int64, error) {
	query := `UPDATE triggers SET status = ? WHERE status = ?`
	res, err := s.db.ExecContext(ctx, query,
		string(models.TriggerStatusPending), string(models.TriggerStatusDelivering))
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to requeue delivering triggers", err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read requeue result", err.Error())
	}
	return n, nil
}

// UpdateTriggerOutcome records the final delivery outcome on a trigger
func (s *SQLiteStorage) UpdateTriggerOutcome(ctx context.Context, trigger *models.Trigger) error {
	query := `
		UPDATE triggers
		SET status = ?, status_code = ?, response_body = ?, error_message = ?,
		    attempt_count = ?, is_success = ?, delivered_at = ?
		WHERE id = ?
	`

	_, err := s.db.ExecContext(ctx, query,
		string(trigger.Status), trigger.StatusCode, trigger.ResponseBody,
		trigger.ErrorMessage, trigger.AttemptCount, trigger.IsSuccess,
		trigger.DeliveredAt, trigger.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update trigger outcome", err.Error())
	}
	return nil
}

// GetLastTriggerTime returns the most recent firing time of a configuration
// against a campaign. Used as the dedup watermark.
func (s *SQLiteStorage) GetLastTriggerTime(ctx context.Context, configID, campaignID string) (*time.Time, error) {
	query := `SELECT MAX(created_at) FROM triggers WHERE config_id = ? AND campaign_id = ?`

	var at sql.NullTime
	if err := s.db.QueryRowContext(ctx, query, configID, campaignID).Scan(&at); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get last trigger time", err.Error())
	}
	if !at.Valid {
		return nil, nil
	}
	t := at.Time
	return &t, nil
}

// SaveDeliveryAttempt appends one attempt to the delivery log
func (s *SQLiteStorage) SaveDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	query := `
		INSERT INTO delivery_log
		(id, trigger_id, attempt_number, status_code, response_body, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		attempt.ID, attempt.TriggerID, attempt.AttemptNumber, attempt.StatusCode,
		attempt.ResponseBody, attempt.Error, attempt.Latency.Milliseconds(),
		attempt.CreatedAt.UTC())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save delivery attempt", err.Error())
	}
	return nil
}

// GetDeliveryAttempts loads the attempt log for one trigger
func (s *SQLiteStorage) GetDeliveryAttempts(ctx context.Context, triggerID string) ([]*models.DeliveryAttempt, error) {
	query := `
		SELECT id, trigger_id, attempt_number, status_code, response_body, error, latency_ms, created_at
		FROM delivery_log WHERE trigger_id = ? ORDER BY attempt_number ASC
	`

	rows, err := s.db.QueryContext(ctx, query, triggerID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query delivery attempts", err.Error())
	}
	defer rows.Close()

	var attempts []*models.DeliveryAttempt
	for rows.Next() {
		var (
			a         models.DeliveryAttempt
			latencyMs int64
		)
		if err := rows.Scan(&a.ID, &a.TriggerID, &a.AttemptNumber, &a.StatusCode,
			&a.ResponseBody, &a.Error, &latencyMs, &a.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan delivery attempt", err.Error())
		}
		a.Latency = time.Duration(latencyMs) * time.Millisecond
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM monitoring_configs`, &stats.TotalConfigs},
		{`SELECT COUNT(*) FROM monitoring_configs WHERE active = TRUE`, &stats.ActiveConfigs},
		{`SELECT COUNT(*) FROM endpoints`, &stats.TotalEndpoints},
		{`SELECT COUNT(*) FROM triggers`, &stats.TotalTriggers},
		{`SELECT COUNT(*) FROM triggers WHERE status = 'pending'`, &stats.PendingTriggers},
		{`SELECT COUNT(*) FROM triggers WHERE status = 'failed'`, &stats.FailedTriggers},
		{`SELECT COUNT(*) FROM delivery_log`, &stats.DeliveryAttempts},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to collect storage stats", err.Error())
		}
	}

	var oldest, latest sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(created_at), MAX(created_at) FROM triggers`).Scan(&oldest, &latest); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to collect trigger time range", err.Error())
	}
	if oldest.Valid {
		stats.OldestTrigger = &oldest.Time
	}
	if latest.Valid {
		stats.LatestTrigger = &latest.Time
	}

	if info, err := os.Stat(s.config.ConnectionString); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}

// Cleanup removes triggers and delivery log rows past the retention window
func (s *SQLiteStorage) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM delivery_log WHERE trigger_id IN (SELECT id FROM triggers WHERE created_at < ?)`,
		cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean delivery log", err.Error())
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE created_at < ?`, cutoff)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean triggers", err.Error())
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.WithFields(logrus.Fields{
			"removed": n,
			"cutoff":  cutoff,
		}).Info("Trigger retention cleanup completed")
	}
	return nil
}

// Vacuum reclaims database space
func (s *SQLiteStorage) Vacuum() error {
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to vacuum database", err.Error())
	}
	return nil
}
