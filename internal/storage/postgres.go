// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgreSQLMigrations(),
	}
}

// Connect establishes database connection
func (s *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgreSQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgreSQLStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
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
func (s *PostgreSQLStorage) GetConfig(ctx context.Context, id string) (*models.MonitoringConfig, error) {
	query := configSelectColumns + ` FROM monitoring_configs WHERE id = $1`

	cfg, err := scanConfig(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Monitoring config not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get config", err.Error())
	}
	return cfg, nil
}

// GetActiveConfigs loads active configurations
func (s *PostgreSQLStorage) GetActiveConfigs(ctx context.Context, scheduledOnly bool) ([]*models.MonitoringConfig, error) {
	query := configSelectColumns + ` FROM monitoring_configs WHERE active = TRUE`
	args := []interface{}{}
	if scheduledOnly {
		query += ` AND event_type != $1`
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
func (s *PostgreSQLStorage) GetActiveConfigsByEventType(ctx context.Context, eventType models.EventType) ([]*models.MonitoringConfig, error) {
	query := configSelectColumns + ` FROM monitoring_configs WHERE active = TRUE AND event_type = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, string(eventType))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query configs by event type", err.Error())
	}
	defer rows.Close()

	return scanConfigs(rows)
}

// SetConfigLastCheckedAt advances a configuration's evaluation watermark
func (s *PostgreSQLStorage) SetConfigLastCheckedAt(ctx context.Context, configID string, at time.Time) error {
	query := `UPDATE monitoring_configs SET last_checked_at = $1, updated_at = NOW() WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), configID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set last_checked_at", err.Error())
	}
	return nil
}

// SetConfigLastTriggeredAt advances a configuration's firing watermark
func (s *PostgreSQLStorage) SetConfigLastTriggeredAt(ctx context.Context, configID string, at time.Time) error {
	query := `UPDATE monitoring_configs SET last_triggered_at = $1, updated_at = NOW() WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), configID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set last_triggered_at", err.Error())
	}
	return nil
}

// GetEndpoint loads a webhook endpoint
func (s *PostgreSQLStorage) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	query := `
		SELECT id, user_id, name, url, headers, active, retry_count, timeout_ms,
		       last_triggered_at, failure_count, created_at, updated_at
		FROM endpoints WHERE id = $1
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

// RecordEndpointDelivery folds a delivery outcome into the endpoint record
func (s *PostgreSQLStorage) RecordEndpointDelivery(ctx context.Context, endpointID string, success bool, at time.Time) error {
	var query string
	if success {
		query = `UPDATE endpoints SET last_triggered_at = $1, updated_at = NOW() WHERE id = $2`
	} else {
		query = `UPDATE endpoints SET last_triggered_at = $1, failure_count = failure_count + 1, updated_at = NOW() WHERE id = $2`
	}
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), endpointID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record endpoint delivery", err.Error())
	}
	return nil
}

// DeactivateEndpoint marks an endpoint inactive
func (s *PostgreSQLStorage) DeactivateEndpoint(ctx context.Context, endpointID string) error {
	query := `UPDATE endpoints SET active = FALSE, updated_at = NOW() WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, endpointID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to deactivate endpoint", err.Error())
	}
	return nil
}

// ReactivateEndpoint re-enables an endpoint and clears its failure counter
func (s *PostgreSQLStorage) ReactivateEndpoint(ctx context.Context, endpointID string) error {
	query := `UPDATE endpoints SET active = TRUE, failure_count = 0, updated_at = NOW() WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, endpointID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to reactivate endpoint", err.Error())
	}
	return nil
}

// GetCampaign loads a single campaign ownership record
func (s *PostgreSQLStorage) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	query := `SELECT id, name, client_id, user_id, status, created_at FROM campaigns WHERE id = $1`

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
func (s *PostgreSQLStorage) GetCampaignsByIDs(ctx context.Context, ids []string) ([]*models.Campaign, error) {
	return s.queryCampaigns(ctx, "id", ids)
}

// GetCampaignsByClients loads campaigns assigned to the given clients
func (s *PostgreSQLStorage) GetCampaignsByClients(ctx context.Context, clientIDs []string) ([]*models.Campaign, error) {
	return s.queryCampaigns(ctx, "client_id", clientIDs)
}

// GetCampaignsByUsers loads campaigns owned by clients assigned to the users
func (s *PostgreSQLStorage) GetCampaignsByUsers(ctx context.Context, userIDs []string) ([]*models.Campaign, error) {
	return s.queryCampaigns(ctx, "user_id", userIDs)
}

func (s *PostgreSQLStorage) queryCampaigns(ctx context.Context, column string, ids []string) ([]*models.Campaign, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT id, name, client_id, user_id, status, created_at FROM campaigns WHERE %s IN (%s)`,
		column, strings.Join(placeholders, ","))

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

// SaveEndpoint inserts or updates a webhook endpoint
func (s *PostgreSQLStorage) SaveEndpoint(ctx context.Context, ep *models.Endpoint) error {
	headersJSON, err := json.Marshal(ep.Headers)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal endpoint headers", err.Error())
	}

	query := `
		INSERT INTO endpoints
		(id, user_id, name, url, headers, active, retry_count, timeout_ms,
		 last_triggered_at, failure_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id, name = EXCLUDED.name, url = EXCLUDED.url,
			headers = EXCLUDED.headers, active = EXCLUDED.active,
			retry_count = EXCLUDED.retry_count, timeout_ms = EXCLUDED.timeout_ms,
			last_triggered_at = EXCLUDED.last_triggered_at,
			failure_count = EXCLUDED.failure_count, updated_at = NOW()
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

// SaveConfig inserts or updates a monitoring configuration
func (s *PostgreSQLStorage) SaveConfig(ctx context.Context, cfg *models.MonitoringConfig) error {
	scopeIDsJSON, err := json.Marshal(cfg.Scope.IDs)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal scope ids", err.Error())
	}

	query := `
		INSERT INTO monitoring_configs
		(id, user_id, endpoint_id, event_type, name, description, parameters,
		 scope_type, scope_ids, active, last_checked_at, last_triggered_at,
		 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id, endpoint_id = EXCLUDED.endpoint_id,
			event_type = EXCLUDED.event_type, name = EXCLUDED.name,
			description = EXCLUDED.description, parameters = EXCLUDED.parameters,
			scope_type = EXCLUDED.scope_type, scope_ids = EXCLUDED.scope_ids,
			active = EXCLUDED.active, last_checked_at = EXCLUDED.last_checked_at,
			last_triggered_at = EXCLUDED.last_triggered_at, updated_at = NOW()
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

// SaveCampaign inserts or updates a campaign ownership record
func (s *PostgreSQLStorage) SaveCampaign(ctx context.Context, c *models.Campaign) error {
	query := `
		INSERT INTO campaigns (id, name, client_id, user_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, client_id = EXCLUDED.client_id,
			user_id = EXCLUDED.user_id, status = EXCLUDED.status
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.ClientID, c.UserID, c.Status, c.CreatedAt.UTC())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save campaign", err.Error())
	}
	return nil
}

// SaveMetricsDay inserts or updates one daily feed row
func (s *PostgreSQLStorage) SaveMetricsDay(ctx context.Context, row *models.MetricsDay) error {
	query := `
		INSERT INTO campaign_metrics_daily
		(campaign_id, email_account, day, sent, opened, replied, positive_replied, bounced)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8)
		ON CONFLICT (campaign_id, email_account, day) DO UPDATE SET
			sent = EXCLUDED.sent, opened = EXCLUDED.opened,
			replied = EXCLUDED.replied, positive_replied = EXCLUDED.positive_replied,
			bounced = EXCLUDED.bounced
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
func (s *PostgreSQLStorage) GetCampaignMetrics(ctx context.Context, campaignID string, from, to time.Time) (*models.CampaignMetrics, error) {
	query := `
		SELECT COALESCE(SUM(sent), 0), COALESCE(SUM(opened), 0), COALESCE(SUM(replied), 0),
		       COALESCE(SUM(positive_replied), 0), COALESCE(SUM(bounced), 0)
		FROM campaign_metrics_daily
		WHERE campaign_id = $1 AND day >= $2::date AND day <= $3::date
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
func (s *PostgreSQLStorage) GetAccountMetrics(ctx context.Context, campaignID string, from, to time.Time) ([]*models.AccountMetrics, error) {
	query := `
		SELECT email_account, COALESCE(SUM(sent), 0), COALESCE(SUM(opened), 0), COALESCE(SUM(replied), 0),
		       COALESCE(SUM(positive_replied), 0), COALESCE(SUM(bounced), 0)
		FROM campaign_metrics_daily
		WHERE campaign_id = $1 AND day >= $2::date AND day <= $3::date
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
func (s *PostgreSQLStorage) GetLastReplyAt(ctx context.Context, campaignID string, positiveOnly bool) (*time.Time, error) {
	column := "replied"
	if positiveOnly {
		column = "positive_replied"
	}
	query := fmt.Sprintf(
		`SELECT MAX(day) FROM campaign_metrics_daily WHERE campaign_id = $1 AND %s > 0`, column)

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
func (s *PostgreSQLStorage) SaveTrigger(ctx context.Context, trigger *models.Trigger) error {
	query := `
		INSERT INTO triggers
		(id, config_id, endpoint_id, event_type, campaign_id, campaign_name, payload,
		 status, status_code, response_body, error_message, attempt_count, is_success,
		 created_at, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
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
func (s *PostgreSQLStorage) GetTrigger(ctx context.Context, id string) (*models.Trigger, error) {
	query := triggerSelectColumns + ` FROM triggers WHERE id = $1`

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
func (s *PostgreSQLStorage) GetTriggers(ctx context.Context, filter models.TriggerFilter) ([]*models.Trigger, error) {
	query := triggerSelectColumns + ` FROM triggers WHERE 1=1`
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ConfigID != "" {
		query += ` AND config_id = ` + arg(filter.ConfigID)
	}
	if filter.EndpointID != "" {
		query += ` AND endpoint_id = ` + arg(filter.EndpointID)
	}
	if filter.CampaignID != "" {
		query += ` AND campaign_id = ` + arg(filter.CampaignID)
	}
	if filter.EventType != "" {
		query += ` AND event_type = ` + arg(string(filter.EventType))
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.FromTime != nil {
		query += ` AND created_at >= ` + arg(filter.FromTime.UTC())
	}
	if filter.ToTime != nil {
		query += ` AND created_at <= ` + arg(filter.ToTime.UTC())
	}

	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query triggers", err.Error())
	}
	defer rows.Close()

	return scanTriggers(rows)
}

// GetPendingTriggers loads triggers awaiting delivery, oldest first
func (s *PostgreSQLStorage) GetPendingTriggers(ctx context.Context, limit int) ([]*models.Trigger, error) {
	query := triggerSelectColumns + ` FROM triggers WHERE status = $1 ORDER BY created_at ASC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, string(models.TriggerStatusPending), limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query pending triggers", err.Error())
	}
	defer rows.Close()

	return scanTriggers(rows)
}

// ClaimTrigger transitions a pending trigger to delivering
func (s *PostgreSQLStorage) ClaimTrigger(ctx context.Context, id string) (bool, error) {
	query := `UPDATE triggers SET status = $1 WHERE id = $2 AND status = $3`
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
// pending queue
func (s *PostgreSQLStorage) RequeueDeliveringTriggers(ctx context.Context) (int64, error) {
	query := `UPDATE triggers SET status = $1 WHERE status = $2`
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
func (s *PostgreSQLStorage) UpdateTriggerOutcome(ctx context.Context, trigger *models.Trigger) error {
	query := `
		UPDATE triggers
		SET status = $1, status_code = $2, response_body = $3, error_message = $4,
		    attempt_count = $5, is_success = $6, delivered_at = $7
		WHERE id = $8
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
// against a campaign
func (s *PostgreSQLStorage) GetLastTriggerTime(ctx context.Context, configID, campaignID string) (*time.Time, error) {
	query := `SELECT MAX(created_at) FROM triggers WHERE config_id = $1 AND campaign_id = $2`

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
func (s *PostgreSQLStorage) SaveDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	query := `
		INSERT INTO delivery_log
		(id, trigger_id, attempt_number, status_code, response_body, error, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
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
func (s *PostgreSQLStorage) GetDeliveryAttempts(ctx context.Context, triggerID string) ([]*models.DeliveryAttempt, error) {
	query := `
		SELECT id, trigger_id, attempt_number, status_code, response_body, error, latency_ms, created_at
		FROM delivery_log WHERE trigger_id = $1 ORDER BY attempt_number ASC
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
func (s *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
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

	if err := s.db.QueryRowContext(ctx,
		`SELECT pg_database_size(current_database())`).Scan(&stats.DatabaseSize); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read database size", err.Error())
	}

	return stats, nil
}

// Cleanup removes triggers and delivery log rows past the retention window
func (s *PostgreSQLStorage) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM delivery_log WHERE trigger_id IN (SELECT id FROM triggers WHERE created_at < $1)`,
		cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean delivery log", err.Error())
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE created_at < $1`, cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean triggers", err.Error())
	}
	return nil
}

// Vacuum reclaims database space
func (s *PostgreSQLStorage) Vacuum() error {
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to vacuum database", err.Error())
	}
	return nil
}
