// File: internal/storage/rows.go
package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// Shared column lists and row scanners used by both SQL backends.

const configSelectColumns = `
	SELECT id, user_id, endpoint_id, event_type, name, description, parameters,
	       scope_type, scope_ids, active, last_checked_at, last_triggered_at,
	       created_at, updated_at`

const triggerSelectColumns = `
	SELECT id, config_id, endpoint_id, event_type, campaign_id, campaign_name,
	       payload, status, status_code, response_body, error_message,
	       attempt_count, is_success, created_at, delivered_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row rowScanner) (*models.MonitoringConfig, error) {
	var (
		cfg          models.MonitoringConfig
		description  sql.NullString
		params       sql.NullString
		scopeIDsJSON string
		lastChecked  sql.NullTime
		lastFired    sql.NullTime
	)

	err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.EndpointID, (*string)(&cfg.EventType),
		&cfg.Name, &description, &params, (*string)(&cfg.Scope.Type), &scopeIDsJSON,
		&cfg.Active, &lastChecked, &lastFired, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}

	cfg.Description = description.String
	if params.Valid && params.String != "" {
		cfg.Parameters = json.RawMessage(params.String)
	}
	if err := json.Unmarshal([]byte(scopeIDsJSON), &cfg.Scope.IDs); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal scope ids", err.Error())
	}
	if lastChecked.Valid {
		t := lastChecked.Time
		cfg.LastCheckedAt = &t
	}
	if lastFired.Valid {
		t := lastFired.Time
		cfg.LastTriggeredAt = &t
	}
	return &cfg, nil
}

func scanConfigs(rows *sql.Rows) ([]*models.MonitoringConfig, error) {
	var configs []*models.MonitoringConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan config", err.Error())
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func scanTrigger(row rowScanner) (*models.Trigger, error) {
	var (
		tr           models.Trigger
		campaignID   sql.NullString
		campaignName sql.NullString
		payload      string
		statusCode   sql.NullInt64
		responseBody sql.NullString
		errorMessage sql.NullString
		deliveredAt  sql.NullTime
	)

	err := row.Scan(&tr.ID, &tr.ConfigID, &tr.EndpointID, (*string)(&tr.EventType),
		&campaignID, &campaignName, &payload, (*string)(&tr.Status), &statusCode,
		&responseBody, &errorMessage, &tr.AttemptCount, &tr.IsSuccess,
		&tr.CreatedAt, &deliveredAt)
	if err != nil {
		return nil, err
	}

	tr.CampaignID = campaignID.String
	tr.CampaignName = campaignName.String
	tr.Payload = json.RawMessage(payload)
	if statusCode.Valid {
		code := int(statusCode.Int64)
		tr.StatusCode = &code
	}
	if responseBody.Valid {
		body := responseBody.String
		tr.ResponseBody = &body
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		tr.ErrorMessage = &msg
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		tr.DeliveredAt = &t
	}
	return &tr, nil
}

func scanTriggers(rows *sql.Rows) ([]*models.Trigger, error) {
	var triggers []*models.Trigger
	for rows.Next() {
		tr, err := scanTrigger(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan trigger", err.Error())
		}
		triggers = append(triggers, tr)
	}
	return triggers, rows.Err()
}
