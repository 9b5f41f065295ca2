package models

import (
	"encoding/json"
	"time"
)

// TriggerStatus tracks a trigger through the delivery pipeline
type TriggerStatus string

const (
	TriggerStatusPending    TriggerStatus = "pending"
	TriggerStatusDelivering TriggerStatus = "delivering"
	TriggerStatusDelivered  TriggerStatus = "delivered"
	TriggerStatusFailed     TriggerStatus = "failed"
)

// Trigger records one firing of a monitoring configuration against a
// campaign (or a batch of campaigns for the no-reply variants), plus the
// outcome of delivering it. Immutable once delivery completes.
type Trigger struct {
	ID           string          `json:"id" db:"id"`
	ConfigID     string          `json:"config_id" db:"config_id"`
	EndpointID   string          `json:"endpoint_id" db:"endpoint_id"`
	EventType    EventType       `json:"event_type" db:"event_type"`
	CampaignID   string          `json:"campaign_id" db:"campaign_id"`
	CampaignName string          `json:"campaign_name" db:"campaign_name"`
	Payload      json.RawMessage `json:"payload" db:"payload"`

	Status       TriggerStatus `json:"status" db:"status"`
	StatusCode   *int          `json:"status_code,omitempty" db:"status_code"`
	ResponseBody *string       `json:"response_body,omitempty" db:"response_body"`
	ErrorMessage *string       `json:"error_message,omitempty" db:"error_message"`
	AttemptCount int           `json:"attempt_count" db:"attempt_count"`
	IsSuccess    bool          `json:"is_success" db:"is_success"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
}

// TriggerFilter narrows trigger reads
type TriggerFilter struct {
	ConfigID   string
	EndpointID string
	CampaignID string
	EventType  EventType
	Status     TriggerStatus
	FromTime   *time.Time
	ToTime     *time.Time
	Limit      int
	Offset     int
}

// DeliveryAttempt records a single outbound HTTP attempt for a trigger
type DeliveryAttempt struct {
	ID            string        `json:"id" db:"id"`
	TriggerID     string        `json:"trigger_id" db:"trigger_id"`
	AttemptNumber int           `json:"attempt_number" db:"attempt_number"`
	StatusCode    *int          `json:"status_code,omitempty" db:"status_code"`
	ResponseBody  *string       `json:"response_body,omitempty" db:"response_body"`
	Error         *string       `json:"error,omitempty" db:"error"`
	Latency       time.Duration `json:"latency" db:"latency"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}
