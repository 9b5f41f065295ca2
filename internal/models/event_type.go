package models

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a monitoring rule family
type EventType string

const (
	EventTypeReplyRateDrop   EventType = "reply_rate_drop"
	EventTypeBounceRateHigh  EventType = "bounce_rate_high"
	EventTypeCampaignCreated EventType = "campaign.created"
	EventTypeNoPositiveReply EventType = "no_positive_reply_for_x_days"
	EventTypeNoReply         EventType = "no_reply_for_x_days"
)

// AllEventTypes lists every supported event type
var AllEventTypes = []EventType{
	EventTypeReplyRateDrop,
	EventTypeBounceRateHigh,
	EventTypeCampaignCreated,
	EventTypeNoPositiveReply,
	EventTypeNoReply,
}

// IsValid reports whether the event type is part of the closed set
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeReplyRateDrop, EventTypeBounceRateHigh, EventTypeCampaignCreated,
		EventTypeNoPositiveReply, EventTypeNoReply:
		return true
	}
	return false
}

// IsScheduled reports whether the scheduler polls this event type.
// campaign.created is push-based and never polled.
func (t EventType) IsScheduled() bool {
	return t.IsValid() && t != EventTypeCampaignCreated
}

// EventParams is the typed parameter variant for one event type
type EventParams interface {
	EventType() EventType
	Validate() error
}

// RateParams holds parameters shared by the rate-based event types
type RateParams struct {
	ThresholdPercent     float64 `json:"threshold_percent"`
	MonitoringPeriodDays int     `json:"monitoring_period_days"`
}

func (p RateParams) Validate() error {
	if p.ThresholdPercent <= 0 || p.ThresholdPercent > 100 {
		return fmt.Errorf("threshold_percent must be in (0,100], got %v", p.ThresholdPercent)
	}
	if p.MonitoringPeriodDays < 1 || p.MonitoringPeriodDays > 30 {
		return fmt.Errorf("monitoring_period_days must be in [1,30], got %d", p.MonitoringPeriodDays)
	}
	return nil
}

// ReplyRateDropParams configures the reply_rate_drop rule
type ReplyRateDropParams struct {
	RateParams
}

func (ReplyRateDropParams) EventType() EventType { return EventTypeReplyRateDrop }

// BounceRateHighParams configures the bounce_rate_high rule
type BounceRateHighParams struct {
	RateParams
}

func (BounceRateHighParams) EventType() EventType { return EventTypeBounceRateHigh }

// NoReplyParams configures both no-reply rule variants
type NoReplyParams struct {
	DaysSinceLastReply int `json:"days_since_last_reply"`

	positive bool
}

func (p NoReplyParams) EventType() EventType {
	if p.positive {
		return EventTypeNoPositiveReply
	}
	return EventTypeNoReply
}

func (p NoReplyParams) Validate() error {
	if p.DaysSinceLastReply < 1 || p.DaysSinceLastReply > 365 {
		return fmt.Errorf("days_since_last_reply must be in [1,365], got %d", p.DaysSinceLastReply)
	}
	return nil
}

// CampaignCreatedParams carries no parameters
type CampaignCreatedParams struct{}

func (CampaignCreatedParams) EventType() EventType { return EventTypeCampaignCreated }
func (CampaignCreatedParams) Validate() error      { return nil }

// ParseEventParams decodes and validates a raw parameter bag against the
// required-parameter schema of the given event type.
func ParseEventParams(eventType EventType, raw json.RawMessage) (EventParams, error) {
	if !eventType.IsValid() {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	decode := func(v interface{}) error {
		if len(raw) == 0 {
			return fmt.Errorf("missing parameters for event type %q", eventType)
		}
		return json.Unmarshal(raw, v)
	}

	var params EventParams
	switch eventType {
	case EventTypeReplyRateDrop:
		var p ReplyRateDropParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		params = p
	case EventTypeBounceRateHigh:
		var p BounceRateHighParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		params = p
	case EventTypeNoPositiveReply:
		var p NoReplyParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		p.positive = true
		params = p
	case EventTypeNoReply:
		var p NoReplyParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		params = p
	case EventTypeCampaignCreated:
		params = CampaignCreatedParams{}
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters for %s: %w", eventType, err)
	}
	return params, nil
}
