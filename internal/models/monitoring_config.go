package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScopeType selects how a monitoring configuration's id list is expanded
type ScopeType string

const (
	ScopeTypeClients   ScopeType = "clients"
	ScopeTypeCampaigns ScopeType = "campaigns"
	ScopeTypeUsers     ScopeType = "users"
)

// Scope describes the set of campaigns a configuration watches
type Scope struct {
	Type ScopeType `json:"type"`
	IDs  []string  `json:"ids"`
}

// Validate checks the scope descriptor. An empty id list is rejected at
// config write time; scope expansion yielding no campaigns is not an error.
func (s Scope) Validate() error {
	switch s.Type {
	case ScopeTypeClients, ScopeTypeCampaigns, ScopeTypeUsers:
	default:
		return fmt.Errorf("unknown scope type %q", s.Type)
	}
	if len(s.IDs) == 0 {
		return fmt.Errorf("scope id list must not be empty")
	}
	return nil
}

// MonitoringConfig is a subscriber's standing rule that an event type should
// be watched over a scope. Created and mutated by the management surface;
// read-only here except for the watermark fields.
type MonitoringConfig struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	EndpointID      string          `json:"endpoint_id" db:"endpoint_id"`
	EventType       EventType       `json:"event_type" db:"event_type"`
	Name            string          `json:"name" db:"name"`
	Description     string          `json:"description,omitempty" db:"description"`
	Parameters      json.RawMessage `json:"parameters,omitempty" db:"parameters"`
	Scope           Scope           `json:"scope" db:"scope"`
	Active          bool            `json:"active" db:"active"`
	LastCheckedAt   *time.Time      `json:"last_checked_at,omitempty" db:"last_checked_at"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate re-checks the invariants the management surface enforces at write
// time.
func (c *MonitoringConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("config id is required")
	}
	if c.EndpointID == "" {
		return fmt.Errorf("endpoint id is required")
	}
	if err := c.Scope.Validate(); err != nil {
		return err
	}
	if _, err := c.Params(); err != nil {
		return err
	}
	return nil
}

// Params decodes the raw parameter bag into the event type's typed variant
func (c *MonitoringConfig) Params() (EventParams, error) {
	return ParseEventParams(c.EventType, c.Parameters)
}
