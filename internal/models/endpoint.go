package models

import (
	"fmt"
	"net/url"
	"time"
)

// Endpoint is a subscriber-owned webhook delivery target
type Endpoint struct {
	ID              string            `json:"id" db:"id"`
	UserID          string            `json:"user_id" db:"user_id"`
	Name            string            `json:"name" db:"name"`
	URL             string            `json:"url" db:"url"`
	Headers         map[string]string `json:"headers,omitempty" db:"headers"`
	Active          bool              `json:"active" db:"active"`
	RetryCount      int               `json:"retry_count" db:"retry_count"`
	Timeout         time.Duration     `json:"timeout" db:"timeout"`
	LastTriggeredAt *time.Time        `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	FailureCount    int64             `json:"failure_count" db:"failure_count"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// Validate checks the delivery settings
func (e *Endpoint) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("endpoint id is required")
	}
	u, err := url.Parse(e.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint url %q is not a valid absolute URL", e.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint url scheme must be http or https, got %q", u.Scheme)
	}
	if e.RetryCount < 1 {
		return fmt.Errorf("retry count must be at least 1, got %d", e.RetryCount)
	}
	if e.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", e.Timeout)
	}
	return nil
}
