package models

import "time"

// CampaignMetrics aggregates message counts for one campaign over a window
type CampaignMetrics struct {
	CampaignID      string    `json:"campaign_id"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	Sent            int64     `json:"sent"`
	Opened          int64     `json:"opened"`
	Replied         int64     `json:"replied"`
	PositiveReplied int64     `json:"positive_replied"`
	Bounced         int64     `json:"bounced"`
}

// ReplyRate returns replies per hundred sent messages
func (m CampaignMetrics) ReplyRate() float64 {
	return rate(m.Replied, m.Sent)
}

// BounceRate returns bounces per hundred sent messages
func (m CampaignMetrics) BounceRate() float64 {
	return rate(m.Bounced, m.Sent)
}

func rate(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// MetricsDay is one raw daily feed row, keyed by campaign, sending identity
// and day. Written by the external aggregation job; read-only here.
type MetricsDay struct {
	CampaignID      string    `json:"campaign_id" db:"campaign_id"`
	EmailAccount    string    `json:"email_account" db:"email_account"`
	Day             time.Time `json:"day" db:"day"`
	Sent            int64     `json:"sent" db:"sent"`
	Opened          int64     `json:"opened" db:"opened"`
	Replied         int64     `json:"replied" db:"replied"`
	PositiveReplied int64     `json:"positive_replied" db:"positive_replied"`
	Bounced         int64     `json:"bounced" db:"bounced"`
}

// AccountMetrics aggregates counts for one sending identity within a campaign
type AccountMetrics struct {
	EmailAccount    string `json:"email_account"`
	Sent            int64  `json:"sent"`
	Opened          int64  `json:"opened"`
	Replied         int64  `json:"replied"`
	PositiveReplied int64  `json:"positive_replied"`
	Bounced         int64  `json:"bounced"`
}

// ReplyRate returns replies per hundred sent messages for this account
func (m AccountMetrics) ReplyRate() float64 {
	return rate(m.Replied, m.Sent)
}

// BounceRate returns bounces per hundred sent messages for this account
func (m AccountMetrics) BounceRate() float64 {
	return rate(m.Bounced, m.Sent)
}

// ImpactLevel bands a sending identity's contribution to a detected drop
type ImpactLevel string

const (
	ImpactLevelHigh   ImpactLevel = "high"
	ImpactLevelMedium ImpactLevel = "medium"
	ImpactLevelLow    ImpactLevel = "low"
)

// AccountImpact is one ranked entry in a rate-based trigger payload
type AccountImpact struct {
	EmailAccount string      `json:"email_account"`
	Sent         int64       `json:"sent"`
	Rate         float64     `json:"rate"`
	Impact       ImpactLevel `json:"impact"`
}

// WindowMetrics pairs a window's rate with its raw counts for payloads
type WindowMetrics struct {
	Start int64   `json:"start_unix"`
	End   int64   `json:"end_unix"`
	Sent  int64   `json:"sent"`
	Rate  float64 `json:"rate_percent"`
}

// Thresholds records the parameters that caused a firing, for auditability
type Thresholds struct {
	ThresholdPercent     float64 `json:"threshold_percent,omitempty"`
	MonitoringPeriodDays int     `json:"monitoring_period_days,omitempty"`
	DaysSinceLastReply   int     `json:"days_since_last_reply,omitempty"`
	MinimumSentVolume    int64   `json:"minimum_sent_volume"`
}

// ReplyRateDropPayload is the outbound body for reply_rate_drop triggers
type ReplyRateDropPayload struct {
	CampaignID    string          `json:"campaign_id"`
	CampaignName  string          `json:"campaign_name"`
	Current       WindowMetrics   `json:"current_window"`
	Previous      WindowMetrics   `json:"previous_window"`
	ReplyRateDrop float64         `json:"reply_rate_drop"`
	Accounts      []AccountImpact `json:"accounts"`
	Thresholds    Thresholds      `json:"thresholds"`
}

// BounceRateHighPayload is the outbound body for bounce_rate_high triggers
type BounceRateHighPayload struct {
	CampaignID   string          `json:"campaign_id"`
	CampaignName string          `json:"campaign_name"`
	Current      WindowMetrics   `json:"current_window"`
	Previous     WindowMetrics   `json:"previous_window"`
	BounceRate   float64         `json:"bounce_rate"`
	Accounts     []AccountImpact `json:"accounts"`
	Thresholds   Thresholds      `json:"thresholds"`
}

// SilentCampaign is one entry in a no-reply payload's affected list
type SilentCampaign struct {
	CampaignID   string     `json:"campaign_id"`
	CampaignName string     `json:"campaign_name"`
	LastReplyAt  *time.Time `json:"last_reply_at,omitempty"`
	DaysSilent   int        `json:"days_silent"`
}

// NoReplyPayload is the outbound body for both no-reply trigger variants
type NoReplyPayload struct {
	PositiveOnly bool             `json:"positive_only"`
	CutoffUnix   int64            `json:"cutoff_unix"`
	Campaigns    []SilentCampaign `json:"campaigns"`
	Thresholds   Thresholds       `json:"thresholds"`
}

// CampaignCreatedPayload is the outbound body for campaign.created triggers
type CampaignCreatedPayload struct {
	CampaignID   string    `json:"campaign_id"`
	CampaignName string    `json:"campaign_name"`
	ClientID     string    `json:"client_id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
}
