package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeIsValid(t *testing.T) {
	for _, et := range AllEventTypes {
		assert.True(t, et.IsValid(), "event type %s should be valid", et)
	}
	assert.False(t, EventType("campaign_deleted").IsValid())
	assert.False(t, EventType("").IsValid())
}

func TestEventTypeIsScheduled(t *testing.T) {
	assert.True(t, EventTypeReplyRateDrop.IsScheduled())
	assert.True(t, EventTypeBounceRateHigh.IsScheduled())
	assert.True(t, EventTypeNoReply.IsScheduled())
	assert.True(t, EventTypeNoPositiveReply.IsScheduled())
	assert.False(t, EventTypeCampaignCreated.IsScheduled())
	assert.False(t, EventType("bogus").IsScheduled())
}

func TestParseEventParamsRate(t *testing.T) {
	raw := json.RawMessage(`{"threshold_percent": 5, "monitoring_period_days": 7}`)

	params, err := ParseEventParams(EventTypeReplyRateDrop, raw)
	require.NoError(t, err)

	p, ok := params.(ReplyRateDropParams)
	require.True(t, ok)
	assert.Equal(t, 5.0, p.ThresholdPercent)
	assert.Equal(t, 7, p.MonitoringPeriodDays)
	assert.Equal(t, EventTypeReplyRateDrop, p.EventType())
}

func TestParseEventParamsRateRanges(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"threshold_percent": 5, "monitoring_period_days": 7}`, false},
		{"threshold at upper bound", `{"threshold_percent": 100, "monitoring_period_days": 7}`, false},
		{"threshold zero", `{"threshold_percent": 0, "monitoring_period_days": 7}`, true},
		{"threshold negative", `{"threshold_percent": -1, "monitoring_period_days": 7}`, true},
		{"threshold above bound", `{"threshold_percent": 100.1, "monitoring_period_days": 7}`, true},
		{"period at lower bound", `{"threshold_percent": 5, "monitoring_period_days": 1}`, false},
		{"period at upper bound", `{"threshold_percent": 5, "monitoring_period_days": 30}`, false},
		{"period zero", `{"threshold_percent": 5, "monitoring_period_days": 0}`, true},
		{"period above bound", `{"threshold_percent": 5, "monitoring_period_days": 31}`, true},
		{"missing parameters", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEventParams(EventTypeBounceRateHigh, json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseEventParamsNoReply(t *testing.T) {
	raw := json.RawMessage(`{"days_since_last_reply": 7}`)

	params, err := ParseEventParams(EventTypeNoReply, raw)
	require.NoError(t, err)
	assert.Equal(t, EventTypeNoReply, params.EventType())

	params, err = ParseEventParams(EventTypeNoPositiveReply, raw)
	require.NoError(t, err)
	assert.Equal(t, EventTypeNoPositiveReply, params.EventType())

	_, err = ParseEventParams(EventTypeNoReply, json.RawMessage(`{"days_since_last_reply": 0}`))
	assert.Error(t, err)

	_, err = ParseEventParams(EventTypeNoReply, json.RawMessage(`{"days_since_last_reply": 366}`))
	assert.Error(t, err)

	_, err = ParseEventParams(EventTypeNoReply, json.RawMessage(`{"days_since_last_reply": 365}`))
	assert.NoError(t, err)
}

func TestParseEventParamsCampaignCreated(t *testing.T) {
	// campaign.created carries no parameters; an empty bag is fine
	params, err := ParseEventParams(EventTypeCampaignCreated, nil)
	require.NoError(t, err)
	assert.Equal(t, EventTypeCampaignCreated, params.EventType())
}

func TestParseEventParamsUnknownType(t *testing.T) {
	_, err := ParseEventParams(EventType("unknown"), json.RawMessage(`{}`))
	assert.Error(t, err)
}
