package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		wantErr bool
	}{
		{"clients", Scope{Type: ScopeTypeClients, IDs: []string{"c1"}}, false},
		{"campaigns", Scope{Type: ScopeTypeCampaigns, IDs: []string{"cmp1", "cmp2"}}, false},
		{"users", Scope{Type: ScopeTypeUsers, IDs: []string{"u1"}}, false},
		{"unknown type", Scope{Type: "teams", IDs: []string{"t1"}}, true},
		{"empty ids", Scope{Type: ScopeTypeClients, IDs: nil}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMonitoringConfigValidate(t *testing.T) {
	valid := MonitoringConfig{
		ID:         "cfg-1",
		UserID:     "u1",
		EndpointID: "ep-1",
		EventType:  EventTypeReplyRateDrop,
		Name:       "reply watch",
		Parameters: json.RawMessage(`{"threshold_percent": 5, "monitoring_period_days": 7}`),
		Scope:      Scope{Type: ScopeTypeClients, IDs: []string{"c1"}},
		Active:     true,
	}
	assert.NoError(t, valid.Validate())

	noEndpoint := valid
	noEndpoint.EndpointID = ""
	assert.Error(t, noEndpoint.Validate())

	badParams := valid
	badParams.Parameters = json.RawMessage(`{"threshold_percent": 0, "monitoring_period_days": 7}`)
	assert.Error(t, badParams.Validate())

	badScope := valid
	badScope.Scope = Scope{Type: ScopeTypeCampaigns}
	assert.Error(t, badScope.Validate())
}

func TestEndpointValidate(t *testing.T) {
	valid := Endpoint{
		ID:         "ep-1",
		UserID:     "u1",
		Name:       "slack relay",
		URL:        "https://hooks.example.com/abc",
		RetryCount: 3,
		Timeout:    10 * time.Second,
		Active:     true,
	}
	assert.NoError(t, valid.Validate())

	badURL := valid
	badURL.URL = "not a url"
	assert.Error(t, badURL.Validate())

	badScheme := valid
	badScheme.URL = "ftp://example.com/hook"
	assert.Error(t, badScheme.Validate())

	noRetries := valid
	noRetries.RetryCount = 0
	assert.Error(t, noRetries.Validate())

	noTimeout := valid
	noTimeout.Timeout = 0
	assert.Error(t, noTimeout.Validate())
}

func TestCampaignMetricsRates(t *testing.T) {
	m := CampaignMetrics{Sent: 200, Replied: 30, Bounced: 10}
	assert.InDelta(t, 15.0, m.ReplyRate(), 0.001)
	assert.InDelta(t, 5.0, m.BounceRate(), 0.001)

	empty := CampaignMetrics{}
	assert.Equal(t, 0.0, empty.ReplyRate())
	assert.Equal(t, 0.0, empty.BounceRate())
}
