package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignwatch/campaign-watch/internal/models"
)

func TestRankAccountsReplyRate(t *testing.T) {
	accounts := []*models.AccountMetrics{
		{EmailAccount: "best@x.io", Sent: 100, Replied: 30},
		{EmailAccount: "worst@x.io", Sent: 100, Replied: 2},
		{EmailAccount: "mid@x.io", Sent: 100, Replied: 10},
	}

	impacts := RankAccounts(models.EventTypeReplyRateDrop, accounts)
	require.Len(t, impacts, 3)

	assert.Equal(t, "worst@x.io", impacts[0].EmailAccount)
	assert.Equal(t, models.ImpactLevelHigh, impacts[0].Impact)
	assert.InDelta(t, 2.0, impacts[0].Rate, 0.001)

	assert.Equal(t, "mid@x.io", impacts[1].EmailAccount)
	assert.Equal(t, models.ImpactLevelMedium, impacts[1].Impact)

	assert.Equal(t, "best@x.io", impacts[2].EmailAccount)
	assert.Equal(t, models.ImpactLevelLow, impacts[2].Impact)
}

func TestRankAccountsBounceRate(t *testing.T) {
	accounts := []*models.AccountMetrics{
		{EmailAccount: "clean@x.io", Sent: 100, Bounced: 1},
		{EmailAccount: "burned@x.io", Sent: 100, Bounced: 20},
	}

	impacts := RankAccounts(models.EventTypeBounceRateHigh, accounts)
	require.Len(t, impacts, 2)

	// Highest bounce rate contributes most
	assert.Equal(t, "burned@x.io", impacts[0].EmailAccount)
	assert.Equal(t, models.ImpactLevelHigh, impacts[0].Impact)
	assert.InDelta(t, 20.0, impacts[0].Rate, 0.001)
	assert.Equal(t, models.ImpactLevelMedium, impacts[1].Impact)
}

func TestRankAccountsVolumeTiebreak(t *testing.T) {
	accounts := []*models.AccountMetrics{
		{EmailAccount: "small@x.io", Sent: 10, Replied: 1},
		{EmailAccount: "big@x.io", Sent: 100, Replied: 10},
	}

	// Equal 10% reply rate: the busier account ranks first
	impacts := RankAccounts(models.EventTypeReplyRateDrop, accounts)
	require.Len(t, impacts, 2)
	assert.Equal(t, "big@x.io", impacts[0].EmailAccount)
}

func TestRankAccountsEmpty(t *testing.T) {
	assert.Nil(t, RankAccounts(models.EventTypeReplyRateDrop, nil))
}

func TestBandForPosition(t *testing.T) {
	// Single account is High impact
	assert.Equal(t, models.ImpactLevelHigh, bandForPosition(0, 1))

	// Nine accounts split into even thirds
	bands := make([]models.ImpactLevel, 9)
	for i := range bands {
		bands[i] = bandForPosition(i, 9)
	}
	assert.Equal(t, []models.ImpactLevel{
		models.ImpactLevelHigh, models.ImpactLevelHigh, models.ImpactLevelHigh,
		models.ImpactLevelMedium, models.ImpactLevelMedium, models.ImpactLevelMedium,
		models.ImpactLevelLow, models.ImpactLevelLow, models.ImpactLevelLow,
	}, bands)
}
