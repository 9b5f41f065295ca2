// File: internal/evaluator/impact.go
package evaluator

import (
	"context"
	"sort"
	"time"

	"github.com/campaignwatch/campaign-watch/internal/models"
)

func (e *Evaluator) accountImpacts(ctx context.Context, eventType models.EventType,
	campaignID string, from, to time.Time) ([]models.AccountImpact, error) {

	accounts, err := e.feed.GetAccountMetrics(ctx, campaignID, from, to)
	if err != nil {
		return nil, err
	}
	return RankAccounts(eventType, accounts), nil
}

// RankAccounts orders sending identities by their contribution to the
// detected condition and bands them into fixed thirds: the worst-performing
// third is High impact, the middle third Medium, the rest Low.
func RankAccounts(eventType models.EventType, accounts []*models.AccountMetrics) []models.AccountImpact {
	if len(accounts) == 0 {
		return nil
	}

	ranked := make([]*models.AccountMetrics, len(accounts))
	copy(ranked, accounts)

	rateOf := func(a *models.AccountMetrics) float64 { return a.ReplyRate() }
	worstFirst := func(i, j int) bool {
		// Low reply rate contributes most to a reply-rate drop; volume
		// breaks ties so busy accounts rank ahead of idle ones.
		if ranked[i].ReplyRate() != ranked[j].ReplyRate() {
			return ranked[i].ReplyRate() < ranked[j].ReplyRate()
		}
		return ranked[i].Sent > ranked[j].Sent
	}
	if eventType == models.EventTypeBounceRateHigh {
		rateOf = func(a *models.AccountMetrics) float64 { return a.BounceRate() }
		worstFirst = func(i, j int) bool {
			if ranked[i].BounceRate() != ranked[j].BounceRate() {
				return ranked[i].BounceRate() > ranked[j].BounceRate()
			}
			return ranked[i].Sent > ranked[j].Sent
		}
	}
	sort.SliceStable(ranked, worstFirst)

	impacts := make([]models.AccountImpact, len(ranked))
	n := len(ranked)
	for i, a := range ranked {
		impacts[i] = models.AccountImpact{
			EmailAccount: a.EmailAccount,
			Sent:         a.Sent,
			Rate:         rateOf(a),
			Impact:       bandForPosition(i, n),
		}
	}
	return impacts
}

func bandForPosition(i, n int) models.ImpactLevel {
	switch {
	case i*3 < n:
		return models.ImpactLevelHigh
	case i*3 < 2*n:
		return models.ImpactLevelMedium
	default:
		return models.ImpactLevelLow
	}
}
