// File: internal/scope/resolver.go
package scope

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/internal/storage"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// Resolver expands a configuration's target scope into concrete campaigns
type Resolver interface {
	Resolve(ctx context.Context, scope models.Scope) ([]*models.Campaign, error)
}

// StorageResolver resolves scopes against the campaign ownership tables
type StorageResolver struct {
	storage storage.Storage
	logger  *logrus.Entry
}

// NewResolver creates a storage-backed scope resolver
func NewResolver(store storage.Storage) *StorageResolver {
	return &StorageResolver{
		storage: store,
		logger:  utils.GetLogger().WithField("component", "scope_resolver"),
	}
}

// Resolve expands the scope's id list into a deduplicated campaign set.
// An empty expansion (a client with no campaigns) yields no work, not an
// error; empty id lists are rejected at config write time, not here.
func (r *StorageResolver) Resolve(ctx context.Context, scope models.Scope) ([]*models.Campaign, error) {
	var (
		campaigns []*models.Campaign
		err       error
	)

	switch scope.Type {
	case models.ScopeTypeCampaigns:
		campaigns, err = r.storage.GetCampaignsByIDs(ctx, scope.IDs)
	case models.ScopeTypeClients:
		campaigns, err = r.storage.GetCampaignsByClients(ctx, scope.IDs)
	case models.ScopeTypeUsers:
		campaigns, err = r.storage.GetCampaignsByUsers(ctx, scope.IDs)
	default:
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Unknown scope type", string(scope.Type))
	}
	if err != nil {
		return nil, err
	}

	return dedupe(campaigns), nil
}

func dedupe(campaigns []*models.Campaign) []*models.Campaign {
	seen := make(map[string]bool, len(campaigns))
	out := campaigns[:0]
	for _, c := range campaigns {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
