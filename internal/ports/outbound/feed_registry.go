package outbound

import (
	"context"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// FeedRegistry loads the labelled feeds a provider publishes for one chain.
type FeedRegistry interface {
	Provider() entity.FeedProvider

	// Fetch returns the provider's feeds for chainID. Chains the provider
	// does not cover yield an empty registry.
	Fetch(ctx context.Context, chainID entity.ChainID) (*entity.FeedProviderRegistry, error)
}
