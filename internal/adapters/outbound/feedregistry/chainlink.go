// Package feedregistry loads third-party price feed directories used to label
// oracle feeds in the published output.
package feedregistry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/httpclient"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

var _ outbound.FeedRegistry = (*ChainlinkRegistry)(nil)

// DefaultChainlinkURL is the reference data directory; {network} is replaced
// by the per-chain network name.
const DefaultChainlinkURL = "https://reference-data-directory.vercel.app/feeds-{network}.json"

// ChainlinkNetworks maps chains to reference data directory network names.
var ChainlinkNetworks = map[entity.ChainID]string{
	entity.ChainMainnet:  "mainnet",
	entity.ChainBase:     "ethereum-mainnet-base-1",
	entity.ChainPolygon:  "polygon-mainnet-katana",
	entity.ChainArbitrum: "ethereum-mainnet-arbitrum-1",
}

// chainlinkFeed is one entry of the reference data directory.
type chainlinkFeed struct {
	Name               string   `json:"name"`
	Path               string   `json:"path"`
	ProxyAddress       string   `json:"proxyAddress"`
	Decimals           *int     `json:"decimals"`
	Heartbeat          *int     `json:"heartbeat"`
	DeviationThreshold *float64 `json:"deviationThreshold"`
}

// ChainlinkRegistry fetches Chainlink's public feed directory.
type ChainlinkRegistry struct {
	http        *httpclient.Client
	urlTemplate string
	now         func() time.Time
	logger      *slog.Logger
}

// NewChainlinkRegistry creates a registry. An empty urlTemplate selects
// DefaultChainlinkURL.
func NewChainlinkRegistry(client *httpclient.Client, urlTemplate string, logger *slog.Logger) *ChainlinkRegistry {
	if urlTemplate == "" {
		urlTemplate = DefaultChainlinkURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainlinkRegistry{
		http:        client,
		urlTemplate: urlTemplate,
		now:         time.Now,
		logger:      logger.With("component", "chainlink-registry"),
	}
}

func (r *ChainlinkRegistry) Provider() entity.FeedProvider {
	return entity.ProviderChainlink
}

// Fetch downloads the directory of chainID. Chains without a directory yield
// an empty registry without a request.
func (r *ChainlinkRegistry) Fetch(ctx context.Context, chainID entity.ChainID) (*entity.FeedProviderRegistry, error) {
	registry := entity.NewFeedProviderRegistry(chainID, entity.ProviderChainlink, r.now())

	network, ok := ChainlinkNetworks[chainID]
	if !ok {
		r.logger.Debug("no registry for chain", "chainID", chainID)
		return registry, nil
	}

	var feeds []chainlinkFeed
	url := strings.ReplaceAll(r.urlTemplate, "{network}", network)
	if err := r.http.DoRequest(ctx, httpclient.RequestConfig{URL: url}, &feeds); err != nil {
		return nil, fmt.Errorf("fetching chainlink feeds for %s: %w", network, err)
	}

	for _, feed := range feeds {
		address, err := entity.NewAddress(feed.ProxyAddress)
		if err != nil || address.IsZero() {
			continue
		}

		description := feed.Name
		if description == "" {
			description = feed.Path
		}
		pair := parseSlashPair(feed.Name)
		if pair == nil {
			pair = parseSlashPair(feed.Path)
		}

		registry.Add(entity.FeedInfo{
			Address:            address,
			Description:        description,
			Pair:               pair,
			Decimals:           feed.Decimals,
			Heartbeat:          feed.Heartbeat,
			DeviationThreshold: feed.DeviationThreshold,
		})
	}

	r.logger.Info("loaded feeds", "chainID", chainID, "feeds", len(registry.Feeds))
	return registry, nil
}
