package feedregistry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/httpclient"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

var _ outbound.FeedRegistry = (*RedstoneRegistry)(nil)

// DefaultRedstoneURL is the relayer multi-feed manifest; {network} is
// replaced by the per-chain network name.
const DefaultRedstoneURL = "https://raw.githubusercontent.com/redstone-finance/redstone-oracles-monorepo/main/packages/relayer-remote-config/main/relayer-manifests-multi-feed/{network}MultiFeed.json"

// RedstoneNetworks maps chains to manifest network names.
var RedstoneNetworks = map[entity.ChainID]string{
	entity.ChainMainnet:  "ethereum",
	entity.ChainBase:     "base",
	entity.ChainArbitrum: "arbitrumOne",
	entity.ChainPolygon:  "polygon",
	entity.ChainHyperEVM: "hyperevm",
}

// RedstoneRegistry fetches Redstone relayer manifests. Two manifest shapes
// exist: a document with a priceFeeds object keyed by pair, and a flat object
// keyed by feed name with adapter addresses.
type RedstoneRegistry struct {
	http        *httpclient.Client
	urlTemplate string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRedstoneRegistry creates a registry. An empty urlTemplate selects
// DefaultRedstoneURL.
func NewRedstoneRegistry(client *httpclient.Client, urlTemplate string, logger *slog.Logger) *RedstoneRegistry {
	if urlTemplate == "" {
		urlTemplate = DefaultRedstoneURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedstoneRegistry{
		http:        client,
		urlTemplate: urlTemplate,
		now:         time.Now,
		logger:      logger.With("component", "redstone-registry"),
	}
}

func (r *RedstoneRegistry) Provider() entity.FeedProvider {
	return entity.ProviderRedstone
}

// Fetch downloads and parses the manifest of chainID.
func (r *RedstoneRegistry) Fetch(ctx context.Context, chainID entity.ChainID) (*entity.FeedProviderRegistry, error) {
	registry := entity.NewFeedProviderRegistry(chainID, entity.ProviderRedstone, r.now())

	network, ok := RedstoneNetworks[chainID]
	if !ok {
		r.logger.Debug("no registry for chain", "chainID", chainID)
		return registry, nil
	}

	url := strings.ReplaceAll(r.urlTemplate, "{network}", network)
	body, err := r.http.DoRaw(ctx, httpclient.RequestConfig{URL: url})
	if err != nil {
		return nil, fmt.Errorf("fetching redstone manifest for %s: %w", network, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("redstone manifest for %s is not valid JSON", network)
	}

	manifest := gjson.ParseBytes(body)
	if priceFeeds := manifest.Get("priceFeeds"); priceFeeds.IsObject() {
		priceFeeds.ForEach(func(key, feed gjson.Result) bool {
			address, err := entity.NewAddress(feed.Get("priceFeedAddress").String())
			if err != nil || address.IsZero() {
				return true
			}
			info := entity.FeedInfo{
				Address:     address,
				Description: key.String(),
				Pair:        parseRedstonePair(key.String()),
			}
			if ms := feed.Get("updateTriggersOverrides.timeSinceLastUpdateInMilliseconds"); ms.Exists() && ms.Int() > 0 {
				heartbeat := int(ms.Int() / 1000)
				info.Heartbeat = &heartbeat
			}
			if dev := feed.Get("updateTriggersOverrides.deviationPercentage"); dev.Exists() {
				deviation := dev.Float()
				info.DeviationThreshold = &deviation
			}
			registry.Add(info)
			return true
		})
	} else {
		manifest.ForEach(func(key, feed gjson.Result) bool {
			if !feed.IsObject() {
				return true
			}
			address, err := entity.NewAddress(feed.Get("adapterContractAddress").String())
			if err != nil || address.IsZero() {
				return true
			}

			var pair []string
			if dataFeeds := feed.Get("dataFeeds").Array(); len(dataFeeds) >= 2 {
				pair = []string{dataFeeds[0].String(), dataFeeds[1].String()}
			} else {
				pair = parseRedstonePair(key.String())
			}
			description := feed.Get("name").String()
			if description == "" {
				description = key.String()
			}

			registry.Add(entity.FeedInfo{
				Address:     address,
				Description: description,
				Pair:        pair,
			})
			return true
		})
	}

	r.logger.Info("loaded feeds", "chainID", chainID, "network", network, "feeds", len(registry.Feeds))
	return registry, nil
}
