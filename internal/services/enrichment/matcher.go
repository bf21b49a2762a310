// Package enrichment labels feeds and vaults for the published documents.
// Nothing here influences classification.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/bytecode"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/services/shared"
)

// UnknownFeedDescription labels feeds no registry knows.
const UnknownFeedDescription = "Unknown Feed"

const pendleFeedDescription = "Pendle PT linear discount feed"

// MatcherConfig holds configuration for the Matcher.
type MatcherConfig struct {
	// Sources are consulted in order; the first registry that knows a feed
	// labels it.
	Sources []outbound.FeedRegistry

	// ProbeWorkers bounds concurrent getCode calls of the Pendle probe.
	// Default: 1
	ProbeWorkers int

	Logger *slog.Logger
}

// Matcher labels feed addresses with the provider registries of each chain.
// It is safe for concurrent use by different chains.
type Matcher struct {
	config  MatcherConfig
	metrics outbound.MetricsRecorder
	logger  *slog.Logger

	mu         sync.RWMutex
	registries map[entity.ChainID][]*entity.FeedProviderRegistry
	probed     map[entity.ChainID]*entity.FeedProviderRegistry
}

// NewMatcher creates a matcher over cfg.Sources.
func NewMatcher(cfg MatcherConfig, metrics outbound.MetricsRecorder) (*Matcher, error) {
	for i, s := range cfg.Sources {
		if s == nil {
			return nil, fmt.Errorf("feed registry %d cannot be nil", i)
		}
	}
	if metrics == nil {
		metrics = shared.NopMetrics{}
	}
	if cfg.ProbeWorkers <= 0 {
		cfg.ProbeWorkers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Matcher{
		config:     cfg,
		metrics:    metrics,
		logger:     cfg.Logger.With("component", "feed-matcher"),
		registries: make(map[entity.ChainID][]*entity.FeedProviderRegistry),
		probed:     make(map[entity.ChainID]*entity.FeedProviderRegistry),
	}, nil
}

// Load fetches every source for chainID concurrently. A failing source is
// replaced by an empty registry and logged.
func (m *Matcher) Load(ctx context.Context, chainID entity.ChainID) {
	loaded := make([]*entity.FeedProviderRegistry, len(m.config.Sources))

	var g errgroup.Group
	for i, source := range m.config.Sources {
		g.Go(func() error {
			registry, err := source.Fetch(ctx, chainID)
			if err != nil || registry == nil {
				m.logger.Warn("feed registry unavailable",
					"chainID", chainID,
					"provider", source.Provider(),
					"error", err)
				m.metrics.RecordReadFailure(ctx, chainID, "feed-registry")
				registry = entity.NewFeedProviderRegistry(chainID, source.Provider(), time.Time{})
			}
			loaded[i] = registry
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, r := range loaded {
		total += len(r.Feeds)
	}

	m.mu.Lock()
	m.registries[chainID] = loaded
	m.mu.Unlock()

	m.logger.Info("feed registries loaded", "chainID", chainID, "sources", len(loaded), "feeds", total)
}

// Match returns the first registry entry for address on chainID.
func (m *Matcher) Match(chainID entity.ChainID, address entity.Address) (entity.FeedInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.registries[chainID] {
		if info, ok := r.Feeds[address]; ok {
			return info, true
		}
	}
	if r := m.probed[chainID]; r != nil {
		if info, ok := r.Feeds[address]; ok {
			return info, true
		}
	}
	return entity.FeedInfo{}, false
}

// EnrichFeed labels address. Unmatched feeds get UnknownFeedDescription, an
// empty pair and no provider. The empty address yields nil.
func (m *Matcher) EnrichFeed(chainID entity.ChainID, address entity.Address) *entity.EnrichedFeed {
	if address == "" {
		return nil
	}
	feed := &entity.EnrichedFeed{
		Address:     address,
		Chain:       entity.ChainRef{ID: chainID},
		Description: UnknownFeedDescription,
		Pair:        []string{},
	}
	info, ok := m.Match(chainID, address)
	if !ok {
		return feed
	}
	provider := info.Provider
	feed.Description = info.Description
	feed.Provider = &provider
	feed.Decimals = info.Decimals
	if len(info.Pair) > 0 {
		feed.Pair = append([]string(nil), info.Pair...)
	}
	return feed
}

// ProbePendle fetches the bytecode of every feed no registry knows and
// labels the ones matching the Pendle linear discount template. It returns
// the number of feeds labelled.
func (m *Matcher) ProbePendle(
	ctx context.Context,
	chainID entity.ChainID,
	code outbound.CodeReader,
	templates *bytecode.TemplateSet,
	feeds []entity.Address,
) int {
	if code == nil || templates == nil {
		return 0
	}
	if t, ok := templates.Get(bytecode.TemplatePendleLinearDiscountFeed); !ok || !t.Mask.IsSet() {
		return 0
	}

	seen := make(map[entity.Address]bool, len(feeds))
	var unmatched []entity.Address
	for _, f := range feeds {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		if _, ok := m.Match(chainID, f); !ok {
			unmatched = append(unmatched, f)
		}
	}
	if len(unmatched) == 0 {
		return 0
	}

	var mu sync.Mutex
	var found []entity.Address

	var g errgroup.Group
	g.SetLimit(m.config.ProbeWorkers)
	for _, feed := range unmatched {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			deployed, err := code.CodeAt(ctx, feed.Common())
			if err != nil {
				m.metrics.RecordReadFailure(ctx, chainID, "getCode")
				m.logger.Debug("pendle probe getCode failed", "chainID", chainID, "feed", feed, "error", err)
				return nil
			}
			if len(deployed) == 0 {
				return nil
			}
			if templates.Match(bytecode.TemplatePendleLinearDiscountFeed, hexutil.Encode(deployed)) {
				mu.Lock()
				found = append(found, feed)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(found) == 0 {
		return 0
	}

	m.mu.Lock()
	registry := m.probed[chainID]
	if registry == nil {
		registry = entity.NewFeedProviderRegistry(chainID, entity.ProviderPendle, time.Now())
		m.probed[chainID] = registry
	}
	for _, feed := range found {
		registry.Add(entity.FeedInfo{Address: feed, Description: pendleFeedDescription})
	}
	m.mu.Unlock()

	m.logger.Info("pendle feeds identified", "chainID", chainID, "probed", len(unmatched), "matched", len(found))
	return len(found)
}

// Stats returns the number of known feeds per chain and provider.
func (m *Matcher) Stats() map[entity.ChainID]map[entity.FeedProvider]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[entity.ChainID]map[entity.FeedProvider]int, len(m.registries))
	add := func(r *entity.FeedProviderRegistry) {
		if out[r.ChainID] == nil {
			out[r.ChainID] = make(map[entity.FeedProvider]int)
		}
		out[r.ChainID][r.Provider] += len(r.Feeds)
	}
	for _, regs := range m.registries {
		for _, r := range regs {
			add(r)
		}
	}
	for _, r := range m.probed {
		add(r)
	}
	return out
}

// ProviderSources summarises the remote registries across chains for the
// metadata document, keyed by lowercase provider name. Providers whose
// every fetch failed are omitted.
func (m *Matcher) ProviderSources(providers ...entity.FeedProvider) map[string]entity.ProviderSource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[entity.FeedProvider]bool, len(providers))
	for _, p := range providers {
		wanted[p] = true
	}

	out := make(map[string]entity.ProviderSource)
	for _, regs := range m.registries {
		for _, r := range regs {
			if !wanted[r.Provider] || r.UpdatedAt.IsZero() {
				continue
			}
			key := strings.ToLower(string(r.Provider))
			src := out[key]
			src.FeedCount += len(r.Feeds)
			if r.UpdatedAt.After(src.UpdatedAt) {
				src.UpdatedAt = r.UpdatedAt
			}
			out[key] = src
		}
	}
	return out
}
