// Package oracle_scanner runs one scan: it enumerates candidate oracles,
// classifies them chain by chain, tracks proxy upgrades, and commits the
// registry and the published documents in a single write.
package oracle_scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/bytecode"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/services/classification"
	"github.com/archon-research/stl/oracle-scanner/internal/services/enrichment"
	"github.com/archon-research/stl/oracle-scanner/internal/services/shared"
)

// ChainDeps are the chain-specific readers and contract addresses.
type ChainDeps struct {
	ChainID     entity.ChainID
	Multicaller outbound.Multicaller
	Code        outbound.CodeReader

	// MorphoFactory answers isMorphoChainlinkOracleV2; zero when the chain
	// has no factory.
	MorphoFactory common.Address

	// MetaOracleFactories emit MetaOracleDeployed.
	MetaOracleFactories []common.Address
}

// Config holds configuration for the Service.
type Config struct {
	Chains []ChainDeps

	Enumerator     outbound.OracleEnumerator
	Logs           outbound.LogFetcher
	ProxyMetadata  outbound.ProxyMetadataSource
	FeedRegistries []outbound.FeedRegistry
	Store          outbound.BlobStore
	Templates      *bytecode.TemplateSet
	Adapters       classification.AdapterTable

	// Metrics is optional.
	Metrics outbound.MetricsRecorder

	// ChainConcurrency bounds the number of chains scanned at once.
	// Default: 1
	ChainConcurrency int

	// BytecodeWorkers bounds concurrent eth_getCode reads per chain.
	// Default: 1
	BytecodeWorkers int

	// RescanInterval is the staleness bound of a proxy's implementation.
	// Default: 24h
	RescanInterval time.Duration

	// GitSHA is stamped into the metadata document when set.
	GitSHA string

	// LogPerOracle raises per-oracle log lines from Debug to Info.
	LogPerOracle bool

	Logger *slog.Logger

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

func configDefaults() Config {
	return Config{
		ChainConcurrency: 1,
		BytecodeWorkers:  1,
		RescanInterval:   24 * time.Hour,
		Adapters:         classification.DefaultAdapters,
		Logger:           slog.Default(),
		Now:              time.Now,
	}
}

// RunOptions control a single run.
type RunOptions struct {
	// ForceRescan clears the classification and proxy state of every
	// candidate and re-probes every known proxy.
	ForceRescan bool
}

// RunResult summarises a committed run.
type RunResult struct {
	GeneratedAt           time.Time
	Chains                map[entity.ChainID]entity.ChainSummary
	FeedsMatched          map[entity.ChainID]map[entity.FeedProvider]int
	ImplementationChanges int
	Duration              time.Duration
}

// Service orchestrates a scan across chains.
type Service struct {
	config  Config
	matcher *enrichment.Matcher
	metrics outbound.MetricsRecorder
	logger  *slog.Logger
}

// NewService validates cfg and applies defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Enumerator == nil {
		return nil, fmt.Errorf("oracle enumerator cannot be nil")
	}
	if cfg.Logs == nil {
		return nil, fmt.Errorf("log fetcher cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("blob store cannot be nil")
	}
	if cfg.Templates == nil {
		return nil, fmt.Errorf("templates cannot be nil")
	}
	if len(cfg.Chains) == 0 {
		return nil, fmt.Errorf("at least one chain is required")
	}
	seen := make(map[entity.ChainID]bool, len(cfg.Chains))
	for _, c := range cfg.Chains {
		if c.Multicaller == nil || c.Code == nil {
			return nil, fmt.Errorf("chain %s: multicaller and code reader are required", c.ChainID)
		}
		if seen[c.ChainID] {
			return nil, fmt.Errorf("chain %s configured twice", c.ChainID)
		}
		seen[c.ChainID] = true
	}

	defaults := configDefaults()
	if cfg.ChainConcurrency <= 0 {
		cfg.ChainConcurrency = defaults.ChainConcurrency
	}
	if cfg.BytecodeWorkers <= 0 {
		cfg.BytecodeWorkers = defaults.BytecodeWorkers
	}
	if cfg.RescanInterval <= 0 {
		cfg.RescanInterval = defaults.RescanInterval
	}
	if cfg.Adapters == nil {
		cfg.Adapters = defaults.Adapters
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	if cfg.Now == nil {
		cfg.Now = defaults.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = shared.NopMetrics{}
	}

	matcher, err := enrichment.NewMatcher(enrichment.MatcherConfig{
		Sources:      cfg.FeedRegistries,
		ProbeWorkers: cfg.BytecodeWorkers,
		Logger:       cfg.Logger,
	}, cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("creating feed matcher: %w", err)
	}

	return &Service{
		config:  cfg,
		matcher: matcher,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With("component", "oracle-scanner"),
	}, nil
}

// Run performs one scan and commits its result. Enumerator and store
// failures abort the run before anything is written.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	start := s.config.Now()
	now := start.UTC()
	s.logger.Info("scan starting", "chains", len(s.config.Chains), "forceRescan", opts.ForceRescan)

	registry, err := s.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	candidates, err := s.config.Enumerator.ListOracles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing oracles: %w", err)
	}
	byChain := s.groupCandidates(candidates)

	// Partitions are created here so chain goroutines never touch the
	// registry map itself.
	partitions := make([]*entity.ChainRegistry, len(s.config.Chains))
	for i, deps := range s.config.Chains {
		partitions[i] = registry.Chain(deps.ChainID)
	}

	results := make([]*chainResult, len(s.config.Chains))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.ChainConcurrency)
	for i, deps := range s.config.Chains {
		g.Go(func() error {
			res, err := s.scanChain(gctx, deps, partitions[i], byChain[deps.ChainID], opts, now)
			if err != nil {
				return fmt.Errorf("chain %s: %w", deps.ChainID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	registry.GeneratedAt = now
	snapshot, result, err := s.buildSnapshot(registry, results, now)
	if err != nil {
		return nil, err
	}
	if err := s.config.Store.Commit(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("committing snapshot: %w", err)
	}

	result.Duration = s.config.Now().Sub(start)
	s.logger.Info("scan completed",
		"duration", result.Duration,
		"chains", len(result.Chains),
		"implementationChanges", result.ImplementationChanges)
	return result, nil
}

func (s *Service) groupCandidates(candidates []outbound.OracleCandidate) map[entity.ChainID][]entity.Address {
	configured := make(map[entity.ChainID]bool, len(s.config.Chains))
	for _, c := range s.config.Chains {
		configured[c.ChainID] = true
	}

	byChain := make(map[entity.ChainID][]entity.Address)
	skipped := 0
	for _, c := range candidates {
		if !configured[c.ChainID] || c.Address == "" {
			skipped++
			continue
		}
		byChain[c.ChainID] = append(byChain[c.ChainID], c.Address)
	}
	s.logger.Info("candidates enumerated", "total", len(candidates), "skipped", skipped)
	return byChain
}

func (s *Service) loadRegistry(ctx context.Context) (*entity.Registry, error) {
	data, err := s.config.Store.LoadState(ctx)
	if errors.Is(err, outbound.ErrStateNotFound) {
		s.logger.Info("no previous state, starting empty registry")
		return entity.NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	registry, err := DecodeRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	return registry, nil
}
