package oracle_scanner

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/services/classification"
	"github.com/archon-research/stl/oracle-scanner/internal/services/enrichment"
	"github.com/archon-research/stl/oracle-scanner/internal/services/proxy_detection"
	"github.com/archon-research/stl/oracle-scanner/internal/services/shared"
)

// Pipeline stage names, used for spans and the stage duration histogram.
const (
	stageBootstrap = "bootstrap"
	stageRegister  = "register"
	stageResolve   = "resolve"
	stageProxy     = "proxy"
	stageFallback  = "fallback"
	stageRescan    = "rescan"
	stageEnrich    = "enrich"
	stageOutput    = "output"
)

// chainResult is what one chain contributes to the snapshot.
type chainResult struct {
	chainID               entity.ChainID
	output                entity.OutputFile
	summary               entity.ChainSummary
	implementationChanges int
}

// chainScan holds the per-chain components of one run.
type chainScan struct {
	svc  *Service
	deps ChainDeps
	reg  *entity.ChainRegistry
	opts RunOptions
	now  time.Time

	resolver     *classification.Resolver
	bootstrapper *classification.Bootstrapper
	detector     *proxy_detection.Detector
	vaults       *enrichment.VaultEnricher

	logger *slog.Logger
}

func (s *Service) newChainScan(deps ChainDeps, reg *entity.ChainRegistry, opts RunOptions, now time.Time) (*chainScan, error) {
	resolver, err := classification.NewResolver(classification.ResolverConfig{
		ChainID:         deps.ChainID,
		Factory:         deps.MorphoFactory,
		BytecodeWorkers: s.config.BytecodeWorkers,
		Logger:          s.config.Logger,
	}, deps.Multicaller, deps.Code, s.config.Templates, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("creating resolver: %w", err)
	}

	bootstrapper, err := classification.NewBootstrapper(classification.BootstrapperConfig{
		ChainID:   deps.ChainID,
		Factories: deps.MetaOracleFactories,
		Logger:    s.config.Logger,
	}, s.config.Logs, deps.Multicaller, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("creating bootstrapper: %w", err)
	}

	detector, err := proxy_detection.NewDetector(proxy_detection.DetectorConfig{
		ChainID:        deps.ChainID,
		RescanInterval: s.config.RescanInterval,
		Logger:         s.config.Logger,
	}, proxy_detection.DefaultStrategies(s.config.ProxyMetadata, deps.Code), s.metrics)
	if err != nil {
		return nil, fmt.Errorf("creating proxy detector: %w", err)
	}

	vaults, err := enrichment.NewVaultEnricher(enrichment.VaultEnricherConfig{
		ChainID: deps.ChainID,
		Logger:  s.config.Logger,
	}, deps.Multicaller, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("creating vault enricher: %w", err)
	}

	return &chainScan{
		svc:          s,
		deps:         deps,
		reg:          reg,
		opts:         opts,
		now:          now,
		resolver:     resolver,
		bootstrapper: bootstrapper,
		detector:     detector,
		vaults:       vaults,
		logger:       s.logger.With("chainID", deps.ChainID),
	}, nil
}

// scanChain runs every stage for one chain in order. It only fails on
// cancellation or misconfiguration; read failures degrade inside stages.
func (s *Service) scanChain(
	ctx context.Context,
	deps ChainDeps,
	reg *entity.ChainRegistry,
	base []entity.Address,
	opts RunOptions,
	now time.Time,
) (*chainResult, error) {
	cs, err := s.newChainScan(deps, reg, opts, now)
	if err != nil {
		return nil, err
	}
	cs.logger.Info("scanning chain", "candidates", len(base), "known", reg.Len())

	var (
		candidates  []entity.Address
		metaConfigs map[entity.Address]entity.MetaOracleConfig
		resolved    map[entity.Address]entity.Classification
		unresolved  []entity.Address
		detected    = make(map[entity.Address]bool)
		changes     int
		labels      enrichment.VaultLabels
		result      *chainResult
	)

	stages := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{stageBootstrap, func(ctx context.Context) error {
			if opts.ForceRescan {
				reg.Cursor.Reset()
			}
			candidates, metaConfigs, err = cs.bootstrapper.Bootstrap(ctx, base, &reg.Cursor)
			if err != nil {
				return err
			}
			metaConfigs = cs.withKnownMetaOracles(ctx, metaConfigs)
			candidates = classification.ExpandCandidates(candidates, metaConfigs)
			return nil
		}},
		{stageRegister, func(ctx context.Context) error {
			cs.register(candidates)
			return nil
		}},
		{stageResolve, func(ctx context.Context) error {
			resolved, unresolved, err = cs.resolve(ctx, candidates, metaConfigs)
			return err
		}},
		{stageProxy, func(ctx context.Context) error {
			return cs.detectProxies(ctx, candidates, detected)
		}},
		{stageFallback, func(ctx context.Context) error {
			cs.applyFallback(ctx, unresolved)
			return nil
		}},
		{stageRescan, func(ctx context.Context) error {
			changes, err = cs.rescan(ctx, detected)
			return err
		}},
		{stageEnrich, func(ctx context.Context) error {
			labels = cs.enrich(ctx)
			return nil
		}},
		{stageOutput, func(context.Context) error {
			result = cs.buildOutput(labels)
			return nil
		}},
	}

	for _, stage := range stages {
		if err := shared.RunStage(ctx, s.metrics, deps.ChainID, stage.name, stage.fn); err != nil {
			return nil, fmt.Errorf("%s: %w", stage.name, err)
		}
	}

	result.implementationChanges = changes
	cs.logger.Info("chain scanned",
		"oracles", result.summary.OracleCount,
		"standard", result.summary.StandardCount,
		"meta", result.summary.MetaCount,
		"custom", result.summary.CustomCount,
		"unknown", result.summary.UnknownCount,
		"upgradable", result.summary.UpgradableCount,
		"resolved", len(resolved),
		"implementationChanges", changes)
	return result, nil
}

// register creates or touches every candidate. Under force-rescan the
// classification and proxy state of existing entries are cleared.
func (cs *chainScan) register(candidates []entity.Address) {
	created, cleared := 0, 0
	for _, addr := range candidates {
		state, isNew := cs.reg.Observe(addr, cs.now)
		if isNew {
			created++
			continue
		}
		if cs.opts.ForceRescan {
			state.Classification = nil
			state.Proxy = nil
			cleared++
		}
	}
	cs.logger.Info("candidates registered", "candidates", len(candidates), "new", created, "cleared", cleared)
}

// withKnownMetaOracles adds the meta-oracles already in the registry that
// this run's logs did not report, with a freshly read currentOracle. Logs
// are read incrementally, so earlier deployments reach the run this way.
func (cs *chainScan) withKnownMetaOracles(ctx context.Context, discovered map[entity.Address]entity.MetaOracleConfig) map[entity.Address]entity.MetaOracleConfig {
	known := make(map[entity.Address]entity.MetaOracleConfig)
	for addr, state := range cs.reg.Contracts {
		meta, ok := state.Classification.(entity.MetaOracleDeviationTimelock)
		if !ok {
			continue
		}
		if _, found := discovered[addr]; found {
			continue
		}
		known[addr] = meta.Config
	}
	if len(known) == 0 {
		return discovered
	}

	cs.bootstrapper.RefreshCurrentOracles(ctx, known)
	cs.logger.Debug("refreshed known meta-oracles", "count", len(known))

	out := make(map[entity.Address]entity.MetaOracleConfig, len(discovered)+len(known))
	maps.Copy(out, discovered)
	maps.Copy(out, known)
	return out
}

// resolve classifies every candidate that is not a meta-oracle and has no
// stable classification, then rebuilds every meta-oracle.
func (cs *chainScan) resolve(
	ctx context.Context,
	candidates []entity.Address,
	metaConfigs map[entity.Address]entity.MetaOracleConfig,
) (map[entity.Address]entity.Classification, []entity.Address, error) {
	var targets []entity.Address
	for _, addr := range candidates {
		if _, isMeta := metaConfigs[addr]; isMeta {
			continue
		}
		state, _ := cs.reg.Get(addr)
		if state.Classification == nil || !entity.IsStable(state.Classification) {
			targets = append(targets, addr)
		}
	}

	resolved, _, err := cs.resolver.Resolve(ctx, targets)
	if err != nil {
		return nil, nil, err
	}

	var unresolved []entity.Address
	for _, addr := range targets {
		state, _ := cs.reg.Get(addr)
		c, ok := resolved[addr]
		if !ok {
			unresolved = append(unresolved, addr)
			continue
		}
		state.Classification = c
		// Standard templates are never proxies.
		state.Proxy = nil
	}

	lookup := func(addr entity.Address) entity.Classification {
		if c, ok := resolved[addr]; ok {
			return c
		}
		if state, ok := cs.reg.Get(addr); ok {
			return state.Classification
		}
		return nil
	}
	for _, meta := range slices.Sorted(maps.Keys(metaConfigs)) {
		state, ok := cs.reg.Get(meta)
		if !ok {
			state, _ = cs.reg.Observe(meta, cs.now)
		}
		state.Classification = classification.BuildMetaOracle(metaConfigs[meta], lookup)
		cs.svc.metrics.RecordClassification(ctx, cs.deps.ChainID, entity.KindMetaOracle)
		cs.logOracle("meta-oracle built", "address", meta, "currentOracle", metaConfigs[meta].CurrentOracle)
	}

	return resolved, unresolved, nil
}

// detectProxies probes every candidate that is not a standard template and
// has no proxy state yet. Probed addresses are recorded in detected.
func (cs *chainScan) detectProxies(ctx context.Context, candidates []entity.Address, detected map[entity.Address]bool) error {
	var targets []*entity.ContractState
	var addrs []entity.Address
	for _, addr := range candidates {
		state, _ := cs.reg.Get(addr)
		if state.Proxy != nil {
			continue
		}
		if state.Classification != nil && entity.IsStandardTemplate(state.Classification) {
			continue
		}
		targets = append(targets, state)
		addrs = append(addrs, addr)
	}

	var g errgroup.Group
	g.SetLimit(cs.svc.config.BytecodeWorkers)
	for i, state := range targets {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			state.Proxy = cs.detector.Detect(ctx, addrs[i], cs.now)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	proxies := 0
	for i, state := range targets {
		detected[addrs[i]] = true
		if state.IsUpgradable() {
			proxies++
		}
	}
	cs.logger.Info("proxy detection finished", "probed", len(targets), "proxies", proxies)
	return nil
}

// applyFallback classifies every unresolved candidate as a custom adapter
// or Unknown, matching through the proxy implementation when known.
func (cs *chainScan) applyFallback(ctx context.Context, unresolved []entity.Address) {
	for _, addr := range unresolved {
		state, _ := cs.reg.Get(addr)
		c := cs.svc.config.Adapters.Fallback(cs.deps.ChainID, addr, state.Implementation())
		state.Classification = c
		cs.svc.metrics.RecordClassification(ctx, cs.deps.ChainID, c.Kind())
		cs.logOracle("fallback classification", "address", addr, "kind", c.Kind(), "implementation", state.Implementation())
	}
}

// rescan sweeps the whole registry for proxies whose implementation is
// stale. Proxies detected earlier in this run are skipped. A custom or
// unknown contract whose implementation changed is re-matched.
func (cs *chainScan) rescan(ctx context.Context, detected map[entity.Address]bool) (int, error) {
	interval := cs.detector.RescanInterval()
	due, changes := 0, 0
	for _, addr := range cs.reg.Addresses() {
		if err := ctx.Err(); err != nil {
			return changes, err
		}
		state, _ := cs.reg.Get(addr)
		if detected[addr] || !proxy_detection.NeedsRescan(state.Proxy, cs.now, interval, cs.opts.ForceRescan) {
			continue
		}
		due++
		if !cs.detector.Rescan(ctx, addr, state.Proxy, cs.now) {
			continue
		}
		changes++
		switch state.Classification.(type) {
		case entity.CustomAdapter, entity.Unknown, nil:
			state.Classification = cs.svc.config.Adapters.Fallback(cs.deps.ChainID, addr, state.Implementation())
		}
	}
	cs.logger.Info("proxy rescan finished", "due", due, "changed", changes)
	return changes, nil
}

// enrich loads the feed registries, probes unmatched feeds, and labels
// every vault referenced by a standard or meta-oracle.
func (cs *chainScan) enrich(ctx context.Context) enrichment.VaultLabels {
	matcher := cs.svc.matcher
	matcher.Load(ctx, cs.deps.ChainID)

	var feeds, vaults []entity.Address
	collect := func(f entity.StandardOracleFeeds) {
		feeds = append(feeds, f.FeedAddresses()...)
		vaults = append(vaults, f.BaseVault, f.QuoteVault)
	}
	for _, state := range cs.reg.Contracts {
		switch c := state.Classification.(type) {
		case entity.StandardV1:
			collect(c.Feeds)
		case entity.StandardV2:
			collect(c.Feeds)
		case entity.MetaOracleDeviationTimelock:
			if c.OracleSources != nil && c.OracleSources.Primary != nil {
				collect(*c.OracleSources.Primary)
			}
			if c.OracleSources != nil && c.OracleSources.Backup != nil {
				collect(*c.OracleSources.Backup)
			}
		case entity.CustomAdapter:
			if !c.Feeds.IsEmpty() {
				for _, f := range []entity.Address{c.Feeds.BaseFeedOne, c.Feeds.BaseFeedTwo, c.Feeds.QuoteFeedOne, c.Feeds.QuoteFeedTwo} {
					if f != "" {
						feeds = append(feeds, f)
					}
				}
			}
		}
	}
	slices.Sort(feeds)
	feeds = slices.Compact(feeds)

	matcher.ProbePendle(ctx, cs.deps.ChainID, cs.deps.Code, cs.svc.config.Templates, feeds)
	return cs.vaults.Enrich(ctx, vaults)
}

func (cs *chainScan) logOracle(msg string, args ...any) {
	level := slog.LevelDebug
	if cs.svc.config.LogPerOracle {
		level = slog.LevelInfo
	}
	cs.logger.Log(context.Background(), level, msg, args...)
}
