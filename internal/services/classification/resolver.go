// Package classification resolves candidate oracle addresses into
// classifications. Standard templates are recognised by factory membership or
// by bytecode fingerprint, meta-oracles are discovered from factory logs, and
// everything else falls back to the custom-adapter table or Unknown.
package classification

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/bytecode"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/partition"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/retry"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/services/shared"
)

// ResolverConfig holds configuration for a per-chain Resolver.
type ResolverConfig struct {
	ChainID entity.ChainID

	// Factory answers isMorphoChainlinkOracleV2. The zero address disables
	// the membership stage.
	Factory common.Address

	// ChunkSize bounds the number of addresses per multicall.
	// Default: 100
	ChunkSize int

	// ChunkConcurrency bounds the number of multicalls in flight.
	// Default: 4
	ChunkConcurrency int

	// MembershipRetries is how often a membership chunk whose multicall
	// failed as a whole is retried before its addresses count as false.
	// Default: 2
	MembershipRetries int

	// MembershipBackoff is the initial wait between membership retries.
	// Default: 250ms
	MembershipBackoff time.Duration

	// BytecodeWorkers bounds concurrent eth_getCode reads.
	// Default: 1
	BytecodeWorkers int

	Logger *slog.Logger
}

func resolverConfigDefaults() ResolverConfig {
	return ResolverConfig{
		ChunkSize:         100,
		ChunkConcurrency:  4,
		MembershipRetries: 2,
		MembershipBackoff: 250 * time.Millisecond,
		BytecodeWorkers:   1,
		Logger:            slog.Default(),
	}
}

// ResolveStats counts the outcome of each stage of one Resolve call.
type ResolveStats struct {
	Candidates       int
	FactoryConfirmed int
	FactoryFeeds     int
	BytecodeV1       int
	BytecodeV2       int
	BytecodeFeeds    int
	Unresolved       int
}

// Resolver classifies candidate addresses on one chain into standard Morpho
// oracle templates. Addresses it cannot resolve are left out of the result.
type Resolver struct {
	config      ResolverConfig
	multicaller outbound.Multicaller
	code        outbound.CodeReader
	templates   *bytecode.TemplateSet
	metrics     outbound.MetricsRecorder

	factoryABI *abi.ABI
	v1ABI      *abi.ABI
	v2ABI      *abi.ABI

	logger *slog.Logger
}

// NewResolver creates a resolver for cfg.ChainID.
func NewResolver(
	cfg ResolverConfig,
	multicaller outbound.Multicaller,
	code outbound.CodeReader,
	templates *bytecode.TemplateSet,
	metrics outbound.MetricsRecorder,
) (*Resolver, error) {
	if multicaller == nil {
		return nil, fmt.Errorf("multicaller cannot be nil")
	}
	if code == nil {
		return nil, fmt.Errorf("code reader cannot be nil")
	}
	if templates == nil {
		return nil, fmt.Errorf("templates cannot be nil")
	}
	if metrics == nil {
		metrics = shared.NopMetrics{}
	}

	defaults := resolverConfigDefaults()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaults.ChunkSize
	}
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = defaults.ChunkConcurrency
	}
	if cfg.MembershipRetries < 0 {
		cfg.MembershipRetries = defaults.MembershipRetries
	}
	if cfg.MembershipBackoff <= 0 {
		cfg.MembershipBackoff = defaults.MembershipBackoff
	}
	if cfg.BytecodeWorkers <= 0 {
		cfg.BytecodeWorkers = defaults.BytecodeWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}

	factoryABI, err := abis.GetMorphoChainlinkOracleV2FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("loading factory ABI: %w", err)
	}
	v1ABI, err := abis.GetMorphoChainlinkOracleV1ABI()
	if err != nil {
		return nil, fmt.Errorf("loading V1 oracle ABI: %w", err)
	}
	v2ABI, err := abis.GetMorphoChainlinkOracleV2ABI()
	if err != nil {
		return nil, fmt.Errorf("loading V2 oracle ABI: %w", err)
	}

	return &Resolver{
		config:      cfg,
		multicaller: multicaller,
		code:        code,
		templates:   templates,
		metrics:     metrics,
		factoryABI:  factoryABI,
		v1ABI:       v1ABI,
		v2ABI:       v2ABI,
		logger:      cfg.Logger.With("component", "classification-resolver", "chainID", cfg.ChainID),
	}, nil
}

// Resolve runs the four resolution stages over candidates. Read failures
// degrade to "unresolved" for the affected addresses; the only error returned
// is context cancellation.
func (r *Resolver) Resolve(ctx context.Context, candidates []entity.Address) (map[entity.Address]entity.Classification, ResolveStats, error) {
	stats := ResolveStats{Candidates: len(candidates)}
	out := make(map[entity.Address]entity.Classification, len(candidates))
	if len(candidates) == 0 {
		return out, stats, nil
	}

	confirmed, notConfirmed := r.partitionByMembership(ctx, candidates)
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	stats.FactoryConfirmed = len(confirmed)

	for addr, feeds := range r.readFeeds(ctx, "factory-feeds", r.v2ABI, abis.MorphoOracleV2Getters, confirmed) {
		out[addr] = entity.StandardV2{
			Feeds:              feeds,
			VerifiedByFactory:  true,
			VerificationMethod: entity.VerifiedByFactory,
		}
		stats.FactoryFeeds++
	}

	v1, v2 := r.fingerprint(ctx, notConfirmed)
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	stats.BytecodeV1 = len(v1)
	stats.BytecodeV2 = len(v2)

	for addr, feeds := range r.readFeeds(ctx, "v1-feeds", r.v1ABI, abis.MorphoOracleV1Getters, v1) {
		out[addr] = entity.StandardV1{
			Feeds:              feeds,
			VerificationMethod: entity.VerifiedByBytecode,
		}
		stats.BytecodeFeeds++
	}
	for addr, feeds := range r.readFeeds(ctx, "v2-feeds", r.v2ABI, abis.MorphoOracleV2Getters, v2) {
		out[addr] = entity.StandardV2{
			Feeds:              feeds,
			VerifiedByFactory:  false,
			VerificationMethod: entity.VerifiedByBytecode,
		}
		stats.BytecodeFeeds++
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	stats.Unresolved = len(candidates) - len(out)
	for _, c := range out {
		r.metrics.RecordClassification(ctx, r.config.ChainID, c.Kind())
	}

	r.logger.Info("resolved candidates",
		"candidates", stats.Candidates,
		"factoryConfirmed", stats.FactoryConfirmed,
		"bytecodeV1", stats.BytecodeV1,
		"bytecodeV2", stats.BytecodeV2,
		"resolved", len(out),
		"unresolved", stats.Unresolved)

	return out, stats, nil
}

// partitionByMembership runs stage 1. Order within each output follows the
// input order.
func (r *Resolver) partitionByMembership(ctx context.Context, candidates []entity.Address) (confirmed, notConfirmed []entity.Address) {
	if r.config.Factory == (common.Address{}) {
		r.logger.Debug("no factory configured, skipping membership")
		return nil, slices.Clone(candidates)
	}

	members := r.Membership(ctx, candidates)
	for i, addr := range candidates {
		if members[i] {
			confirmed = append(confirmed, addr)
		} else {
			notConfirmed = append(notConfirmed, addr)
		}
	}
	return confirmed, notConfirmed
}

// Membership checks every address against the factory. A failed call counts
// as false. Chunks whose multicall fails as a whole are retried up to
// MembershipRetries times before counting as false.
func (r *Resolver) Membership(ctx context.Context, addrs []entity.Address) []bool {
	out := make([]bool, len(addrs))
	if r.config.Factory == (common.Address{}) || len(addrs) == 0 {
		return out
	}

	retryCfg := retry.Config{
		MaxRetries:     r.config.MembershipRetries,
		InitialBackoff: r.config.MembershipBackoff,
		MaxBackoff:     4 * r.config.MembershipBackoff,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
	isRetryable := func(error) bool { return ctx.Err() == nil }

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.ChunkConcurrency)

	offset := 0
	for _, chunk := range partition.Chunks(addrs, r.config.ChunkSize) {
		start := offset
		offset += len(chunk)
		targets := toCommon(chunk)

		g.Go(func() error {
			members, err := retry.Do(gctx, retryCfg, isRetryable,
				func(attempt int, err error, backoff time.Duration) {
					r.logger.Warn("retrying membership chunk",
						"attempt", attempt, "size", len(targets), "backoff", backoff, "error", err)
				},
				func() ([]bool, error) {
					return blockchain.FetchFactoryMembership(gctx, r.multicaller, r.factoryABI, r.config.Factory, targets)
				})
			if err != nil {
				r.logger.Warn("membership chunk failed, treating as not confirmed", "size", len(targets), "error", err)
				r.metrics.RecordReadFailure(gctx, r.config.ChainID, "membership")
				return nil
			}
			copy(out[start:], members)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// fingerprint runs stage 3 with at most BytecodeWorkers concurrent reads.
func (r *Resolver) fingerprint(ctx context.Context, addrs []entity.Address) (v1, v2 []entity.Address) {
	if len(addrs) == 0 {
		return nil, nil
	}

	kinds := make([]string, len(addrs))

	var g errgroup.Group
	g.SetLimit(r.config.BytecodeWorkers)
	for i, addr := range addrs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			kinds[i] = r.ClassifyBytecode(ctx, addr)
			return nil
		})
	}
	_ = g.Wait()

	for i, addr := range addrs {
		switch kinds[i] {
		case bytecode.TemplateMorphoChainlinkOracleV1:
			v1 = append(v1, addr)
		case bytecode.TemplateMorphoChainlinkOracleV2:
			v2 = append(v2, addr)
		}
	}
	return v1, v2
}

// ClassifyBytecode fetches the code at addr and returns the matching template
// ID, or "" when the code matches neither Morpho template or the read fails.
func (r *Resolver) ClassifyBytecode(ctx context.Context, addr entity.Address) string {
	code, err := r.code.CodeAt(ctx, addr.Common())
	if err != nil {
		r.logger.Debug("getCode failed", "address", addr, "error", err)
		r.metrics.RecordReadFailure(ctx, r.config.ChainID, "getCode")
		return ""
	}
	if len(code) == 0 {
		return ""
	}

	deployed := hexutil.Encode(code)
	for _, id := range []string{bytecode.TemplateMorphoChainlinkOracleV1, bytecode.TemplateMorphoChainlinkOracleV2} {
		if r.templates.Match(id, deployed) {
			return id
		}
	}
	return ""
}

// readFeeds reads getters from every address in concurrent chunks and returns
// the addresses whose reads were complete.
func (r *Resolver) readFeeds(
	ctx context.Context,
	stage string,
	oracleABI *abi.ABI,
	getters []string,
	addrs []entity.Address,
) map[entity.Address]entity.StandardOracleFeeds {
	out := make(map[entity.Address]entity.StandardOracleFeeds, len(addrs))
	if len(addrs) == 0 {
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.ChunkConcurrency)

	for _, chunk := range partition.Chunks(addrs, r.config.ChunkSize) {
		g.Go(func() error {
			feeds, err := blockchain.FetchOracleFeeds(gctx, r.multicaller, oracleABI, getters, toCommon(chunk))
			if err != nil {
				r.logger.Warn("feed chunk failed", "stage", stage, "size", len(chunk), "error", err)
				r.metrics.RecordReadFailure(gctx, r.config.ChainID, stage)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for i, f := range feeds {
				if f == nil {
					r.logger.Debug("incomplete feed read", "stage", stage, "address", chunk[i])
					continue
				}
				out[chunk[i]] = *f
			}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func toCommon(addrs []entity.Address) []common.Address {
	out := make([]common.Address, len(addrs))
	for i, a := range addrs {
		out[i] = a.Common()
	}
	return out
}
