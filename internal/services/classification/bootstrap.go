package classification

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/partition"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/services/shared"
)

// BootstrapperConfig holds configuration for a per-chain Bootstrapper.
type BootstrapperConfig struct {
	ChainID entity.ChainID

	// Factories are the MetaOracleDeviationTimelock factories on the chain.
	Factories []common.Address

	// ChunkSize bounds the number of currentOracle reads per multicall.
	// Default: 100
	ChunkSize int

	Logger *slog.Logger
}

// Bootstrapper discovers meta-oracles from their factories' deployment logs.
type Bootstrapper struct {
	config      BootstrapperConfig
	logs        outbound.LogFetcher
	multicaller outbound.Multicaller
	metrics     outbound.MetricsRecorder

	deployedEvent abi.Event
	metaABI       *abi.ABI

	logger *slog.Logger
}

// NewBootstrapper creates a bootstrapper for cfg.ChainID.
func NewBootstrapper(
	cfg BootstrapperConfig,
	logs outbound.LogFetcher,
	multicaller outbound.Multicaller,
	metrics outbound.MetricsRecorder,
) (*Bootstrapper, error) {
	if logs == nil {
		return nil, fmt.Errorf("log fetcher cannot be nil")
	}
	if multicaller == nil {
		return nil, fmt.Errorf("multicaller cannot be nil")
	}
	if metrics == nil {
		metrics = shared.NopMetrics{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	factoryABI, err := abis.GetMetaOracleFactoryABI()
	if err != nil {
		return nil, fmt.Errorf("loading meta-oracle factory ABI: %w", err)
	}
	metaABI, err := abis.GetMetaOracleDeviationTimelockABI()
	if err != nil {
		return nil, fmt.Errorf("loading meta-oracle ABI: %w", err)
	}
	event, ok := factoryABI.Events["MetaOracleDeployed"]
	if !ok {
		return nil, fmt.Errorf("MetaOracleDeployed event missing from factory ABI")
	}

	return &Bootstrapper{
		config:        cfg,
		logs:          logs,
		multicaller:   multicaller,
		metrics:       metrics,
		deployedEvent: event,
		metaABI:       metaABI,
		logger:        cfg.Logger.With("component", "meta-oracle-bootstrapper", "chainID", cfg.ChainID),
	}, nil
}

// Bootstrap returns base extended with every discovered meta-oracle and the
// primary and backup oracles it references, together with the configs of the
// discovered meta-oracles. CurrentOracle in each config is read live.
//
// Each factory's logs are read from cursor's block for it to latest, and the
// cursor advances for every factory whose logs were read. A nil cursor reads
// every factory from block 0. Factory log failures are logged and skipped;
// only cancellation is returned.
func (b *Bootstrapper) Bootstrap(ctx context.Context, base []entity.Address, cursor *entity.Cursor) ([]entity.Address, map[entity.Address]entity.MetaOracleConfig, error) {
	configs := b.fetchDeployments(ctx, cursor)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	b.RefreshCurrentOracles(ctx, configs)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	expanded := ExpandCandidates(base, configs)
	b.logger.Info("bootstrapped meta-oracles",
		"factories", len(b.config.Factories),
		"metaOracles", len(configs),
		"candidates", len(base),
		"expanded", len(expanded))

	return expanded, configs, nil
}

type factoryScan struct {
	found     map[entity.Address]entity.MetaOracleConfig
	lastBlock uint64
	ok        bool
}

// fetchDeployments reads every factory's logs concurrently. When factories
// report the same meta-oracle, the first factory in configuration order wins.
func (b *Bootstrapper) fetchDeployments(ctx context.Context, cursor *entity.Cursor) map[entity.Address]entity.MetaOracleConfig {
	scans := make([]factoryScan, len(b.config.Factories))
	from := make([]uint64, len(b.config.Factories))
	if cursor != nil {
		for i, factory := range b.config.Factories {
			from[i] = cursor.FromBlock(entity.AddressFromCommon(factory))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, factory := range b.config.Factories {
		g.Go(func() error {
			logs, err := b.logs.GetLogs(gctx, b.config.ChainID, outbound.LogQuery{
				Address:   factory,
				Topic0:    b.deployedEvent.ID,
				FromBlock: from[i],
			})
			if err != nil {
				b.logger.Warn("fetching factory logs failed", "factory", factory.Hex(), "error", err)
				b.metrics.RecordReadFailure(gctx, b.config.ChainID, "factory-logs")
				return nil
			}

			scan := factoryScan{found: make(map[entity.Address]entity.MetaOracleConfig, len(logs)), ok: true}
			for _, l := range logs {
				scan.lastBlock = max(scan.lastBlock, l.BlockNumber)
				meta, cfg, err := b.DecodeDeployment(l)
				if err != nil {
					b.logger.Debug("skipping undecodable log", "factory", factory.Hex(), "tx", l.TxHash.Hex(), "error", err)
					continue
				}
				scan.found[meta] = cfg
			}
			scans[i] = scan
			return nil
		})
	}
	_ = g.Wait()

	configs := make(map[entity.Address]entity.MetaOracleConfig)
	for i, scan := range scans {
		if !scan.ok {
			continue
		}
		if cursor != nil && ctx.Err() == nil {
			cursor.Advance(entity.AddressFromCommon(b.config.Factories[i]), scan.lastBlock)
		}
		for meta, cfg := range scan.found {
			if _, dup := configs[meta]; !dup {
				configs[meta] = cfg
			}
		}
	}
	return configs
}

// DecodeDeployment decodes one MetaOracleDeployed log. CurrentOracle is left
// empty since the event does not carry it.
func (b *Bootstrapper) DecodeDeployment(l types.Log) (entity.Address, entity.MetaOracleConfig, error) {
	if len(l.Topics) != 4 {
		return "", entity.MetaOracleConfig{}, fmt.Errorf("expected 4 topics, got %d", len(l.Topics))
	}
	if l.Topics[0] != b.deployedEvent.ID {
		return "", entity.MetaOracleConfig{}, fmt.Errorf("unexpected topic0 %s", l.Topics[0].Hex())
	}

	values, err := b.deployedEvent.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return "", entity.MetaOracleConfig{}, fmt.Errorf("unpacking data: %w", err)
	}
	if len(values) != 4 {
		return "", entity.MetaOracleConfig{}, fmt.Errorf("expected 4 data values, got %d", len(values))
	}

	threshold, ok := values[1].(*big.Int)
	if !ok {
		return "", entity.MetaOracleConfig{}, fmt.Errorf("deviationThreshold has type %T", values[1])
	}
	challenge, err := uint64Value(values[2])
	if err != nil {
		return "", entity.MetaOracleConfig{}, fmt.Errorf("challengeTimelockDuration: %w", err)
	}
	healing, err := uint64Value(values[3])
	if err != nil {
		return "", entity.MetaOracleConfig{}, fmt.Errorf("healingTimelockDuration: %w", err)
	}

	meta := entity.NullableAddress(common.BytesToAddress(l.Topics[1].Bytes()))
	if meta == "" {
		return "", entity.MetaOracleConfig{}, fmt.Errorf("zero meta-oracle address")
	}

	return meta, entity.MetaOracleConfig{
		PrimaryOracle:             entity.NullableAddress(common.BytesToAddress(l.Topics[2].Bytes())),
		BackupOracle:              entity.NullableAddress(common.BytesToAddress(l.Topics[3].Bytes())),
		DeviationThreshold:        decimal.NewFromBigInt(threshold, 0),
		ChallengeTimelockDuration: challenge,
		HealingTimelockDuration:   healing,
	}, nil
}

// RefreshCurrentOracles reads currentOracle() live for every config and
// stores it in place. A failed read leaves CurrentOracle empty.
func (b *Bootstrapper) RefreshCurrentOracles(ctx context.Context, configs map[entity.Address]entity.MetaOracleConfig) {
	if len(configs) == 0 {
		return
	}

	metas := make([]entity.Address, 0, len(configs))
	for addr := range configs {
		metas = append(metas, addr)
	}
	slices.Sort(metas)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(4)
	for _, chunk := range partition.Chunks(metas, b.config.ChunkSize) {
		g.Go(func() error {
			results, err := blockchain.FetchCurrentOracles(ctx, b.multicaller, b.metaABI, toCommon(chunk))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				b.logger.Warn("reading currentOracle failed", "size", len(chunk), "error", err)
				b.metrics.RecordReadFailure(ctx, b.config.ChainID, "currentOracle")
				for _, meta := range chunk {
					cfg := configs[meta]
					cfg.CurrentOracle = ""
					configs[meta] = cfg
				}
				return nil
			}
			for i, meta := range chunk {
				cfg := configs[meta]
				cfg.CurrentOracle = results[i].CurrentOracle
				if !results[i].Success {
					b.logger.Debug("currentOracle call failed", "metaOracle", meta)
				}
				configs[meta] = cfg
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ExpandCandidates returns base followed by the meta-oracles and their
// primary and backup oracles that base does not already contain, in
// ascending order.
func ExpandCandidates(base []entity.Address, configs map[entity.Address]entity.MetaOracleConfig) []entity.Address {
	seen := make(map[entity.Address]bool, len(base)+3*len(configs))
	out := make([]entity.Address, 0, len(base)+3*len(configs))
	for _, a := range base {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}

	var extra []entity.Address
	for meta, cfg := range configs {
		for _, a := range []entity.Address{meta, cfg.PrimaryOracle, cfg.BackupOracle} {
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			extra = append(extra, a)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

func uint64Value(v any) (uint64, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("value %s overflows uint64", n)
	}
	return n.Uint64(), nil
}
