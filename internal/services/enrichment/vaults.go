package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/partition"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/services/shared"
)

// VaultLabel is the display metadata of an ERC-4626 vault.
type VaultLabel struct {
	Symbol      string
	Asset       entity.Address
	AssetSymbol string
}

// VaultLabels maps vault addresses to their labels.
type VaultLabels map[entity.Address]VaultLabel

// Enriched returns the published view of vault. The pair is [symbol,
// asset symbol] when both are known. The empty address yields nil.
func (l VaultLabels) Enriched(vault entity.Address, sample entity.BigInt) *entity.EnrichedVault {
	if vault == "" {
		return nil
	}
	out := &entity.EnrichedVault{Address: vault, Pair: []string{}, ConversionSample: sample}
	label, ok := l[vault]
	if !ok {
		return out
	}
	out.Symbol = label.Symbol
	out.Asset = label.Asset
	out.AssetSymbol = label.AssetSymbol
	if label.Symbol != "" && label.AssetSymbol != "" {
		out.Pair = []string{label.Symbol, label.AssetSymbol}
	}
	return out
}

// VaultEnricherConfig holds configuration for a per-chain VaultEnricher.
type VaultEnricherConfig struct {
	ChainID entity.ChainID

	// ChunkSize bounds the number of vaults per multicall.
	// Default: 100
	ChunkSize int

	Logger *slog.Logger
}

// VaultEnricher reads vault and asset symbols through multicall.
type VaultEnricher struct {
	config      VaultEnricherConfig
	multicaller outbound.Multicaller
	metrics     outbound.MetricsRecorder
	vaultABI    *abi.ABI
	erc20ABI    *abi.ABI
	logger      *slog.Logger
}

// NewVaultEnricher creates a vault enricher for cfg.ChainID.
func NewVaultEnricher(cfg VaultEnricherConfig, multicaller outbound.Multicaller, metrics outbound.MetricsRecorder) (*VaultEnricher, error) {
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

	vaultABI, err := abis.GetERC4626ABI()
	if err != nil {
		return nil, fmt.Errorf("loading ERC4626 ABI: %w", err)
	}
	erc20ABI, err := abis.GetERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("loading ERC20 ABI: %w", err)
	}

	return &VaultEnricher{
		config:      cfg,
		multicaller: multicaller,
		metrics:     metrics,
		vaultABI:    vaultABI,
		erc20ABI:    erc20ABI,
		logger:      cfg.Logger.With("component", "vault-enricher", "chainID", cfg.ChainID),
	}, nil
}

// Enrich labels every distinct vault. Vaults whose reads fail are absent
// from the result.
func (e *VaultEnricher) Enrich(ctx context.Context, vaults []entity.Address) VaultLabels {
	unique := dedupe(vaults)
	labels := make(VaultLabels, len(unique))
	if len(unique) == 0 {
		return labels
	}

	assets := make(map[entity.Address]bool)
	for _, chunk := range partition.Chunks(unique, e.config.ChunkSize) {
		infos, err := blockchain.FetchVaultInfo(ctx, e.multicaller, e.vaultABI, toCommon(chunk))
		if err != nil {
			e.logger.Warn("reading vault info failed", "size", len(chunk), "error", err)
			e.metrics.RecordReadFailure(ctx, e.config.ChainID, "vaultInfo")
			continue
		}
		for i, vault := range chunk {
			if !infos[i].Success {
				continue
			}
			labels[vault] = VaultLabel{Symbol: infos[i].Symbol, Asset: infos[i].Asset}
			if infos[i].Asset != "" {
				assets[infos[i].Asset] = true
			}
		}
	}

	assetList := make([]entity.Address, 0, len(assets))
	for a := range assets {
		assetList = append(assetList, a)
	}
	slices.Sort(assetList)

	symbols := make(map[entity.Address]string, len(assetList))
	for _, chunk := range partition.Chunks(assetList, e.config.ChunkSize) {
		got, err := blockchain.FetchSymbols(ctx, e.multicaller, e.erc20ABI, toCommon(chunk))
		if err != nil {
			e.logger.Warn("reading asset symbols failed", "size", len(chunk), "error", err)
			e.metrics.RecordReadFailure(ctx, e.config.ChainID, "symbol")
			continue
		}
		for i, asset := range chunk {
			symbols[asset] = got[i]
		}
	}

	for vault, label := range labels {
		label.AssetSymbol = symbols[label.Asset]
		labels[vault] = label
	}

	e.logger.Debug("vaults enriched", "vaults", len(unique), "labelled", len(labels), "assets", len(assetList))
	return labels
}

func dedupe(addrs []entity.Address) []entity.Address {
	seen := make(map[entity.Address]bool, len(addrs))
	out := make([]entity.Address, 0, len(addrs))
	for _, a := range addrs {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

func toCommon(addrs []entity.Address) []common.Address {
	out := make([]common.Address, len(addrs))
	for i, a := range addrs {
		out[i] = a.Common()
	}
	return out
}
