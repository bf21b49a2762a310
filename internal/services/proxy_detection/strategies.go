package proxy_detection

import (
	"context"
	"fmt"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

// Observation is a positive proxy finding.
type Observation struct {
	ProxyType      entity.ProxyType
	Implementation entity.Address
	Beacon         entity.Address
	Admin          entity.Address
}

// Strategy is one way of telling whether an address is a proxy.
//
// Inspect returns nil, nil when the strategy found no proxy, and an error when
// it could not tell.
type Strategy interface {
	Name() string
	Inspect(ctx context.Context, chainID entity.ChainID, address entity.Address) (*Observation, error)
}

// ExplorerStrategy asks a block explorer's verified source metadata.
type ExplorerStrategy struct {
	source outbound.ProxyMetadataSource
}

// NewExplorerStrategy wraps a proxy metadata source.
func NewExplorerStrategy(source outbound.ProxyMetadataSource) *ExplorerStrategy {
	return &ExplorerStrategy{source: source}
}

func (s *ExplorerStrategy) Name() string { return "etherscan" }

func (s *ExplorerStrategy) Inspect(ctx context.Context, chainID entity.ChainID, address entity.Address) (*Observation, error) {
	info, err := s.source.GetProxyInfo(ctx, chainID, address)
	if err != nil {
		return nil, fmt.Errorf("explorer proxy lookup: %w", err)
	}
	if info == nil || !info.IsProxy || info.Implementation == "" {
		return nil, nil
	}
	return &Observation{ProxyType: entity.ProxyTypeEIP1967, Implementation: info.Implementation}, nil
}

// StorageSlotStrategy reads the EIP-1967 implementation, beacon and admin
// slots directly.
type StorageSlotStrategy struct {
	code outbound.CodeReader
}

// NewStorageSlotStrategy reads slots through code.
func NewStorageSlotStrategy(code outbound.CodeReader) *StorageSlotStrategy {
	return &StorageSlotStrategy{code: code}
}

func (s *StorageSlotStrategy) Name() string { return "eip1967" }

func (s *StorageSlotStrategy) Inspect(ctx context.Context, _ entity.ChainID, address entity.Address) (*Observation, error) {
	account := address.Common()

	implWord, err := s.code.StorageAt(ctx, account, blockchain.EIP1967ImplementationSlot)
	if err != nil {
		return nil, fmt.Errorf("reading implementation slot: %w", err)
	}
	beaconWord, err := s.code.StorageAt(ctx, account, blockchain.EIP1967BeaconSlot)
	if err != nil {
		return nil, fmt.Errorf("reading beacon slot: %w", err)
	}

	impl := blockchain.SlotToAddress(implWord)
	beacon := blockchain.SlotToAddress(beaconWord)
	if impl == "" && beacon == "" {
		return nil, nil
	}

	// The admin slot is informational only.
	var admin entity.Address
	if adminWord, err := s.code.StorageAt(ctx, account, blockchain.EIP1967AdminSlot); err == nil {
		admin = blockchain.SlotToAddress(adminWord)
	}

	proxyType := entity.ProxyTypeEIP1967
	if beacon != "" {
		proxyType = entity.ProxyTypeBeacon
	}
	return &Observation{ProxyType: proxyType, Implementation: impl, Beacon: beacon, Admin: admin}, nil
}

// DefaultStrategies returns the explorer strategy (when source is set)
// followed by the storage slot strategy.
func DefaultStrategies(source outbound.ProxyMetadataSource, code outbound.CodeReader) []Strategy {
	var strategies []Strategy
	if source != nil {
		strategies = append(strategies, NewExplorerStrategy(source))
	}
	return append(strategies, NewStorageSlotStrategy(code))
}
