package outbound

import (
	"context"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// ProxyInfo is what a block explorer reports about a contract's proxy status.
type ProxyInfo struct {
	IsProxy        bool
	Implementation entity.Address
}

// ProxyMetadataSource asks a block explorer whether an address is a proxy.
type ProxyMetadataSource interface {
	// GetProxyInfo returns nil, nil when the source has no answer (for
	// example when it is not configured or the contract is unverified).
	GetProxyInfo(ctx context.Context, chainID entity.ChainID, address entity.Address) (*ProxyInfo, error)
}
