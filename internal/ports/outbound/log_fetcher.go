package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// LogQuery selects event logs emitted by one contract.
type LogQuery struct {
	Address   common.Address
	Topic0    common.Hash
	FromBlock uint64

	// ToBlock is inclusive; nil means the latest block.
	ToBlock *uint64
}

// LogFetcher retrieves historical event logs from an indexer.
type LogFetcher interface {
	// GetLogs returns matching logs in ascending block order. A fetcher
	// without credentials returns an empty result rather than an error.
	GetLogs(ctx context.Context, chainID entity.ChainID, query LogQuery) ([]types.Log, error)
}
