package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// CodeReader reads raw account state from one chain at the latest block.
type CodeReader interface {
	// CodeAt returns the deployed bytecode. An account without code yields
	// an empty slice and no error.
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)

	// StorageAt returns the 32-byte word stored at slot.
	StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error)
}

// CodeCache memoises deployed bytecode. Bytecode at an address only changes
// through selfdestruct and redeploy, which the scanner ignores.
type CodeCache interface {
	// Get returns the cached code and whether it was present.
	Get(ctx context.Context, chainID entity.ChainID, account common.Address) ([]byte, bool, error)

	// Set stores code for account.
	Set(ctx context.Context, chainID entity.ChainID, account common.Address, code []byte) error

	Close() error
}
