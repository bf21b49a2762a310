// Package chainreader reads deployed bytecode and storage slots over JSON-RPC,
// optionally through a bytecode cache.
package chainreader

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

var (
	_ outbound.CodeReader = (*Reader)(nil)
	_ outbound.CodeReader = (*CachedReader)(nil)
)

// StateReader is the subset of the node API the reader needs.
// Satisfied by *ethclient.Client.
type StateReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

// Reader reads account state at the latest block.
type Reader struct {
	client StateReader
}

// NewReader wraps client.
func NewReader(client StateReader) *Reader {
	return &Reader{client: client}
}

func (r *Reader) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	code, err := r.client.CodeAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_getCode %s: %w", account.Hex(), err)
	}
	return code, nil
}

func (r *Reader) StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error) {
	word, err := r.client.StorageAt(ctx, account, slot, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_getStorageAt %s[%s]: %w", account.Hex(), slot.Hex(), err)
	}
	return word, nil
}

// CachedReader serves CodeAt from a CodeCache and fills it on miss. Storage
// reads are never cached since proxy slots change on upgrade. Cache errors
// are logged and fall through to the node.
type CachedReader struct {
	next    outbound.CodeReader
	cache   outbound.CodeCache
	chainID entity.ChainID
	logger  *slog.Logger
}

// NewCachedReader wraps next with cache for chainID.
func NewCachedReader(next outbound.CodeReader, cache outbound.CodeCache, chainID entity.ChainID, logger *slog.Logger) *CachedReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedReader{
		next:    next,
		cache:   cache,
		chainID: chainID,
		logger:  logger.With("component", "cached-code-reader", "chainID", chainID),
	}
}

func (r *CachedReader) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	code, ok, err := r.cache.Get(ctx, r.chainID, account)
	if err != nil {
		r.logger.Warn("code cache read failed", "account", account.Hex(), "error", err)
	} else if ok {
		return code, nil
	}

	code, err = r.next.CodeAt(ctx, account)
	if err != nil {
		return nil, err
	}

	// An empty account may be deployed to later.
	if len(code) == 0 {
		return code, nil
	}
	if err := r.cache.Set(ctx, r.chainID, account, code); err != nil {
		r.logger.Warn("code cache write failed", "account", account.Hex(), "error", err)
	}
	return code, nil
}

func (r *CachedReader) StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error) {
	return r.next.StorageAt(ctx, account, slot)
}
