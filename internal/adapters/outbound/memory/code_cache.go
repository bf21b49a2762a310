// code_cache.go provides an in-memory implementation of CodeCache.
//
// All operations are thread-safe. Data is lost on process restart; use the
// Redis implementation to share bytecode across runs.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

// Compile-time check that CodeCache implements outbound.CodeCache
var _ outbound.CodeCache = (*CodeCache)(nil)

// CodeCache is an in-memory implementation of the CodeCache port.
type CodeCache struct {
	mu    sync.RWMutex
	codes map[string][]byte
}

// NewCodeCache creates a new in-memory code cache.
func NewCodeCache() *CodeCache {
	return &CodeCache{
		codes: make(map[string][]byte),
	}
}

func (c *CodeCache) key(chainID entity.ChainID, account common.Address) string {
	return fmt.Sprintf("%d:%s", uint64(chainID), strings.ToLower(account.Hex()))
}

// Get returns a copy of the cached code.
func (c *CodeCache) Get(_ context.Context, chainID entity.ChainID, account common.Address) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	code, ok := c.codes[c.key(chainID, account)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), code...), true, nil
}

// Set stores a copy of code.
func (c *CodeCache) Set(_ context.Context, chainID entity.ChainID, account common.Address, code []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[c.key(chainID, account)] = append([]byte(nil), code...)
	return nil
}

// Len returns the number of cached entries.
func (c *CodeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.codes)
}

func (c *CodeCache) Close() error {
	return nil
}
