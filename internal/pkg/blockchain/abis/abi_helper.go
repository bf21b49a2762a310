// Package abis holds the contract ABIs the scanner packs calls for and
// decodes events with.
package abis

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var parsed sync.Map // ABI JSON -> *abi.ABI

// ParseABI parses abiJSON once per process. Every chain pipeline builds its
// own resolver and enricher, so the same definitions are requested once per
// chain. The returned ABI is shared and must not be modified.
func ParseABI(abiJSON string) (*abi.ABI, error) {
	if cached, ok := parsed.Load(abiJSON); ok {
		return cached.(*abi.ABI), nil
	}
	a, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}
	actual, _ := parsed.LoadOrStore(abiJSON, &a)
	return actual.(*abi.ABI), nil
}
