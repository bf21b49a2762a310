package blockchain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// SlotToAddress interprets a 32-byte storage word as a right-aligned address.
// Empty words and the zero address yield "".
func SlotToAddress(word []byte) entity.Address {
	if len(word) == 0 {
		return ""
	}
	return entity.NullableAddress(common.BytesToAddress(word))
}
