package testutil

import (
	"io"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// DiscardLogger returns an slog.Logger that writes to io.Discard.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Address returns the address whose numeric value is n.
func Address(n int64) entity.Address {
	return entity.AddressFromCommon(common.BigToAddress(big.NewInt(n)))
}
