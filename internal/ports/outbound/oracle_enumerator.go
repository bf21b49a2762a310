package outbound

import (
	"context"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// OracleCandidate is an oracle address in use by at least one market.
type OracleCandidate struct {
	ChainID entity.ChainID
	Address entity.Address
}

// OracleEnumerator lists candidate oracle addresses across all chains.
// A failure here is fatal to the run.
type OracleEnumerator interface {
	ListOracles(ctx context.Context) ([]OracleCandidate, error)
}
