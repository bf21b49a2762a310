package outbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// Blob names shared by every BlobStore implementation.
const (
	StateBlobName    = "_state.json"
	MetadataBlobName = "meta.json"
)

// ErrStateNotFound is returned by LoadState when no run has been committed yet.
var ErrStateNotFound = errors.New("state not found")

// OutputBlobName returns the name of the per-chain oracle document.
func OutputBlobName(chainID entity.ChainID) string {
	return fmt.Sprintf("oracles.%d.json", uint64(chainID))
}

// Snapshot is everything a run persists, already serialised.
type Snapshot struct {
	State    []byte
	Metadata []byte
	Outputs  map[entity.ChainID][]byte
}

// Blobs returns the snapshot keyed by blob name.
func (s Snapshot) Blobs() map[string][]byte {
	blobs := make(map[string][]byte, len(s.Outputs)+2)
	blobs[StateBlobName] = s.State
	blobs[MetadataBlobName] = s.Metadata
	for chainID, data := range s.Outputs {
		blobs[OutputBlobName(chainID)] = data
	}
	return blobs
}

// BlobStore persists the registry and output documents.
type BlobStore interface {
	// LoadState returns the last committed _state.json, or ErrStateNotFound.
	LoadState(ctx context.Context) ([]byte, error)

	// Commit writes every blob of the snapshot so that readers observe
	// either the previous run or this one, never a mix.
	Commit(ctx context.Context, snapshot Snapshot) error

	Close() error
}
