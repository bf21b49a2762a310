package postgres

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

var _ outbound.BlobStore = (*BlobStore)(nil)

// BlobStore keeps the current blobs in scanner_blobs and an audit row per
// run in scanner_runs. A commit replaces every blob in one transaction.
type BlobStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewBlobStore wraps an open pool. The schema comes from db/migrations.
func NewBlobStore(pool *pgxpool.Pool, logger *slog.Logger) (*BlobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobStore{
		pool:   pool,
		logger: logger.With("component", "postgres-blob-store"),
	}, nil
}

// LoadState returns the committed _state.json.
func (s *BlobStore) LoadState(ctx context.Context) ([]byte, error) {
	var content []byte
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM scanner_blobs WHERE name = $1`,
		outbound.StateBlobName,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, outbound.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return content, nil
}

// Commit records the run and upserts every blob, then removes blobs the run
// did not produce. Everything happens in a single transaction.
func (s *BlobStore) Commit(ctx context.Context, snapshot outbound.Snapshot) error {
	blobs := snapshot.Blobs()
	names := make([]string, 0, len(blobs))
	for name := range blobs {
		names = append(names, name)
	}
	slices.Sort(names)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx, s.logger)

	var runID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO scanner_runs (blob_count, state_sha256) VALUES ($1, $2) RETURNING id`,
		len(names), fmt.Sprintf("%x", sha256.Sum256(snapshot.State)),
	).Scan(&runID)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, name := range names {
		batch.Queue(
			`INSERT INTO scanner_blobs (name, content, run_id, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (name) DO UPDATE
			 SET content = EXCLUDED.content, run_id = EXCLUDED.run_id, updated_at = EXCLUDED.updated_at`,
			name, blobs[name], runID,
		)
	}
	batch.Queue(`DELETE FROM scanner_blobs WHERE run_id <> $1`, runID)

	br := tx.SendBatch(ctx, batch)
	for _, name := range names {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to save blob %s: %w", name, err)
		}
	}
	if _, err := br.Exec(); err != nil {
		br.Close()
		return fmt.Errorf("failed to remove stale blobs: %w", err)
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("committed run", "run", runID, "blobs", len(names))
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *BlobStore) Close() error {
	return nil
}

func rollbackTx(ctx context.Context, tx pgx.Tx, logger *slog.Logger) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Error("failed to rollback transaction", "error", err)
	}
}
