// Package badger provides an embedded BlobStore backed by BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

const blobPrefix = "blob/"

var _ outbound.BlobStore = (*BlobStore)(nil)

// Config configures the Badger store.
type Config struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory runs Badger without touching disk, for tests.
	InMemory bool

	Logger *slog.Logger
}

// BlobStore keeps every blob under blob/<name> and replaces the whole set
// in a single read-write transaction.
type BlobStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBlobStore opens the database with sync writes enabled.
func NewBlobStore(cfg Config) (*BlobStore, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(!cfg.InMemory)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &BlobStore{
		db:     db,
		logger: cfg.Logger.With("component", "badger-blob-store"),
	}, nil
}

// LoadState returns the committed _state.json.
func (s *BlobStore) LoadState(_ context.Context) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blobPrefix + outbound.StateBlobName))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, outbound.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return data, nil
}

// Get returns any committed blob by name.
func (s *BlobStore) Get(name string) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blobPrefix + name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Names lists the committed blob names.
func (s *BlobStore) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(blobPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), blobPrefix))
		}
		return nil
	})
	return names, err
}

// Commit deletes blobs the snapshot no longer contains and writes the rest,
// all inside one transaction.
func (s *BlobStore) Commit(ctx context.Context, snapshot outbound.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	blobs := snapshot.Blobs()
	existing, err := s.Names()
	if err != nil {
		return fmt.Errorf("listing blobs: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, name := range existing {
			if _, keep := blobs[name]; keep {
				continue
			}
			if err := txn.Delete([]byte(blobPrefix + name)); err != nil {
				return fmt.Errorf("deleting %s: %w", name, err)
			}
		}
		for name, data := range blobs {
			if err := txn.Set([]byte(blobPrefix+name), data); err != nil {
				return fmt.Errorf("writing %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Info("committed run", "blobs", len(blobs))
	return nil
}

// Close closes the BadgerDB connection.
func (s *BlobStore) Close() error {
	return s.db.Close()
}
