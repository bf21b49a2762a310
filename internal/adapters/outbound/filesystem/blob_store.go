// Package filesystem provides a local-directory BlobStore.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

const (
	runsDir     = "runs"
	currentLink = "current"
)

var _ outbound.BlobStore = (*BlobStore)(nil)

// Config configures the filesystem store.
type Config struct {
	// Dir is the root directory. Committed blobs are readable at
	// <Dir>/current/<blob>.
	Dir string

	// Retain is how many committed runs are kept on disk, current included.
	// Default: 3
	Retain int

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		Retain: 3,
		Logger: slog.Default(),
	}
}

// BlobStore writes every run into its own directory under runs/ and then
// atomically repoints the current symlink at it.
type BlobStore struct {
	dir    string
	retain int
	logger *slog.Logger
	now    func() time.Time
}

// NewBlobStore creates the root directory if needed.
func NewBlobStore(cfg Config) (*BlobStore, error) {
	defaults := ConfigDefaults()
	if cfg.Dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if cfg.Retain <= 0 {
		cfg.Retain = defaults.Retain
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}

	if err := os.MkdirAll(filepath.Join(cfg.Dir, runsDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	return &BlobStore{
		dir:    cfg.Dir,
		retain: cfg.Retain,
		logger: cfg.Logger.With("component", "fs-blob-store"),
		now:    time.Now,
	}, nil
}

// LoadState reads _state.json from the current run.
func (s *BlobStore) LoadState(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, currentLink, outbound.StateBlobName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, outbound.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}
	return data, nil
}

// Commit writes the snapshot into a fresh run directory and swaps the
// current symlink. A crash before the swap leaves the previous run current.
// A commit that fails before the swap removes its run directory.
func (s *BlobStore) Commit(ctx context.Context, snapshot outbound.Snapshot) (err error) {
	runPath, err := os.MkdirTemp(filepath.Join(s.dir, runsDir), s.now().UTC().Format("20060102T150405Z")+"-")
	if err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rmErr := os.RemoveAll(runPath); rmErr != nil {
			s.logger.Warn("failed to remove partial run", "run", filepath.Base(runPath), "error", rmErr)
		}
	}()

	blobs := snapshot.Blobs()
	for name, data := range blobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFileSync(filepath.Join(runPath, name), data); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}

	runName := filepath.Base(runPath)
	if err := s.swapCurrent(runName); err != nil {
		return err
	}

	s.logger.Info("committed run", "run", runName, "blobs", len(blobs))

	if err := s.prune(runName); err != nil {
		s.logger.Warn("failed to prune old runs", "error", err)
	}
	return nil
}

func (s *BlobStore) swapCurrent(runName string) error {
	target := filepath.Join(runsDir, runName)
	tmp := filepath.Join(s.dir, currentLink+".tmp")

	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("creating current link: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, currentLink)); err != nil {
		return fmt.Errorf("swapping current link: %w", err)
	}
	return nil
}

// prune removes the oldest runs beyond the retention limit, never the
// current one.
func (s *BlobStore) prune(current string) error {
	entries, err := os.ReadDir(filepath.Join(s.dir, runsDir))
	if err != nil {
		return err
	}

	var runs []string
	for _, e := range entries {
		if e.IsDir() {
			runs = append(runs, e.Name())
		}
	}
	slices.Sort(runs)

	if len(runs) <= s.retain {
		return nil
	}
	var errs []error
	for _, name := range runs[:len(runs)-s.retain] {
		if name == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, runsDir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op.
func (s *BlobStore) Close() error {
	return nil
}

// CurrentRun returns the run directory the current link points at.
func (s *BlobStore) CurrentRun() (string, error) {
	target, err := os.Readlink(filepath.Join(s.dir, currentLink))
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(target, runsDir+string(filepath.Separator)), nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
