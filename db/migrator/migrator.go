// Package migrator applies the SQL files of db/migrations in filename order.
// Each migration inserts its own row into the migrations table; the migrator
// then records a checksum so edited migrations are detected.
package migrator

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Migrator struct {
	pool       *pgxpool.Pool
	migrations fs.FS
	logger     *slog.Logger
}

// New reads migrations from fsys, whose root holds the *.sql files.
func New(pool *pgxpool.Pool, fsys fs.FS, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		pool:       pool,
		migrations: fsys,
		logger:     logger.With("component", "migrator"),
	}
}

// NewFromDir reads migrations from a directory on disk.
func NewFromDir(pool *pgxpool.Pool, dir string, logger *slog.Logger) *Migrator {
	return New(pool, os.DirFS(dir), logger)
}

// ApplyAll applies every pending migration in filename order. It stops at the
// first applied migration whose file no longer matches its recorded checksum.
func (m *Migrator) ApplyAll(ctx context.Context) error {
	statuses, err := m.Status(ctx)
	if err != nil {
		return err
	}

	for _, st := range statuses {
		switch {
		case st.Modified:
			return fmt.Errorf("checksum verification failed for %s: migration has been modified", st.Filename)
		case st.Applied:
			continue
		}
		if err := m.applyMigration(ctx, st.Filename); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", st.Filename, err)
		}
	}
	return nil
}

// MigrationStatus describes one migration file against the database.
type MigrationStatus struct {
	Filename string
	Applied  bool

	// Modified is set for an applied migration whose file content no longer
	// matches the recorded checksum.
	Modified bool
}

// Status reports every migration file in filename order without applying
// anything.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.appliedChecksums(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	files, err := m.getMigrationFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to get migration files: %w", err)
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, filename := range files {
		st := MigrationStatus{Filename: filename}
		recorded, ok := applied[filename]
		if ok {
			st.Applied = true
			if recorded != "" {
				content, err := fs.ReadFile(m.migrations, filename)
				if err != nil {
					return nil, err
				}
				st.Modified = checksumOf(content) != recorded
			}
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// appliedChecksums maps each applied migration to its recorded checksum, or
// "" when none was recorded.
func (m *Migrator) appliedChecksums(ctx context.Context) (map[string]string, error) {
	var exists bool
	err := m.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = 'migrations'
		)`).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string]string{}, nil
	}

	rows, err := m.pool.Query(ctx, "SELECT filename, COALESCE(checksum, '') FROM migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var filename, checksum string
		if err := rows.Scan(&filename, &checksum); err != nil {
			return nil, err
		}
		applied[filename] = checksum
	}
	return applied, rows.Err()
}

func (m *Migrator) getMigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(m.migrations, ".")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasPrefix(name, "README") {
			continue
		}
		files = append(files, name)
	}
	slices.Sort(files)
	return files, nil
}

func checksumOf(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

func (m *Migrator) applyMigration(ctx context.Context, filename string) error {
	content, err := fs.ReadFile(m.migrations, filename)
	if err != nil {
		return err
	}

	checksum := checksumOf(content)

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			m.logger.Warn("failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	tag, err := tx.Exec(ctx,
		"UPDATE migrations SET checksum = $1 WHERE filename = $2",
		checksum, filename)
	if err != nil {
		return fmt.Errorf("failed to update checksum: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("migration did not register itself in the migrations table")
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	m.logger.Info("applied migration", "file", filename, "checksum", checksum[:8])
	return nil
}
