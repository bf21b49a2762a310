// Package main applies the Postgres store schema. Migrations are embedded;
// -dir reads them from disk instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/archon-research/stl/oracle-scanner/db"
	"github.com/archon-research/stl/oracle-scanner/db/migrator"
	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/postgres"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/env"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	if err := run(context.Background(), os.Args[1:]); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbURL := fs.String("db", "", "PostgreSQL connection URL")
	dir := fs.String("dir", "", "Read migrations from this directory instead of the embedded set")
	status := fs.Bool("status", false, "Report applied, pending and modified migrations without applying")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbURL == "" {
		*dbURL = env.Get("DATABASE_URL", "")
	}
	if *dbURL == "" {
		return fmt.Errorf("database URL not provided (use -db flag or DATABASE_URL env var)")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(*dbURL))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	m := migrator.New(pool, db.Migrations(), logger)
	if *dir != "" {
		m = migrator.NewFromDir(pool, *dir, logger)
	}
	if *status {
		return reportStatus(ctx, m, logger)
	}
	if err := m.ApplyAll(ctx); err != nil {
		return err
	}

	logger.Info("all migrations up to date")
	return nil
}

func reportStatus(ctx context.Context, m *migrator.Migrator, logger *slog.Logger) error {
	statuses, err := m.Status(ctx)
	if err != nil {
		return err
	}
	pending := 0
	for _, st := range statuses {
		state := "pending"
		switch {
		case st.Modified:
			state = "modified"
		case st.Applied:
			state = "applied"
		default:
			pending++
		}
		logger.Info("migration", "file", st.Filename, "state", state)
	}
	logger.Info("migration status", "total", len(statuses), "pending", pending)
	return nil
}
