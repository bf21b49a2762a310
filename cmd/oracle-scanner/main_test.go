package main

import (
	"bytes"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/bytecode"
	"github.com/archon-research/stl/oracle-scanner/internal/services/oracle_scanner"
)

// scannerEnv lists every variable parseFlags reads, so each case starts clean.
var scannerEnv = []string{
	"FORCE_RESCAN", "STORE", "STATE_DIR", "S3_BUCKET", "S3_PREFIX", "DATABASE_URL",
	"BADGER_DIR", "REDIS_ADDR", "BYTECODE_WORKERS", "LOG_PER_ORACLE", "RESCAN_INTERVAL",
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		envVars   map[string]string
		check     func(t *testing.T, cfg cliConfig)
		wantError string
	}{
		{
			name: "defaults",
			args: []string{},
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.store != storeFS || cfg.stateDir != "./data" {
					t.Errorf("store = %s dir = %s", cfg.store, cfg.stateDir)
				}
				if !slices.Equal(cfg.chains, entity.SupportedChains) {
					t.Errorf("chains = %v", cfg.chains)
				}
				if cfg.bytecodeWorkers != 1 || cfg.rescanInterval != 24*time.Hour || cfg.forceRescan {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name: "all flags provided via CLI",
			args: []string{
				"-force-rescan", "-chains", "base,1,base", "-store", "badger", "-badger-dir", "/tmp/b",
				"-redis-addr", "localhost:6379", "-bytecode-workers", "8", "-chain-concurrency", "2",
				"-rescan-interval", "6h", "-templates", "t.json", "-verbose",
			},
			check: func(t *testing.T, cfg cliConfig) {
				if !cfg.forceRescan || !cfg.verbose {
					t.Error("boolean flags not set")
				}
				if !slices.Equal(cfg.chains, []entity.ChainID{entity.ChainBase, entity.ChainMainnet}) {
					t.Errorf("chains = %v", cfg.chains)
				}
				if cfg.store != storeBadger || cfg.badgerDir != "/tmp/b" || cfg.redisAddr != "localhost:6379" {
					t.Errorf("cfg = %+v", cfg)
				}
				if cfg.bytecodeWorkers != 8 || cfg.chainConcurrency != 2 || cfg.rescanInterval != 6*time.Hour {
					t.Errorf("cfg = %+v", cfg)
				}
				if cfg.templatesPath != "t.json" {
					t.Errorf("templatesPath = %s", cfg.templatesPath)
				}
			},
		},
		{
			name: "store and options from env vars",
			envVars: map[string]string{
				"STORE":            "s3",
				"S3_BUCKET":        "oracles",
				"S3_PREFIX":        "prod",
				"FORCE_RESCAN":     "1",
				"REDIS_ADDR":       "redis:6379",
				"BYTECODE_WORKERS": "2",
				"LOG_PER_ORACLE":   "1",
			},
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.store != storeS3 || cfg.s3Bucket != "oracles" || cfg.s3Prefix != "prod" {
					t.Errorf("cfg = %+v", cfg)
				}
				if !cfg.forceRescan || !cfg.logPerOracle || cfg.redisAddr != "redis:6379" || cfg.bytecodeWorkers != 2 {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name:    "postgres from env var",
			args:    []string{"-store", "postgres"},
			envVars: map[string]string{"DATABASE_URL": "postgres://localhost/env-db"},
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.dbURL != "postgres://localhost/env-db" {
					t.Errorf("dbURL = %s", cfg.dbURL)
				}
			},
		},
		{
			name:    "CLI flag takes precedence over env var",
			args:    []string{"-store", "postgres", "-db", "postgres://localhost/cli-db"},
			envVars: map[string]string{"DATABASE_URL": "postgres://localhost/env-db"},
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.dbURL != "postgres://localhost/cli-db" {
					t.Errorf("dbURL = %s", cfg.dbURL)
				}
			},
		},
		{
			name:      "missing database URL",
			args:      []string{"-store", "postgres"},
			wantError: "database URL not provided",
		},
		{
			name:      "missing S3 bucket",
			args:      []string{"-store", "s3"},
			wantError: "S3 bucket not provided",
		},
		{
			name:      "unknown store",
			args:      []string{"-store", "gcs"},
			wantError: "unknown store",
		},
		{
			name:      "unknown chain",
			args:      []string{"-chains", "mainnet,solana"},
			wantError: "unknown chain",
		},
		{
			name:      "unsupported numeric chain",
			args:      []string{"-chains", "56"},
			wantError: "unsupported chain id",
		},
		{
			name:      "non-positive rescan interval",
			args:      []string{"-rescan-interval", "0s"},
			wantError: "rescan interval must be positive",
		},
		{
			name:    "rescan interval from env var",
			envVars: map[string]string{"RESCAN_INTERVAL": "12h", "FORCE_RESCAN": "true"},
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.rescanInterval != 12*time.Hour || !cfg.forceRescan {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name:    "rescan interval flag beats env var",
			args:    []string{"-rescan-interval", "1h", "-bytecode-workers", "1"},
			envVars: map[string]string{"RESCAN_INTERVAL": "12h", "BYTECODE_WORKERS": "9"},
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.rescanInterval != time.Hour || cfg.bytecodeWorkers != 1 {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name:      "zero workers flag",
			args:      []string{"-bytecode-workers", "0"},
			wantError: "bytecode workers must be positive",
		},
		{
			name:      "invalid rescan interval env var",
			envVars:   map[string]string{"RESCAN_INTERVAL": "daily"},
			wantError: "invalid RESCAN_INTERVAL",
		},
		{
			name:      "invalid worker count",
			envVars:   map[string]string{"BYTECODE_WORKERS": "many"},
			wantError: "invalid BYTECODE_WORKERS",
		},
		{
			name:      "invalid flag",
			args:      []string{"--nonexistent"},
			wantError: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range scannerEnv {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := parseFlags(tt.args)

			if tt.wantError != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantError)
				}
				if !strings.Contains(err.Error(), tt.wantError) {
					t.Fatalf("expected error containing %q, got %q", tt.wantError, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestRunSummary(t *testing.T) {
	result := &oracle_scanner.RunResult{
		GeneratedAt: time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC),
		Chains: map[entity.ChainID]entity.ChainSummary{
			entity.ChainMainnet: {OracleCount: 4, StandardCount: 2, MetaCount: 1, UnknownCount: 1, UpgradableCount: 1},
		},
		FeedsMatched: map[entity.ChainID]map[entity.FeedProvider]int{
			entity.ChainMainnet: {entity.ProviderChainlink: 3},
		},
		Duration: 90 * time.Second,
	}

	families, err := runSummary(result).Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if families != 5 {
		t.Errorf("expected 5 metric families, got %d", families)
	}
}

func TestWarnUnconfiguredTemplates(t *testing.T) {
	embedded, err := bytecode.DefaultTemplates()
	if err != nil {
		t.Fatalf("DefaultTemplates: %v", err)
	}
	complete, err := bytecode.NewTemplateSet(
		bytecode.Template{ID: bytecode.TemplateMorphoChainlinkOracleV1, Mask: bytecode.Mask{Common: "0xaa00"}},
		bytecode.Template{ID: bytecode.TemplateMorphoChainlinkOracleV2, Mask: bytecode.Mask{Common: "0xbb00"}},
		bytecode.Template{ID: bytecode.TemplatePendleLinearDiscountFeed, Normalize: true, Mask: bytecode.Mask{Common: "0xcc00", Fill: 0xff}},
	)
	if err != nil {
		t.Fatalf("NewTemplateSet: %v", err)
	}
	partial, err := bytecode.NewTemplateSet(
		bytecode.Template{ID: bytecode.TemplateMorphoChainlinkOracleV2, Mask: bytecode.Mask{Common: "0xbb00"}},
	)
	if err != nil {
		t.Fatalf("NewTemplateSet: %v", err)
	}

	tests := []struct {
		name     string
		set      *bytecode.TemplateSet
		wantWarn bool
		wantIDs  []string
	}{
		{
			name:     "embedded templates ship without canonical bytecode",
			set:      embedded,
			wantWarn: true,
			wantIDs: []string{
				bytecode.TemplateMorphoChainlinkOracleV1,
				bytecode.TemplateMorphoChainlinkOracleV2,
				bytecode.TemplatePendleLinearDiscountFeed,
			},
		},
		{
			name:     "missing v1",
			set:      partial,
			wantWarn: true,
			wantIDs:  []string{bytecode.TemplateMorphoChainlinkOracleV1, bytecode.TemplatePendleLinearDiscountFeed},
		},
		{
			name: "all configured",
			set:  complete,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			got := warnUnconfiguredTemplates(tt.set, logger)

			if !slices.Equal(got, tt.wantIDs) {
				t.Errorf("missing = %v, want %v", got, tt.wantIDs)
			}
			if warned := strings.Contains(buf.String(), "level=WARN"); warned != tt.wantWarn {
				t.Errorf("warned = %v, want %v; log: %s", warned, tt.wantWarn, buf.String())
			}
		})
	}
}
