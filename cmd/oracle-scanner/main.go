// Package main runs one oracle scan: it enumerates Morpho market oracles,
// classifies them on every configured chain, and commits the registry and
// the published documents to the selected store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/etherscan"
	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/feedregistry"
	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/morpho"
	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/telemetry"
	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/bytecode"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/env"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/httpclient"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/services/oracle_scanner"
	"github.com/archon-research/stl/oracle-scanner/internal/services/shared"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load environment
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

const (
	storeFS       = "fs"
	storeS3       = "s3"
	storePostgres = "postgres"
	storeBadger   = "badger"
)

type cliConfig struct {
	forceRescan      bool
	chains           []entity.ChainID
	store            string
	stateDir         string
	s3Bucket         string
	s3Prefix         string
	dbURL            string
	badgerDir        string
	redisAddr        string
	bytecodeWorkers  int
	chainConcurrency int
	rescanInterval   time.Duration
	templatesPath    string
	verbose          bool
	logPerOracle     bool
}

func parseFlags(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("oracle-scanner", flag.ContinueOnError)
	forceRescan := fs.Bool("force-rescan", false, "Re-classify every candidate and re-probe every proxy")
	chains := fs.String("chains", "", "Comma-separated chain names or IDs (default: all supported)")
	store := fs.String("store", "", "Blob store: fs, s3, postgres or badger (default: fs)")
	stateDir := fs.String("state-dir", "", "State directory for the fs store")
	s3Bucket := fs.String("s3-bucket", "", "S3 bucket for the s3 store")
	s3Prefix := fs.String("s3-prefix", "", "Key prefix for the s3 store")
	dbURL := fs.String("db", "", "PostgreSQL connection URL for the postgres store")
	badgerDir := fs.String("badger-dir", "", "Database directory for the badger store")
	redisAddr := fs.String("redis-addr", "", "Redis address for the bytecode cache (default: in-memory)")
	bytecodeWorkers := fs.Int("bytecode-workers", 0, "Concurrent eth_getCode reads per chain")
	chainConcurrency := fs.Int("chain-concurrency", 0, "Chains scanned at once")
	rescanInterval := fs.Duration("rescan-interval", 24*time.Hour, "Staleness bound of a proxy implementation")
	templatesPath := fs.String("templates", "", "Template JSON file (default: embedded templates)")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg := cliConfig{
		forceRescan:      *forceRescan || env.GetBool("FORCE_RESCAN"),
		store:            *store,
		stateDir:         *stateDir,
		s3Bucket:         *s3Bucket,
		s3Prefix:         *s3Prefix,
		dbURL:            *dbURL,
		badgerDir:        *badgerDir,
		redisAddr:        *redisAddr,
		bytecodeWorkers:  *bytecodeWorkers,
		chainConcurrency: *chainConcurrency,
		rescanInterval:   *rescanInterval,
		templatesPath:    *templatesPath,
		verbose:          *verbose,
		logPerOracle:     env.GetBool("LOG_PER_ORACLE"),
	}

	if cfg.store == "" {
		cfg.store = env.Get("STORE", storeFS)
	}
	switch cfg.store {
	case storeFS:
		if cfg.stateDir == "" {
			cfg.stateDir = env.Get("STATE_DIR", "./data")
		}
	case storeS3:
		if cfg.s3Bucket == "" {
			cfg.s3Bucket = env.Get("S3_BUCKET", "")
		}
		if cfg.s3Bucket == "" {
			return cliConfig{}, fmt.Errorf("S3 bucket not provided (use -s3-bucket flag or S3_BUCKET env var)")
		}
		if cfg.s3Prefix == "" {
			cfg.s3Prefix = env.Get("S3_PREFIX", "")
		}
	case storePostgres:
		if cfg.dbURL == "" {
			cfg.dbURL = env.Get("DATABASE_URL", "")
		}
		if cfg.dbURL == "" {
			return cliConfig{}, fmt.Errorf("database URL not provided (use -db flag or DATABASE_URL env var)")
		}
	case storeBadger:
		if cfg.badgerDir == "" {
			cfg.badgerDir = env.Get("BADGER_DIR", "./data/badger")
		}
	default:
		return cliConfig{}, fmt.Errorf("unknown store %q (want fs, s3, postgres or badger)", cfg.store)
	}

	if cfg.redisAddr == "" {
		cfg.redisAddr = env.Get("REDIS_ADDR", "")
	}

	if !explicit["bytecode-workers"] {
		n, err := env.GetInt("BYTECODE_WORKERS", 1)
		if err != nil {
			return cliConfig{}, err
		}
		cfg.bytecodeWorkers = n
	}
	if !explicit["rescan-interval"] {
		d, err := env.GetDuration("RESCAN_INTERVAL", cfg.rescanInterval)
		if err != nil {
			return cliConfig{}, err
		}
		cfg.rescanInterval = d
	}
	if cfg.bytecodeWorkers < 1 {
		return cliConfig{}, fmt.Errorf("bytecode workers must be positive, got %d", cfg.bytecodeWorkers)
	}
	if cfg.chainConcurrency < 0 {
		return cliConfig{}, fmt.Errorf("chain concurrency must not be negative, got %d", cfg.chainConcurrency)
	}
	if cfg.rescanInterval <= 0 {
		return cliConfig{}, fmt.Errorf("rescan interval must be positive, got %s", cfg.rescanInterval)
	}

	parsed, err := entity.ParseChainList(*chains)
	if err != nil {
		return cliConfig{}, fmt.Errorf("invalid -chains: %w", err)
	}
	cfg.chains = parsed

	return cfg, nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	level := env.ParseLogLevel(slog.LevelInfo)
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	gitSHA := env.Get("GIT_SHA", "")
	otlpEndpoint := env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	environment := env.Get("ENVIRONMENT", "development")

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "oracle-scanner",
		ServiceVersion: gitSHA,
		Environment:    environment,
		Chains:         cfg.chains,
		OTLPEndpoint:   otlpEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:    "oracle-scanner",
		ServiceVersion: gitSHA,
		Environment:    environment,
		Chains:         cfg.chains,
		OTLPEndpoint:   otlpEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer flushCancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			logger.Warn("flushing metrics failed", "error", err)
		}
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("flushing traces failed", "error", err)
		}
	}()

	appTelemetry, err := shared.NewAppTelemetry()
	if err != nil {
		return fmt.Errorf("creating telemetry: %w", err)
	}

	templates, err := loadTemplates(cfg.templatesPath)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	codeCache, err := openCodeCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := codeCache.Close(); err != nil {
			logger.Warn("closing code cache failed", "error", err)
		}
	}()

	chains, closeChains, err := dialChains(ctx, cfg.chains, codeCache, logger)
	if err != nil {
		return err
	}
	defer closeChains()

	explorer, err := etherscan.NewClient(etherscan.ClientConfig{
		APIKey: env.Get("ETHERSCAN_API_KEY", ""),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating etherscan client: %w", err)
	}
	if !explorer.Enabled() {
		logger.Warn("ETHERSCAN_API_KEY not set, meta-oracle discovery and explorer proxy lookups are disabled")
	}

	enumerator := morpho.NewClient(morpho.ClientConfig{Logger: logger})

	feedHTTP := httpclient.NewClient(httpclient.DefaultConfig(), logger.With("component", "feed-registry"), nil)
	registries := append([]outbound.FeedRegistry{
		feedregistry.NewChainlinkRegistry(feedHTTP, env.Get("CHAINLINK_FEEDS_URL", ""), logger),
		feedregistry.NewRedstoneRegistry(feedHTTP, env.Get("REDSTONE_FEEDS_URL", ""), logger),
	}, feedregistry.HardcodedRegistries()...)

	service, err := oracle_scanner.NewService(oracle_scanner.Config{
		Chains:           chains,
		Enumerator:       enumerator,
		Logs:             explorer,
		ProxyMetadata:    explorer,
		FeedRegistries:   registries,
		Store:            store,
		Templates:        templates,
		Metrics:          appTelemetry,
		ChainConcurrency: cfg.chainConcurrency,
		BytecodeWorkers:  cfg.bytecodeWorkers,
		RescanInterval:   cfg.rescanInterval,
		GitSHA:           gitSHA,
		LogPerOracle:     cfg.logPerOracle,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	warnUnconfiguredTemplates(templates, logger)

	logger.Info("starting oracle scan",
		"chains", len(chains),
		"store", cfg.store,
		"forceRescan", cfg.forceRescan,
		"templates", templates.Configured())

	result, err := service.Run(ctx, oracle_scanner.RunOptions{ForceRescan: cfg.forceRescan})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	summary := runSummary(result)
	if err := summary.Push(ctx, telemetry.PushConfig{
		URL:    env.Get("PUSHGATEWAY_URL", ""),
		Logger: logger,
	}); err != nil {
		logger.Warn("pushing run summary failed", "error", err)
	}

	logger.Info("scan committed",
		"chains", len(result.Chains),
		"implementationChanges", result.ImplementationChanges,
		"duration", result.Duration)
	return nil
}

// warnUnconfiguredTemplates reports templates without canonical bytecode.
// Without V1 or V2 data only factory-confirmed oracles are classified as
// standard. It returns the missing IDs.
func warnUnconfiguredTemplates(templates *bytecode.TemplateSet, logger *slog.Logger) []string {
	missing := templates.Unconfigured()
	if len(missing) > 0 {
		logger.Warn("templates have no canonical bytecode and will never match, generate them with cmd/generate-mask",
			"templates", missing)
	}
	return missing
}

func loadTemplates(path string) (*bytecode.TemplateSet, error) {
	if path == "" {
		templates, err := bytecode.DefaultTemplates()
		if err != nil {
			return nil, fmt.Errorf("loading embedded templates: %w", err)
		}
		return templates, nil
	}
	templates, err := bytecode.LoadTemplateFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading templates from %s: %w", path, err)
	}
	return templates, nil
}

// runSummary converts a committed run into the Pushgateway gauges.
func runSummary(result *oracle_scanner.RunResult) *telemetry.RunSummary {
	summary := telemetry.NewRunSummary()
	for chainID, s := range result.Chains {
		id := uint64(chainID)
		summary.SetOracleCount(id, string(entity.OracleTypeStandard), s.StandardCount)
		summary.SetOracleCount(id, string(entity.OracleTypeMeta), s.MetaCount)
		summary.SetOracleCount(id, string(entity.OracleTypeCustom), s.CustomCount)
		summary.SetOracleCount(id, string(entity.OracleTypeUnknown), s.UnknownCount)
		summary.SetUpgradable(id, s.UpgradableCount)
	}
	for chainID, providers := range result.FeedsMatched {
		for provider, n := range providers {
			summary.SetFeedsMatched(uint64(chainID), string(provider), n)
		}
	}
	summary.MarkSuccess(result.GeneratedAt, result.Duration)
	return summary
}
