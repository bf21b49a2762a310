package main

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/badger"
	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/chainreader"
	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/filesystem"
	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/memory"
	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/postgres"
	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/redis"
	s3store "github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/s3"
	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain/multicall"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/env"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/services/oracle_scanner"
)

// openStore opens the configured blob store. The returned func releases it
// and anything it holds open.
func openStore(ctx context.Context, cfg cliConfig, logger *slog.Logger) (outbound.BlobStore, func(), error) {
	closeWith := func(store outbound.BlobStore, extra func()) func() {
		return func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing store failed", "error", err)
			}
			if extra != nil {
				extra()
			}
		}
	}

	switch cfg.store {
	case storeS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(env.Get("AWS_REGION", "eu-west-1")),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("loading AWS config: %w", err)
		}
		storeCfg := s3store.ConfigDefaults()
		storeCfg.Bucket = cfg.s3Bucket
		storeCfg.Prefix = cfg.s3Prefix
		storeCfg.Gzip = env.GetBool("S3_GZIP")
		storeCfg.Endpoint = env.Get("AWS_S3_ENDPOINT", "")
		storeCfg.Logger = logger
		store, err := s3store.NewBlobStore(awsCfg, storeCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("creating S3 store: %w", err)
		}
		logger.Info("using S3 store", "bucket", storeCfg.Bucket, "prefix", storeCfg.Prefix)
		return store, closeWith(store, nil), nil

	case storePostgres:
		pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(cfg.dbURL))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		store, err := postgres.NewBlobStore(pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("creating postgres store: %w", err)
		}
		logger.Info("PostgreSQL connected")
		return store, closeWith(store, pool.Close), nil

	case storeBadger:
		store, err := badger.NewBlobStore(badger.Config{Dir: cfg.badgerDir, Logger: logger})
		if err != nil {
			return nil, nil, fmt.Errorf("creating badger store: %w", err)
		}
		logger.Info("using badger store", "dir", cfg.badgerDir)
		return store, closeWith(store, nil), nil

	default:
		storeCfg := filesystem.ConfigDefaults()
		storeCfg.Dir = cfg.stateDir
		storeCfg.Logger = logger
		store, err := filesystem.NewBlobStore(storeCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("creating filesystem store: %w", err)
		}
		logger.Info("using filesystem store", "dir", cfg.stateDir)
		return store, closeWith(store, nil), nil
	}
}

// openCodeCache returns a Redis cache when an address is configured and an
// in-process cache otherwise.
func openCodeCache(ctx context.Context, cfg cliConfig, logger *slog.Logger) (outbound.CodeCache, error) {
	if cfg.redisAddr == "" {
		return memory.NewCodeCache(), nil
	}

	cacheCfg := redis.ConfigDefaults()
	cacheCfg.Addr = cfg.redisAddr
	cacheCfg.Password = env.Get("REDIS_PASSWORD", "")
	cache, err := redis.NewCodeCache(cacheCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating redis code cache: %w", err)
	}
	if err := cache.Ping(ctx); err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	logger.Info("connected to Redis", "addr", cfg.redisAddr)
	return cache, nil
}

// dialChains connects to every selected chain's RPC endpoint and builds its
// readers. Chains without a network entry are rejected.
func dialChains(ctx context.Context, chainIDs []entity.ChainID, cache outbound.CodeCache, logger *slog.Logger) ([]oracle_scanner.ChainDeps, func(), error) {
	var clients []*rpc.Client
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	deps := make([]oracle_scanner.ChainDeps, 0, len(chainIDs))
	for _, chainID := range chainIDs {
		network, ok := blockchain.GetNetworkConfig(chainID)
		if !ok {
			closeAll()
			return nil, nil, fmt.Errorf("no network configuration for chain %s", chainID)
		}

		rpcClient, err := rpc.DialContext(ctx, network.RPCURL())
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connecting to %s RPC: %w", chainID, err)
		}
		clients = append(clients, rpcClient)
		ethClient := ethclient.NewClient(rpcClient)

		var mc outbound.Multicaller
		if network.Multicall == (common.Address{}) {
			mc = multicall.NewDirectCaller(rpcClient)
		} else {
			mc, err = multicall.NewClient(ethClient, network.Multicall)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("creating %s multicall client: %w", chainID, err)
			}
		}

		factories, err := network.MetaOracleFactories()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("parsing %s: %w", network.MetaOracleFactoriesEnv, err)
		}

		deps = append(deps, oracle_scanner.ChainDeps{
			ChainID:             chainID,
			Multicaller:         mc,
			Code:                chainreader.NewCachedReader(chainreader.NewReader(ethClient), cache, chainID, logger),
			MorphoFactory:       network.MorphoOracleV2Factory,
			MetaOracleFactories: factories,
		})
		logger.Info("chain connected",
			"chain", chainID,
			"morphoFactory", network.HasMorphoFactory(),
			"metaOracleFactories", len(factories))
	}
	return deps, closeAll, nil
}
