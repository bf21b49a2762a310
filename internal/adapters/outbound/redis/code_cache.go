// Package redis provides a Redis implementation of the CodeCache port.
//
// This adapter stores deployed contract bytecode in Redis so repeated runs
// skip eth_getCode for contracts already fingerprinted. It uses a key format
// of prefix:code:chainID:address.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

// Compile-time check that CodeCache implements outbound.CodeCache
var _ outbound.CodeCache = (*CodeCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long cached code lives before expiring. Zero keeps it forever.
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		TTL:       30 * 24 * time.Hour,
		KeyPrefix: "oracle-scanner",
	}
}

// CodeCache is a Redis implementation of the outbound.CodeCache port.
type CodeCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewCodeCache creates a new Redis code cache.
func NewCodeCache(cfg Config, logger *slog.Logger) (*CodeCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "redis-code-cache")

	return &CodeCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger,
	}, nil
}

// Ping checks the Redis connection.
func (c *CodeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *CodeCache) Close() error {
	return c.client.Close()
}

// key generates a cache key in the format prefix:code:chainID:address
func (c *CodeCache) key(chainID entity.ChainID, account common.Address) string {
	return fmt.Sprintf("%s:code:%d:%s", c.keyPrefix, uint64(chainID), strings.ToLower(account.Hex()))
}

// Get retrieves cached bytecode.
func (c *CodeCache) Get(ctx context.Context, chainID entity.ChainID, account common.Address) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(chainID, account)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get code: %w", err)
	}
	return data, true, nil
}

// Set caches bytecode.
func (c *CodeCache) Set(ctx context.Context, chainID entity.ChainID, account common.Address, code []byte) error {
	if err := c.client.Set(ctx, c.key(chainID, account), code, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache code: %w", err)
	}
	return nil
}
