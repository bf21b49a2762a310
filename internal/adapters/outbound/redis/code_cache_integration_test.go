//go:build integration

package redis

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// setupRedis creates a Redis container and returns a connected CodeCache.
func setupRedis(t *testing.T, ttl time.Duration) (*CodeCache, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cache, err := NewCodeCache(Config{
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
		TTL:       ttl,
		KeyPrefix: "test",
	}, nil)
	if err != nil {
		t.Fatalf("failed to create code cache: %v", err)
	}

	// Wait for connection
	for i := 0; i < 30; i++ {
		if err := cache.Ping(ctx); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	cleanup := func() {
		cache.Close()
		container.Terminate(ctx)
	}

	return cache, cleanup
}

func TestCodeCache_SetAndGet_RoundTrip(t *testing.T) {
	cache, cleanup := setupRedis(t, time.Hour)
	defer cleanup()

	ctx := context.Background()
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	code := []byte{0x60, 0x80, 0x60, 0x40}

	if err := cache.Set(ctx, entity.ChainMainnet, account, code); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := cache.Get(ctx, entity.ChainMainnet, account)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || !bytes.Equal(got, code) {
		t.Errorf("Get = %x, %v; want %x, true", got, ok, code)
	}

	// Same address on another chain is a separate entry.
	if _, ok, _ := cache.Get(ctx, entity.ChainBase, account); ok {
		t.Error("expected miss on another chain")
	}
}

func TestCodeCache_TTLExpiry(t *testing.T) {
	cache, cleanup := setupRedis(t, time.Second)
	defer cleanup()

	ctx := context.Background()
	account := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if err := cache.Set(ctx, entity.ChainMainnet, account, []byte{0x01}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(2 * time.Second)

	if _, ok, err := cache.Get(ctx, entity.ChainMainnet, account); err != nil || ok {
		t.Errorf("Get after TTL = %v, %v; want miss", ok, err)
	}
}
