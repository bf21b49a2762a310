package redis

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

func TestNewCodeCache_CreatesWithConfig(t *testing.T) {
	cfg := Config{
		Addr:      "localhost:6379",
		Password:  "secret",
		DB:        1,
		TTL:       1 * time.Hour,
		KeyPrefix: "test",
	}

	cache, err := NewCodeCache(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	if cache.ttl != cfg.TTL {
		t.Errorf("expected TTL=%v, got %v", cfg.TTL, cache.ttl)
	}
	if cache.keyPrefix != cfg.KeyPrefix {
		t.Errorf("expected keyPrefix=%s, got %s", cfg.KeyPrefix, cache.keyPrefix)
	}
	if cache.client == nil {
		t.Fatal("expected client, got nil")
	}
	if cache.logger == nil {
		t.Fatal("expected default logger to be set, got nil")
	}
}

func TestNewCodeCache_EmptyAddrReturnsError(t *testing.T) {
	_, err := NewCodeCache(Config{}, nil)
	if err == nil {
		t.Fatal("expected error for empty addr, got nil")
	}
	if !strings.Contains(err.Error(), "redis address is required") {
		t.Errorf("expected 'redis address is required' error, got %v", err)
	}
}

func TestCodeCache_KeyFormat(t *testing.T) {
	cache, err := NewCodeCache(Config{Addr: "localhost:6379", KeyPrefix: "scan"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	account := common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	got := cache.key(entity.ChainBase, account)
	want := "scan:code:8453:0xabcdef0000000000000000000000000000000001"
	if got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := ConfigDefaults()
	if cfg.Addr != "localhost:6379" || cfg.KeyPrefix != "oracle-scanner" || cfg.TTL <= 0 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}
