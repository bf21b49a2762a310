package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/services/shared"
)

// MockCodeReader implements outbound.CodeReader for testing.
type MockCodeReader struct {
	CodeAtFn    func(ctx context.Context, account common.Address) ([]byte, error)
	StorageAtFn func(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error)
}

func (m *MockCodeReader) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	if m.CodeAtFn != nil {
		return m.CodeAtFn(ctx, account)
	}
	return nil, errors.New("CodeAt not mocked")
}

func (m *MockCodeReader) StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error) {
	if m.StorageAtFn != nil {
		return m.StorageAtFn(ctx, account, slot)
	}
	return nil, errors.New("StorageAt not mocked")
}

// MockLogFetcher implements outbound.LogFetcher for testing.
type MockLogFetcher struct {
	mu        sync.Mutex
	GetLogsFn func(ctx context.Context, chainID entity.ChainID, query outbound.LogQuery) ([]types.Log, error)
	Queries   []outbound.LogQuery
}

func (m *MockLogFetcher) GetLogs(ctx context.Context, chainID entity.ChainID, query outbound.LogQuery) ([]types.Log, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	m.mu.Unlock()
	if m.GetLogsFn != nil {
		return m.GetLogsFn(ctx, chainID, query)
	}
	return nil, nil
}

// MockProxyMetadata implements outbound.ProxyMetadataSource for testing.
type MockProxyMetadata struct {
	GetProxyInfoFn func(ctx context.Context, chainID entity.ChainID, address entity.Address) (*outbound.ProxyInfo, error)
}

func (m *MockProxyMetadata) GetProxyInfo(ctx context.Context, chainID entity.ChainID, address entity.Address) (*outbound.ProxyInfo, error) {
	if m.GetProxyInfoFn != nil {
		return m.GetProxyInfoFn(ctx, chainID, address)
	}
	return nil, nil
}

// MockOracleEnumerator implements outbound.OracleEnumerator for testing.
type MockOracleEnumerator struct {
	ListOraclesFn func(ctx context.Context) ([]outbound.OracleCandidate, error)
}

func (m *MockOracleEnumerator) ListOracles(ctx context.Context) ([]outbound.OracleCandidate, error) {
	if m.ListOraclesFn != nil {
		return m.ListOraclesFn(ctx)
	}
	return nil, nil
}

// MockFeedRegistry implements outbound.FeedRegistry for testing.
type MockFeedRegistry struct {
	ProviderName entity.FeedProvider
	FetchFn      func(ctx context.Context, chainID entity.ChainID) (*entity.FeedProviderRegistry, error)
}

func (m *MockFeedRegistry) Provider() entity.FeedProvider {
	return m.ProviderName
}

func (m *MockFeedRegistry) Fetch(ctx context.Context, chainID entity.ChainID) (*entity.FeedProviderRegistry, error) {
	if m.FetchFn != nil {
		return m.FetchFn(ctx, chainID)
	}
	return entity.NewFeedProviderRegistry(chainID, m.ProviderName, time.Time{}), nil
}

// MockBlobStore is an in-memory outbound.BlobStore that keeps every commit.
type MockBlobStore struct {
	mu        sync.Mutex
	Commits   []outbound.Snapshot
	State     []byte
	LoadErr   error
	CommitErr error
}

func (m *MockBlobStore) LoadState(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.State == nil {
		return nil, outbound.ErrStateNotFound
	}
	return m.State, nil
}

func (m *MockBlobStore) Commit(_ context.Context, snapshot outbound.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommitErr != nil {
		return m.CommitErr
	}
	m.Commits = append(m.Commits, snapshot)
	m.State = snapshot.State
	return nil
}

func (m *MockBlobStore) Close() error { return nil }

// LastCommit returns the most recent snapshot.
func (m *MockBlobStore) LastCommit() (outbound.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Commits) == 0 {
		return outbound.Snapshot{}, false
	}
	return m.Commits[len(m.Commits)-1], true
}

// NoopMetrics records nothing.
type NoopMetrics = shared.NopMetrics

var (
	_ outbound.CodeReader          = (*MockCodeReader)(nil)
	_ outbound.LogFetcher          = (*MockLogFetcher)(nil)
	_ outbound.ProxyMetadataSource = (*MockProxyMetadata)(nil)
	_ outbound.OracleEnumerator    = (*MockOracleEnumerator)(nil)
	_ outbound.FeedRegistry        = (*MockFeedRegistry)(nil)
	_ outbound.BlobStore           = (*MockBlobStore)(nil)
	_ outbound.MetricsRecorder     = NoopMetrics{}
)
