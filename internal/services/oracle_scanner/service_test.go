package oracle_scanner

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/testutil"
)

var (
	morphoFactory = common.HexToAddress("0x3A7bB36Ee3f3eE32A60e9f2b33c1e5f2E83ad766")
	metaFactory   = common.HexToAddress("0x00000000000000000000000000000000000000fa")

	oracleV2      = testAddr(1)
	oracleV1      = testAddr(2)
	oracleMeta    = testAddr(3)
	oracleProxied = testAddr(4)
	oracleUnknown = testAddr(5)
	oracleBackup  = testAddr(6)
	otherImpl     = testAddr(7)

	lidoImpl = entity.MustAddress("0xae7ab96520de3a18e5e111b5eaab095312d7fe84")
	ethUSD   = entity.MustAddress("0x5f4ec3df9cbd43714fe2740f5e3616155c5b8419")
	sDAI     = entity.MustAddress("0x83f20f44975d03b1b09e64809b757c47f942beea")
	dai      = entity.MustAddress("0x6b175474e89094c44da98b954eedeac495271d0f")

	runStart = time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC)
)

func testAddr(n int64) entity.Address {
	return testutil.Address(0x5000 + n)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// scenario is a mainnet with one oracle of every kind.
type scenario struct {
	chain   *testutil.FakeChain
	fixture testutil.TemplateFixture
	store   *testutil.MockBlobStore
	logs    *testutil.MockLogFetcher
	enum    *testutil.MockOracleEnumerator
	clock   *clock

	v2Feeds entity.StandardOracleFeeds
	v1Feeds entity.StandardOracleFeeds
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	sc := &scenario{
		chain:   testutil.NewFakeChain(),
		fixture: testutil.NewTemplateFixture(t),
		store:   &testutil.MockBlobStore{},
		clock:   &clock{now: runStart},
	}

	sc.v2Feeds = entity.StandardOracleFeeds{
		BaseFeedOne:                ethUSD,
		QuoteFeedOne:               testAddr(100),
		BaseVault:                  sDAI,
		BaseVaultConversionSample:  entity.NewBigInt(big.NewInt(1e18)),
		QuoteVaultConversionSample: entity.NewBigInt(big.NewInt(1)),
	}
	sc.v1Feeds = entity.StandardOracleFeeds{
		BaseFeedOne:                testAddr(101),
		BaseVaultConversionSample:  entity.NewBigInt(nil),
		QuoteVaultConversionSample: entity.NewBigInt(nil),
	}

	// Factory-confirmed V2 with a labelled feed and a vault.
	testutil.RegisterFactoryMember(t, sc.chain, morphoFactory, oracleV2.Common(), true)
	testutil.RegisterMorphoOracle(t, sc.chain, oracleV2.Common(), sc.v2Feeds, true)
	testutil.RegisterVault(t, sc.chain, sDAI.Common(), "sDAI", dai.Common(), "DAI")

	// V1 recognised by bytecode.
	sc.chain.SetCode(oracleV1.Common(), sc.fixture.V1Instance(0x42))
	testutil.RegisterMorphoOracle(t, sc.chain, oracleV1.Common(), sc.v1Feeds, false)

	// Meta-oracle over the V2 (primary) and an unknown backup.
	deployed := testutil.MetaOracleDeployedLog(t, metaFactory, 10, testutil.MetaOracleDeployment{
		MetaOracle:         oracleMeta.Common(),
		Primary:            oracleV2.Common(),
		Backup:             oracleBackup.Common(),
		DeviationThreshold: big.NewInt(1e16),
		ChallengeTimelock:  3600,
		HealingTimelock:    600,
	})
	testutil.RegisterCurrentOracle(t, sc.chain, oracleMeta.Common(), oracleV2.Common())
	sc.logs = &testutil.MockLogFetcher{
		GetLogsFn: func(_ context.Context, _ entity.ChainID, q outbound.LogQuery) ([]types.Log, error) {
			if q.Address != metaFactory {
				return nil, nil
			}
			return []types.Log{deployed}, nil
		},
	}

	// EIP-1967 proxy over the Lido stETH contract.
	sc.chain.SetStorage(oracleProxied.Common(), blockchain.EIP1967ImplementationSlot, lidoImpl.Common().Bytes())

	sc.enum = &testutil.MockOracleEnumerator{
		ListOraclesFn: func(context.Context) ([]outbound.OracleCandidate, error) {
			return []outbound.OracleCandidate{
				{ChainID: entity.ChainMainnet, Address: oracleV2},
				{ChainID: entity.ChainMainnet, Address: oracleV1},
				{ChainID: entity.ChainMainnet, Address: oracleMeta},
				{ChainID: entity.ChainMainnet, Address: oracleProxied},
				{ChainID: entity.ChainMainnet, Address: oracleUnknown},
				{ChainID: entity.ChainBase, Address: testAddr(900)},
			}, nil
		},
	}
	return sc
}

func (sc *scenario) service(t *testing.T, modify func(*Config)) *Service {
	t.Helper()
	decimals := 8
	chainlink := &testutil.MockFeedRegistry{
		ProviderName: entity.ProviderChainlink,
		FetchFn: func(_ context.Context, chainID entity.ChainID) (*entity.FeedProviderRegistry, error) {
			r := entity.NewFeedProviderRegistry(chainID, entity.ProviderChainlink, runStart)
			r.Add(entity.FeedInfo{Address: ethUSD, Description: "ETH / USD", Pair: []string{"ETH", "USD"}, Decimals: &decimals})
			return r, nil
		},
	}

	cfg := Config{
		Chains: []ChainDeps{{
			ChainID:             entity.ChainMainnet,
			Multicaller:         sc.chain,
			Code:                sc.chain,
			MorphoFactory:       morphoFactory,
			MetaOracleFactories: []common.Address{metaFactory},
		}},
		Enumerator:     sc.enum,
		Logs:           sc.logs,
		FeedRegistries: []outbound.FeedRegistry{chainlink},
		Store:          sc.store,
		Templates:      sc.fixture.Set,
		GitSHA:         "abc123",
		Logger:         testutil.DiscardLogger(),
		Now:            sc.clock.Now,
	}
	if modify != nil {
		modify(&cfg)
	}
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func (sc *scenario) registry(t *testing.T) *entity.Registry {
	t.Helper()
	registry, err := DecodeRegistry(sc.store.State)
	if err != nil {
		t.Fatalf("DecodeRegistry: %v", err)
	}
	return registry
}

func contract(t *testing.T, registry *entity.Registry, addr entity.Address) *entity.ContractState {
	t.Helper()
	state, ok := registry.Chain(entity.ChainMainnet).Get(addr)
	if !ok {
		t.Fatalf("%s missing from registry", addr)
	}
	return state
}

func TestNewService_Validation(t *testing.T) {
	sc := newScenario(t)
	valid := func() Config {
		return Config{
			Chains:     []ChainDeps{{ChainID: entity.ChainMainnet, Multicaller: sc.chain, Code: sc.chain}},
			Enumerator: sc.enum,
			Logs:       sc.logs,
			Store:      sc.store,
			Templates:  sc.fixture.Set,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil enumerator", func(c *Config) { c.Enumerator = nil }},
		{"nil logs", func(c *Config) { c.Logs = nil }},
		{"nil store", func(c *Config) { c.Store = nil }},
		{"nil templates", func(c *Config) { c.Templates = nil }},
		{"no chains", func(c *Config) { c.Chains = nil }},
		{"chain without reader", func(c *Config) { c.Chains[0].Code = nil }},
		{"duplicate chain", func(c *Config) { c.Chains = append(c.Chains, c.Chains[0]) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if _, err := NewService(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}

	svc, err := NewService(valid())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.config.ChainConcurrency != 1 || svc.config.BytecodeWorkers != 1 || svc.config.RescanInterval != 24*time.Hour {
		t.Errorf("defaults not applied: %+v", svc.config)
	}
}

func TestService_Run(t *testing.T) {
	sc := newScenario(t)
	svc := sc.service(t, nil)

	result, err := svc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sc.store.Commits) != 1 {
		t.Fatalf("expected exactly one commit, got %d", len(sc.store.Commits))
	}

	registry := sc.registry(t)
	if _, ok := registry.Chains[entity.ChainBase]; ok {
		t.Error("unconfigured chain should not enter the registry")
	}

	v2, ok := contract(t, registry, oracleV2).Classification.(entity.StandardV2)
	if !ok || !v2.VerifiedByFactory || !v2.Feeds.Equal(sc.v2Feeds) {
		t.Errorf("V2 classification = %#v", contract(t, registry, oracleV2).Classification)
	}
	if contract(t, registry, oracleV2).Proxy != nil {
		t.Error("standard template must not carry proxy state")
	}

	v1, ok := contract(t, registry, oracleV1).Classification.(entity.StandardV1)
	if !ok || v1.VerificationMethod != entity.VerifiedByBytecode || v1.Feeds.BaseFeedOne != sc.v1Feeds.BaseFeedOne {
		t.Errorf("V1 classification = %#v", contract(t, registry, oracleV1).Classification)
	}

	meta, ok := contract(t, registry, oracleMeta).Classification.(entity.MetaOracleDeviationTimelock)
	if !ok {
		t.Fatalf("meta classification = %#v", contract(t, registry, oracleMeta).Classification)
	}
	if meta.Config.CurrentOracle != oracleV2 || meta.Config.BackupOracle != oracleBackup {
		t.Errorf("meta config = %+v", meta.Config)
	}
	if meta.OracleSources == nil || meta.OracleSources.Primary == nil || meta.OracleSources.Backup != nil {
		t.Errorf("meta sources = %+v", meta.OracleSources)
	}

	proxied := contract(t, registry, oracleProxied)
	adapter, ok := proxied.Classification.(entity.CustomAdapter)
	if !ok || adapter.AdapterID != "lido-steth" {
		t.Errorf("proxied classification = %#v", proxied.Classification)
	}
	if !proxied.IsUpgradable() || proxied.Proxy.Implementation != lidoImpl {
		t.Errorf("proxy state = %+v", proxied.Proxy)
	}

	unknown := contract(t, registry, oracleUnknown)
	if u, ok := unknown.Classification.(entity.Unknown); !ok || u.Reason == "" {
		t.Errorf("unknown classification = %#v", unknown.Classification)
	}
	if unknown.Proxy == nil || unknown.Proxy.IsProxy || unknown.Proxy.LastProxyScanAt == nil {
		t.Errorf("unknown proxy state = %+v", unknown.Proxy)
	}

	// The backup was pulled in by the meta-oracle bootstrap.
	if _, ok := contract(t, registry, oracleBackup).Classification.(entity.Unknown); !ok {
		t.Errorf("backup classification = %#v", contract(t, registry, oracleBackup).Classification)
	}

	want := entity.ChainSummary{
		OracleCount:     6,
		StandardCount:   2,
		MetaCount:       1,
		CustomCount:     1,
		UnknownCount:    2,
		UpgradableCount: 1,
	}
	if got := result.Chains[entity.ChainMainnet]; got != want {
		t.Errorf("summary = %+v, want %+v", got, want)
	}
	if result.FeedsMatched[entity.ChainMainnet][entity.ProviderChainlink] != 1 {
		t.Errorf("FeedsMatched = %v", result.FeedsMatched)
	}
}

func TestService_RunOutputDocuments(t *testing.T) {
	sc := newScenario(t)
	if _, err := sc.service(t, nil).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snapshot, _ := sc.store.LastCommit()

	var out struct {
		Version string `json:"version"`
		ChainID uint64 `json:"chainId"`
		Oracles []struct {
			Address           string          `json:"address"`
			Type              string          `json:"type"`
			VerifiedByFactory bool            `json:"verifiedByFactory"`
			IsUpgradable      bool            `json:"isUpgradable"`
			Data              json.RawMessage `json:"data"`
		} `json:"oracles"`
	}
	if err := json.Unmarshal(snapshot.Outputs[entity.ChainMainnet], &out); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if out.Version != entity.OutputVersion || out.ChainID != 1 {
		t.Errorf("header = %s/%d", out.Version, out.ChainID)
	}
	for i := 1; i < len(out.Oracles); i++ {
		if out.Oracles[i-1].Address >= out.Oracles[i].Address {
			t.Fatalf("oracles not sorted at %d", i)
		}
	}

	var standard struct {
		BaseFeedOne struct {
			Description string   `json:"description"`
			Pair        []string `json:"pair"`
			Provider    *string  `json:"provider"`
		} `json:"baseFeedOne"`
		QuoteFeedOne struct {
			Description string  `json:"description"`
			Provider    *string `json:"provider"`
		} `json:"quoteFeedOne"`
		BaseVault struct {
			Symbol string   `json:"symbol"`
			Pair   []string `json:"pair"`
		} `json:"baseVault"`
	}
	for _, o := range out.Oracles {
		if o.Address != string(oracleV2) {
			continue
		}
		if o.Type != "standard" || !o.VerifiedByFactory {
			t.Errorf("V2 entry = %+v", o)
		}
		if err := json.Unmarshal(o.Data, &standard); err != nil {
			t.Fatalf("decoding V2 data: %v", err)
		}
	}
	if standard.BaseFeedOne.Description != "ETH / USD" || standard.BaseFeedOne.Provider == nil || *standard.BaseFeedOne.Provider != "Chainlink" {
		t.Errorf("base feed = %+v", standard.BaseFeedOne)
	}
	if standard.QuoteFeedOne.Description != "Unknown Feed" || standard.QuoteFeedOne.Provider != nil {
		t.Errorf("quote feed = %+v", standard.QuoteFeedOne)
	}
	if standard.BaseVault.Symbol != "sDAI" || len(standard.BaseVault.Pair) != 2 {
		t.Errorf("base vault = %+v", standard.BaseVault)
	}

	var meta entity.MetadataFile
	if err := json.Unmarshal(snapshot.Metadata, &meta); err != nil {
		t.Fatalf("decoding metadata: %v", err)
	}
	if meta.GitSHA != "abc123" || meta.Chains[entity.ChainMainnet].OracleCount != 6 {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.ProviderSources["chainlink"].FeedCount != 1 {
		t.Errorf("provider sources = %+v", meta.ProviderSources)
	}
}

func TestService_ClassificationStability(t *testing.T) {
	sc := newScenario(t)
	if _, err := sc.service(t, nil).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Every chain read now fails; standard classifications must survive.
	sc.chain.ExecuteErr = errors.New("node down")
	sc.clock.Set(runStart.Add(time.Hour))
	if _, err := sc.service(t, nil).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	registry := sc.registry(t)
	if v2, ok := contract(t, registry, oracleV2).Classification.(entity.StandardV2); !ok || !v2.Feeds.Equal(sc.v2Feeds) {
		t.Errorf("V2 lost: %#v", contract(t, registry, oracleV2).Classification)
	}
	if _, ok := contract(t, registry, oracleV1).Classification.(entity.StandardV1); !ok {
		t.Errorf("V1 lost: %#v", contract(t, registry, oracleV1).Classification)
	}
	meta, ok := contract(t, registry, oracleMeta).Classification.(entity.MetaOracleDeviationTimelock)
	if !ok {
		t.Fatalf("meta lost: %#v", contract(t, registry, oracleMeta).Classification)
	}
	if meta.Config.CurrentOracle != "" {
		t.Errorf("CurrentOracle = %s, want empty after a failed live read", meta.Config.CurrentOracle)
	}
	if !contract(t, registry, oracleV2).LastSeenAt.Equal(runStart.Add(time.Hour)) {
		t.Error("LastSeenAt not advanced")
	}
	if !contract(t, registry, oracleV2).FirstSeenAt.Equal(runStart) {
		t.Error("FirstSeenAt changed")
	}
}

func TestService_IdempotentRerun(t *testing.T) {
	sc := newScenario(t)
	if _, err := sc.service(t, nil).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first, _ := sc.store.LastCommit()

	sc.clock.Set(runStart.Add(2 * time.Hour))
	if _, err := sc.service(t, nil).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	second, _ := sc.store.LastCommit()

	a := withoutTimestamps(t, first.Outputs[entity.ChainMainnet])
	b := withoutTimestamps(t, second.Outputs[entity.ChainMainnet])
	if !reflect.DeepEqual(a, b) {
		t.Errorf("outputs differ beyond timestamps:\nfirst:  %v\nsecond: %v", a, b)
	}
}

// withoutTimestamps decodes doc and drops every run-dependent timestamp.
func withoutTimestamps(t *testing.T, doc []byte) any {
	t.Helper()
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		t.Fatalf("decoding document: %v", err)
	}
	var strip func(any)
	strip = func(v any) {
		switch x := v.(type) {
		case map[string]any:
			delete(x, "generatedAt")
			delete(x, "lastUpdated")
			delete(x, "lastScannedAt")
			for _, child := range x {
				strip(child)
			}
		case []any:
			for _, child := range x {
				strip(child)
			}
		}
	}
	strip(v)
	return v
}

func TestService_ProxyUpgradeRescan(t *testing.T) {
	sc := newScenario(t)
	if _, err := sc.service(t, nil).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	sc.chain.SetStorage(oracleProxied.Common(), blockchain.EIP1967ImplementationSlot, otherImpl.Common().Bytes())

	// Not yet stale.
	sc.clock.Set(runStart.Add(24*time.Hour - time.Second))
	result, err := sc.service(t, nil).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result.ImplementationChanges != 0 {
		t.Errorf("rescan ran before the interval elapsed")
	}
	if contract(t, sc.registry(t), oracleProxied).Proxy.Implementation != lidoImpl {
		t.Error("implementation changed before the interval elapsed")
	}

	upgradeAt := runStart.Add(24 * time.Hour)
	sc.clock.Set(upgradeAt)
	result, err = sc.service(t, nil).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if result.ImplementationChanges != 1 {
		t.Errorf("ImplementationChanges = %d, want 1", result.ImplementationChanges)
	}

	proxied := contract(t, sc.registry(t), oracleProxied)
	p := proxied.Proxy
	if p.Implementation != otherImpl {
		t.Errorf("Implementation = %s, want %s", p.Implementation, otherImpl)
	}
	if len(p.PreviousImplementations) != 1 || p.PreviousImplementations[0].Address != lidoImpl ||
		!p.PreviousImplementations[0].DetectedAt.Equal(runStart) {
		t.Errorf("PreviousImplementations = %+v", p.PreviousImplementations)
	}
	if p.LastImplChangeAt == nil || !p.LastImplChangeAt.Equal(upgradeAt) {
		t.Errorf("LastImplChangeAt = %v", p.LastImplChangeAt)
	}
	// The new implementation matches no adapter.
	if _, ok := proxied.Classification.(entity.Unknown); !ok {
		t.Errorf("classification after upgrade = %#v", proxied.Classification)
	}
}

func TestService_ForceRescan(t *testing.T) {
	sc := newScenario(t)
	if _, err := sc.service(t, nil).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	codeReads := sc.chain.CodeAtCount

	sc.clock.Set(runStart.Add(time.Minute))
	result, err := sc.service(t, nil).Run(context.Background(), RunOptions{ForceRescan: true})
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if sc.chain.CodeAtCount <= codeReads {
		t.Error("force rescan did not re-fingerprint")
	}
	if got := result.Chains[entity.ChainMainnet]; got.StandardCount != 2 || got.MetaCount != 1 || got.CustomCount != 1 {
		t.Errorf("summary after force = %+v", got)
	}
	unknown := contract(t, sc.registry(t), oracleUnknown)
	if unknown.Proxy == nil || !unknown.Proxy.LastProxyScanAt.Equal(runStart.Add(time.Minute)) {
		t.Errorf("non-proxy state not re-probed: %+v", unknown.Proxy)
	}
}

func TestService_ChainConcurrency(t *testing.T) {
	sc := newScenario(t)
	base := testutil.NewFakeChain()
	svc := sc.service(t, func(c *Config) {
		c.ChainConcurrency = 2
		c.Chains = append(c.Chains, ChainDeps{ChainID: entity.ChainBase, Multicaller: base, Code: base})
	})

	result, err := svc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Chains[entity.ChainBase].OracleCount != 1 || result.Chains[entity.ChainMainnet].OracleCount != 6 {
		t.Errorf("summaries = %+v", result.Chains)
	}
	snapshot, _ := sc.store.LastCommit()
	if len(snapshot.Outputs) != 2 {
		t.Errorf("expected two chain documents, got %d", len(snapshot.Outputs))
	}
}

func TestService_FatalErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(sc *scenario)
	}{
		{"enumerator failure", func(sc *scenario) {
			sc.enum.ListOraclesFn = func(context.Context) ([]outbound.OracleCandidate, error) {
				return nil, errors.New("graphql unavailable")
			}
		}},
		{"state load failure", func(sc *scenario) { sc.store.LoadErr = errors.New("access denied") }},
		{"corrupt state", func(sc *scenario) { sc.store.State = []byte("{not json") }},
		{"commit failure", func(sc *scenario) { sc.store.CommitErr = errors.New("bucket gone") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newScenario(t)
			tt.modify(sc)
			if _, err := sc.service(t, nil).Run(context.Background(), RunOptions{}); err == nil {
				t.Fatal("expected error")
			}
			if len(sc.store.Commits) != 0 {
				t.Error("nothing should be committed on a fatal error")
			}
		})
	}
}

func TestService_Cancelled(t *testing.T) {
	sc := newScenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sc.service(t, nil).Run(ctx, RunOptions{}); err == nil {
		t.Fatal("expected cancellation error")
	}
	if len(sc.store.Commits) != 0 {
		t.Error("cancelled run committed")
	}
}

func TestDecodeRegistry(t *testing.T) {
	registry := entity.NewRegistry()
	cr := registry.Chain(entity.ChainMainnet)
	state, _ := cr.Observe(oracleV1, runStart)
	state.Classification = entity.Unknown{Reason: "x"}
	state.Proxy = entity.NewNonProxyState(runStart)

	data, err := EncodeRegistry(registry)
	if err != nil {
		t.Fatalf("EncodeRegistry: %v", err)
	}
	got, err := DecodeRegistry(data)
	if err != nil {
		t.Fatalf("DecodeRegistry: %v", err)
	}
	back, ok := got.Chain(entity.ChainMainnet).Get(oracleV1)
	if !ok || back.Classification != (entity.Unknown{Reason: "x"}) || back.Proxy == nil {
		t.Errorf("decoded state = %+v", back)
	}

	if _, err := DecodeRegistry([]byte(`{"version":99,"chains":{}}`)); err == nil {
		t.Error("expected version error")
	}
}

func TestService_MetaOracleCurrentOracleIsLive(t *testing.T) {
	sc := newScenario(t)
	if _, err := sc.service(t, nil).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first, ok := contract(t, sc.registry(t), oracleMeta).Classification.(entity.MetaOracleDeviationTimelock)
	if !ok {
		t.Fatalf("first run did not classify %s as a meta-oracle", oracleMeta)
	}
	if first.Config.CurrentOracle != oracleV2 {
		t.Fatalf("CurrentOracle = %s, want %s", first.Config.CurrentOracle, oracleV2)
	}
	if got := sc.registry(t).Chain(entity.ChainMainnet).Cursor.FromBlock(entity.AddressFromCommon(metaFactory)); got != 10 {
		t.Errorf("factory cursor = %d, want 10", got)
	}

	// The deployment is behind the cursor now, so only the registry knows it.
	sc.logs.GetLogsFn = func(_ context.Context, _ entity.ChainID, q outbound.LogQuery) ([]types.Log, error) {
		if q.Address == metaFactory && q.FromBlock != 10 {
			t.Errorf("second run read factory logs from block %d, want 10", q.FromBlock)
		}
		return nil, nil
	}
	testutil.RegisterCurrentOracle(t, sc.chain, oracleMeta.Common(), oracleBackup.Common())
	sc.clock.Set(runStart.Add(time.Hour))

	if _, err := sc.service(t, nil).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	second, ok := contract(t, sc.registry(t), oracleMeta).Classification.(entity.MetaOracleDeviationTimelock)
	if !ok {
		t.Fatalf("second run lost the meta-oracle classification")
	}
	if second.Config.CurrentOracle != oracleBackup {
		t.Errorf("CurrentOracle = %s, want live value %s", second.Config.CurrentOracle, oracleBackup)
	}
	if !first.Config.SameDeployment(second.Config) {
		t.Errorf("deployment fields changed: %+v then %+v", first.Config, second.Config)
	}
}
