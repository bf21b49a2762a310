package classification

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/testutil"
)

var testFactory = common.HexToAddress("0x3A7bB36Ee3f3eE32A60e9f2b33c1e5f2E83ad766")

func addr(n int) entity.Address {
	return testutil.Address(int64(0x1000 + n))
}

func sampleFeeds(n int, v2 bool) entity.StandardOracleFeeds {
	feeds := entity.StandardOracleFeeds{
		BaseFeedOne:                addr(100 + n),
		QuoteFeedOne:               addr(200 + n),
		BaseVaultConversionSample:  entity.NewBigInt(nil),
		QuoteVaultConversionSample: entity.NewBigInt(nil),
	}
	if v2 {
		feeds.BaseVault = addr(300 + n)
		feeds.BaseVaultConversionSample = entity.NewBigInt(big.NewInt(1e18))
		feeds.QuoteVaultConversionSample = entity.NewBigInt(big.NewInt(1))
	}
	return feeds
}

func newTestResolver(t *testing.T, chain *testutil.FakeChain, fixture testutil.TemplateFixture, modify func(*ResolverConfig)) *Resolver {
	t.Helper()
	cfg := ResolverConfig{
		ChainID:           entity.ChainMainnet,
		Factory:           testFactory,
		MembershipBackoff: time.Millisecond,
		Logger:            testutil.DiscardLogger(),
	}
	if modify != nil {
		modify(&cfg)
	}
	r, err := NewResolver(cfg, chain, chain, fixture.Set, testutil.NoopMetrics{})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestNewResolver_Validation(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()

	tests := []struct {
		name        string
		multicaller outbound.Multicaller
		code        outbound.CodeReader
		wantErr     bool
	}{
		{"valid", chain, chain, false},
		{"nil multicaller", nil, chain, true},
		{"nil code reader", chain, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(ResolverConfig{}, tt.multicaller, tt.code, fixture.Set, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewResolver() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := NewResolver(ResolverConfig{}, chain, chain, nil, nil); err == nil {
		t.Error("expected error for nil templates")
	}
}

func TestResolver_FactoryConfirmed(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()
	oracle := addr(1)
	feeds := sampleFeeds(1, true)

	testutil.RegisterFactoryMember(t, chain, testFactory, oracle.Common(), true)
	testutil.RegisterMorphoOracle(t, chain, oracle.Common(), feeds, true)

	r := newTestResolver(t, chain, fixture, nil)
	got, stats, err := r.Resolve(context.Background(), []entity.Address{oracle})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	v2, ok := got[oracle].(entity.StandardV2)
	if !ok {
		t.Fatalf("expected StandardV2, got %#v", got[oracle])
	}
	if !v2.VerifiedByFactory || v2.VerificationMethod != entity.VerifiedByFactory {
		t.Errorf("verification = %v/%s", v2.VerifiedByFactory, v2.VerificationMethod)
	}
	if !v2.Feeds.Equal(feeds) {
		t.Errorf("feeds = %+v, want %+v", v2.Feeds, feeds)
	}
	if stats.FactoryConfirmed != 1 || stats.FactoryFeeds != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if chain.CodeAtCount != 0 {
		t.Errorf("factory-confirmed oracle should not be fingerprinted, got %d getCode calls", chain.CodeAtCount)
	}
}

func TestResolver_FactoryConfirmedIncompleteFeeds(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()
	oracle := addr(1)

	testutil.RegisterFactoryMember(t, chain, testFactory, oracle.Common(), true)
	testutil.RegisterMorphoOracle(t, chain, oracle.Common(), sampleFeeds(1, true), true)
	testutil.FailMorphoGetter(t, chain, oracle.Common(), "QUOTE_VAULT")

	r := newTestResolver(t, chain, fixture, nil)
	got, stats, err := r.Resolve(context.Background(), []entity.Address{oracle})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := got[oracle]; ok {
		t.Errorf("expected oracle with incomplete feeds to stay unresolved, got %#v", got[oracle])
	}
	if stats.Unresolved != 1 {
		t.Errorf("stats.Unresolved = %d, want 1", stats.Unresolved)
	}
}

func TestResolver_FreshV2TemplateMatch(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()
	oracle := addr(2)
	feeds := sampleFeeds(2, true)

	// Not a factory member: the membership call reverts.
	chain.SetCode(oracle.Common(), fixture.V2Instance(0xab))
	testutil.RegisterMorphoOracle(t, chain, oracle.Common(), feeds, true)

	r := newTestResolver(t, chain, fixture, nil)
	got, stats, err := r.Resolve(context.Background(), []entity.Address{oracle})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	v2, ok := got[oracle].(entity.StandardV2)
	if !ok {
		t.Fatalf("expected StandardV2, got %#v", got[oracle])
	}
	if v2.VerifiedByFactory || v2.VerificationMethod != entity.VerifiedByBytecode {
		t.Errorf("verification = %v/%s, want false/bytecode", v2.VerifiedByFactory, v2.VerificationMethod)
	}
	if !v2.Feeds.Equal(feeds) {
		t.Errorf("feeds = %+v", v2.Feeds)
	}
	if stats.BytecodeV2 != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestResolver_BytecodeV1(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()
	oracle := addr(3)
	feeds := sampleFeeds(3, false)

	chain.SetCode(oracle.Common(), fixture.V1Instance(0x11))
	testutil.RegisterMorphoOracle(t, chain, oracle.Common(), feeds, false)

	r := newTestResolver(t, chain, fixture, nil)
	got, _, err := r.Resolve(context.Background(), []entity.Address{oracle})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	v1, ok := got[oracle].(entity.StandardV1)
	if !ok {
		t.Fatalf("expected StandardV1, got %#v", got[oracle])
	}
	if v1.VerificationMethod != entity.VerifiedByBytecode {
		t.Errorf("verificationMethod = %s", v1.VerificationMethod)
	}
	if v1.Feeds.BaseVault != "" || v1.Feeds.BaseVaultConversionSample.Value().Sign() != 0 {
		t.Errorf("V1 feeds should have no vaults: %+v", v1.Feeds)
	}
	if !v1.Feeds.Equal(feeds) {
		t.Errorf("feeds = %+v, want %+v", v1.Feeds, feeds)
	}
}

func TestResolver_Unresolved(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()

	unknownCode := addr(4)
	noCode := addr(5)
	codeErr := addr(6)

	chain.SetCode(unknownCode.Common(), []byte{0x60, 0x00, 0x60, 0x00, 0xfd})
	chain.CodeErr[codeErr.Common()] = errors.New("rate limited")

	r := newTestResolver(t, chain, fixture, nil)
	got, stats, err := r.Resolve(context.Background(), []entity.Address{unknownCode, noCode, codeErr})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected nothing resolved, got %v", got)
	}
	if stats.Unresolved != 3 {
		t.Errorf("stats.Unresolved = %d, want 3", stats.Unresolved)
	}
	if chain.CodeAtCount != 3 {
		t.Errorf("CodeAtCount = %d, want 3", chain.CodeAtCount)
	}
}

func TestResolver_V2BytecodeIncompleteFeeds(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()
	oracle := addr(7)

	chain.SetCode(oracle.Common(), fixture.V2Instance(0x01))
	testutil.RegisterMorphoOracle(t, chain, oracle.Common(), sampleFeeds(7, true), true)
	testutil.FailMorphoGetter(t, chain, oracle.Common(), "BASE_FEED_1")

	r := newTestResolver(t, chain, fixture, nil)
	got, _, err := r.Resolve(context.Background(), []entity.Address{oracle})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := got[oracle]; ok {
		t.Errorf("expected unresolved, got %#v", got[oracle])
	}
}

func TestResolver_NoFactory(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()
	oracle := addr(8)

	chain.SetCode(oracle.Common(), fixture.V2Instance(0x42))
	testutil.RegisterMorphoOracle(t, chain, oracle.Common(), sampleFeeds(8, true), true)

	r := newTestResolver(t, chain, fixture, func(c *ResolverConfig) { c.Factory = common.Address{} })
	got, stats, err := r.Resolve(context.Background(), []entity.Address{oracle})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if stats.FactoryConfirmed != 0 {
		t.Errorf("FactoryConfirmed = %d, want 0", stats.FactoryConfirmed)
	}
	if _, ok := got[oracle].(entity.StandardV2); !ok {
		t.Errorf("expected bytecode StandardV2, got %#v", got[oracle])
	}
	// Only the feed read hits the multicaller.
	if chain.ExecuteCount != 1 {
		t.Errorf("ExecuteCount = %d, want 1", chain.ExecuteCount)
	}
}

func TestMembership_BatchedPartialFailure(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)

	tests := []struct {
		name  string
		third bool
		want  []bool
	}{
		{"third member", true, []bool{true, false, true}},
		{"third not member", false, []bool{true, false, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := testutil.NewFakeChain()
			a, b, c := addr(1), addr(2), addr(3)
			testutil.RegisterFactoryMember(t, chain, testFactory, a.Common(), true)
			// b is unregistered, so its call fails inside the batch.
			testutil.RegisterFactoryMember(t, chain, testFactory, c.Common(), tt.third)

			r := newTestResolver(t, chain, fixture, nil)
			got := r.Membership(context.Background(), []entity.Address{a, b, c})

			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("member[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
			if chain.ExecuteCount != 1 {
				t.Errorf("expected one batched call, got %d", chain.ExecuteCount)
			}
		})
	}
}

func TestMembership_RetriesWholeChunkFailure(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	oracle := addr(1)

	t.Run("recovers", func(t *testing.T) {
		chain := testutil.NewFakeChain()
		testutil.RegisterFactoryMember(t, chain, testFactory, oracle.Common(), true)
		chain.ExecuteHook = func(n int, _ []outbound.Call) error {
			if n == 0 {
				return errors.New("connection reset")
			}
			return nil
		}

		r := newTestResolver(t, chain, fixture, nil)
		got := r.Membership(context.Background(), []entity.Address{oracle})
		if !got[0] {
			t.Error("expected membership after retry")
		}
		if chain.ExecuteCount != 2 {
			t.Errorf("ExecuteCount = %d, want 2", chain.ExecuteCount)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		chain := testutil.NewFakeChain()
		testutil.RegisterFactoryMember(t, chain, testFactory, oracle.Common(), true)
		chain.ExecuteErr = errors.New("node down")

		r := newTestResolver(t, chain, fixture, func(c *ResolverConfig) { c.MembershipRetries = 2 })
		got := r.Membership(context.Background(), []entity.Address{oracle})
		if got[0] {
			t.Error("expected false after exhausting retries")
		}
		if chain.ExecuteCount != 3 {
			t.Errorf("ExecuteCount = %d, want 3 (1 + 2 retries)", chain.ExecuteCount)
		}
	})
}

func TestMembership_Chunking(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()

	candidates := make([]entity.Address, 250)
	for i := range candidates {
		candidates[i] = addr(i)
		if i%2 == 0 {
			testutil.RegisterFactoryMember(t, chain, testFactory, candidates[i].Common(), true)
		}
	}

	var sizes []int
	chain.ExecuteHook = func(_ int, calls []outbound.Call) error {
		sizes = append(sizes, len(calls))
		return nil
	}

	r := newTestResolver(t, chain, fixture, nil)
	got := r.Membership(context.Background(), candidates)

	if len(sizes) != 3 {
		t.Fatalf("expected 3 chunks, got %v", sizes)
	}
	total := 0
	for _, s := range sizes {
		if s > 100 {
			t.Errorf("chunk of %d exceeds 100", s)
		}
		total += s
	}
	if total != 250 {
		t.Errorf("total calls = %d, want 250", total)
	}
	for i, member := range got {
		if member != (i%2 == 0) {
			t.Fatalf("member[%d] = %v", i, member)
		}
	}
}

func TestResolver_BytecodeWorkers(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()

	var candidates []entity.Address
	for i := 0; i < 12; i++ {
		a := addr(i)
		candidates = append(candidates, a)
		chain.SetCode(a.Common(), fixture.V2Instance(byte(i+1)))
		testutil.RegisterMorphoOracle(t, chain, a.Common(), sampleFeeds(i, true), true)
	}

	r := newTestResolver(t, chain, fixture, func(c *ResolverConfig) {
		c.Factory = common.Address{}
		c.BytecodeWorkers = 4
	})
	got, stats, err := r.Resolve(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != len(candidates) || stats.BytecodeV2 != len(candidates) {
		t.Errorf("resolved %d, stats %+v", len(got), stats)
	}
	for _, a := range candidates {
		if _, ok := got[a].(entity.StandardV2); !ok {
			t.Errorf("%s: got %#v", a, got[a])
		}
	}
}

func TestResolver_Cancelled(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestResolver(t, chain, fixture, nil)
	_, _, err := r.Resolve(ctx, []entity.Address{addr(1)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestResolver_Empty(t *testing.T) {
	fixture := testutil.NewTemplateFixture(t)
	chain := testutil.NewFakeChain()

	r := newTestResolver(t, chain, fixture, nil)
	got, _, err := r.Resolve(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", got, err)
	}
	if chain.ExecuteCount != 0 {
		t.Errorf("ExecuteCount = %d, want 0", chain.ExecuteCount)
	}
}
