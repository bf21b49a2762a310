package feedregistry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/httpclient"
	"github.com/archon-research/stl/oracle-scanner/internal/testutil"
)

func testHTTPClient() *httpclient.Client {
	return httpclient.NewClient(httpclient.Config{
		Timeout:        5 * time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		RateLimit:      rate.Inf,
		RateBurst:      1,
	}, testutil.DiscardLogger(), nil)
}

func TestParseRedstonePair(t *testing.T) {
	tests := []struct {
		key  string
		want []string
	}{
		{"ETH / USD", []string{"ETH", "USD"}},
		{"wstETH/ETH", []string{"wstETH", "ETH"}},
		{"sYUSD_FUNDAMENTAL", []string{"sYUSD", "USD"}},
		{"weETH_fundamental", []string{"weETH", "USD"}},
		{"WETH_ETH", []string{"WETH", "ETH"}},
		{"PT-sUSDE-27MAR2025", nil},
		{"BTC", nil},
		{" / USD", nil},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := parseRedstonePair(tt.key); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseRedstonePair(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestChainlinkRegistry_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feeds-ethereum-mainnet-base-1.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"name":"ETH / USD","path":"eth-usd","proxyAddress":"0x71041dddad3595F9CEd3DcCFBe3D1F4b0a16Bb70","decimals":8,"heartbeat":1200,"deviationThreshold":0.15},
			{"name":"","path":"cbeth / eth","proxyAddress":"0x806b4Ac04501c29769051e42783cF04dCE41440b","decimals":18},
			{"name":"Sequencer Uptime","path":"l2-sequencer","proxyAddress":"0xBCF85224fc0756B9Fa45aA7892530B47e10b6433"},
			{"name":"No proxy","path":"none","proxyAddress":""}
		]`))
	}))
	defer server.Close()

	registry := NewChainlinkRegistry(testHTTPClient(), server.URL+"/feeds-{network}.json", testutil.DiscardLogger())
	got, err := registry.Fetch(context.Background(), entity.ChainBase)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got.Feeds) != 3 {
		t.Fatalf("got %d feeds, want 3", len(got.Feeds))
	}

	eth := got.Feeds["0x71041dddad3595f9ced3dccfbe3d1f4b0a16bb70"]
	if eth.Provider != entity.ProviderChainlink || eth.ChainID != entity.ChainBase {
		t.Errorf("provider/chain = %s/%d", eth.Provider, eth.ChainID)
	}
	if !reflect.DeepEqual(eth.Pair, []string{"ETH", "USD"}) {
		t.Errorf("pair = %v", eth.Pair)
	}
	if eth.Decimals == nil || *eth.Decimals != 8 || eth.Heartbeat == nil || *eth.Heartbeat != 1200 {
		t.Errorf("decimals/heartbeat = %v/%v", eth.Decimals, eth.Heartbeat)
	}

	cbeth := got.Feeds["0x806b4ac04501c29769051e42783cf04dce41440b"]
	if cbeth.Description != "cbeth / eth" || !reflect.DeepEqual(cbeth.Pair, []string{"cbeth", "eth"}) {
		t.Errorf("path fallback = %q %v", cbeth.Description, cbeth.Pair)
	}

	uptime := got.Feeds["0xbcf85224fc0756b9fa45aa7892530b47e10b6433"]
	if uptime.Pair != nil {
		t.Errorf("pair = %v, want nil", uptime.Pair)
	}
}

func TestChainlinkRegistry_UnsupportedChain(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	registry := NewChainlinkRegistry(testHTTPClient(), server.URL+"/{network}", testutil.DiscardLogger())
	got, err := registry.Fetch(context.Background(), entity.ChainMonad)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got.Feeds) != 0 || calls.Load() != 0 {
		t.Errorf("feeds = %d, calls = %d; want 0, 0", len(got.Feeds), calls.Load())
	}
}

func TestChainlinkRegistry_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	registry := NewChainlinkRegistry(testHTTPClient(), server.URL+"/{network}", testutil.DiscardLogger())
	if _, err := registry.Fetch(context.Background(), entity.ChainMainnet); err == nil {
		t.Error("expected error")
	}
}

func TestRedstoneRegistry_Fetch(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, reg *entity.FeedProviderRegistry)
	}{
		{
			name: "priceFeeds manifest",
			body: `{
				"chain": {"name": "ethereum", "id": 1},
				"priceFeeds": {
					"ETH / USD": {"priceFeedAddress": "0x67F6838e58859d612E4ddF04dA396d6DABB66Dc4", "updateTriggersOverrides": {"deviationPercentage": 0.5, "timeSinceLastUpdateInMilliseconds": 86400000}},
					"weETH_FUNDAMENTAL": {"priceFeedAddress": "0x8751F736E94F6CD167e8C5B97E245680FbD9CC36"},
					"NO_ADDRESS": {}
				}
			}`,
			check: func(t *testing.T, reg *entity.FeedProviderRegistry) {
				if len(reg.Feeds) != 2 {
					t.Fatalf("got %d feeds, want 2", len(reg.Feeds))
				}
				eth := reg.Feeds["0x67f6838e58859d612e4ddf04da396d6dabb66dc4"]
				if !reflect.DeepEqual(eth.Pair, []string{"ETH", "USD"}) || eth.Description != "ETH / USD" {
					t.Errorf("eth = %+v", eth)
				}
				if eth.Heartbeat == nil || *eth.Heartbeat != 86400 {
					t.Errorf("heartbeat = %v, want 86400", eth.Heartbeat)
				}
				if eth.DeviationThreshold == nil || *eth.DeviationThreshold != 0.5 {
					t.Errorf("deviation = %v, want 0.5", eth.DeviationThreshold)
				}
				weeth := reg.Feeds["0x8751f736e94f6cd167e8c5b97e245680fbd9cc36"]
				if !reflect.DeepEqual(weeth.Pair, []string{"weETH", "USD"}) {
					t.Errorf("weeth pair = %v", weeth.Pair)
				}
			},
		},
		{
			name: "flat manifest",
			body: `{
				"ezETH_ETH": {"adapterContractAddress": "0xF4a3e183F59D2599ee3DF213ff78b1B3b1923696", "dataFeeds": ["ezETH", "ETH"], "name": "ezETH adapter"},
				"rsETH_ETH": {"adapterContractAddress": "0xA736eAe8805dDeFFba40cAB8c99bCB309dEaBd9B"},
				"version": "1"
			}`,
			check: func(t *testing.T, reg *entity.FeedProviderRegistry) {
				if len(reg.Feeds) != 2 {
					t.Fatalf("got %d feeds, want 2", len(reg.Feeds))
				}
				ez := reg.Feeds["0xf4a3e183f59d2599ee3df213ff78b1b3b1923696"]
				if ez.Description != "ezETH adapter" || !reflect.DeepEqual(ez.Pair, []string{"ezETH", "ETH"}) {
					t.Errorf("ezETH = %+v", ez)
				}
				rs := reg.Feeds["0xa736eae8805ddeffba40cab8c99bcb309deabd9b"]
				if rs.Description != "rsETH_ETH" || !reflect.DeepEqual(rs.Pair, []string{"rsETH", "ETH"}) {
					t.Errorf("rsETH = %+v", rs)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/ethereumMultiFeed.json" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			registry := NewRedstoneRegistry(testHTTPClient(), server.URL+"/{network}MultiFeed.json", testutil.DiscardLogger())
			got, err := registry.Fetch(context.Background(), entity.ChainMainnet)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if got.Provider != entity.ProviderRedstone {
				t.Errorf("provider = %s", got.Provider)
			}
			tt.check(t, got)
		})
	}
}

func TestRedstoneRegistry_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"priceFeeds":`))
	}))
	defer server.Close()

	registry := NewRedstoneRegistry(testHTTPClient(), server.URL+"/{network}", testutil.DiscardLogger())
	if _, err := registry.Fetch(context.Background(), entity.ChainBase); err == nil {
		t.Error("expected error")
	}
}

func TestHardcodedRegistries(t *testing.T) {
	counts := map[entity.FeedProvider]map[entity.ChainID]int{
		entity.ProviderLido:     {entity.ChainMainnet: 1, entity.ChainBase: 0},
		entity.ProviderCompound: {entity.ChainMainnet: 1},
		entity.ProviderOval:     {entity.ChainMainnet: 18},
		entity.ProviderPyth:     {entity.ChainMainnet: 4, entity.ChainBase: 12},
		entity.ProviderAPI3:     {entity.ChainMainnet: 4, entity.ChainArbitrum: 0},
	}

	registries := HardcodedRegistries()
	if len(registries) != len(counts) {
		t.Fatalf("got %d registries, want %d", len(registries), len(counts))
	}
	for _, r := range registries {
		for chainID, want := range counts[r.Provider()] {
			got, err := r.Fetch(context.Background(), chainID)
			if err != nil {
				t.Fatalf("%s Fetch(%d) error = %v", r.Provider(), chainID, err)
			}
			if len(got.Feeds) != want {
				t.Errorf("%s on %d: got %d feeds, want %d", r.Provider(), chainID, len(got.Feeds), want)
			}
		}
	}

	lido, _ := registries[0].Fetch(context.Background(), entity.ChainMainnet)
	feed, ok := lido.Feeds["0x905b7dabcd3ce6b792d874e303d336424cdb1421"]
	if !ok {
		t.Fatal("lido feed missing")
	}
	if feed.Description != "wstETH/stETH exchange rate" || !reflect.DeepEqual(feed.Pair, []string{"wstETH", "stETH"}) || *feed.Decimals != 18 {
		t.Errorf("lido feed = %+v", feed)
	}
}
