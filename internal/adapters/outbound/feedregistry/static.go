package feedregistry

import (
	"context"
	"time"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

var _ outbound.FeedRegistry = (*StaticRegistry)(nil)

// StaticFeed is a hand-maintained feed label.
type StaticFeed struct {
	Address     string
	Description string
	Base, Quote string
	Decimals    int
}

// StaticRegistry serves a compiled-in feed list for providers that publish no
// machine readable directory.
type StaticRegistry struct {
	provider entity.FeedProvider
	feeds    map[entity.ChainID][]StaticFeed
	now      func() time.Time
}

// NewStaticRegistry creates a registry over feeds.
func NewStaticRegistry(provider entity.FeedProvider, feeds map[entity.ChainID][]StaticFeed) *StaticRegistry {
	return &StaticRegistry{provider: provider, feeds: feeds, now: time.Now}
}

func (r *StaticRegistry) Provider() entity.FeedProvider {
	return r.provider
}

// Fetch never fails. Invalid addresses in the table are skipped.
func (r *StaticRegistry) Fetch(_ context.Context, chainID entity.ChainID) (*entity.FeedProviderRegistry, error) {
	registry := entity.NewFeedProviderRegistry(chainID, r.provider, r.now())
	for _, f := range r.feeds[chainID] {
		address, err := entity.NewAddress(f.Address)
		if err != nil {
			continue
		}
		decimals := f.Decimals
		registry.Add(entity.FeedInfo{
			Address:     address,
			Description: f.Description,
			Pair:        []string{f.Base, f.Quote},
			Decimals:    &decimals,
		})
	}
	return registry, nil
}

// HardcodedRegistries returns the compiled-in Lido, Compound, Oval, Pyth and
// API3 registries.
func HardcodedRegistries() []outbound.FeedRegistry {
	return []outbound.FeedRegistry{
		NewStaticRegistry(entity.ProviderLido, lidoFeeds),
		NewStaticRegistry(entity.ProviderCompound, compoundFeeds),
		NewStaticRegistry(entity.ProviderOval, ovalFeeds),
		NewStaticRegistry(entity.ProviderPyth, pythFeeds),
		NewStaticRegistry(entity.ProviderAPI3, api3Feeds),
	}
}

var lidoFeeds = map[entity.ChainID][]StaticFeed{
	entity.ChainMainnet: {
		{"0x905b7dAbCD3Ce6B792D874e303D336424Cdb1421", "wstETH/stETH exchange rate", "wstETH", "stETH", 18},
	},
}

// Compound wrappers around Chainlink feeds.
var compoundFeeds = map[entity.ChainID][]StaticFeed{
	entity.ChainMainnet: {
		{"0x4F67e4d9BD67eFa28236013288737D39AeF48e79", "wstETH / ETH (Compound wrapper)", "wstETH", "ETH", 18},
	},
}

var ovalFeeds = map[entity.ChainID][]StaticFeed{
	entity.ChainMainnet: {
		{"0x0F0072fdDB300f9375C999cBcf9BDec07E7227d3", "Oval: USDT / ETH", "USDT", "ETH", 18},
		{"0xc47641ed51f73A82C62Ba439d90096bccC376fe8", "Oval: stETH / ETH", "STETH", "ETH", 18},
		{"0xb21d661fd6a3769ADB03e373dc00265f3c78cBfD", "Oval: ezETH / ETH", "ezETH", "ETH", 18},
		{"0xE8f0CA2d311a9B669f525BFA306eBf59d4b64297", "Oval: USDC / ETH", "USDC", "ETH", 18},
		{"0x4F78027C9e9B8E11dEc8139e248D74b9dDE05ceb", "Oval: weETH / ETH", "weETH", "ETH", 18},
		{"0xAd73fF895dC265b5229e61f45226319471C4685e", "Oval: USDC / ETH", "USDC", "ETH", 18},
		{"0x6a5a24455e5c9C288632944A88ceA923e0496024", "Oval: USDC / USD", "USDC", "USD", 8},
		{"0xCf17f459F4D1D9e6fb5aa5013Bd2D7EB6083bd45", "Oval: TBTC / USD", "TBTC", "USD", 8},
		{"0x4fC22E5f89891B6bd00d554B6250503d38EE5E4D", "Oval: pufETH / ETH", "pufETH", "ETH", 8},
		{"0x12A52946cFB6761c3cA69389C5FEFfe9CF3Ef4e3", "Oval: USDC / ETH", "USDC", "ETH", 18},
		{"0xE2380c199F07e78012c6D0b076A4137E6D1Ba022", "Oval: SAND / USD", "SAND", "USD", 8},
		{"0x09717Bb4EE122Bb5dBf2457F727FfE8Ed3097F48", "Oval: USDC / USD", "USDC", "USD", 8},
		{"0x171b10e16223F86500D558D426Bf4fa5EF280087", "Oval: cbBTC / USD", "cbBTC", "USD", 18},
		{"0x206B4846F1257252a64781f442626ce82FD3C6Cc", "Oval: ETH / USD", "ETH", "USD", 18},
		{"0x6BC34c19AEbf6049e5AD42969EF0EfF3db665b0c", "Oval: cbBTC / USD", "cbBTC", "USD", 18},
		{"0xf11125B453dA3283ab0F520972Fd8DF857Fd61ef", "Oval: USDT / USD", "USDT", "USD", 18},
		{"0x82b26825D02deB266466f563F03ef2B87f8f37B9", "Oval: cbBTC / USD", "cbBTC", "USD", 18},
		{"0xDF7f88EAd7832D2efCf7c874174538e9EAAf6930", "Oval: USDC / USD", "USDC", "USD", 18},
	},
}

var pythFeeds = map[entity.ChainID][]StaticFeed{
	entity.ChainMainnet: {
		{"0xF2d7B0F5cB09928DB0f0686F4e64b4aD96E04562", "Pyth: UNI / USD", "UNI", "USD", 8},
		{"0xC5774412Dbd3734A5925936f320EE91a2940488D", "Pyth: USDC / USD", "USDC", "USD", 8},
		{"0x7C4561Bb0F2d6947BeDA10F667191f6026E7Ac0c", "Pyth: PAXG / USD", "PAXG", "USD", 8},
		{"0x596cDF5D33486b035e8482688c638E7dcAf25a7b", "Pyth: BOLD / USD", "BOLD", "USD", 8},
	},
	entity.ChainBase: {
		{"0x903ab5FAE9ba089B1D4fCe55BBb40e1a07Acef59", "Pyth: pufETH / USD", "pufETH", "USD", 8},
		{"0x4429B7c2a044DD41fb8CA64d64398e8eF37814e4", "Pyth: weETH / USD", "weETH", "USD", 8},
		{"0xB9A063eC10abFE6C03D974a82E7A6429F88602bF", "Pyth: ezETH / USD", "ezETH", "USD", 8},
		{"0x75c5034e268Df404A839Ed89D507F26309217548", "Pyth: cbETH / USD", "cbETH", "USD", 8},
		{"0xb2c122567229A413bd8fe2aBADedaD2ED97436dB", "Pyth: wstETH / USD", "wstETH", "USD", 8},
		{"0x4af3E0d3A45Ac89234F5dEAc723d5eE6C0224De3", "Pyth: USDC / USD", "USDC", "USD", 8},
		{"0xC0F566304A44d27c40d4F81D629520Ac4eD1850E", "Pyth: uXRP / USD", "uXRP", "USD", 8},
		{"0x1b4671313DfA19B2F9B20eC2410712BC7CE6A89F", "Pyth: SUI / USD", "SUI", "USD", 8},
		{"0x59F78DE21a0b05d96Ae00c547BA951a3B905602f", "Pyth: ETH / USD", "ETH", "USD", 8},
		{"0x19feFdd35B67C2694F3532a8e0Be75dFf0f8bFBb", "Pyth: USR / USD", "USR", "USD", 8},
		{"0xCd76c50c3210C5AaA9c39D53A4f95BFd8b1a3a19", "Pyth: USR / USD", "USR", "USD", 8},
		{"0x9924a529d15067518Bf5182202BfAd71E4B64a74", "Pyth: RLP / USD", "RLP", "USD", 8},
	},
}

var api3Feeds = map[entity.ChainID][]StaticFeed{
	entity.ChainMainnet: {
		{"0xACE21E4A3cd5B5519FB6A999dF8B63b0Ce5A046A", "API3: cbBTC / USD", "cbBTC", "USD", 18},
		{"0x8E5e906761677E24D3AFd77DB6A19Dd9ed83F8c2", "API3: USDC / USD", "USDC", "USD", 18},
		{"0xeC4031539b851eEc918b41FE3e03d7236fEc7be8", "API3: wstETH / USD", "wstETH", "USD", 18},
		{"0x4C7A561D15001C6ee5E05996591419b11962fa1A", "API3: USDC / USD", "USDC", "USD", 18},
	},
}
