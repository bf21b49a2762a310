package entity

import "time"

// OutputVersion is the schema version of the published documents.
const OutputVersion = "1.0.0"

// FeedProvider names the publisher of a price feed.
type FeedProvider string

const (
	ProviderChainlink FeedProvider = "Chainlink"
	ProviderRedstone  FeedProvider = "Redstone"
	ProviderChronicle FeedProvider = "Chronicle"
	ProviderPyth      FeedProvider = "Pyth"
	ProviderOval      FeedProvider = "Oval"
	ProviderLido      FeedProvider = "Lido"
	ProviderPendle    FeedProvider = "Pendle"
	ProviderSpectra   FeedProvider = "Spectra"
	ProviderCompound  FeedProvider = "Compound"
	ProviderAPI3      FeedProvider = "API3"
)

// FeedInfo is third-party metadata about a feed address, used only to label output.
type FeedInfo struct {
	Address            Address      `json:"address"`
	ChainID            ChainID      `json:"chainId"`
	Provider           FeedProvider `json:"provider"`
	Description        string       `json:"description"`
	Pair               []string     `json:"pair,omitempty"`
	Decimals           *int         `json:"decimals,omitempty"`
	Heartbeat          *int         `json:"heartbeat,omitempty"`
	DeviationThreshold *float64     `json:"deviationThreshold,omitempty"`
}

// FeedProviderRegistry is one provider's feed directory for one chain.
type FeedProviderRegistry struct {
	ChainID   ChainID              `json:"chainId"`
	Provider  FeedProvider         `json:"provider"`
	Feeds     map[Address]FeedInfo `json:"feeds"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// NewFeedProviderRegistry returns an empty registry stamped with updatedAt.
func NewFeedProviderRegistry(chainID ChainID, provider FeedProvider, updatedAt time.Time) *FeedProviderRegistry {
	return &FeedProviderRegistry{
		ChainID:   chainID,
		Provider:  provider,
		Feeds:     make(map[Address]FeedInfo),
		UpdatedAt: updatedAt.UTC(),
	}
}

// Add registers info under its address.
func (r *FeedProviderRegistry) Add(info FeedInfo) {
	info.ChainID = r.ChainID
	info.Provider = r.Provider
	r.Feeds[info.Address] = info
}

// ChainRef is the nested chain reference used by enriched feeds.
type ChainRef struct {
	ID ChainID `json:"id"`
}

// EnrichedFeed is a feed address with whatever label the registries provide.
type EnrichedFeed struct {
	Address     Address       `json:"address"`
	Chain       ChainRef      `json:"chain"`
	Description string        `json:"description"`
	Pair        []string      `json:"pair"`
	Provider    *FeedProvider `json:"provider"`
	Decimals    *int          `json:"decimals,omitempty"`
}

// EnrichedVault is an ERC-4626 vault with display labels.
type EnrichedVault struct {
	Address          Address  `json:"address"`
	Symbol           string   `json:"symbol,omitempty"`
	Asset            Address  `json:"asset,omitempty"`
	AssetSymbol      string   `json:"assetSymbol,omitempty"`
	Pair             []string `json:"pair"`
	ConversionSample BigInt   `json:"conversionSample"`
}

// OracleType is the coarse, consumer facing classification.
type OracleType string

const (
	OracleTypeStandard OracleType = "standard"
	OracleTypeMeta     OracleType = "meta"
	OracleTypeCustom   OracleType = "custom"
	OracleTypeUnknown  OracleType = "unknown"
)

// ProxyOutput is the published view of a ProxyState.
type ProxyOutput struct {
	IsProxy          bool       `json:"isProxy"`
	ProxyType        ProxyType  `json:"proxyType,omitempty"`
	Implementation   Address    `json:"implementation,omitempty"`
	LastImplChangeAt *time.Time `json:"lastImplChangeAt,omitempty"`
}

// StandardOutputData is the data block of a standard oracle.
type StandardOutputData struct {
	BaseFeedOne  *EnrichedFeed  `json:"baseFeedOne"`
	BaseFeedTwo  *EnrichedFeed  `json:"baseFeedTwo"`
	QuoteFeedOne *EnrichedFeed  `json:"quoteFeedOne"`
	QuoteFeedTwo *EnrichedFeed  `json:"quoteFeedTwo"`
	BaseVault    *EnrichedVault `json:"baseVault,omitempty"`
	QuoteVault   *EnrichedVault `json:"quoteVault,omitempty"`
}

// PartialOutputData is the feed block of a custom adapter.
type PartialOutputData struct {
	BaseFeedOne  *EnrichedFeed `json:"baseFeedOne,omitempty"`
	BaseFeedTwo  *EnrichedFeed `json:"baseFeedTwo,omitempty"`
	QuoteFeedOne *EnrichedFeed `json:"quoteFeedOne,omitempty"`
	QuoteFeedTwo *EnrichedFeed `json:"quoteFeedTwo,omitempty"`
}

// MetaOutputData is the data block of a meta-oracle.
type MetaOutputData struct {
	Config  MetaOracleConfig    `json:"config"`
	Primary *StandardOutputData `json:"primary,omitempty"`
	Backup  *StandardOutputData `json:"backup,omitempty"`
}

// CustomOutputData is the data block of a custom adapter.
type CustomOutputData struct {
	AdapterID   string             `json:"adapterId"`
	AdapterName string             `json:"adapterName"`
	Feeds       *PartialOutputData `json:"feeds,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

// UnknownOutputData is the data block of an unclassified contract.
type UnknownOutputData struct {
	Reason string `json:"reason"`
}

// OracleOutput is one entry of a per-chain output document.
type OracleOutput struct {
	Address           Address     `json:"address"`
	ChainID           ChainID     `json:"chainId"`
	Type              OracleType  `json:"type"`
	Kind              string      `json:"kind,omitempty"`
	VerifiedByFactory bool        `json:"verifiedByFactory"`
	LastUpdated       time.Time   `json:"lastUpdated"`
	IsUpgradable      bool        `json:"isUpgradable"`
	Proxy             ProxyOutput `json:"proxy"`
	Data              any         `json:"data"`
	LastScannedAt     time.Time   `json:"lastScannedAt"`
}

// OutputFile is the per-chain published document.
type OutputFile struct {
	Version     string         `json:"version"`
	GeneratedAt time.Time      `json:"generatedAt"`
	ChainID     ChainID        `json:"chainId"`
	Oracles     []OracleOutput `json:"oracles"`
}

// ChainSummary holds per-chain counts for the metadata document.
type ChainSummary struct {
	OracleCount     int `json:"oracleCount"`
	StandardCount   int `json:"standardCount"`
	MetaCount       int `json:"metaCount"`
	CustomCount     int `json:"customCount"`
	UnknownCount    int `json:"unknownCount"`
	UpgradableCount int `json:"upgradableCount"`
}

// ProviderSource summarises one feed provider across chains.
type ProviderSource struct {
	UpdatedAt time.Time `json:"updatedAt"`
	FeedCount int       `json:"feedCount"`
}

// MetadataFile is the cross-chain published document.
type MetadataFile struct {
	Version         string                    `json:"version"`
	GeneratedAt     time.Time                 `json:"generatedAt"`
	GitSHA          string                    `json:"gitSha,omitempty"`
	Chains          map[ChainID]ChainSummary  `json:"chains"`
	ProviderSources map[string]ProviderSource `json:"providerSources"`
}
