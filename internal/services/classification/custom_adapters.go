package classification

import (
	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
)

// UnknownReason is recorded for contracts nothing recognised.
const UnknownReason = "No standard feeds, no custom adapter match"

// AdapterPattern describes a known non-standard oracle adapter.
type AdapterPattern struct {
	ID               string
	Name             string
	Vendor           string
	Description      string
	PriceMethod      string
	DocumentationURL string

	// KnownImplementations lists, per chain, the addresses that identify the
	// adapter. A proxy matches through its implementation.
	KnownImplementations map[entity.ChainID][]entity.Address
}

// AdapterTable is an ordered list of patterns; the first match wins.
type AdapterTable []AdapterPattern

// DefaultAdapters are the adapters the scanner recognises out of the box.
var DefaultAdapters = AdapterTable{
	{
		ID:               "pendle-pt-oracle",
		Name:             "Pendle PT Oracle",
		Vendor:           "Pendle",
		Description:      "Pendle Principal Token oracle adapter",
		PriceMethod:      "getOraclePrice()",
		DocumentationURL: "https://docs.pendle.finance",
		KnownImplementations: map[entity.ChainID][]entity.Address{
			entity.ChainMainnet: {"0x66a1096c6366b2529274df4f5d8247827fe4cea8"},
		},
	},
	{
		ID:               "spectra-linear-discount",
		Name:             "Spectra Linear Discount Oracle",
		Vendor:           "Spectra",
		Description:      "Spectra linear discount oracle for PT tokens",
		PriceMethod:      "latestAnswer()",
		DocumentationURL: "https://docs.spectra.finance",
	},
	{
		ID:               "chronicle",
		Name:             "Chronicle Oracle",
		Vendor:           "Chronicle",
		Description:      "Chronicle oracle feed",
		PriceMethod:      "read()",
		DocumentationURL: "https://chroniclelabs.org",
	},
	{
		ID:               "lido-steth",
		Name:             "Lido stETH Rate",
		Vendor:           "Lido",
		Description:      "Lido stETH/ETH exchange rate",
		PriceMethod:      "getPooledEthByShares()",
		DocumentationURL: "https://docs.lido.fi",
		KnownImplementations: map[entity.ChainID][]entity.Address{
			entity.ChainMainnet: {"0xae7ab96520de3a18e5e111b5eaab095312d7fe84"},
		},
	},
	{
		ID:               "oval-wrapper",
		Name:             "Oval Price Feed Wrapper",
		Vendor:           "Oval",
		Description:      "UMA Oval wrapped price feed",
		PriceMethod:      "latestAnswer()",
		DocumentationURL: "https://docs.uma.xyz/oval",
	},
}

// Match checks implementation when set, else address, against the table.
func (t AdapterTable) Match(chainID entity.ChainID, address, implementation entity.Address) (entity.CustomAdapter, bool) {
	target := address
	if implementation != "" {
		target = implementation
	}

	for _, p := range t {
		for _, known := range p.KnownImplementations[chainID] {
			if known != target {
				continue
			}
			return entity.CustomAdapter{
				AdapterID:   p.ID,
				AdapterName: p.Name,
				Metadata: map[string]string{
					"vendor":           p.Vendor,
					"priceMethod":      p.PriceMethod,
					"documentationUrl": p.DocumentationURL,
				},
			}, true
		}
	}
	return entity.CustomAdapter{}, false
}

// Fallback returns the custom adapter matching the contract, or Unknown.
func (t AdapterTable) Fallback(chainID entity.ChainID, address, implementation entity.Address) entity.Classification {
	if adapter, ok := t.Match(chainID, address, implementation); ok {
		return adapter
	}
	return entity.Unknown{Reason: UnknownReason}
}

// MatchCustomAdapter matches against DefaultAdapters.
func MatchCustomAdapter(chainID entity.ChainID, address, implementation entity.Address) (entity.CustomAdapter, bool) {
	return DefaultAdapters.Match(chainID, address, implementation)
}
