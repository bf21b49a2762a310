package enrichment

import "github.com/archon-research/stl/oracle-scanner/internal/domain/entity"

// StandardData builds the data block of a standard oracle.
func (m *Matcher) StandardData(chainID entity.ChainID, f entity.StandardOracleFeeds, vaults VaultLabels) *entity.StandardOutputData {
	return &entity.StandardOutputData{
		BaseFeedOne:  m.EnrichFeed(chainID, f.BaseFeedOne),
		BaseFeedTwo:  m.EnrichFeed(chainID, f.BaseFeedTwo),
		QuoteFeedOne: m.EnrichFeed(chainID, f.QuoteFeedOne),
		QuoteFeedTwo: m.EnrichFeed(chainID, f.QuoteFeedTwo),
		BaseVault:    vaults.Enriched(f.BaseVault, f.BaseVaultConversionSample),
		QuoteVault:   vaults.Enriched(f.QuoteVault, f.QuoteVaultConversionSample),
	}
}

// PartialData builds the feed block of a custom adapter, or nil when it
// exposes no feeds.
func (m *Matcher) PartialData(chainID entity.ChainID, p *entity.PartialFeeds) *entity.PartialOutputData {
	if p.IsEmpty() {
		return nil
	}
	return &entity.PartialOutputData{
		BaseFeedOne:  m.EnrichFeed(chainID, p.BaseFeedOne),
		BaseFeedTwo:  m.EnrichFeed(chainID, p.BaseFeedTwo),
		QuoteFeedOne: m.EnrichFeed(chainID, p.QuoteFeedOne),
		QuoteFeedTwo: m.EnrichFeed(chainID, p.QuoteFeedTwo),
	}
}
