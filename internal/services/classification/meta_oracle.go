package classification

import "github.com/archon-research/stl/oracle-scanner/internal/domain/entity"

// ClassificationLookup returns the classification of an address on the same
// chain, or nil when it has none.
type ClassificationLookup func(entity.Address) entity.Classification

// BuildMetaOracle wraps cfg together with the standard feeds of its primary
// and backup oracles. OracleSources is nil when neither side is a standard
// template.
func BuildMetaOracle(cfg entity.MetaOracleConfig, lookup ClassificationLookup) entity.MetaOracleDeviationTimelock {
	sources := &entity.OracleSources{
		Primary: standardFeedsOf(cfg.PrimaryOracle, lookup),
		Backup:  standardFeedsOf(cfg.BackupOracle, lookup),
	}
	if sources.Primary == nil && sources.Backup == nil {
		sources = nil
	}
	return entity.MetaOracleDeviationTimelock{Config: cfg, OracleSources: sources}
}

func standardFeedsOf(addr entity.Address, lookup ClassificationLookup) *entity.StandardOracleFeeds {
	if addr == "" || lookup == nil {
		return nil
	}
	c := lookup(addr)
	if c == nil {
		return nil
	}
	feeds, ok := entity.StandardFeeds(c)
	if !ok {
		return nil
	}
	return &feeds
}
