package oracle_scanner

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
	"github.com/archon-research/stl/oracle-scanner/internal/services/enrichment"
)

// unclassifiedReason is published for registry entries with no
// classification, which only happens when a previous run was interrupted
// mid-resolution.
const unclassifiedReason = "Unclassified"

// publishedProviders are the remote registries reported in meta.json.
var publishedProviders = []entity.FeedProvider{entity.ProviderChainlink, entity.ProviderRedstone}

// buildOutput renders every contract of the chain, sorted by address.
func (cs *chainScan) buildOutput(labels enrichment.VaultLabels) *chainResult {
	chainID := cs.deps.ChainID
	addrs := cs.reg.Addresses()

	res := &chainResult{
		chainID: chainID,
		output: entity.OutputFile{
			Version:     entity.OutputVersion,
			GeneratedAt: cs.now,
			ChainID:     chainID,
			Oracles:     make([]entity.OracleOutput, 0, len(addrs)),
		},
	}

	for _, addr := range addrs {
		state, _ := cs.reg.Get(addr)
		o := cs.oracleOutput(addr, state, labels)
		res.output.Oracles = append(res.output.Oracles, o)

		res.summary.OracleCount++
		switch o.Type {
		case entity.OracleTypeStandard:
			res.summary.StandardCount++
		case entity.OracleTypeMeta:
			res.summary.MetaCount++
		case entity.OracleTypeCustom:
			res.summary.CustomCount++
		default:
			res.summary.UnknownCount++
		}
		if o.IsUpgradable {
			res.summary.UpgradableCount++
		}
	}
	return res
}

func (cs *chainScan) oracleOutput(addr entity.Address, state *entity.ContractState, labels enrichment.VaultLabels) entity.OracleOutput {
	chainID := cs.deps.ChainID
	matcher := cs.svc.matcher

	out := entity.OracleOutput{
		Address:       addr,
		ChainID:       chainID,
		LastUpdated:   state.LastSeenAt,
		IsUpgradable:  state.IsUpgradable(),
		Proxy:         proxyOutput(state.Proxy),
		LastScannedAt: state.LastSeenAt,
	}

	switch c := state.Classification.(type) {
	case entity.StandardV1:
		out.Type = entity.OracleTypeStandard
		out.Kind = string(c.Kind())
		out.Data = matcher.StandardData(chainID, c.Feeds, labels)
	case entity.StandardV2:
		out.Type = entity.OracleTypeStandard
		out.Kind = string(c.Kind())
		out.VerifiedByFactory = c.VerifiedByFactory
		out.Data = matcher.StandardData(chainID, c.Feeds, labels)
	case entity.MetaOracleDeviationTimelock:
		out.Type = entity.OracleTypeMeta
		out.Kind = string(c.Kind())
		data := entity.MetaOutputData{Config: c.Config}
		if c.OracleSources != nil {
			if c.OracleSources.Primary != nil {
				data.Primary = matcher.StandardData(chainID, *c.OracleSources.Primary, labels)
			}
			if c.OracleSources.Backup != nil {
				data.Backup = matcher.StandardData(chainID, *c.OracleSources.Backup, labels)
			}
		}
		out.Data = data
	case entity.CustomAdapter:
		out.Type = entity.OracleTypeCustom
		out.Kind = string(c.Kind())
		data := entity.CustomOutputData{
			AdapterID:   c.AdapterID,
			AdapterName: c.AdapterName,
			Feeds:       matcher.PartialData(chainID, c.Feeds),
		}
		if len(c.Metadata) > 0 {
			data.Metadata = c.Metadata
		}
		out.Data = data
	case entity.Unknown:
		out.Type = entity.OracleTypeUnknown
		out.Kind = string(c.Kind())
		out.Data = entity.UnknownOutputData{Reason: c.Reason}
	default:
		out.Type = entity.OracleTypeUnknown
		out.Data = entity.UnknownOutputData{Reason: unclassifiedReason}
	}
	return out
}

func proxyOutput(p *entity.ProxyState) entity.ProxyOutput {
	if p == nil || !p.IsProxy {
		return entity.ProxyOutput{}
	}
	return entity.ProxyOutput{
		IsProxy:          true,
		ProxyType:        p.ProxyType,
		Implementation:   p.Implementation,
		LastImplChangeAt: p.LastImplChangeAt,
	}
}

// buildSnapshot serialises the registry, every chain document and the
// metadata document.
func (s *Service) buildSnapshot(registry *entity.Registry, results []*chainResult, now time.Time) (outbound.Snapshot, *RunResult, error) {
	state, err := EncodeRegistry(registry)
	if err != nil {
		return outbound.Snapshot{}, nil, fmt.Errorf("encoding state: %w", err)
	}

	result := &RunResult{
		GeneratedAt:  now,
		Chains:       make(map[entity.ChainID]entity.ChainSummary, len(results)),
		FeedsMatched: s.matcher.Stats(),
	}
	snapshot := outbound.Snapshot{
		State:   state,
		Outputs: make(map[entity.ChainID][]byte, len(results)),
	}

	for _, res := range results {
		data, err := json.MarshalIndent(res.output, "", "  ")
		if err != nil {
			return outbound.Snapshot{}, nil, fmt.Errorf("encoding chain %s output: %w", res.chainID, err)
		}
		snapshot.Outputs[res.chainID] = data
		result.Chains[res.chainID] = res.summary
		result.ImplementationChanges += res.implementationChanges
	}

	meta := entity.MetadataFile{
		Version:         entity.OutputVersion,
		GeneratedAt:     now,
		GitSHA:          s.config.GitSHA,
		Chains:          result.Chains,
		ProviderSources: s.matcher.ProviderSources(publishedProviders...),
	}
	snapshot.Metadata, err = json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return outbound.Snapshot{}, nil, fmt.Errorf("encoding metadata: %w", err)
	}

	return snapshot, result, nil
}
