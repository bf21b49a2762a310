// Package entity contains the core domain entities of the oracle scanner: chains,
// addresses, contract classifications, proxy state, the contract registry and the
// published output documents.
package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// ChainID identifies one of the supported EVM networks.
type ChainID uint64

const (
	ChainMainnet  ChainID = 1
	ChainBase     ChainID = 8453
	ChainArbitrum ChainID = 42161
	ChainPolygon  ChainID = 137
	ChainUnichain ChainID = 130
	ChainHyperEVM ChainID = 999
	ChainMonad    ChainID = 10143
)

// SupportedChains lists every chain the scanner knows about, in processing order.
var SupportedChains = []ChainID{
	ChainMainnet,
	ChainBase,
	ChainArbitrum,
	ChainPolygon,
	ChainUnichain,
	ChainHyperEVM,
	ChainMonad,
}

// ChainIDToName maps chain IDs to their names.
var ChainIDToName = map[ChainID]string{
	ChainMainnet:  "mainnet",
	ChainBase:     "base",
	ChainArbitrum: "arbitrum",
	ChainPolygon:  "polygon",
	ChainUnichain: "unichain",
	ChainHyperEVM: "hyperevm",
	ChainMonad:    "monad",
}

// ChainNameToID maps chain names to their chain IDs.
var ChainNameToID = func() map[string]ChainID {
	m := make(map[string]ChainID, len(ChainIDToName))
	for id, name := range ChainIDToName {
		m[name] = id
	}
	return m
}()

// String returns the chain name, or "chain-<id>" for unknown IDs.
func (c ChainID) String() string {
	if name, ok := ChainIDToName[c]; ok {
		return name
	}
	return fmt.Sprintf("chain-%d", uint64(c))
}

// IsSupported reports whether c is one of SupportedChains.
func (c ChainID) IsSupported() bool {
	_, ok := ChainIDToName[c]
	return ok
}

// ParseChainID accepts a chain name ("base") or a numeric ID ("8453").
func ParseChainID(s string) (ChainID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("chain must not be empty")
	}
	if id, ok := ChainNameToID[s]; ok {
		return id, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown chain %q", s)
	}
	id := ChainID(n)
	if !id.IsSupported() {
		return 0, fmt.Errorf("unsupported chain id %d", n)
	}
	return id, nil
}

// ParseChainList parses a comma separated list of chains. An empty string
// yields SupportedChains.
func ParseChainList(s string) ([]ChainID, error) {
	if strings.TrimSpace(s) == "" {
		return append([]ChainID(nil), SupportedChains...), nil
	}
	seen := make(map[ChainID]bool)
	var out []ChainID
	for _, part := range strings.Split(s, ",") {
		id, err := ParseChainID(part)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
