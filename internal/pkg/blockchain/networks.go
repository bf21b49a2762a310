package blockchain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/env"
)

// NetworkConfig is the static per-chain configuration. Endpoints and
// meta-oracle factories can be overridden through the environment.
type NetworkConfig struct {
	ChainID    entity.ChainID
	RPCEnv     string
	DefaultRPC string

	// MorphoOracleV2Factory answers isMorphoChainlinkOracleV2. The zero
	// address means the chain has no factory and membership is always false.
	MorphoOracleV2Factory common.Address

	// Multicall is the Multicall3 deployment. The zero address selects
	// per-call JSON-RPC batching instead.
	Multicall common.Address

	MetaOracleFactoriesEnv string
}

var NetworkRegistry = map[entity.ChainID]NetworkConfig{
	entity.ChainMainnet: {
		ChainID:                entity.ChainMainnet,
		RPCEnv:                 "RPC_MAINNET",
		DefaultRPC:             "https://eth.llamarpc.com",
		MorphoOracleV2Factory:  common.HexToAddress("0x3A7bB36Ee3f3eE32A60e9f2b33c1e5f2E83ad766"),
		Multicall:              Multicall3,
		MetaOracleFactoriesEnv: "META_ORACLE_FACTORIES_MAINNET",
	},
	entity.ChainBase: {
		ChainID:                entity.ChainBase,
		RPCEnv:                 "RPC_BASE",
		DefaultRPC:             "https://mainnet.base.org",
		MorphoOracleV2Factory:  common.HexToAddress("0x2DC205F24BCb6B311E5cdf0745B0741648Aebd3d"),
		Multicall:              Multicall3,
		MetaOracleFactoriesEnv: "META_ORACLE_FACTORIES_BASE",
	},
	entity.ChainArbitrum: {
		ChainID:                entity.ChainArbitrum,
		RPCEnv:                 "RPC_ARBITRUM",
		DefaultRPC:             "https://arb1.arbitrum.io/rpc",
		MorphoOracleV2Factory:  common.HexToAddress("0x98Ce5D183DC0c176f54D37162F87e7eD7f2E41b5"),
		Multicall:              Multicall3,
		MetaOracleFactoriesEnv: "META_ORACLE_FACTORIES_ARBITRUM",
	},
	entity.ChainPolygon: {
		ChainID:                entity.ChainPolygon,
		RPCEnv:                 "RPC_POLYGON",
		DefaultRPC:             "https://polygon-rpc.com",
		MorphoOracleV2Factory:  common.HexToAddress("0x1ff7895Eb842794c5d07C4c547b6730e61295215"),
		Multicall:              Multicall3,
		MetaOracleFactoriesEnv: "META_ORACLE_FACTORIES_POLYGON",
	},
	entity.ChainUnichain: {
		ChainID:                entity.ChainUnichain,
		RPCEnv:                 "RPC_UNICHAIN",
		DefaultRPC:             "https://mainnet.unichain.org",
		Multicall:              Multicall3,
		MetaOracleFactoriesEnv: "META_ORACLE_FACTORIES_UNICHAIN",
	},
	entity.ChainHyperEVM: {
		ChainID:                entity.ChainHyperEVM,
		RPCEnv:                 "RPC_HYPEREVM",
		DefaultRPC:             "https://rpc.hyperliquid.xyz/evm",
		Multicall:              Multicall3,
		MetaOracleFactoriesEnv: "META_ORACLE_FACTORIES_HYPEREVM",
	},
	entity.ChainMonad: {
		ChainID:                entity.ChainMonad,
		RPCEnv:                 "RPC_MONAD",
		DefaultRPC:             "https://testnet-rpc.monad.xyz",
		Multicall:              Multicall3,
		MetaOracleFactoriesEnv: "META_ORACLE_FACTORIES_MONAD",
	},
}

func GetNetworkConfig(chainID entity.ChainID) (NetworkConfig, bool) {
	cfg, ok := NetworkRegistry[chainID]
	return cfg, ok
}

// RPCURL returns the endpoint from the environment, or the public default.
func (n NetworkConfig) RPCURL() string {
	return env.Get(n.RPCEnv, n.DefaultRPC)
}

// HasMorphoFactory reports whether membership can be checked on this chain.
func (n NetworkConfig) HasMorphoFactory() bool {
	return n.MorphoOracleV2Factory != (common.Address{})
}

// MetaOracleFactories parses the comma-separated factory list from the
// environment. An unset variable yields no factories.
func (n NetworkConfig) MetaOracleFactories() ([]common.Address, error) {
	return ParseAddressList(env.Get(n.MetaOracleFactoriesEnv, ""))
}

// ParseAddressList parses a comma-separated list of hex addresses, skipping
// blanks and duplicates.
func ParseAddressList(s string) ([]common.Address, error) {
	var out []common.Address
	seen := make(map[common.Address]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !common.IsHexAddress(part) {
			return nil, fmt.Errorf("invalid address %q", part)
		}
		addr := common.HexToAddress(part)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out, nil
}
