package testutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain/abis"
)

func mustABI(t *testing.T, fn func() (*abi.ABI, error)) *abi.ABI {
	t.Helper()
	parsed, err := fn()
	if err != nil {
		t.Fatalf("loading ABI: %v", err)
	}
	return parsed
}

func mustPack(t *testing.T, contractABI *abi.ABI, method string, args ...interface{}) []byte {
	t.Helper()
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		t.Fatalf("packing %s input: %v", method, err)
	}
	return data
}

func mustPackOutput(t *testing.T, contractABI *abi.ABI, method string, values ...interface{}) []byte {
	t.Helper()
	data, err := contractABI.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("packing %s output: %v", method, err)
	}
	return data
}

// RegisterFactoryMember answers isMorphoChainlinkOracleV2(oracle) on factory.
func RegisterFactoryMember(t *testing.T, chain *FakeChain, factory, oracle common.Address, member bool) {
	t.Helper()
	factoryABI := mustABI(t, abis.GetMorphoChainlinkOracleV2FactoryABI)
	chain.SetCall(factory,
		mustPack(t, factoryABI, "isMorphoChainlinkOracleV2", oracle),
		mustPackOutput(t, factoryABI, "isMorphoChainlinkOracleV2", member))
}

// RegisterMorphoOracle answers the feed getters of a Morpho Chainlink oracle.
// With v2 set, the vault getters and conversion samples are answered too.
func RegisterMorphoOracle(t *testing.T, chain *FakeChain, oracle common.Address, feeds entity.StandardOracleFeeds, v2 bool) {
	t.Helper()
	oracleABI := mustABI(t, abis.GetMorphoChainlinkOracleV2ABI)

	addresses := map[string]entity.Address{
		"BASE_FEED_1":  feeds.BaseFeedOne,
		"BASE_FEED_2":  feeds.BaseFeedTwo,
		"QUOTE_FEED_1": feeds.QuoteFeedOne,
		"QUOTE_FEED_2": feeds.QuoteFeedTwo,
	}
	if v2 {
		addresses["BASE_VAULT"] = feeds.BaseVault
		addresses["QUOTE_VAULT"] = feeds.QuoteVault
		chain.SetCall(oracle, mustPack(t, oracleABI, "BASE_VAULT_CONVERSION_SAMPLE"),
			mustPackOutput(t, oracleABI, "BASE_VAULT_CONVERSION_SAMPLE", feeds.BaseVaultConversionSample.Value()))
		chain.SetCall(oracle, mustPack(t, oracleABI, "QUOTE_VAULT_CONVERSION_SAMPLE"),
			mustPackOutput(t, oracleABI, "QUOTE_VAULT_CONVERSION_SAMPLE", feeds.QuoteVaultConversionSample.Value()))
	}

	for getter, addr := range addresses {
		chain.SetCall(oracle, mustPack(t, oracleABI, getter), mustPackOutput(t, oracleABI, getter, addr.Common()))
	}
}

// FailMorphoGetter makes one getter of oracle revert.
func FailMorphoGetter(t *testing.T, chain *FakeChain, oracle common.Address, getter string) {
	t.Helper()
	oracleABI := mustABI(t, abis.GetMorphoChainlinkOracleV2ABI)
	chain.ClearCall(oracle, mustPack(t, oracleABI, getter))
}

// RegisterCurrentOracle answers currentOracle() on a meta-oracle.
func RegisterCurrentOracle(t *testing.T, chain *FakeChain, metaOracle, current common.Address) {
	t.Helper()
	metaABI := mustABI(t, abis.GetMetaOracleDeviationTimelockABI)
	chain.SetCall(metaOracle, mustPack(t, metaABI, "currentOracle"), mustPackOutput(t, metaABI, "currentOracle", current))
}

// RegisterVault answers the ERC-4626 symbol() and asset() of vault and the
// ERC-20 symbol() of its asset.
func RegisterVault(t *testing.T, chain *FakeChain, vault common.Address, symbol string, asset common.Address, assetSymbol string) {
	t.Helper()
	vaultABI := mustABI(t, abis.GetERC4626ABI)
	chain.SetCall(vault, mustPack(t, vaultABI, "symbol"), mustPackOutput(t, vaultABI, "symbol", symbol))
	chain.SetCall(vault, mustPack(t, vaultABI, "asset"), mustPackOutput(t, vaultABI, "asset", asset))
	chain.SetCall(asset, mustPack(t, vaultABI, "symbol"), mustPackOutput(t, vaultABI, "symbol", assetSymbol))
}

// MetaOracleDeployment describes one MetaOracleDeployed event.
type MetaOracleDeployment struct {
	MetaOracle         common.Address
	Implementation     common.Address
	Primary            common.Address
	Backup             common.Address
	DeviationThreshold *big.Int
	ChallengeTimelock  uint64
	HealingTimelock    uint64
}

// MetaOracleDeployedLog builds the log a factory emits for d.
func MetaOracleDeployedLog(t *testing.T, factory common.Address, block uint64, d MetaOracleDeployment) types.Log {
	t.Helper()
	factoryABI := mustABI(t, abis.GetMetaOracleFactoryABI)
	event := factoryABI.Events["MetaOracleDeployed"]

	data, err := event.Inputs.NonIndexed().Pack(
		d.Implementation,
		d.DeviationThreshold,
		new(big.Int).SetUint64(d.ChallengeTimelock),
		new(big.Int).SetUint64(d.HealingTimelock),
	)
	if err != nil {
		t.Fatalf("packing MetaOracleDeployed data: %v", err)
	}

	return types.Log{
		Address: factory,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(d.MetaOracle.Bytes()),
			common.BytesToHash(d.Primary.Bytes()),
			common.BytesToHash(d.Backup.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
	}
}

// MulticallResult matches the multicall3 aggregate3 output tuple.
type MulticallResult struct {
	Success    bool
	ReturnData []byte
}

// PackMulticallAggregate3 ABI-encodes results as aggregate3 return data.
func PackMulticallAggregate3(t *testing.T, results []MulticallResult) []byte {
	t.Helper()
	return mustPackOutput(t, mustABI(t, abis.GetMulticall3ABI), "aggregate3", results)
}
