package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

// FetchFactoryMembership calls isMorphoChainlinkOracleV2 for every oracle in a
// single multicall. A reverted or undecodable call counts as false; only a
// failure of the multicall itself is returned as an error.
func FetchFactoryMembership(
	ctx context.Context,
	multicaller outbound.Multicaller,
	factoryABI *abi.ABI,
	factory common.Address,
	oracles []common.Address,
) ([]bool, error) {
	if len(oracles) == 0 {
		return nil, nil
	}

	calls := make([]outbound.Call, len(oracles))
	for i, oracle := range oracles {
		data, err := factoryABI.Pack("isMorphoChainlinkOracleV2", oracle)
		if err != nil {
			return nil, fmt.Errorf("packing isMorphoChainlinkOracleV2: %w", err)
		}
		calls[i] = outbound.Call{Target: factory, AllowFailure: true, CallData: data}
	}

	results, err := multicaller.Execute(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("executing membership multicall: %w", err)
	}
	if len(results) != len(oracles) {
		return nil, fmt.Errorf("expected %d multicall results, got %d", len(oracles), len(results))
	}

	out := make([]bool, len(oracles))
	for i, r := range results {
		if !r.Success {
			continue
		}
		unpacked, err := factoryABI.Unpack("isMorphoChainlinkOracleV2", r.ReturnData)
		if err != nil || len(unpacked) == 0 {
			continue
		}
		member, ok := unpacked[0].(bool)
		out[i] = ok && member
	}
	return out, nil
}

// FetchOracleFeeds reads the given immutable getters from every oracle in a
// single multicall. The result has one entry per oracle; an entry is nil when
// any of its getters failed, so incomplete reads are never half-populated.
func FetchOracleFeeds(
	ctx context.Context,
	multicaller outbound.Multicaller,
	oracleABI *abi.ABI,
	getters []string,
	oracles []common.Address,
) ([]*entity.StandardOracleFeeds, error) {
	if len(oracles) == 0 {
		return nil, nil
	}

	callData := make([][]byte, len(getters))
	for j, getter := range getters {
		data, err := oracleABI.Pack(getter)
		if err != nil {
			return nil, fmt.Errorf("packing %s: %w", getter, err)
		}
		callData[j] = data
	}

	calls := make([]outbound.Call, 0, len(oracles)*len(getters))
	for _, oracle := range oracles {
		for j := range getters {
			calls = append(calls, outbound.Call{Target: oracle, AllowFailure: true, CallData: callData[j]})
		}
	}

	results, err := multicaller.Execute(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("executing feed multicall: %w", err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("expected %d multicall results, got %d", len(calls), len(results))
	}

	out := make([]*entity.StandardOracleFeeds, len(oracles))
	for i := range oracles {
		out[i] = decodeFeeds(oracleABI, getters, results[i*len(getters):(i+1)*len(getters)])
	}
	return out, nil
}

func decodeFeeds(oracleABI *abi.ABI, getters []string, results []outbound.Result) *entity.StandardOracleFeeds {
	feeds := &entity.StandardOracleFeeds{
		BaseVaultConversionSample:  entity.NewBigInt(nil),
		QuoteVaultConversionSample: entity.NewBigInt(nil),
	}

	for j, getter := range getters {
		r := results[j]
		if !r.Success {
			return nil
		}
		unpacked, err := oracleABI.Unpack(getter, r.ReturnData)
		if err != nil || len(unpacked) == 0 {
			return nil
		}

		switch v := unpacked[0].(type) {
		case common.Address:
			addr := entity.NullableAddress(v)
			switch getter {
			case "BASE_FEED_1":
				feeds.BaseFeedOne = addr
			case "BASE_FEED_2":
				feeds.BaseFeedTwo = addr
			case "QUOTE_FEED_1":
				feeds.QuoteFeedOne = addr
			case "QUOTE_FEED_2":
				feeds.QuoteFeedTwo = addr
			case "BASE_VAULT":
				feeds.BaseVault = addr
			case "QUOTE_VAULT":
				feeds.QuoteVault = addr
			}
		case *big.Int:
			switch getter {
			case "BASE_VAULT_CONVERSION_SAMPLE":
				feeds.BaseVaultConversionSample = entity.NewBigInt(v)
			case "QUOTE_VAULT_CONVERSION_SAMPLE":
				feeds.QuoteVaultConversionSample = entity.NewBigInt(v)
			}
		default:
			return nil
		}
	}

	return feeds
}

// CurrentOracleResult is the live currentOracle() read of one meta-oracle.
type CurrentOracleResult struct {
	CurrentOracle entity.Address
	Success       bool
}

// FetchCurrentOracles reads currentOracle() from every meta-oracle in a single
// multicall.
func FetchCurrentOracles(
	ctx context.Context,
	multicaller outbound.Multicaller,
	metaABI *abi.ABI,
	metaOracles []common.Address,
) ([]CurrentOracleResult, error) {
	if len(metaOracles) == 0 {
		return nil, nil
	}

	data, err := metaABI.Pack("currentOracle")
	if err != nil {
		return nil, fmt.Errorf("packing currentOracle: %w", err)
	}

	calls := make([]outbound.Call, len(metaOracles))
	for i, meta := range metaOracles {
		calls[i] = outbound.Call{Target: meta, AllowFailure: true, CallData: data}
	}

	results, err := multicaller.Execute(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("executing currentOracle multicall: %w", err)
	}
	if len(results) != len(metaOracles) {
		return nil, fmt.Errorf("expected %d multicall results, got %d", len(metaOracles), len(results))
	}

	out := make([]CurrentOracleResult, len(metaOracles))
	for i, r := range results {
		if !r.Success {
			continue
		}
		unpacked, err := metaABI.Unpack("currentOracle", r.ReturnData)
		if err != nil || len(unpacked) == 0 {
			continue
		}
		if addr, ok := unpacked[0].(common.Address); ok {
			out[i] = CurrentOracleResult{CurrentOracle: entity.NullableAddress(addr), Success: true}
		}
	}
	return out, nil
}
