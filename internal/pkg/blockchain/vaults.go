package blockchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

// VaultInfo is the ERC-4626 metadata of one vault.
type VaultInfo struct {
	Symbol  string
	Asset   entity.Address
	Success bool
}

// FetchVaultInfo reads symbol() and asset() from every vault in a single
// multicall. A vault is successful only if both calls decode.
func FetchVaultInfo(
	ctx context.Context,
	multicaller outbound.Multicaller,
	vaultABI *abi.ABI,
	vaults []common.Address,
) ([]VaultInfo, error) {
	if len(vaults) == 0 {
		return nil, nil
	}

	symbolData, err := vaultABI.Pack("symbol")
	if err != nil {
		return nil, fmt.Errorf("packing symbol: %w", err)
	}
	assetData, err := vaultABI.Pack("asset")
	if err != nil {
		return nil, fmt.Errorf("packing asset: %w", err)
	}

	calls := make([]outbound.Call, 0, len(vaults)*2)
	for _, vault := range vaults {
		calls = append(calls,
			outbound.Call{Target: vault, AllowFailure: true, CallData: symbolData},
			outbound.Call{Target: vault, AllowFailure: true, CallData: assetData},
		)
	}

	results, err := multicaller.Execute(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("executing vault multicall: %w", err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("expected %d multicall results, got %d", len(calls), len(results))
	}

	out := make([]VaultInfo, len(vaults))
	for i := range vaults {
		symbol, ok := unpackString(vaultABI, "symbol", results[2*i])
		if !ok {
			continue
		}
		r := results[2*i+1]
		if !r.Success {
			continue
		}
		unpacked, err := vaultABI.Unpack("asset", r.ReturnData)
		if err != nil || len(unpacked) == 0 {
			continue
		}
		asset, ok := unpacked[0].(common.Address)
		if !ok {
			continue
		}
		out[i] = VaultInfo{Symbol: symbol, Asset: entity.AddressFromCommon(asset), Success: true}
	}
	return out, nil
}

// FetchSymbols reads symbol() from every token in a single multicall. Tokens
// whose call failed get an empty symbol.
func FetchSymbols(
	ctx context.Context,
	multicaller outbound.Multicaller,
	erc20ABI *abi.ABI,
	tokens []common.Address,
) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	data, err := erc20ABI.Pack("symbol")
	if err != nil {
		return nil, fmt.Errorf("packing symbol: %w", err)
	}

	calls := make([]outbound.Call, len(tokens))
	for i, token := range tokens {
		calls[i] = outbound.Call{Target: token, AllowFailure: true, CallData: data}
	}

	results, err := multicaller.Execute(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("executing symbol multicall: %w", err)
	}
	if len(results) != len(tokens) {
		return nil, fmt.Errorf("expected %d multicall results, got %d", len(tokens), len(results))
	}

	out := make([]string, len(tokens))
	for i, r := range results {
		out[i], _ = unpackString(erc20ABI, "symbol", r)
	}
	return out, nil
}

func unpackString(contractABI *abi.ABI, method string, r outbound.Result) (string, bool) {
	if !r.Success {
		return "", false
	}
	unpacked, err := contractABI.Unpack(method, r.ReturnData)
	if err != nil || len(unpacked) == 0 {
		return "", false
	}
	s, ok := unpacked[0].(string)
	return s, ok
}
