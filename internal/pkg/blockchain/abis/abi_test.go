package abis

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestGetters(t *testing.T) {
	tests := []struct {
		name   string
		get    func() (*abi.ABI, error)
		method string
		event  string
	}{
		{"ERC20", GetERC20ABI, "symbol", ""},
		{"ERC4626", GetERC4626ABI, "asset", ""},
		{"MetaOracleDeviationTimelock", GetMetaOracleDeviationTimelockABI, "currentOracle", ""},
		{"MetaOracleFactory", GetMetaOracleFactoryABI, "", "MetaOracleDeployed"},
		{"MorphoChainlinkOracleV1", GetMorphoChainlinkOracleV1ABI, "BASE_FEED_1", ""},
		{"MorphoChainlinkOracleV2", GetMorphoChainlinkOracleV2ABI, "BASE_VAULT", ""},
		{"MorphoChainlinkOracleV2Factory", GetMorphoChainlinkOracleV2FactoryABI, "isMorphoChainlinkOracleV2", ""},
		{"Multicall3", GetMulticall3ABI, "aggregate3", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := tt.get()
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if tt.method != "" {
				if _, ok := first.Methods[tt.method]; !ok {
					t.Errorf("method %s missing", tt.method)
				}
			}
			if tt.event != "" {
				if _, ok := first.Events[tt.event]; !ok {
					t.Errorf("event %s missing", tt.event)
				}
			}
			second, err := tt.get()
			if err != nil {
				t.Fatalf("second parse: %v", err)
			}
			if first != second {
				t.Error("expected the cached ABI to be returned")
			}
		})
	}
}

func TestParseABI_Invalid(t *testing.T) {
	if _, err := ParseABI(`[{"type":"function","name":`); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}
