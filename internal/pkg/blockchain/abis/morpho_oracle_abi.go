package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// Morpho Chainlink oracle immutable getters, in read order.
var (
	MorphoOracleV1Getters = []string{"BASE_FEED_1", "BASE_FEED_2", "QUOTE_FEED_1", "QUOTE_FEED_2"}
	MorphoOracleV2Getters = []string{
		"BASE_FEED_1", "BASE_FEED_2", "QUOTE_FEED_1", "QUOTE_FEED_2",
		"BASE_VAULT", "QUOTE_VAULT",
		"BASE_VAULT_CONVERSION_SAMPLE", "QUOTE_VAULT_CONVERSION_SAMPLE",
	}
)

// GetMorphoChainlinkOracleV1ABI returns the feed getters of MorphoChainlinkOracle (V1).
func GetMorphoChainlinkOracleV1ABI() (*abi.ABI, error) {
	return ParseABI(`[
		{"inputs": [], "name": "BASE_FEED_1", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "BASE_FEED_2", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "QUOTE_FEED_1", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "QUOTE_FEED_2", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "price", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
	]`)
}

// GetMorphoChainlinkOracleV2ABI returns the feed and vault getters of MorphoChainlinkOracleV2.
func GetMorphoChainlinkOracleV2ABI() (*abi.ABI, error) {
	return ParseABI(`[
		{"inputs": [], "name": "BASE_FEED_1", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "BASE_FEED_2", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "QUOTE_FEED_1", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "QUOTE_FEED_2", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "BASE_VAULT", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "QUOTE_VAULT", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "BASE_VAULT_CONVERSION_SAMPLE", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "QUOTE_VAULT_CONVERSION_SAMPLE", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "SCALE_FACTOR", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "price", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
	]`)
}

// GetMorphoChainlinkOracleV2FactoryABI returns the membership predicate of
// MorphoChainlinkOracleV2Factory.
func GetMorphoChainlinkOracleV2FactoryABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [{"name": "oracle", "type": "address"}],
			"name": "isMorphoChainlinkOracleV2",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
