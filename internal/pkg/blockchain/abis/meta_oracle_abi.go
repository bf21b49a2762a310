package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetMetaOracleDeviationTimelockABI returns the view functions of
// MetaOracleDeviationTimelock.
func GetMetaOracleDeviationTimelockABI() (*abi.ABI, error) {
	return ParseABI(`[
		{"inputs": [], "name": "primaryOracle", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "backupOracle", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "currentOracle", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "deviationThreshold", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "challengeTimelockDuration", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "healingTimelockDuration", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
	]`)
}

// GetMetaOracleFactoryABI returns the MetaOracleDeployed event emitted by the
// deviation-timelock factory.
func GetMetaOracleFactoryABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"anonymous": false,
			"inputs": [
				{"indexed": true, "name": "metaOracleAddress", "type": "address"},
				{"indexed": false, "name": "implementationAddress", "type": "address"},
				{"indexed": true, "name": "primaryOracle", "type": "address"},
				{"indexed": true, "name": "backupOracle", "type": "address"},
				{"indexed": false, "name": "deviationThreshold", "type": "uint256"},
				{"indexed": false, "name": "challengeTimelockDuration", "type": "uint256"},
				{"indexed": false, "name": "healingTimelockDuration", "type": "uint256"}
			],
			"name": "MetaOracleDeployed",
			"type": "event"
		}
	]`)
}
