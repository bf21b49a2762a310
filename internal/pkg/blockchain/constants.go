package blockchain

import "github.com/ethereum/go-ethereum/common"

const (
	Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"
)

// EIP-1967 storage slots: bytes32(uint256(keccak256("eip1967.proxy.<name>")) - 1).
const (
	EIP1967ImplementationSlotHex = "0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc"
	EIP1967BeaconSlotHex         = "0xa3f0ad74e5423aebfd80d3ef4346578335a9a72aeaee59ff6cb3582b35133d50"
	EIP1967AdminSlotHex          = "0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103"
)

var (
	Multicall3 = common.HexToAddress(Multicall3Address)

	EIP1967ImplementationSlot = common.HexToHash(EIP1967ImplementationSlotHex)
	EIP1967BeaconSlot         = common.HexToHash(EIP1967BeaconSlotHex)
	EIP1967AdminSlot          = common.HexToHash(EIP1967AdminSlotHex)
)
