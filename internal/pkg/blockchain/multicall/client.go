package multicall

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

var (
	_ outbound.Multicaller = (*Client)(nil)
	_ outbound.Multicaller = (*DirectCaller)(nil)
)

// Client batches read-only calls through Multicall3 aggregate3.
type Client struct {
	ethClient *ethclient.Client
	address   common.Address
	abi       *abi.ABI
}

func NewClient(ethClient *ethclient.Client, multicall3Address common.Address) (*Client, error) {
	multicallABI, err := abis.GetMulticall3ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load multicall3 ABI: %w", err)
	}

	return &Client{
		ethClient: ethClient,
		address:   multicall3Address,
		abi:       multicallABI,
	}, nil
}

func (c *Client) Address() common.Address {
	return c.address
}

func (c *Client) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	if len(calls) == 0 {
		return []outbound.Result{}, nil
	}

	data, err := c.abi.Pack("aggregate3", toCall3(calls))
	if err != nil {
		return nil, fmt.Errorf("failed to pack multicall: %w", err)
	}

	msg := ethereum.CallMsg{
		To:   &c.address,
		Data: data,
	}

	result, err := c.ethClient.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to call multicall contract at address=%s block=%s calls=%d: %w",
			c.address.Hex(), blockNumberString(blockNumber), len(calls), err)
	}

	unpacked, err := c.abi.Unpack("aggregate3", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack multicall response at block=%s: %w",
			blockNumberString(blockNumber), err)
	}

	resultsRaw := unpacked[0].([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})

	results := make([]outbound.Result, len(resultsRaw))
	for i, r := range resultsRaw {
		results[i] = outbound.Result{
			Success:    r.Success,
			ReturnData: r.ReturnData,
		}
	}

	return results, nil
}

func blockNumberString(blockNumber *big.Int) string {
	if blockNumber == nil {
		return "latest"
	}
	return blockNumber.String()
}

// call3 mirrors the Multicall3.Call3 tuple for ABI packing.
type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

func toCall3(calls []outbound.Call) []call3 {
	out := make([]call3, len(calls))
	for i, c := range calls {
		out[i] = call3(c)
	}
	return out
}

// New returns a Multicall3 client when the network has a deployment, and a
// JSON-RPC batching caller otherwise.
func New(ethClient *ethclient.Client, multicall3Address common.Address) (outbound.Multicaller, error) {
	if multicall3Address == (common.Address{}) {
		return NewDirectCaller(ethClient.Client()), nil
	}
	return NewClient(ethClient, multicall3Address)
}
