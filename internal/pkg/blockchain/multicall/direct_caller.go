package multicall

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/archon-research/stl/oracle-scanner/internal/pkg/partition"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

// DefaultMaxBatchSize is the largest JSON-RPC batch most public endpoints accept.
const DefaultMaxBatchSize = 50

// BatchCaller sends JSON-RPC batches. *rpc.Client implements it.
type BatchCaller interface {
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

// DirectCaller implements outbound.Multicaller with one eth_call per target,
// sent as JSON-RPC batches of at most MaxBatchSize calls. It serves networks
// without a Multicall3 deployment.
type DirectCaller struct {
	rpc          BatchCaller
	maxBatchSize int
}

// NewDirectCaller creates a DirectCaller using DefaultMaxBatchSize.
func NewDirectCaller(rpcClient BatchCaller) *DirectCaller {
	return &DirectCaller{rpc: rpcClient, maxBatchSize: DefaultMaxBatchSize}
}

// WithMaxBatchSize returns a copy of c that splits calls into batches of n.
func (c *DirectCaller) WithMaxBatchSize(n int) *DirectCaller {
	return &DirectCaller{rpc: c.rpc, maxBatchSize: n}
}

// ethCallArg mirrors go-ethereum's internal callMsg JSON encoding for eth_call.
type ethCallArg struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// Execute returns one result per call in input order. A transport failure of
// any batch fails the whole call, as does a failed call with AllowFailure unset.
func (c *DirectCaller) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	if len(calls) == 0 {
		return []outbound.Result{}, nil
	}

	blockArg := toBlockNumArg(blockNumber)
	results := make([]outbound.Result, 0, len(calls))
	for _, batch := range partition.Chunks(calls, c.maxBatchSize) {
		out, err := c.executeBatch(ctx, batch, blockArg)
		if err != nil {
			return nil, err
		}
		results = append(results, out...)
	}
	return results, nil
}

func (c *DirectCaller) executeBatch(ctx context.Context, calls []outbound.Call, blockArg string) ([]outbound.Result, error) {
	elems := make([]rpc.BatchElem, len(calls))
	returns := make([]hexutil.Bytes, len(calls))
	for i, call := range calls {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []any{ethCallArg{To: call.Target, Data: call.CallData}, blockArg},
			Result: &returns[i],
		}
	}

	if err := c.rpc.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("batch eth_call failed: %w", err)
	}

	results := make([]outbound.Result, len(calls))
	for i, elem := range elems {
		if elem.Error != nil {
			if !calls[i].AllowFailure {
				return nil, fmt.Errorf("direct call to %s failed: %w", calls[i].Target.Hex(), elem.Error)
			}
			continue
		}
		results[i] = outbound.Result{Success: true, ReturnData: returns[i]}
	}
	return results, nil
}

// Address returns a zero address since DirectCaller doesn't use a contract.
func (c *DirectCaller) Address() common.Address {
	return common.Address{}
}

func toBlockNumArg(number *big.Int) string {
	if number == nil || number.Sign() < 0 {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}
