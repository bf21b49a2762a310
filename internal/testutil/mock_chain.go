package testutil

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

// FakeChain is an in-memory chain implementing outbound.Multicaller and
// outbound.CodeReader. Read-only calls are answered from Responses keyed by
// target and exact calldata; anything unregistered reverts.
type FakeChain struct {
	mu        sync.Mutex
	responses map[common.Address]map[string][]byte
	code      map[common.Address][]byte
	storage   map[common.Address]map[common.Hash][]byte

	// ExecuteErr, when set, fails every Execute call before any call runs.
	ExecuteErr error
	// ExecuteHook, when set, can fail an individual Execute call by index
	// (zero-based across the fake's lifetime).
	ExecuteHook func(n int, calls []outbound.Call) error
	// CodeErr fails CodeAt for the listed accounts.
	CodeErr map[common.Address]error

	ExecuteCount int
	CodeAtCount  int
}

var (
	_ outbound.Multicaller = (*FakeChain)(nil)
	_ outbound.CodeReader  = (*FakeChain)(nil)
)

func NewFakeChain() *FakeChain {
	return &FakeChain{
		responses: make(map[common.Address]map[string][]byte),
		code:      make(map[common.Address][]byte),
		storage:   make(map[common.Address]map[common.Hash][]byte),
		CodeErr:   make(map[common.Address]error),
	}
}

// SetCall registers the return data of target called with callData.
func (f *FakeChain) SetCall(target common.Address, callData, returnData []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.responses[target] == nil {
		f.responses[target] = make(map[string][]byte)
	}
	f.responses[target][hex.EncodeToString(callData)] = returnData
}

// ClearCall makes target revert for callData.
func (f *FakeChain) ClearCall(target common.Address, callData []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.responses[target], hex.EncodeToString(callData))
}

// SetCode sets the deployed bytecode of account.
func (f *FakeChain) SetCode(account common.Address, code []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code[account] = code
}

// SetStorage sets a storage word of account.
func (f *FakeChain) SetStorage(account common.Address, slot common.Hash, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storage[account] == nil {
		f.storage[account] = make(map[common.Hash][]byte)
	}
	f.storage[account][slot] = common.LeftPadBytes(value, 32)
}

func (f *FakeChain) Execute(_ context.Context, calls []outbound.Call, _ *big.Int) ([]outbound.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.ExecuteCount
	f.ExecuteCount++
	if f.ExecuteErr != nil {
		return nil, f.ExecuteErr
	}
	if f.ExecuteHook != nil {
		if err := f.ExecuteHook(n, calls); err != nil {
			return nil, err
		}
	}

	results := make([]outbound.Result, len(calls))
	for i, call := range calls {
		data, ok := f.responses[call.Target][hex.EncodeToString(call.CallData)]
		if !ok {
			if !call.AllowFailure {
				return nil, errors.New("execution reverted")
			}
			results[i] = outbound.Result{Success: false, ReturnData: []byte{}}
			continue
		}
		results[i] = outbound.Result{Success: true, ReturnData: data}
	}
	return results, nil
}

func (f *FakeChain) Address() common.Address {
	return common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")
}

func (f *FakeChain) CodeAt(_ context.Context, account common.Address) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CodeAtCount++
	if err := f.CodeErr[account]; err != nil {
		return nil, err
	}
	return f.code[account], nil
}

func (f *FakeChain) StorageAt(_ context.Context, account common.Address, slot common.Hash) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if word, ok := f.storage[account][slot]; ok {
		return word, nil
	}
	return make([]byte, 32), nil
}
