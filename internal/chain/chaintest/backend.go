// Package chaintest provides an in-memory chain backend for tests. Contract
// reads are answered by per-method handlers and every submitted transaction
// is recorded.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Handler answers a contract call with output values, or an error.
type Handler func(from common.Address, args []interface{}) ([]interface{}, error)

// RevertError mimics the error a node returns for a reverted call.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string          { return "execution reverted" }
func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

// RPCError is a JSON-RPC error response from a node that is reachable but
// refuses the request.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }

// Revert builds a RevertError for a custom error of contract.
func Revert(contract *abi.ABI, name string, args ...interface{}) *RevertError {
	e := contract.Errors[name]
	payload, err := e.Inputs.Pack(args...)
	if err != nil {
		panic(err)
	}
	return &RevertError{Data: append(append([]byte{}, e.ID.Bytes()[:4]...), payload...)}
}

type handlerKey struct {
	to       common.Address
	selector [4]byte
}

type handlerEntry struct {
	method abi.Method
	fn     Handler
}

type Backend struct {
	mu sync.Mutex

	ChainID  *big.Int
	BaseFee  *big.Int
	Tip      *big.Int
	GasPrice *big.Int
	Head     uint64

	// EstimateGas hook; nil estimates 100k for everything.
	Estimate func(msg ethereum.CallMsg) (uint64, error)
	// Receipt hook builds the receipt for a mined transaction; nil yields a
	// successful receipt without logs.
	Receipt func(tx *types.Transaction) *types.Receipt
	// SendErr hook fails a submission before it is recorded.
	SendErr func(tx *types.Transaction) error

	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	handlers map[handlerKey]handlerEntry
	receipts map[common.Hash]*types.Receipt

	Sent  []*types.Transaction
	Calls map[string]int
}

func NewBackend(chainID uint64) *Backend {
	return &Backend{
		ChainID:  new(big.Int).SetUint64(chainID),
		BaseFee:  big.NewInt(1_000_000_000),
		Tip:      big.NewInt(100_000_000),
		GasPrice: big.NewInt(2_000_000_000),
		Head:     100,
		balances: map[common.Address]*big.Int{},
		nonces:   map[common.Address]uint64{},
		handlers: map[handlerKey]handlerEntry{},
		receipts: map[common.Hash]*types.Receipt{},
		Calls:    map[string]int{},
	}
}

// Handle registers fn for method of contract deployed at to.
func (b *Backend) Handle(to common.Address, contract *abi.ABI, method string, fn Handler) {
	m, ok := contract.Methods[method]
	if !ok {
		panic("chaintest: unknown method " + method)
	}
	var sel [4]byte
	copy(sel[:], m.ID)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[handlerKey{to: to, selector: sel}] = handlerEntry{method: m, fn: fn}
}

// Returns registers a handler that always returns values.
func (b *Backend) Returns(to common.Address, contract *abi.ABI, method string, values ...interface{}) {
	b.Handle(to, contract, method, func(common.Address, []interface{}) ([]interface{}, error) {
		return values, nil
	})
}

func (b *Backend) SetBalance(account common.Address, wei *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] = new(big.Int).Set(wei)
}

// SentCount is the number of transactions submitted so far.
func (b *Backend) SentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Sent)
}

func (b *Backend) CallCount(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Calls[method]
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("chaintest: call without target or selector")
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])

	b.mu.Lock()
	entry, ok := b.handlers[handlerKey{to: *msg.To, selector: sel}]
	if ok {
		b.Calls[entry.method.RawName]++
	}
	b.mu.Unlock()

	if !ok {
		// an account without code returns empty data
		return nil, nil
	}

	args, err := entry.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	out, err := entry.fn(msg.From, args)
	if err != nil {
		return nil, err
	}
	return entry.method.Outputs.Pack(out...)
}

func (b *Backend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if b.Estimate != nil {
		return b.Estimate(msg)
	}
	return 100_000, nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.Tip), nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var baseFee *big.Int
	if b.BaseFee != nil {
		baseFee = new(big.Int).Set(b.BaseFee)
	}
	return &types.Header{Number: new(big.Int).SetUint64(b.Head), BaseFee: baseFee}, nil
}

func (b *Backend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

// SendTransaction mines tx immediately in a new block.
func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if b.SendErr != nil {
		if err := b.SendErr(tx); err != nil {
			return err
		}
	}
	from, err := types.Sender(types.LatestSignerForChainID(b.ChainID), tx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.Sent = append(b.Sent, tx)
	b.nonces[from] = tx.Nonce() + 1
	b.Head++
	block := b.Head
	if v := tx.Value(); v != nil && v.Sign() > 0 && tx.To() != nil {
		fromBal := b.balances[from]
		if fromBal == nil {
			fromBal = new(big.Int)
		}
		b.balances[from] = new(big.Int).Sub(fromBal, v)
		toBal := b.balances[*tx.To()]
		if toBal == nil {
			toBal = new(big.Int)
		}
		b.balances[*tx.To()] = new(big.Int).Add(toBal, v)
	}
	hook := b.Receipt
	b.mu.Unlock()

	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful}
	if hook != nil {
		receipt = hook(tx)
	}
	receipt.TxHash = tx.Hash()
	receipt.BlockNumber = new(big.Int).SetUint64(block)
	for _, lg := range receipt.Logs {
		lg.TxHash = tx.Hash()
	}

	b.mu.Lock()
	b.receipts[tx.Hash()] = receipt
	b.mu.Unlock()
	return nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}
