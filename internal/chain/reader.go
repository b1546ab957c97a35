package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
)

// Reader issues unsigned eth_call reads. It needs no key.
type Reader struct {
	backend Backend
	chainID uint64
	block   *big.Int
}

func NewReader(backend Backend, chainID uint64) *Reader {
	return &Reader{backend: backend, chainID: chainID}
}

// AtBlock returns a reader pinned to block n.
func (r *Reader) AtBlock(n *big.Int) *Reader {
	cp := *r
	if n != nil {
		cp.block = new(big.Int).Set(n)
	}
	return &cp
}

// Call packs method with args, calls contract at to and returns the unpacked
// outputs.
func (r *Reader) Call(ctx context.Context, contract *abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	raw, err := r.call(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindChainExecution, apperr.CodeTransactionFailed,
			"unexpected return data from "+method+" at "+to.Hex())
	}
	return out, nil
}

// CallInto unpacks a multi-output method into out, a pointer to a struct
// whose fields match the output names.
func (r *Reader) CallInto(ctx context.Context, out interface{}, contract *abi.ABI, to common.Address, method string, args ...interface{}) error {
	raw, err := r.call(ctx, contract, to, method, args...)
	if err != nil {
		return err
	}
	if err := contract.UnpackIntoInterface(out, method, raw); err != nil {
		return apperr.Wrap(err, apperr.KindChainExecution, apperr.CodeTransactionFailed,
			"unexpected return data from "+method+" at "+to.Hex())
	}
	return nil
}

func (r *Reader) call(ctx context.Context, contract *abi.ABI, to common.Address, method string, args ...interface{}) ([]byte, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInput, apperr.CodeInvalidRequest, "encode "+method)
	}

	raw, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, r.block)
	if err != nil {
		return nil, classifyCallError(err, method, contract)
	}
	if len(raw) == 0 {
		return nil, apperr.Newf(apperr.KindChainExecution, apperr.CodeTransactionFailed,
			"%s returned no data; is %s a deployed contract on chain %d?", method, to.Hex(), r.chainID)
	}
	return raw, nil
}

// Balance returns the native balance of account.
func (r *Reader) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := r.backend.BalanceAt(ctx, account, r.block)
	if err != nil {
		return nil, apperr.Infrastructure(err, apperr.CodeRPCUnavailable, "read balance")
	}
	return bal, nil
}

// Read calls a single-output method and converts the result to T.
func Read[T any](ctx context.Context, r *Reader, contract *abi.ABI, to common.Address, method string, args ...interface{}) (T, error) {
	var zero T
	out, err := r.Call(ctx, contract, to, method, args...)
	if err != nil {
		return zero, err
	}
	if len(out) != 1 {
		return zero, apperr.Newf(apperr.KindChainExecution, apperr.CodeTransactionFailed,
			"%s returned %d values, expected 1", method, len(out))
	}
	v, ok := abi.ConvertType(out[0], new(T)).(*T)
	if !ok {
		return zero, apperr.Newf(apperr.KindChainExecution, apperr.CodeTransactionFailed,
			"%s returned %T", method, out[0])
	}
	return *v, nil
}

func classifyCallError(err error, method string, contract *abi.ABI) *apperr.Error {
	if data, ok := revertData(err); ok {
		return apperr.Newf(apperr.KindChainExecution, apperr.CodeTransactionReverted,
			"%s reverted: %s", method, DecodeRevert(data, preferring(contract)...))
	}
	if isRevert(err) {
		return apperr.Newf(apperr.KindChainExecution, apperr.CodeTransactionReverted, "%s reverted", method)
	}
	return apperr.Infrastructure(err, apperr.CodeRPCUnavailable, method+" call failed")
}
