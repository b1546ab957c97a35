// Package chain runs contract calls and transactions against a JSON-RPC
// backend: unsigned reads through a Reader and signed writes through a
// Session, with revert decoding and receipt event extraction.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the subset of ethclient the transactor needs.
type Backend interface {
	ethereum.ContractCaller
	ethereum.TransactionSender
	ethereum.GasEstimator
	ethereum.GasPricer

	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}
