package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/metrics"
)

const (
	fallbackCallGas   = 250_000
	fallbackCreateGas = 1_500_000
	transferGas       = 21_000
)

type Options struct {
	// Confirmations to wait for after inclusion; 0 is treated as 1.
	Confirmations uint64
	PollInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Confirmations == 0 {
		o.Confirmations = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	return o
}

// Outcome is the normalized result of a confirmed transaction.
type Outcome struct {
	TransactionHash common.Hash
	Succeeded       bool
	BlockNumber     *big.Int
	Receipt         *types.Receipt
}

// Session signs and submits transactions with one key. Reads go through the
// embedded Reader.
type Session struct {
	*Reader
	key  *ecdsa.PrivateKey
	from common.Address
	opts Options
}

func NewSession(backend Backend, chainID uint64, key *ecdsa.PrivateKey, opts Options) *Session {
	return &Session{
		Reader: NewReader(backend, chainID),
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		opts:   opts.withDefaults(),
	}
}

func (s *Session) From() common.Address { return s.from }

// Transact calls method on the contract at to and waits for the receipt.
// A revert, before or after submission, is returned as a chain execution
// error with the decoded reason.
func (s *Session) Transact(ctx context.Context, contract *abi.ABI, to common.Address, method string, args ...interface{}) (*Outcome, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInput, apperr.CodeInvalidRequest, "encode "+method)
	}
	return s.send(ctx, contract, method, &to, nil, data)
}

// Transfer sends value wei to recipient.
func (s *Session) Transfer(ctx context.Context, recipient common.Address, value *big.Int) (*Outcome, error) {
	return s.send(ctx, nil, "transfer", &recipient, value, nil)
}

func (s *Session) send(ctx context.Context, contract *abi.ABI, method string, to *common.Address, value *big.Int, data []byte) (*Outcome, error) {
	if value == nil {
		value = new(big.Int)
	}

	gas, err := s.estimateGas(ctx, contract, method, to, value, data)
	if err != nil {
		return nil, err
	}

	tx, err := s.buildTx(ctx, to, value, data, gas)
	if err != nil {
		return nil, err
	}

	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		metrics.TxStage(s.chainID, method, metrics.StageFailed)
		if !nodeRejected(err) {
			return nil, apperr.Infrastructure(err, apperr.CodeRPCUnavailable, "submit "+method+": rpc endpoint unreachable")
		}
		return nil, apperr.Wrap(err, apperr.KindChainExecution, apperr.CodeTransactionFailed, method+" was not accepted by the node")
	}
	hash := tx.Hash()
	metrics.TxStage(s.chainID, method, metrics.StageSubmitted)
	log.Info("transaction submitted", "chainId", s.chainID, "method", method, "from", s.from.Hex(), "tx", hash.Hex())

	receipt, err := s.waitMined(ctx, hash)
	if err != nil {
		return nil, apperr.From(err).WithTx(hash.Hex())
	}

	out := &Outcome{
		TransactionHash: hash,
		Succeeded:       receipt.Status == types.ReceiptStatusSuccessful,
		BlockNumber:     receipt.BlockNumber,
		Receipt:         receipt,
	}

	if !out.Succeeded {
		metrics.TxStage(s.chainID, method, metrics.StageReverted)
		reason := s.replayRevert(ctx, contract, to, value, data, receipt.BlockNumber)
		log.Warn("transaction reverted", "chainId", s.chainID, "method", method, "tx", hash.Hex(), "reason", reason)
		return out, apperr.Newf(apperr.KindChainExecution, apperr.CodeTransactionReverted,
			"%s reverted: %s", method, reason).WithTx(hash.Hex())
	}

	metrics.TxStage(s.chainID, method, metrics.StageSucceeded)
	log.Info("transaction confirmed", "chainId", s.chainID, "method", method, "tx", hash.Hex(), "block", receipt.BlockNumber)
	return out, nil
}

func (s *Session) estimateGas(ctx context.Context, contract *abi.ABI, method string, to *common.Address, value *big.Int, data []byte) (uint64, error) {
	if to != nil && len(data) == 0 {
		return transferGas, nil
	}

	est, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: to, Value: value, Data: data})
	if err != nil {
		if rd, ok := revertData(err); ok {
			return 0, apperr.Newf(apperr.KindChainExecution, apperr.CodeTransactionReverted,
				"%s would revert: %s", method, DecodeRevert(rd, preferring(contract)...))
		}
		if isRevert(err) {
			return 0, apperr.Newf(apperr.KindChainExecution, apperr.CodeTransactionReverted, "%s would revert", method)
		}
		if !nodeRejected(err) {
			return 0, apperr.Infrastructure(err, apperr.CodeRPCUnavailable, "estimate gas for "+method+": rpc endpoint unreachable")
		}
		log.Warn("gas estimation failed, using fallback limit", "method", method, "error", err)
		if to == nil {
			return fallbackCreateGas, nil
		}
		return fallbackCallGas, nil
	}

	est += est / 10
	if est < transferGas {
		est = transferGas
	}
	return est, nil
}

func (s *Session) buildTx(ctx context.Context, to *common.Address, value *big.Int, data []byte, gas uint64) (*types.Transaction, error) {
	chainID := new(big.Int).SetUint64(s.chainID)

	opts, err := bind.NewKeyedTransactorWithChainID(s.key, chainID)
	if err != nil {
		return nil, errors.Wrap(err, "keyed transactor")
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, apperr.Infrastructure(err, apperr.CodeRPCUnavailable, "read pending nonce")
	}

	// 1559 preferred, legacy otherwise
	var unsigned *types.Transaction
	tip, tipErr := s.backend.SuggestGasTipCap(ctx)
	hdr, hdrErr := s.backend.HeaderByNumber(ctx, nil)

	if tipErr == nil && hdrErr == nil && hdr != nil && hdr.BaseFee != nil {
		feeCap := new(big.Int).Mul(hdr.BaseFee, big.NewInt(2))
		feeCap.Add(feeCap, tip)
		unsigned = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        to,
			Value:     value,
			Data:      data,
		})
	} else {
		gp, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, apperr.Infrastructure(err, apperr.CodeRPCUnavailable, "suggest gas price")
		}
		unsigned = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gp,
			Gas:      gas,
			To:       to,
			Value:    value,
			Data:     data,
		})
	}

	signed, err := opts.Signer(s.from, unsigned)
	if err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}
	return signed, nil
}

// waitMined polls for the receipt, then for the configured number of
// confirmations.
func (s *Session) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var receipt *types.Receipt
	for {
		if receipt == nil {
			r, err := s.backend.TransactionReceipt(ctx, hash)
			switch {
			case err == nil:
				receipt = r
			case errors.Is(err, ethereum.NotFound):
			default:
				log.Warn("receipt lookup failed", "tx", hash.Hex(), "error", err)
			}
		}

		if receipt != nil {
			if s.opts.Confirmations <= 1 {
				return receipt, nil
			}
			head, err := s.backend.HeaderByNumber(ctx, nil)
			if err == nil && head != nil && receipt.BlockNumber != nil && head.Number.Cmp(receipt.BlockNumber) >= 0 {
				confirmations := new(big.Int).Sub(head.Number, receipt.BlockNumber)
				if confirmations.Uint64()+1 >= s.opts.Confirmations {
					return receipt, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, apperr.Wrap(ctx.Err(), apperr.KindInfrastructure, apperr.CodeTransactionFailed,
				"stopped waiting for confirmation; the transaction may still be mined")
		case <-ticker.C:
		}
	}
}

// replayRevert re-executes a reverted transaction as a call at its block to
// recover the revert data.
func (s *Session) replayRevert(ctx context.Context, contract *abi.ABI, to *common.Address, value *big.Int, data []byte, block *big.Int) string {
	_, err := s.backend.CallContract(ctx, ethereum.CallMsg{From: s.from, To: to, Value: value, Data: data}, block)
	if err == nil {
		return "reverted on chain, replay succeeded (state changed since inclusion)"
	}
	if rd, ok := revertData(err); ok {
		return DecodeRevert(rd, preferring(contract)...)
	}
	return "reason unavailable"
}
