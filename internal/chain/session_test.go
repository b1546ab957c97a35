package chain

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/chain/chaintest"
	"github.com/quantumauth-io/dao-agent/internal/contracts"
)

var proposalAddr = common.HexToAddress("0x2279B7A0a67DB372996a5FaB50D91eAA73d2eBe6")

func newTestSession(t *testing.T, backend *chaintest.Backend) *Session {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewSession(backend, backend.ChainID.Uint64(), key, Options{PollInterval: time.Millisecond})
}

func TestTransactSucceeds(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	s := newTestSession(t, backend)

	out, err := s.Transact(context.Background(), &contracts.ProposalABI, proposalAddr, "vote", uint8(1))
	require.NoError(t, err)
	require.Equal(t, 1, backend.SentCount())

	tx := backend.Sent[0]
	assert.True(t, out.Succeeded)
	assert.Equal(t, tx.Hash(), out.TransactionHash)
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(110_000), tx.Gas())
	// 2 * base fee + tip
	assert.Equal(t, big.NewInt(2_100_000_000), tx.GasFeeCap())

	from, err := types.Sender(types.LatestSignerForChainID(backend.ChainID), tx)
	require.NoError(t, err)
	assert.Equal(t, s.From(), from)
}

func TestTransactFallsBackToLegacyPricing(t *testing.T) {
	backend := chaintest.NewBackend(56)
	backend.BaseFee = nil
	s := newTestSession(t, backend)

	_, err := s.Transact(context.Background(), &contracts.ProposalABI, proposalAddr, "executeProposal")
	require.NoError(t, err)
	tx := backend.Sent[0]
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, backend.GasPrice, tx.GasPrice())
}

func TestTransactEstimateRevertSubmitsNothing(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	backend.Estimate = func(ethereum.CallMsg) (uint64, error) {
		return 0, chaintest.Revert(&contracts.ProposalABI, "AlreadyVoted")
	}
	s := newTestSession(t, backend)

	_, err := s.Transact(context.Background(), &contracts.ProposalABI, proposalAddr, "vote", uint8(0))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTransactionReverted, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "AlreadyVoted()")
	assert.Equal(t, 0, backend.SentCount())
}

func TestTransactEstimateFailureUsesFallbackGas(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	backend.Estimate = func(ethereum.CallMsg) (uint64, error) {
		return 0, &chaintest.RPCError{Code: -32000, Message: "gas required exceeds allowance"}
	}
	s := newTestSession(t, backend)

	_, err := s.Transact(context.Background(), &contracts.ProposalABI, proposalAddr, "executeProposal")
	require.NoError(t, err)
	assert.Equal(t, uint64(fallbackCallGas), backend.Sent[0].Gas())
}

func TestTransactUnreachableNodeIsInfrastructure(t *testing.T) {
	refused := errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")

	t.Run("estimate", func(t *testing.T) {
		backend := chaintest.NewBackend(11155111)
		backend.Estimate = func(ethereum.CallMsg) (uint64, error) { return 0, refused }
		s := newTestSession(t, backend)

		_, err := s.Transact(context.Background(), &contracts.ProposalABI, proposalAddr, "executeProposal")
		require.Error(t, err)
		e := apperr.From(err)
		assert.Equal(t, apperr.KindInfrastructure, e.Kind)
		assert.Equal(t, apperr.CodeRPCUnavailable, e.Code)
		assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(e))
		assert.Equal(t, 0, backend.SentCount())
	})

	t.Run("submit", func(t *testing.T) {
		backend := chaintest.NewBackend(11155111)
		backend.SendErr = func(*types.Transaction) error { return refused }
		s := newTestSession(t, backend)

		_, err := s.Transact(context.Background(), &contracts.ProposalABI, proposalAddr, "executeProposal")
		require.Error(t, err)
		e := apperr.From(err)
		assert.Equal(t, apperr.KindInfrastructure, e.Kind)
		assert.Equal(t, apperr.CodeRPCUnavailable, e.Code)
	})
}

func TestTransactNodeRejectionIsChainExecution(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	backend.SendErr = func(*types.Transaction) error {
		return &chaintest.RPCError{Code: -32000, Message: "nonce too low"}
	}
	s := newTestSession(t, backend)

	_, err := s.Transact(context.Background(), &contracts.ProposalABI, proposalAddr, "executeProposal")
	require.Error(t, err)
	e := apperr.From(err)
	assert.Equal(t, apperr.KindChainExecution, e.Kind)
	assert.Equal(t, apperr.CodeTransactionFailed, e.Code)
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(e))
	assert.Equal(t, 0, backend.SentCount())
}

func TestTransactRevertedReceiptCarriesHash(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	backend.Receipt = func(*types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusFailed}
	}
	backend.Handle(proposalAddr, &contracts.ProposalABI, "executeProposal", func(common.Address, []interface{}) ([]interface{}, error) {
		return nil, chaintest.Revert(&contracts.ProposalABI, "ProposalNotApproved")
	})
	s := newTestSession(t, backend)

	out, err := s.Transact(context.Background(), &contracts.ProposalABI, proposalAddr, "executeProposal")
	require.Error(t, err)
	require.NotNil(t, out)
	assert.False(t, out.Succeeded)

	e := apperr.From(err)
	assert.Equal(t, apperr.CodeTransactionReverted, e.Code)
	assert.Equal(t, out.TransactionHash.Hex(), e.TxHash)
	assert.Contains(t, e.Message, "ProposalNotApproved()")
}

func TestTransferMovesValue(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	s := newTestSession(t, backend)
	backend.SetBalance(s.From(), big.NewInt(1_000_000))
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	out, err := s.Transfer(context.Background(), to, big.NewInt(400))
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, uint64(transferGas), backend.Sent[0].Gas())

	bal, err := s.Balance(context.Background(), to)
	require.NoError(t, err)
	assert.Equal(t, int64(400), bal.Int64())
}

func TestWaitMinedHonorsContext(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	s := newTestSession(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.waitMined(ctx, common.HexToHash("0xabc"))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTransactionFailed, apperr.CodeOf(err))
}
