package walletstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/keyvault"
)

type memRecords struct {
	mu      sync.Mutex
	byAgent map[string]WalletRecord
	inserts int
}

func newMemRecords() *memRecords {
	return &memRecords{byAgent: map[string]WalletRecord{}}
}

func (m *memRecords) Insert(_ context.Context, rec WalletRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byAgent[rec.AgentID]; ok {
		return ErrRecordExists
	}
	m.inserts++
	m.byAgent[rec.AgentID] = rec
	return nil
}

func (m *memRecords) FindByAgent(_ context.Context, agentID string) (WalletRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byAgent[agentID]
	if !ok {
		return WalletRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *memRecords) FindByAddress(_ context.Context, address string) (WalletRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.byAgent {
		if rec.WalletAddress == address {
			return rec, nil
		}
	}
	return WalletRecord{}, ErrNotFound
}

type mockRecords struct {
	mock.Mock
}

func (m *mockRecords) Insert(ctx context.Context, rec WalletRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockRecords) FindByAgent(ctx context.Context, agentID string) (WalletRecord, error) {
	args := m.Called(ctx, agentID)
	return args.Get(0).(WalletRecord), args.Error(1)
}

func (m *mockRecords) FindByAddress(ctx context.Context, address string) (WalletRecord, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(WalletRecord), args.Error(1)
}

type funderStub struct {
	calls []common.Address
	hash  common.Hash
	err   error
}

func (f *funderStub) FundIfNeeded(_ context.Context, recipient common.Address) (common.Hash, error) {
	f.calls = append(f.calls, recipient)
	return f.hash, f.err
}

func newTestStore(t *testing.T, records RecordStore, funder Funder) *Store {
	t.Helper()
	s, err := New(Config{Records: records, Vault: keyvault.New("test-salt", nil), Funder: funder})
	require.NoError(t, err)
	return s
}

func TestCreateAndFetch(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	funder := &funderStub{hash: common.HexToHash("0xabc")}
	s := newTestStore(t, records, funder)

	created, err := s.Create(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", created.Record.AgentID)
	assert.True(t, common.IsHexAddress(created.Record.WalletAddress))
	assert.Equal(t, common.HexToHash("0xabc").Hex(), created.FundingTx)
	require.Len(t, funder.calls, 1)
	assert.Equal(t, created.Record.WalletAddress, funder.calls[0].Hex())

	byAgent, found, err := s.FetchByAgent(ctx, "agent-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.Record, byAgent)

	byAddr, found, err := s.FetchByAddress(ctx, created.Record.WalletAddress)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.Record, byAddr)

	key, err := s.DecryptSigningKey(byAgent)
	require.NoError(t, err)
	assert.Equal(t, created.Record.WalletAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func TestCreateTwiceReturnsAlreadyExists(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	s := newTestStore(t, records, nil)

	first, err := s.Create(ctx, "agent-1")
	require.NoError(t, err)

	_, err = s.Create(ctx, "agent-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeWalletExists, apperr.CodeOf(err))
	assert.Equal(t, 1, records.inserts)

	stored, found, err := s.FetchByAgent(ctx, "agent-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first.Record.WalletAddress, stored.WalletAddress)
}

func TestCreateLosingInsertRaceReturnsAlreadyExists(t *testing.T) {
	ctx := context.Background()
	records := &mockRecords{}
	records.On("FindByAgent", mock.Anything, "agent-1").Return(WalletRecord{}, ErrNotFound)
	records.On("Insert", mock.Anything, mock.AnythingOfType("walletstore.WalletRecord")).Return(ErrRecordExists)

	s := newTestStore(t, records, nil)
	_, err := s.Create(ctx, "agent-1")
	assert.Equal(t, apperr.CodeWalletExists, apperr.CodeOf(err))
	records.AssertExpectations(t)
}

func TestCreateFundingFailureIsSoft(t *testing.T) {
	funder := &funderStub{err: apperr.Precondition(apperr.CodeInsufficientFunderBalance, "funder balance too low")}
	s := newTestStore(t, newMemRecords(), funder)

	created, err := s.Create(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Empty(t, created.FundingTx)
	assert.Equal(t, "funder balance too low", created.FundingWarning)
}

func TestFetchMissingIsNotAnError(t *testing.T) {
	s := newTestStore(t, newMemRecords(), nil)

	_, found, err := s.FetchByAgent(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.FetchByAddress(context.Background(), "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFetchByAddressRejectsMalformed(t *testing.T) {
	s := newTestStore(t, newMemRecords(), nil)

	_, _, err := s.FetchByAddress(context.Background(), "0x1234")
	assert.Equal(t, apperr.CodeInvalidAddress, apperr.CodeOf(err))
}

func TestStoreFailureIsInfrastructure(t *testing.T) {
	records := &mockRecords{}
	records.On("FindByAgent", mock.Anything, "agent-1").Return(WalletRecord{}, errors.New("connection refused"))

	s := newTestStore(t, records, nil)
	_, err := s.Create(context.Background(), "agent-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeStoreUnavailable, apperr.CodeOf(err))
	records.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestDecryptIncompleteRecord(t *testing.T) {
	s := newTestStore(t, newMemRecords(), nil)

	_, err := s.DecryptSigningKey(WalletRecord{AgentID: "agent-1", EncryptedKey: "00", Tag: "00"})
	assert.Equal(t, apperr.CodeWalletDataIncomplete, apperr.CodeOf(err))
}

func TestDecryptWithWrongAgentFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemRecords(), nil)

	created, err := s.Create(ctx, "agent-1")
	require.NoError(t, err)

	rec := created.Record
	rec.AgentID = "agent-2"
	_, err = s.DecryptSigningKey(rec)
	assert.ErrorIs(t, err, keyvault.ErrAuthenticationFailed)
}

func TestSigningKeyForUnknownAddress(t *testing.T) {
	s := newTestStore(t, newMemRecords(), nil)

	_, err := s.SigningKeyFor(context.Background(), common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"))
	assert.Equal(t, apperr.CodeWalletNotFound, apperr.CodeOf(err))
}
