package funding

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/chain"
	"github.com/quantumauth-io/dao-agent/internal/chain/chaintest"
)

func ether(t *testing.T, s string) *big.Int {
	t.Helper()
	wei, err := ToWei(s)
	require.NoError(t, err)
	return wei
}

func startService(t *testing.T, backend *chaintest.Backend, funderBalance string) (*Service, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	funder := crypto.PubkeyToAddress(key.PublicKey)
	backend.SetBalance(funder, ether(t, funderBalance))

	svc, err := New(Config{
		ChainID:      backend.ChainID.Uint64(),
		Key:          key,
		Backend:      func(context.Context) (chain.Backend, error) { return backend, nil },
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-svc.Done()
	})
	svc.Start(ctx)
	return svc, funder
}

func newRecipient(t *testing.T) common.Address {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey)
}

func TestFundBelowReserveSubmitsNothing(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	svc, _ := startService(t, backend, "0.05")

	hash, err := svc.FundIfNeeded(context.Background(), newRecipient(t))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInsufficientFunderBalance, apperr.CodeOf(err))
	assert.Equal(t, common.Hash{}, hash)
	assert.Equal(t, 0, backend.SentCount())
}

func TestFundTransfersAmount(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	svc, _ := startService(t, backend, "1")
	recipient := newRecipient(t)

	hash, err := svc.FundIfNeeded(context.Background(), recipient)
	require.NoError(t, err)
	require.Equal(t, 1, backend.SentCount())
	assert.Equal(t, backend.Sent[0].Hash(), hash)

	bal, err := backend.BalanceAt(context.Background(), recipient, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.1", FromWei(bal))
}

func TestFundSkipsFundedRecipient(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	svc, _ := startService(t, backend, "1")
	recipient := newRecipient(t)
	backend.SetBalance(recipient, ether(t, "0.2"))

	hash, err := svc.FundIfNeeded(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, hash)
	assert.Equal(t, 0, backend.SentCount())
}

func TestConcurrentRequestsNeverOverdraw(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	svc, funder := startService(t, backend, "0.25")

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.FundIfNeeded(context.Background(), newRecipient(t))
		}(i)
	}
	wg.Wait()

	funded, refused := 0, 0
	for _, err := range errs {
		if err == nil {
			funded++
			continue
		}
		assert.Equal(t, apperr.CodeInsufficientFunderBalance, apperr.CodeOf(err))
		refused++
	}
	assert.Equal(t, 2, funded)
	assert.Equal(t, n-2, refused)
	assert.Equal(t, 2, backend.SentCount())

	left, err := backend.BalanceAt(context.Background(), funder, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.05", FromWei(left))
}

func TestMissingKeyIsMissingSecret(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	svc, err := New(Config{
		ChainID: 11155111,
		Backend: func(context.Context) (chain.Backend, error) { return backend, nil },
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	_, err = svc.FundIfNeeded(context.Background(), newRecipient(t))
	assert.Equal(t, apperr.CodeMissingSecret, apperr.CodeOf(err))
}

func TestStoppedWorkerRejects(t *testing.T) {
	backend := chaintest.NewBackend(11155111)
	svc, err := New(Config{
		ChainID: 11155111,
		Backend: func(context.Context) (chain.Backend, error) { return backend, nil },
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	cancel()
	<-svc.Done()

	_, err = svc.FundIfNeeded(context.Background(), newRecipient(t))
	assert.Error(t, err)
}

func TestAmountConversions(t *testing.T) {
	assert.Equal(t, "100000000000000000", ether(t, "0.1").String())
	assert.Equal(t, "1.5", FromWei(ether(t, "1.5")))

	_, err := ToWei("abc")
	assert.Error(t, err)
	_, err = ToWei("-1")
	assert.Error(t, err)

	_, err = New(Config{Backend: func(context.Context) (chain.Backend, error) { return nil, nil }, Amount: "0"})
	assert.Error(t, err)
}
