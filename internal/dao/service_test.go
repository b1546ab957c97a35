package dao

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/chain"
	"github.com/quantumauth-io/dao-agent/internal/chain/chaintest"
	"github.com/quantumauth-io/dao-agent/internal/networks"
)

const hardhat = 31337

var (
	factoryAddr  = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	mgmtAddr     = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	daoAddr      = common.HexToAddress("0xD7f0E82C30C832548130B847f3c6709492593195")
	tokenAddr    = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	proposalAddr = common.HexToAddress("0x2279B7A0a67DB372996a5FaB50D91eAA73d2eBe6")

	testNow = time.Unix(1_756_000_000, 0)
)

type countingDialer struct {
	mu      sync.Mutex
	backend *chaintest.Backend
	dials   int
}

func (d *countingDialer) Dial(_ context.Context, _ networks.NetworkProfile) (chain.Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	return d.backend, nil
}

type keyring map[common.Address]*ecdsa.PrivateKey

func (k keyring) SigningKeyFor(_ context.Context, address common.Address) (*ecdsa.PrivateKey, error) {
	key, ok := k[address]
	if !ok {
		return nil, apperr.Precondition(apperr.CodeWalletNotFound, "no wallet for %s", address.Hex())
	}
	return key, nil
}

type fixture struct {
	svc     *Service
	backend *chaintest.Backend
	dialer  *countingDialer
	agent   common.Address
	keys    keyring
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()

	resolver, err := networks.NewResolver([]networks.NetworkConfig{
		{
			Name:    "hardhat",
			ChainID: hardhat,
			RPCURL:  "http://127.0.0.1:8545",
			Contracts: map[string]string{
				"daoFactory":    factoryAddr.Hex(),
				"daoManagement": mgmtAddr.Hex(),
			},
		},
		{Name: "mainnet", ChainID: 1, RPCURL: "https://mainnet.example"},
	}, "")
	require.NoError(t, err)

	agentKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	serviceKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	agent := crypto.PubkeyToAddress(agentKey.PublicKey)
	keys := keyring{agent: agentKey}

	backend := chaintest.NewBackend(hardhat)
	dialer := &countingDialer{backend: backend}

	cfg := Config{
		Networks:     resolver,
		Dialer:       dialer,
		Signers:      keys,
		ServiceKey:   serviceKey,
		PollInterval: time.Millisecond,
		Now:          func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	svc, err := New(cfg)
	require.NoError(t, err)

	return &fixture{svc: svc, backend: backend, dialer: dialer, agent: agent, keys: keys}
}

func eventLog(t *testing.T, contract *abi.ABI, event string, emitter common.Address, topics []common.Hash, data ...interface{}) *types.Log {
	t.Helper()
	ev := contract.Events[event]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)
	return &types.Log{
		Address: emitter,
		Topics:  append([]common.Hash{ev.ID}, topics...),
		Data:    packed,
	}
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func bigOf(v int64) *big.Int { return big.NewInt(v) }
