package networks

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/retry"
	"go.uber.org/ratelimit"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/chain"
)

const defaultDialTimeout = 15 * time.Second

// Client is a rate-limited JSON-RPC client bound to one chain.
type Client struct {
	eth     *ethclient.Client
	limiter ratelimit.Limiter
	chainID uint64
}

func (c *Client) ChainID() uint64 { return c.chainID }

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.limiter.Take()
	return c.eth.CallContract(ctx, msg, blockNumber)
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.limiter.Take()
	return c.eth.SendTransaction(ctx, tx)
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.limiter.Take()
	return c.eth.EstimateGas(ctx, msg)
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	c.limiter.Take()
	return c.eth.SuggestGasPrice(ctx)
}

func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	c.limiter.Take()
	return c.eth.SuggestGasTipCap(ctx)
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.limiter.Take()
	return c.eth.PendingNonceAt(ctx, account)
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.limiter.Take()
	return c.eth.HeaderByNumber(ctx, number)
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.limiter.Take()
	return c.eth.TransactionReceipt(ctx, txHash)
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	c.limiter.Take()
	return c.eth.BalanceAt(ctx, account, blockNumber)
}

func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// Clients caches one dialed client per chain id.
type Clients struct {
	mu          sync.Mutex
	byChainID   map[uint64]*Client
	dialTimeout time.Duration
}

func NewClients(dialTimeout time.Duration) *Clients {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &Clients{
		byChainID:   make(map[uint64]*Client),
		dialTimeout: dialTimeout,
	}
}

// For returns the cached client for profile, dialing it on first use.
func (s *Clients) For(ctx context.Context, profile NetworkProfile) (*Client, error) {
	s.mu.Lock()
	if existing := s.byChainID[profile.ChainID]; existing != nil {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	// dial outside the lock
	dialed, err := s.dial(ctx, profile)
	if err != nil {
		return nil, apperr.Infrastructure(err, apperr.CodeRPCUnavailable,
			"rpc endpoint for chain "+profile.Name+" unreachable")
	}

	s.mu.Lock()
	if existing := s.byChainID[profile.ChainID]; existing != nil {
		s.mu.Unlock()
		dialed.Close()
		return existing, nil
	}
	s.byChainID[profile.ChainID] = dialed
	s.mu.Unlock()

	log.Info("rpc client ready", "chain", profile.Name, "chainId", profile.ChainID)
	return dialed, nil
}

// Dial is For returning the client as a chain backend.
func (s *Clients) Dial(ctx context.Context, profile NetworkProfile) (chain.Backend, error) {
	c, err := s.For(ctx, profile)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Clients) dial(ctx context.Context, profile NetworkProfile) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()

	cfg := retry.DefaultConfig()
	cfg.MaxDelayBeforeRetrying = 2 * time.Second
	cfg.InitialDelayBeforeRetrying = 200 * time.Millisecond

	var eth *ethclient.Client
	_, err := retry.Retry(dialCtx, cfg,
		func(ctx context.Context) ([]interface{}, error) {
			c, err := ethclient.DialContext(ctx, profile.RPCEndpoint)
			if err != nil {
				return nil, err
			}
			id, err := c.ChainID(ctx)
			if err != nil {
				c.Close()
				return nil, err
			}
			if id.Uint64() != profile.ChainID {
				c.Close()
				return nil, errors.Newf("endpoint reports chain id %s, expected %d", id, profile.ChainID)
			}
			eth = c
			return nil, nil
		},
		nil,
		"dial rpc endpoint")
	if err != nil {
		return nil, errors.Wrapf(err, "dial chain %d", profile.ChainID)
	}

	rps := profile.RequestsPerSecond
	limiter := ratelimit.NewUnlimited()
	if rps > 0 {
		limiter = ratelimit.New(rps)
	}

	return &Client{eth: eth, limiter: limiter, chainID: profile.ChainID}, nil
}

// Close closes all cached clients.
func (s *Clients) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.byChainID {
		c.Close()
		delete(s.byChainID, id)
	}
}
