// Package funding tops up newly created agent wallets from a funding wallet.
// All transfers go through a single worker so balance checks and transfers
// never interleave.
package funding

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/shopspring/decimal"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/chain"
	"github.com/quantumauth-io/dao-agent/internal/metrics"
)

const (
	DefaultReserve   = "0.1"
	DefaultAmount    = "0.1"
	defaultQueueSize = 64
	etherDecimals    = 18
)

// BackendFunc returns the backend of the funding chain.
type BackendFunc func(ctx context.Context) (chain.Backend, error)

type Config struct {
	ChainID uint64
	// Key is the funding wallet. A nil key fails every request with
	// MISSING_SECRET.
	Key     *ecdsa.PrivateKey
	Backend BackendFunc

	// Reserve and Amount are ether amounts as decimal strings.
	Reserve string
	Amount  string

	Confirmations uint64
	PollInterval  time.Duration
	QueueSize     int
}

type request struct {
	ctx       context.Context
	recipient common.Address
	reply     chan result
}

type result struct {
	hash common.Hash
	err  error
}

type Service struct {
	cfg     Config
	reserve *big.Int
	amount  *big.Int

	queue   chan request
	started sync.Once
	done    chan struct{}
}

func New(cfg Config) (*Service, error) {
	if cfg.Backend == nil {
		return nil, errors.New("funding: backend is nil")
	}
	if cfg.Reserve == "" {
		cfg.Reserve = DefaultReserve
	}
	if cfg.Amount == "" {
		cfg.Amount = DefaultAmount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	reserve, err := ToWei(cfg.Reserve)
	if err != nil {
		return nil, errors.Wrap(err, "funding: reserve")
	}
	amount, err := ToWei(cfg.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "funding: amount")
	}
	if amount.Sign() <= 0 {
		return nil, errors.Newf("funding: amount must be positive, got %s", cfg.Amount)
	}

	return &Service{
		cfg:     cfg,
		reserve: reserve,
		amount:  amount,
		queue:   make(chan request, cfg.QueueSize),
		done:    make(chan struct{}),
	}, nil
}

// Start runs the worker until ctx is cancelled. Calling it more than once
// has no effect.
func (s *Service) Start(ctx context.Context) {
	s.started.Do(func() {
		go s.run(ctx)
	})
}

// Done is closed once the worker has stopped.
func (s *Service) Done() <-chan struct{} { return s.done }

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	log.Info("funding worker started", "chainId", s.cfg.ChainID, "reserve", s.cfg.Reserve, "amount", s.cfg.Amount)

	for {
		select {
		case <-ctx.Done():
			log.Info("funding worker stopped")
			return
		case req := <-s.queue:
			if err := req.ctx.Err(); err != nil {
				req.reply <- result{err: err}
				continue
			}
			hash, err := s.fund(req.ctx, req.recipient)
			req.reply <- result{hash: hash, err: err}
		}
	}
}

// FundIfNeeded enqueues a funding request for recipient and waits for the
// worker. A zero hash with a nil error means the recipient already held the
// funding amount.
func (s *Service) FundIfNeeded(ctx context.Context, recipient common.Address) (common.Hash, error) {
	req := request{ctx: ctx, recipient: recipient, reply: make(chan result, 1)}

	select {
	case <-s.done:
		return common.Hash{}, apperr.New(apperr.KindInfrastructure, apperr.CodeInternal, "funding worker is not running")
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	case s.queue <- req:
	}

	select {
	case res := <-req.reply:
		return res.hash, res.err
	case <-s.done:
		return common.Hash{}, apperr.New(apperr.KindInfrastructure, apperr.CodeInternal, "funding worker is not running")
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	}
}

func (s *Service) fund(ctx context.Context, recipient common.Address) (common.Hash, error) {
	if s.cfg.Key == nil {
		metrics.Funding(metrics.FundingFailed)
		return common.Hash{}, apperr.New(apperr.KindInfrastructure, apperr.CodeMissingSecret, "funding private key is not configured")
	}

	backend, err := s.cfg.Backend(ctx)
	if err != nil {
		metrics.Funding(metrics.FundingFailed)
		return common.Hash{}, err
	}
	session := chain.NewSession(backend, s.cfg.ChainID, s.cfg.Key, chain.Options{
		Confirmations: s.cfg.Confirmations,
		PollInterval:  s.cfg.PollInterval,
	})

	have, err := session.Balance(ctx, recipient)
	if err != nil {
		metrics.Funding(metrics.FundingFailed)
		return common.Hash{}, err
	}
	if have.Cmp(s.amount) >= 0 {
		log.Info("recipient already funded", "recipient", recipient.Hex(), "balance", FromWei(have))
		metrics.Funding(metrics.FundingSkipped)
		return common.Hash{}, nil
	}

	funderBalance, err := session.Balance(ctx, session.From())
	if err != nil {
		metrics.Funding(metrics.FundingFailed)
		return common.Hash{}, err
	}
	if funderBalance.Cmp(s.reserve) < 0 || funderBalance.Cmp(s.amount) < 0 {
		log.Warn("funding wallet below reserve", "funder", session.From().Hex(),
			"balance", FromWei(funderBalance), "reserve", s.cfg.Reserve)
		metrics.Funding(metrics.FundingInsufficient)
		return common.Hash{}, apperr.Newf(apperr.KindPrecondition, apperr.CodeInsufficientFunderBalance,
			"funding wallet holds %s, at least %s is required", FromWei(funderBalance), s.cfg.Reserve)
	}

	out, err := session.Transfer(ctx, recipient, s.amount)
	if err != nil {
		metrics.Funding(metrics.FundingFailed)
		return common.Hash{}, err
	}
	log.Info("agent wallet funded", "recipient", recipient.Hex(), "amount", s.cfg.Amount, "tx", out.TransactionHash.Hex())
	metrics.Funding(metrics.FundingSent)
	return out.TransactionHash, nil
}

// ToWei converts an ether amount to wei.
func ToWei(ether string) (*big.Int, error) {
	d, err := decimal.NewFromString(ether)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", ether)
	}
	if d.Sign() < 0 {
		return nil, errors.Newf("negative amount %q", ether)
	}
	return d.Shift(etherDecimals).BigInt(), nil
}

// FromWei formats wei as an ether amount.
func FromWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}
