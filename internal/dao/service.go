// Package dao reads and operates DAO contracts: deployments, proposals,
// votes and delegation, plus the read-only snapshots behind them.
package dao

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/chain"
	"github.com/quantumauth-io/dao-agent/internal/networks"
)

// Networks resolves chain ids to profiles.
type Networks interface {
	Resolve(chainID uint64) (networks.NetworkProfile, error)
}

// Dialer hands out a backend for a resolved network.
type Dialer interface {
	Dial(ctx context.Context, profile networks.NetworkProfile) (chain.Backend, error)
}

// Signers returns the decrypted key of a custodial agent wallet.
type Signers interface {
	SigningKeyFor(ctx context.Context, address common.Address) (*ecdsa.PrivateKey, error)
}

type Config struct {
	Networks Networks
	Dialer   Dialer
	Signers  Signers

	// ServiceKey signs deployments. Nil fails them with MISSING_SECRET.
	ServiceKey *ecdsa.PrivateKey

	Confirmations uint64
	PollInterval  time.Duration

	// MinExecutionVotingPower is the voting power an executor needs; nil
	// means 1.
	MinExecutionVotingPower *big.Int

	Now func() time.Time
}

type Service struct {
	networks   Networks
	dialer     Dialer
	signers    Signers
	serviceKey *ecdsa.PrivateKey
	txOpts     chain.Options
	minPower   *big.Int
	now        func() time.Time
}

func New(cfg Config) (*Service, error) {
	if cfg.Networks == nil {
		return nil, errors.New("dao: networks is nil")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("dao: dialer is nil")
	}
	if cfg.Signers == nil {
		return nil, errors.New("dao: signers is nil")
	}

	minPower := big.NewInt(1)
	if cfg.MinExecutionVotingPower != nil {
		if cfg.MinExecutionVotingPower.Sign() < 0 {
			return nil, errors.New("dao: minimum execution voting power is negative")
		}
		minPower = new(big.Int).Set(cfg.MinExecutionVotingPower)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		networks:   cfg.Networks,
		dialer:     cfg.Dialer,
		signers:    cfg.Signers,
		serviceKey: cfg.ServiceKey,
		txOpts:     chain.Options{Confirmations: cfg.Confirmations, PollInterval: cfg.PollInterval},
		minPower:   minPower,
		now:        now,
	}, nil
}

// network is a resolved profile with its dialed backend.
type network struct {
	profile networks.NetworkProfile
	backend chain.Backend
}

func (s *Service) connect(ctx context.Context, chainID uint64) (network, error) {
	profile, err := s.networks.Resolve(chainID)
	if err != nil {
		return network{}, err
	}
	backend, err := s.dialer.Dial(ctx, profile)
	if err != nil {
		return network{}, err
	}
	return network{profile: profile, backend: backend}, nil
}

func (n network) reader() *chain.Reader {
	return chain.NewReader(n.backend, n.profile.ChainID)
}

// serviceSession signs with the service key.
func (s *Service) serviceSession(n network) (*chain.Session, error) {
	if s.serviceKey == nil {
		return nil, apperr.New(apperr.KindInfrastructure, apperr.CodeMissingSecret, "service signing key is not configured")
	}
	return chain.NewSession(n.backend, n.profile.ChainID, s.serviceKey, s.txOpts), nil
}

// agentSession signs with the custodial wallet of sender.
func (s *Service) agentSession(ctx context.Context, n network, sender common.Address) (*chain.Session, error) {
	key, err := s.signers.SigningKeyFor(ctx, sender)
	if err != nil {
		return nil, err
	}
	return chain.NewSession(n.backend, n.profile.ChainID, key, s.txOpts), nil
}

// TxResult is the outcome of a write that extracts nothing from its receipt.
type TxResult struct {
	TransactionHash string `json:"transactionHash"`
	Status          uint64 `json:"status"`
}

func txResult(out *chain.Outcome) TxResult {
	return TxResult{TransactionHash: out.TransactionHash.Hex(), Status: out.Receipt.Status}
}
