// Package walletstore manages custodial agent wallets: creation, lookup and
// decryption of signing keys on demand.
package walletstore

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/keyvault"
)

// Funder tops up a newly created wallet. A zero hash means no transfer was
// needed.
type Funder interface {
	FundIfNeeded(ctx context.Context, recipient common.Address) (common.Hash, error)
}

type Config struct {
	Records RecordStore
	Vault   *keyvault.Vault
	// Funder is optional; without it new wallets are not funded.
	Funder Funder
}

type Store struct {
	records RecordStore
	vault   *keyvault.Vault
	funder  Funder
}

func New(cfg Config) (*Store, error) {
	if cfg.Records == nil {
		return nil, errors.New("walletstore: record store is nil")
	}
	if cfg.Vault == nil {
		return nil, errors.New("walletstore: vault is nil")
	}
	return &Store{records: cfg.Records, vault: cfg.Vault, funder: cfg.Funder}, nil
}

// Created is the result of a successful Create. Funding is best effort: a
// failure is reported in FundingWarning and does not undo the wallet.
type Created struct {
	Record         WalletRecord
	FundingTx      string
	FundingWarning string
}

// Create generates, encrypts and persists a wallet for agentID. It fails with
// WALLET_ALREADY_EXISTS if the agent already has one.
func (s *Store) Create(ctx context.Context, agentID string) (Created, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return Created{}, apperr.Input(apperr.CodeInvalidRequest, "agentId is required")
	}

	// fast path; the insert below is what actually enforces uniqueness
	if _, found, err := s.FetchByAgent(ctx, agentID); err != nil {
		return Created{}, err
	} else if found {
		return Created{}, walletExists(agentID)
	}

	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return Created{}, errors.Wrap(err, "generate key")
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	env, err := s.vault.Encrypt(hexutil.Encode(crypto.FromECDSA(key)), agentID)
	if err != nil {
		return Created{}, err
	}

	rec := WalletRecord{
		AgentID:       agentID,
		WalletAddress: address.Hex(),
		EncryptedKey:  env.Ciphertext,
		IV:            env.IV,
		Tag:           env.Tag,
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrRecordExists) {
			return Created{}, walletExists(agentID)
		}
		return Created{}, storeUnavailable(err)
	}
	log.Info("agent wallet created", "agentId", agentID, "address", rec.WalletAddress)

	out := Created{Record: rec}
	if s.funder == nil {
		return out, nil
	}

	hash, err := s.funder.FundIfNeeded(ctx, address)
	if err != nil {
		log.Warn("agent wallet funding failed", "agentId", agentID, "address", rec.WalletAddress, "error", err)
		e := apperr.From(err)
		out.FundingWarning = e.Message
		out.FundingTx = e.TxHash
		return out, nil
	}
	if hash != (common.Hash{}) {
		out.FundingTx = hash.Hex()
	}
	return out, nil
}

// FetchByAgent returns the record for agentID. found is false, with a nil
// error, when the agent has no wallet yet.
func (s *Store) FetchByAgent(ctx context.Context, agentID string) (WalletRecord, bool, error) {
	rec, err := s.records.FindByAgent(ctx, strings.TrimSpace(agentID))
	return lookupResult(rec, err)
}

// FetchByAddress is FetchByAgent keyed by wallet address.
func (s *Store) FetchByAddress(ctx context.Context, address string) (WalletRecord, bool, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return WalletRecord{}, false, apperr.Input(apperr.CodeInvalidAddress, "invalid wallet address %q", address)
	}
	rec, err := s.records.FindByAddress(ctx, common.HexToAddress(address).Hex())
	return lookupResult(rec, err)
}

func lookupResult(rec WalletRecord, err error) (WalletRecord, bool, error) {
	switch {
	case err == nil:
		return rec, true, nil
	case errors.Is(err, ErrNotFound):
		return WalletRecord{}, false, nil
	default:
		return WalletRecord{}, false, storeUnavailable(err)
	}
}

// RevealPrivateKey decrypts rec and returns the 0x-prefixed hex private key.
func (s *Store) RevealPrivateKey(rec WalletRecord) (string, error) {
	if !rec.Complete() {
		return "", apperr.New(apperr.KindInput, apperr.CodeWalletDataIncomplete,
			"wallet record is missing encryptedKey, iv, tag or agentId")
	}
	return s.vault.Decrypt(rec.Envelope(), rec.AgentID)
}

// DecryptSigningKey decrypts rec and checks that the key still derives the
// stored address.
func (s *Store) DecryptSigningKey(rec WalletRecord) (*ecdsa.PrivateKey, error) {
	plain, err := s.RevealPrivateKey(rec)
	if err != nil {
		return nil, err
	}

	raw, err := hexutil.Decode(plain)
	if err != nil {
		return nil, keyvault.ErrAuthenticationFailed
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, keyvault.ErrAuthenticationFailed
	}

	if rec.WalletAddress != "" && crypto.PubkeyToAddress(key.PublicKey) != common.HexToAddress(rec.WalletAddress) {
		log.Error("wallet record address mismatch", "agentId", rec.AgentID, "address", rec.WalletAddress)
		return nil, apperr.New(apperr.KindInfrastructure, apperr.CodeInternal, "wallet record is corrupt")
	}
	return key, nil
}

// SigningKeyFor looks up the wallet owning address and decrypts its key.
func (s *Store) SigningKeyFor(ctx context.Context, address common.Address) (*ecdsa.PrivateKey, error) {
	rec, found, err := s.FetchByAddress(ctx, address.Hex())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.Input(apperr.CodeWalletNotFound, "no custodial wallet for %s", address.Hex())
	}
	return s.DecryptSigningKey(rec)
}

func walletExists(agentID string) *apperr.Error {
	return apperr.Precondition(apperr.CodeWalletExists, "wallet already exists for agent %q", agentID)
}

func storeUnavailable(err error) *apperr.Error {
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return classified
	}
	return apperr.Infrastructure(err, apperr.CodeStoreUnavailable, "wallet record store unavailable")
}
