// Package badgerstore is an embedded RecordStore for single-node deployments
// and local development.
package badgerstore

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/quantumauth-io/dao-agent/internal/metrics"
	"github.com/quantumauth-io/dao-agent/internal/walletstore"
)

const addressIndex = "WalletAddress"

type Store struct {
	db *badgerhold.Store
}

var _ walletstore.RecordStore = (*Store)(nil)

// Open opens (or creates) the store in dir. An empty dir opens an in-memory
// store.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open badger store at %q", dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes rec under its agent id. The address check and the insert run
// in one badger transaction, so conflicting writers abort instead of both
// succeeding.
func (s *Store) Insert(_ context.Context, rec walletstore.WalletRecord) (err error) {
	defer func(started time.Time) { metrics.ObserveStoreOp("badger", "insert", started, err) }(time.Now())

	err = s.db.Badger().Update(func(tx *badger.Txn) error {
		var sameAddress []walletstore.WalletRecord
		q := badgerhold.Where("WalletAddress").Eq(rec.WalletAddress).Index(addressIndex)
		if err := s.db.TxFind(tx, &sameAddress, q); err != nil {
			return err
		}
		if len(sameAddress) > 0 {
			return walletstore.ErrRecordExists
		}
		return s.db.TxInsert(tx, rec.AgentID, rec)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, badgerhold.ErrKeyExists), errors.Is(err, badger.ErrConflict):
		return walletstore.ErrRecordExists
	default:
		return err
	}
}

func (s *Store) FindByAgent(_ context.Context, agentID string) (rec walletstore.WalletRecord, err error) {
	defer func(started time.Time) { metrics.ObserveStoreOp("badger", "find_by_agent", started, err) }(time.Now())

	if err = s.db.Get(agentID, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return walletstore.WalletRecord{}, walletstore.ErrNotFound
		}
		return walletstore.WalletRecord{}, err
	}
	return rec, nil
}

func (s *Store) FindByAddress(_ context.Context, address string) (walletstore.WalletRecord, error) {
	started := time.Now()

	var found []walletstore.WalletRecord
	err := s.db.Find(&found, badgerhold.Where("WalletAddress").Eq(address).Index(addressIndex))
	metrics.ObserveStoreOp("badger", "find_by_address", started, err)
	if err != nil {
		return walletstore.WalletRecord{}, err
	}
	if len(found) == 0 {
		return walletstore.WalletRecord{}, walletstore.ErrNotFound
	}
	return found[0], nil
}
