// Package pgstore is a Postgres RecordStore. Uniqueness of agent id and
// wallet address is enforced by table constraints.
package pgstore

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantumauth-io/dao-agent/internal/metrics"
	"github.com/quantumauth-io/dao-agent/internal/walletstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_wallets (
	agent_id       TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL UNIQUE,
	encrypted_key  TEXT NOT NULL,
	iv             TEXT NOT NULL,
	tag            TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db   db
	pool *pgxpool.Pool
}

var _ walletstore.RecordStore = (*Store)(nil)

// Connect opens a pool for dsn and makes sure the table exists.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("pgstore: DATABASE_URL is empty")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "pgstore: parse dsn")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "pgstore: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pgstore: ping")
	}

	s := &Store{db: pool, pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "pgstore: create agent_wallets")
	}
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Insert(ctx context.Context, rec walletstore.WalletRecord) error {
	started := time.Now()
	tag, err := s.db.Exec(ctx, `
INSERT INTO agent_wallets(agent_id, wallet_address, encrypted_key, iv, tag)
VALUES($1, $2, $3, $4, $5)
ON CONFLICT DO NOTHING
`, rec.AgentID, rec.WalletAddress, rec.EncryptedKey, rec.IV, rec.Tag)
	metrics.ObserveStoreOp("postgres", "insert", started, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return walletstore.ErrRecordExists
	}
	return nil
}

func (s *Store) FindByAgent(ctx context.Context, agentID string) (walletstore.WalletRecord, error) {
	return s.findOne(ctx, "find_by_agent", `
SELECT agent_id, wallet_address, encrypted_key, iv, tag
FROM agent_wallets WHERE agent_id = $1
`, agentID)
}

func (s *Store) FindByAddress(ctx context.Context, address string) (walletstore.WalletRecord, error) {
	return s.findOne(ctx, "find_by_address", `
SELECT agent_id, wallet_address, encrypted_key, iv, tag
FROM agent_wallets WHERE lower(wallet_address) = lower($1)
`, address)
}

func (s *Store) findOne(ctx context.Context, op, query string, arg string) (walletstore.WalletRecord, error) {
	started := time.Now()

	var rec walletstore.WalletRecord
	err := s.db.QueryRow(ctx, query, arg).Scan(&rec.AgentID, &rec.WalletAddress, &rec.EncryptedKey, &rec.IV, &rec.Tag)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveStoreOp("postgres", op, started, nil)
		return walletstore.WalletRecord{}, walletstore.ErrNotFound
	}
	metrics.ObserveStoreOp("postgres", op, started, err)
	if err != nil {
		return walletstore.WalletRecord{}, err
	}
	return rec, nil
}
