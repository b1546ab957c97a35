// Package recordstore selects one of the wallet record backends.
package recordstore

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/dao-agent/internal/recordstore/badgerstore"
	"github.com/quantumauth-io/dao-agent/internal/recordstore/pgstore"
	"github.com/quantumauth-io/dao-agent/internal/recordstore/remote"
	"github.com/quantumauth-io/dao-agent/internal/walletstore"
)

const (
	BackendRemote   = "remote"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

type RemoteSettings struct {
	BaseURL  string        `mapstructure:"baseUrl"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"pageSize"`
	MaxPages int           `mapstructure:"maxPages"`
}

type BadgerSettings struct {
	Dir string `mapstructure:"dir"`
}

type Settings struct {
	Backend string         `mapstructure:"backend"`
	Remote  RemoteSettings `mapstructure:"remote"`
	Badger  BadgerSettings `mapstructure:"badger"`
}

// Credentials are the secrets a backend may need.
type Credentials struct {
	RemoteToken string
	DatabaseURL string
}

// Open returns the configured backend and a cleanup that must always be
// called.
func Open(ctx context.Context, s Settings, creds Credentials) (walletstore.RecordStore, func(), error) {
	switch s.Backend {
	case BackendBadger:
		st, err := badgerstore.Open(s.Badger.Dir)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				log.Error("badger close failed", "error", err)
			}
		}, nil

	case BackendPostgres:
		if creds.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres record store")
		}
		st, err := pgstore.Connect(ctx, creds.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil

	case BackendRemote:
		st, err := remote.NewClient(remote.Config{
			BaseURL:  s.Remote.BaseURL,
			Token:    creds.RemoteToken,
			Timeout:  s.Remote.Timeout,
			PageSize: s.Remote.PageSize,
			MaxPages: s.Remote.MaxPages,
		})
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil

	default:
		return nil, nil, errors.Newf("unknown record store backend %q", s.Backend)
	}
}
