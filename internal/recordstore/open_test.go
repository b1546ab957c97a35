package recordstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/dao-agent/internal/recordstore/badgerstore"
	"github.com/quantumauth-io/dao-agent/internal/recordstore/remote"
)

func TestOpenBadger(t *testing.T) {
	st, cleanup, err := Open(context.Background(), Settings{
		Backend: BackendBadger,
		Badger:  BadgerSettings{Dir: t.TempDir()},
	}, Credentials{})
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &badgerstore.Store{}, st)
}

func TestOpenRemote(t *testing.T) {
	st, cleanup, err := Open(context.Background(), Settings{
		Backend: BackendRemote,
		Remote:  RemoteSettings{BaseURL: "https://records.example/instances"},
	}, Credentials{RemoteToken: "t"})
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &remote.Client{}, st)
}

func TestOpenRejects(t *testing.T) {
	_, _, err := Open(context.Background(), Settings{Backend: BackendPostgres}, Credentials{})
	assert.Error(t, err)

	_, _, err = Open(context.Background(), Settings{Backend: "s3"}, Credentials{})
	assert.Error(t, err)
}
