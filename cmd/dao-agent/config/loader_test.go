package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/dao-agent/internal/networks"
	"github.com/quantumauth-io/dao-agent/internal/recordstore"
)

func clearSecrets(t *testing.T) {
	for _, k := range []string{"INFURA_PROJECT_ID", "PRIVATE_KEY", "SALT", "FUNDING_PRIVATE_KEY", "PI_API_TOKEN", "DATABASE_URL", "WALLET_SALT", "PI_AUTH_TOKEN"} {
		t.Setenv(k, "")
	}
}

func TestEmbeddedDefaults(t *testing.T) {
	clearSecrets(t)

	cfg, err := LoadFrom("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Server.ExposeKeyDecode)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 2*time.Second, cfg.Chain.PollInterval)
	assert.Equal(t, recordstore.BackendRemote, cfg.RecordStore.Backend)
	assert.Equal(t, "0.1", cfg.Funding.Reserve)

	ids := make([]uint64, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		ids = append(ids, n.ChainID)
	}
	assert.ElementsMatch(t, []uint64{1, 11155111, 31337, 17000}, ids)

	power, err := cfg.MinExecutionVotingPower()
	require.NoError(t, err)
	assert.Equal(t, int64(1), power.Int64())
}

func TestEmbeddedNetworksResolve(t *testing.T) {
	clearSecrets(t)

	cfg, err := LoadFrom("", nil)
	require.NoError(t, err)

	r, err := networks.NewResolver(cfg.Networks, "abc")
	require.NoError(t, err)

	p, err := r.Resolve(11155111)
	require.NoError(t, err)
	assert.Equal(t, "https://sepolia.infura.io/v3/abc", p.RPCEndpoint)
	mgmt, err := p.Address(networks.DAOManagement)
	require.NoError(t, err)
	assert.Equal(t, "0xD7f0E82C30C832548130B847f3c6709492593195", mgmt.Hex())

	mainnet, err := r.Resolve(1)
	require.NoError(t, err)
	_, err = mainnet.Address(networks.DAOFactory)
	assert.Error(t, err)
}

func TestEnvOverridesAndSecrets(t *testing.T) {
	clearSecrets(t)
	t.Setenv("DAO_AGENT_SERVER_ADDR", "127.0.0.1:9999")
	t.Setenv("DAO_AGENT_SERVER_EXPOSEKEYDECODE", "true")
	t.Setenv("SALT", "pepper")
	t.Setenv("PI_API_TOKEN", "token")

	cfg, err := LoadFrom("", nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.True(t, cfg.Server.ExposeKeyDecode)
	assert.Equal(t, "pepper", cfg.Secrets.Salt)
	assert.ElementsMatch(t, []string{"PRIVATE_KEY", "FUNDING_PRIVATE_KEY", "INFURA_PROJECT_ID"}, cfg.MissingSecrets())
}

func TestLegacySecretNames(t *testing.T) {
	clearSecrets(t)
	t.Setenv("WALLET_SALT", "legacy-salt")
	t.Setenv("PI_AUTH_TOKEN", "legacy-token")

	cfg, err := LoadFrom("", nil)
	require.NoError(t, err)
	assert.Equal(t, "legacy-salt", cfg.Secrets.Salt)
	assert.Equal(t, "legacy-token", cfg.Secrets.PIAPIToken)
	assert.NotContains(t, cfg.MissingSecrets(), "SALT")
	assert.NotContains(t, cfg.MissingSecrets(), "PI_API_TOKEN")

	// the current names win when both are set
	t.Setenv("SALT", "new-salt")
	cfg, err = LoadFrom("", nil)
	require.NoError(t, err)
	assert.Equal(t, "new-salt", cfg.Secrets.Salt)
}

func TestFileOverlayNormalizesAddresses(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
networks:
  - name: devnet
    chainId: 1337
    rpcUrl: "http://127.0.0.1:8545"
    contracts:
      daoManagement: "d7f0e82c30c832548130b847f3c6709492593195"
funding:
  chainId: 1337
recordStore:
  backend: Badger
`), 0o600))

	cfg, err := LoadFrom("", []string{dir})
	require.NoError(t, err)

	require.Len(t, cfg.Networks, 1)
	assert.Equal(t, "0xD7f0E82C30C832548130B847f3c6709492593195", cfg.Networks[0].Contracts["daomanagement"])
	assert.Equal(t, recordstore.BackendBadger, cfg.RecordStore.Backend)
	// untouched keys keep their embedded value
	assert.Equal(t, "0.1", cfg.Funding.Amount)
}

func TestValidateRejects(t *testing.T) {
	clearSecrets(t)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"unknown funding chain", func(c *Config) { c.Funding.ChainID = 5 }},
		{"bad backend", func(c *Config) { c.RecordStore.Backend = "s3" }},
		{"bad kdf", func(c *Config) { c.KeyVault.KDF = "md5" }},
		{"negative voting power", func(c *Config) { c.Chain.MinExecutionVotingPower = "-1" }},
		{"badger without dir", func(c *Config) {
			c.RecordStore.Backend = recordstore.BackendBadger
			c.RecordStore.Badger.Dir = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom("", nil)
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNormalizeRejectsBadAddress(t *testing.T) {
	cfg := Config{Networks: []networks.NetworkConfig{{
		Name:      "x",
		ChainID:   9,
		Contracts: map[string]string{"daoFactory": "0x123"},
	}}}
	assert.Error(t, cfg.Normalize())
}
