package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/quantumauth-io/dao-agent/internal/keyvault"
	"github.com/quantumauth-io/dao-agent/internal/networks"
	"github.com/quantumauth-io/dao-agent/internal/recordstore"
)

//go:embed config.yaml
var EmbeddedConfigYAML []byte

const envPrefix = "DAO_AGENT"

type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	AllowOrigins    []string      `mapstructure:"allowOrigins"`
	ExposeKeyDecode bool          `mapstructure:"exposeKeyDecode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type ChainSettings struct {
	Confirmations           uint64        `mapstructure:"confirmations"`
	PollInterval            time.Duration `mapstructure:"pollInterval"`
	DialTimeout             time.Duration `mapstructure:"dialTimeout"`
	MinExecutionVotingPower string        `mapstructure:"minExecutionVotingPower"`
}

type FundingSettings struct {
	ChainID       uint64 `mapstructure:"chainId"`
	Reserve       string `mapstructure:"reserve"`
	Amount        string `mapstructure:"amount"`
	Confirmations uint64 `mapstructure:"confirmations"`
	QueueSize     int    `mapstructure:"queueSize"`
}

type KeyVaultSettings struct {
	KDF string `mapstructure:"kdf"`
}

// Secrets are read from the environment only and never from a file.
type Secrets struct {
	InfuraProjectID   string `envconfig:"INFURA_PROJECT_ID"`
	PrivateKey        string `envconfig:"PRIVATE_KEY"`
	Salt              string `envconfig:"SALT"`
	FundingPrivateKey string `envconfig:"FUNDING_PRIVATE_KEY"`
	PIAPIToken        string `envconfig:"PI_API_TOKEN"`
	DatabaseURL       string `envconfig:"DATABASE_URL"`

	// Names used by existing deployments; read only when the names above
	// are unset.
	WalletSalt  string `envconfig:"WALLET_SALT"`
	PIAuthToken string `envconfig:"PI_AUTH_TOKEN"`
}

func (s *Secrets) applyFallbacks() {
	if strings.TrimSpace(s.Salt) == "" {
		s.Salt = s.WalletSalt
	}
	if strings.TrimSpace(s.PIAPIToken) == "" {
		s.PIAPIToken = s.PIAuthToken
	}
}

type Config struct {
	Server      ServerSettings           `mapstructure:"server"`
	Chain       ChainSettings            `mapstructure:"chain"`
	Networks    []networks.NetworkConfig `mapstructure:"networks"`
	Funding     FundingSettings          `mapstructure:"funding"`
	RecordStore recordstore.Settings     `mapstructure:"recordStore"`
	KeyVault    KeyVaultSettings         `mapstructure:"keyvault"`

	Secrets Secrets `mapstructure:"-"`
}

// Load reads the embedded defaults, merges the first config.yaml found in
// the search paths (or DAO_AGENT_CONFIG when set), applies DAO_AGENT_*
// overrides, then reads secrets and validates the result.
func Load() (*Config, error) {
	home, _ := os.UserHomeDir()
	paths := []string{
		filepath.Join(home, ".config", "dao-agent"),
		filepath.Join(home, "config"),
		".",
	}
	return LoadFrom(os.Getenv(envPrefix+"_CONFIG"), paths)
}

func LoadFrom(file string, paths []string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewReader(EmbeddedConfigYAML)); err != nil {
		return nil, errors.Wrap(err, "read embedded config")
	}

	if file == "" {
		file = findConfigFile(paths)
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "merge config %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := envconfig.Process("", &cfg.Secrets); err != nil {
		return nil, errors.Wrap(err, "read secrets")
	}
	cfg.Secrets.applyFallbacks()

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findConfigFile(paths []string) string {
	for _, dir := range paths {
		p := filepath.Join(dir, "config.yaml")
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

// Normalize canonicalizes registry addresses to their checksummed form.
func (c *Config) Normalize() error {
	for i, n := range c.Networks {
		if len(n.Contracts) == 0 {
			continue
		}
		out := make(map[string]string, len(n.Contracts))
		for name, raw := range n.Contracts {
			a := strings.TrimSpace(raw)
			if a == "" {
				continue
			}
			if !strings.HasPrefix(a, "0x") && !strings.HasPrefix(a, "0X") {
				a = "0x" + a
			}
			if !common.IsHexAddress(a) {
				return fmt.Errorf("networks[%s].contracts.%s invalid address: %q", n.Name, name, raw)
			}
			out[name] = common.HexToAddress(a).Hex()
		}
		c.Networks[i].Contracts = out
	}

	c.RecordStore.Backend = strings.ToLower(strings.TrimSpace(c.RecordStore.Backend))
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is empty")
	}
	if len(c.Networks) == 0 {
		return errors.New("networks is empty")
	}

	known := make(map[uint64]bool, len(c.Networks))
	for _, n := range c.Networks {
		known[n.ChainID] = true
	}
	if !known[c.Funding.ChainID] {
		return fmt.Errorf("funding.chainId %d is not a configured network", c.Funding.ChainID)
	}

	if _, err := c.MinExecutionVotingPower(); err != nil {
		return err
	}
	if _, err := keyvault.KDFByName(c.KeyVault.KDF); err != nil {
		return errors.Wrap(err, "keyvault.kdf")
	}

	switch c.RecordStore.Backend {
	case recordstore.BackendRemote:
		if strings.TrimSpace(c.RecordStore.Remote.BaseURL) == "" {
			return errors.New("recordStore.remote.baseUrl is empty")
		}
	case recordstore.BackendBadger:
		if strings.TrimSpace(c.RecordStore.Badger.Dir) == "" {
			return errors.New("recordStore.badger.dir is empty")
		}
	case recordstore.BackendPostgres:
	default:
		return fmt.Errorf("invalid recordStore.backend %q (allowed: remote, badger, postgres)", c.RecordStore.Backend)
	}
	return nil
}

func (c *Config) MinExecutionVotingPower() (*big.Int, error) {
	raw := strings.TrimSpace(c.Chain.MinExecutionVotingPower)
	if raw == "" {
		return big.NewInt(1), nil
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("chain.minExecutionVotingPower %q is not a non-negative integer", raw)
	}
	return n, nil
}

// MissingSecrets lists the secrets the configured components will need but
// that are unset. Startup only warns about them.
func (c *Config) MissingSecrets() []string {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}

	check("SALT", c.Secrets.Salt)
	check("PRIVATE_KEY", c.Secrets.PrivateKey)
	check("FUNDING_PRIVATE_KEY", c.Secrets.FundingPrivateKey)
	for _, n := range c.Networks {
		if n.RequiresCredential || strings.Contains(n.RPCURL, networks.CredentialPlaceholder) {
			check("INFURA_PROJECT_ID", c.Secrets.InfuraProjectID)
			break
		}
	}
	switch c.RecordStore.Backend {
	case recordstore.BackendRemote:
		check("PI_API_TOKEN", c.Secrets.PIAPIToken)
	case recordstore.BackendPostgres:
		check("DATABASE_URL", c.Secrets.DatabaseURL)
	}
	return missing
}
