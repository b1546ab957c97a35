package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	agentconfig "github.com/quantumauth-io/dao-agent/cmd/dao-agent/config"
	"github.com/quantumauth-io/dao-agent/internal/keyvault"
	"github.com/quantumauth-io/dao-agent/internal/networks"
	"github.com/quantumauth-io/dao-agent/internal/recordstore"
	"github.com/quantumauth-io/dao-agent/internal/walletstore"
)

func loadConfig(c *cli.Context) (*agentconfig.Config, error) {
	if path := c.String(configFlag.Name); path != "" {
		return agentconfig.LoadFrom(path, nil)
	}
	return agentconfig.Load()
}

// promptSecret asks for a secret on an interactive terminal. The value is
// never echoed.
func promptSecret(label string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.Newf("%s is not set and stdin is not a terminal", label)
	}
	fmt.Fprintf(os.Stderr, "Enter %s: ", label)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", errors.Wrapf(err, "read %s", label)
	}
	value := strings.TrimSpace(string(raw))
	clear(raw)
	if value == "" {
		return "", errors.Newf("%s cannot be empty", label)
	}
	return value, nil
}

func promptSalt() (string, error) {
	return promptSecret("SALT")
}

func newResolver(cfg *agentconfig.Config) (*networks.Resolver, *networks.Clients, error) {
	resolver, err := networks.NewResolver(cfg.Networks, cfg.Secrets.InfuraProjectID)
	if err != nil {
		return nil, nil, err
	}
	return resolver, networks.NewClients(cfg.Chain.DialTimeout), nil
}

// openWallets builds the wallet store with the configured record backend.
// The returned cleanup must always be called.
func openWallets(ctx context.Context, cfg *agentconfig.Config, funder walletstore.Funder) (*walletstore.Store, func(), error) {
	salt := cfg.Secrets.Salt
	if salt == "" {
		var err error
		if salt, err = promptSalt(); err != nil {
			return nil, nil, err
		}
	}
	kdf, err := keyvault.KDFByName(cfg.KeyVault.KDF)
	if err != nil {
		return nil, nil, err
	}

	records, cleanup, err := recordstore.Open(ctx, cfg.RecordStore, recordstore.Credentials{
		RemoteToken: cfg.Secrets.PIAPIToken,
		DatabaseURL: cfg.Secrets.DatabaseURL,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := walletstore.New(walletstore.Config{
		Records: records,
		Vault:   keyvault.New(salt, kdf),
		Funder:  funder,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}
