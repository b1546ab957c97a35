package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"

	"github.com/quantumauth-io/dao-agent/internal/chain"
	"github.com/quantumauth-io/dao-agent/internal/funding"
	"github.com/quantumauth-io/dao-agent/internal/keyvault"
	"github.com/quantumauth-io/dao-agent/internal/walletstore"
)

var (
	agentIDFlag = &cli.StringFlag{
		Name:  "agent-id",
		Usage: "agent identifier",
	}
	addressFlag = &cli.StringFlag{
		Name:  "address",
		Usage: "wallet address",
	}
	backupFileFlag = &cli.StringFlag{
		Name:  "file",
		Usage: "path of the encrypted key backup",
	}
)

const backupPassphraseEnv = "DAO_AGENT_BACKUP_PASSPHRASE"

var wallet = cli.Command{
	Name:  "wallet",
	Usage: "create and inspect custodial agent wallets",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "create a wallet for an agent",
			Flags: []cli.Flag{
				agentIDFlag,
				&cli.BoolFlag{Name: "fund", Usage: "top up the new wallet from the funding wallet"},
			},
			Action: walletCreateAction,
		},
		{
			Name:   "show",
			Usage:  "print a wallet record by agent id or address",
			Flags:  []cli.Flag{agentIDFlag, addressFlag},
			Action: walletShowAction,
		},
		{
			Name:   "verify",
			Usage:  "decrypt the agent key and check it derives the stored address",
			Flags:  []cli.Flag{agentIDFlag},
			Action: walletVerifyAction,
		},
		{
			Name:   "export",
			Usage:  "write the agent key to a passphrase-encrypted backup file",
			Flags:  []cli.Flag{agentIDFlag, backupFileFlag},
			Action: walletExportAction,
		},
		{
			Name:   "inspect-backup",
			Usage:  "open a backup file and print the wallet it holds, without the key",
			Flags:  []cli.Flag{backupFileFlag},
			Action: walletInspectBackupAction,
		},
	},
}

func walletCreateAction(c *cli.Context) error {
	agentID := c.String(agentIDFlag.Name)
	if agentID == "" {
		return &invalidUsageError{c, "create"}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	var funder walletstore.Funder
	if c.Bool("fund") {
		resolver, clients, err := newResolver(cfg)
		if err != nil {
			return err
		}
		defer clients.Close()

		key, err := chain.KeyFromHex(cfg.Secrets.FundingPrivateKey)
		if err != nil {
			return err
		}
		chainID := cfg.Funding.ChainID
		svc, err := funding.New(funding.Config{
			ChainID: chainID,
			Key:     key,
			Backend: func(ctx context.Context) (chain.Backend, error) {
				profile, err := resolver.Resolve(chainID)
				if err != nil {
					return nil, err
				}
				return clients.Dial(ctx, profile)
			},
			Reserve:       cfg.Funding.Reserve,
			Amount:        cfg.Funding.Amount,
			Confirmations: cfg.Funding.Confirmations,
			PollInterval:  cfg.Chain.PollInterval,
		})
		if err != nil {
			return err
		}
		svc.Start(ctx)
		funder = svc
	}

	store, cleanup, err := openWallets(ctx, cfg, funder)
	if err != nil {
		return err
	}
	defer cleanup()

	created, err := store.Create(ctx, agentID)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, map[string]string{
		"agentId":        created.Record.AgentID,
		"walletAddress":  created.Record.WalletAddress,
		"fundingTx":      created.FundingTx,
		"fundingWarning": created.FundingWarning,
	})
}

func walletShowAction(c *cli.Context) error {
	agentID, address := c.String(agentIDFlag.Name), c.String(addressFlag.Name)
	if (agentID == "") == (address == "") {
		return &invalidUsageError{c, "show"}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, cleanup, err := openWallets(c.Context, cfg, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	var (
		rec   walletstore.WalletRecord
		found bool
	)
	if agentID != "" {
		rec, found, err = store.FetchByAgent(c.Context, agentID)
	} else {
		rec, found, err = store.FetchByAddress(c.Context, address)
	}
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("wallet not found")
	}
	return printJSON(c.App.Writer, rec)
}

func walletVerifyAction(c *cli.Context) error {
	agentID := c.String(agentIDFlag.Name)
	if agentID == "" {
		return &invalidUsageError{c, "verify"}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, cleanup, err := openWallets(c.Context, cfg, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	rec, found, err := store.FetchByAgent(c.Context, agentID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no wallet for agent %q", agentID)
	}
	key, err := store.DecryptSigningKey(rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "ok %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	return nil
}

func backupPassphrase() ([]byte, error) {
	if v := os.Getenv(backupPassphraseEnv); v != "" {
		return []byte(v), nil
	}
	v, err := promptSecret("backup passphrase")
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

func walletExportAction(c *cli.Context) error {
	agentID, path := c.String(agentIDFlag.Name), c.String(backupFileFlag.Name)
	if agentID == "" || path == "" {
		return &invalidUsageError{c, "export"}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, cleanup, err := openWallets(c.Context, cfg, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	rec, found, err := store.FetchByAgent(c.Context, agentID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no wallet for agent %q", agentID)
	}
	key, err := store.RevealPrivateKey(rec)
	if err != nil {
		return err
	}
	passphrase, err := backupPassphrase()
	if err != nil {
		return err
	}
	defer clear(passphrase)

	err = keyvault.WriteBackup(path, keyvault.Backup{
		AgentID:       rec.AgentID,
		WalletAddress: rec.WalletAddress,
		PrivateKey:    key,
	}, passphrase, keyvault.DefaultBackupKDF)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}

func walletInspectBackupAction(c *cli.Context) error {
	path := c.String(backupFileFlag.Name)
	if path == "" {
		return &invalidUsageError{c, "inspect-backup"}
	}
	passphrase, err := backupPassphrase()
	if err != nil {
		return err
	}
	defer clear(passphrase)

	b, err := keyvault.ReadBackup(path, passphrase)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, map[string]string{
		"agentId":       b.AgentID,
		"walletAddress": b.WalletAddress,
	})
}
