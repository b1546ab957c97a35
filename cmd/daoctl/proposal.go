package main

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/dao"
)

var proposal = cli.Command{
	Name:  "proposal",
	Usage: "read proposal state",
	Subcommands: []*cli.Command{
		{
			Name:  "status",
			Usage: "print participation, support and status of a proposal",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "chain-id", Usage: "chain id", Required: true},
				&cli.StringFlag{Name: "proposal", Usage: "proposal contract address", Required: true},
			},
			Action: proposalStatusAction,
		},
	},
}

// readOnly refuses every signing request; the CLI only reads chain state.
type readOnly struct{}

func (readOnly) SigningKeyFor(_ context.Context, address common.Address) (*ecdsa.PrivateKey, error) {
	return nil, apperr.Input(apperr.CodeWalletNotFound, "daoctl does not sign for %s", address.Hex())
}

func proposalStatusAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	resolver, clients, err := newResolver(cfg)
	if err != nil {
		return err
	}
	defer clients.Close()

	svc, err := dao.New(dao.Config{
		Networks: resolver,
		Dialer:   clients,
		Signers:  readOnly{},
	})
	if err != nil {
		return err
	}

	status, err := svc.ProposalStatus(c.Context, dao.ProposalRequest{
		ProposalAddress: c.String("proposal"),
		ChainID:         dao.Uint(c.Uint64("chain-id")),
	})
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, status)
}
