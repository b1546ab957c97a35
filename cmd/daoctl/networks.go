package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
)

var networksCmd = cli.Command{
	Name:  "networks",
	Usage: "inspect the configured chain table",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "list supported chains and their contract registry",
			Action: networksListAction,
		},
	},
}

func networksListAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	resolver, clients, err := newResolver(cfg)
	if err != nil {
		return err
	}
	defer clients.Close()

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN ID\tNAME\tRPC\tEXPLORER\tCONTRACTS")
	for _, p := range resolver.Supported() {
		entries := make([]string, 0, len(p.Registry))
		for name, addr := range p.Registry {
			entries = append(entries, fmt.Sprintf("%s=%s", name, addr.Hex()))
		}
		sort.Strings(entries)
		contracts := "-"
		if len(entries) > 0 {
			contracts = strings.Join(entries, " ")
		}
		explorer := p.Explorer
		if explorer == "" {
			explorer = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ChainID, p.Name, p.RPCEndpoint, explorer, contracts)
	}
	return w.Flush()
}
