package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	Version = "dev"

	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "path to a config.yaml overlay",
		EnvVars: []string{"DAO_AGENT_CONFIG"},
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "daoctl"
	app.Version = Version
	app.Usage = "Operator command line for the dao-agent service"
	app.Flags = []cli.Flag{configFlag}
	app.Commands = []*cli.Command{
		&wallet,
		&networksCmd,
		&proposal,
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fatal(err)
	}
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[daoctl] %v\n", err)
	}
	os.Exit(1)
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
