package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ledger/internal/cli"
	"ledger/internal/config"
)

// app carries what PersistentPreRunE prepared for the subcommands.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate a ledger database",
		Long: `ledgerctl runs maintenance tasks against the configured ledger store:
schema migrations, monthly summaries, balance verification, export to the
transaction mirror and removal of an owner's data.

Configuration is read from the environment (and .env) like the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			cfg, err := cli.LoadConfig(nil)
			if err != nil {
				return err
			}
			cli.SetupLogger(cfg)
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		a.migrateCmd(),
		a.summaryCmd(),
		a.verifyCmd(),
		a.exportCmd(),
		a.purgeCmd(),
	)
	return root
}

func main() {
	ctx, stop := cli.SignalContext(context.Background())
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
