package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/worker"
)

// errMismatch makes verify exit non-zero after printing its report.
var errMismatch = errors.New("stored balances disagree with transactions")

func ownerFlag(cmd *cobra.Command, owner *int64) {
	cmd.Flags().Int64Var(owner, "owner", 0, "owner id (required)")
	_ = cmd.MarkFlagRequired("owner")
}

func checkOwner(owner int64) error {
	if owner <= 0 {
		return fmt.Errorf("--owner must be a positive id")
	}
	return nil
}

// withBackend opens the store without the event publisher, runs fn and
// closes it again.
func (a *app) withBackend(cmd *cobra.Command, fn func(res *backend.Result) error) error {
	cfg := *a.cfg
	cfg.AMQPURL = ""
	res, err := cli.OpenBackend(cmd.Context(), &cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			log.For(log.ComponentApp).ErrorContext(cmd.Context(), "Backend cleanup failed", log.FieldError, err)
		}
	}()
	return fn(res)
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Open the configured SQL store, applying every embedded migration that
has not run yet. The memory backend has no schema.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.DataBackend == config.BackendMemory {
				fmt.Fprintln(cmd.OutOrStdout(), "memory backend: nothing to migrate")
				return nil
			}
			return a.withBackend(cmd, func(*backend.Result) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", a.cfg.DataBackend)
				return nil
			})
		},
	}
}

func (a *app) summaryCmd() *cobra.Command {
	var owner int64
	month, year := core.CurrentPeriod(time.Now())

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print an owner's income and expense totals for a month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOwner(owner); err != nil {
				return err
			}
			return a.withBackend(cmd, func(res *backend.Result) error {
				s, err := services.NewSummaryService(res.Store).GetMonthlySummary(cmd.Context(), owner, month, year)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "Period\t%04d-%02d\n", s.Year, s.Month)
				fmt.Fprintf(w, "Income\t%s\n", core.FormatAmount(s.TotalIncome))
				fmt.Fprintf(w, "Expense\t%s\n", core.FormatAmount(s.TotalExpense))
				fmt.Fprintf(w, "Balance\t%s\n", core.FormatAmount(s.Balance))
				return w.Flush()
			})
		},
	}
	ownerFlag(cmd, &owner)
	cmd.Flags().IntVar(&month, "month", month, "month, 1-12")
	cmd.Flags().IntVar(&year, "year", year, "year")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute an owner's balances from their transactions",
		Long: `Recompute every account balance and card bill of the owner as its opening
value plus the effects of the active transactions, and list the ones that
disagree with what is stored. Nothing is repaired.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOwner(owner); err != nil {
				return err
			}
			return a.withBackend(cmd, func(res *backend.Result) error {
				report, err := services.NewVerifyService(res.Store).VerifyBalances(cmd.Context(), owner)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "checked %d accounts, %d cards, %d transactions\n",
					report.Accounts, report.Cards, report.Transactions)
				if report.OK() {
					fmt.Fprintln(out, "all balances consistent")
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KIND\tID\tNAME\tSTORED\tEXPECTED")
				for _, m := range report.Mismatches {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", m.Kind, m.ID, m.Name,
						core.FormatAmount(m.Stored), core.FormatAmount(m.Expected))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				return errMismatch
			})
		},
	}
	ownerFlag(cmd, &owner)
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all of an owner's transactions to the transaction mirror",
		Long: `Upsert every transaction of the owner into the configured mirror
(the Google sheet when GOOGLE_SPREADSHEET_ID is set). Use it to seed a new
sheet or to repair one after missed events.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOwner(owner); err != nil {
				return err
			}
			mirror, err := cli.OpenMirror(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			return a.withBackend(cmd, func(res *backend.Result) error {
				n, err := worker.NewExportWorker(res.Store, mirror).Resync(cmd.Context(), owner)
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d transactions\n", n)
				return err
			})
		},
	}
	ownerFlag(cmd, &owner)
	return cmd
}

func (a *app) purgeCmd() *cobra.Command {
	var (
		owner int64
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every account, card and transaction of an owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOwner(owner); err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to delete owner %d without --yes", owner)
			}
			return a.withBackend(cmd, func(res *backend.Result) error {
				if err := services.NewAccountService(res.Store).DeleteOwner(cmd.Context(), owner); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted all data of owner %d\n", owner)
				return nil
			})
		},
	}
	ownerFlag(cmd, &owner)
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}
