package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/truenorth-finance/truenorth/internal/activitylog"
	"github.com/truenorth-finance/truenorth/internal/store"
)

// CSV export file names.
const (
	TransactionsCSV = "transactions.csv"
	RulesCSV        = "rules.csv"
)

func newBackupCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup FILE",
		Short: "Write all data to a JSON backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				snap, err := a.store.Export()
				if err != nil {
					return err
				}
				f, err := os.OpenFile(args[0], os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
				if err != nil {
					return fmt.Errorf("creating backup: %w", err)
				}
				if err := store.EncodeSnapshot(f, snap); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("writing backup: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d transactions and %d rules to %s\n",
					len(snap.Transactions), len(snap.Rules), args[0])
				a.record(activitylog.ActionBackup, "", filepath.Base(args[0]), len(snap.Transactions))
				return nil
			})
		},
	}
}

func newRestoreCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore FILE",
		Short: "Replace all data with a JSON backup",
		Long: `Replace all data with a JSON backup. The file is validated first and
nothing changes if any problem is found. Backups from the browser version of
the app are accepted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening backup: %w", err)
			}
			snap, err := store.DecodeSnapshot(f)
			f.Close()
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				if err := a.store.Import(snap); err != nil {
					var verrs store.ValidationErrors
					if errors.As(err, &verrs) {
						w := cmd.ErrOrStderr()
						for _, v := range verrs {
							debitColor.Fprintln(w, v.Error())
						}
						return fmt.Errorf("%s rejected: %d problems", args[0], len(verrs))
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %d transactions and %d rules from %s\n",
					len(snap.Transactions), len(snap.Rules), args[0])
				a.record(activitylog.ActionRestore, "", filepath.Base(args[0]), len(snap.Transactions))
				return nil
			})
		},
	}
}

func newExportCSVCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-csv DIR",
		Short: "Write transactions.csv and rules.csv for spreadsheets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				dir := args[0]
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("creating %s: %w", dir, err)
				}
				txns := a.store.Transactions()
				if err := writeCSVFile(filepath.Join(dir, TransactionsCSV), func(f *os.File) error {
					return store.WriteTransactions(f, txns)
				}); err != nil {
					return err
				}
				if err := writeCSVFile(filepath.Join(dir, RulesCSV), func(f *os.File) error {
					return store.WriteRules(f, a.store.Rules())
				}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d transactions to %s\n", len(txns), filepath.Join(dir, TransactionsCSV))
				return nil
			})
		},
	}
}

func writeCSVFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func newResetCommand(opts *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all transactions, rules and balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete everything without --yes")
			}
			return withApp(opts, func(a *app) error {
				if err := a.store.Reset(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All data cleared.")
				a.record(activitylog.ActionReset, "", "", 0)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")

	return cmd
}
