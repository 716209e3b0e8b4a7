package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/truenorth-finance/truenorth/internal/activitylog"
)

func newBalanceCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show or set the bank balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Bank balance: %s\n", money(a.store.BankBalance()))
				return nil
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set AMOUNT",
		Short: "Set the bank balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				if err := a.store.SetBankBalance(amount); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Bank balance set to %s\n", money(amount))
				a.record(activitylog.ActionBalance, amount.StringFixed(2), "", 0)
				return nil
			})
		},
	})
	return cmd
}

func newSavingsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "savings",
		Short: "Show or set the amount reserved for savings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Savings reserve: %s\n", money(a.store.SavingsReserve()))
				return nil
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set AMOUNT",
		Short: "Set the savings reserve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				if err := a.store.SetSavingsReserve(amount); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Savings reserve set to %s\n", money(amount))
				a.record(activitylog.ActionSavings, amount.StringFixed(2), "", 0)
				return nil
			})
		},
	})
	return cmd
}
