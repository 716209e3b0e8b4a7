package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/truenorth-finance/truenorth/internal/activitylog"
	"github.com/truenorth-finance/truenorth/internal/model"
	"github.com/truenorth-finance/truenorth/internal/store"
)

func newTransactionsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txns"},
		Short:   "List and edit transactions",
	}
	cmd.AddCommand(
		newTransactionsListCommand(opts),
		newTransactionsSetCategoryCommand(opts),
		newTransactionsEditCommand(opts),
		newTransactionsDeleteCommand(opts),
	)
	return cmd
}

func newTransactionsListCommand(opts *globalOptions) *cobra.Command {
	var category, month string
	var limit int
	var uncategorized bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				txns := a.store.Transactions()
				if uncategorized {
					category = string(model.CategoryUncategorized)
				}
				if category != "" {
					txns = filterTransactions(txns, func(t model.Transaction) bool {
						return strings.EqualFold(t.Category, category)
					})
				}
				if month != "" {
					m, err := parseMonth(month, a.today())
					if err != nil {
						return err
					}
					txns = filterTransactions(txns, func(t model.Transaction) bool {
						return model.SameMonth(m, t.Date)
					})
				}
				if limit > 0 && len(txns) > limit {
					txns = txns[:limit]
				}
				printTransactions(cmd.OutOrStdout(), txns)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only this category")
	cmd.Flags().BoolVar(&uncategorized, "uncategorized", false, "only uncategorized transactions")
	cmd.Flags().StringVar(&month, "month", "", "only this month (YYYY-MM)")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many")

	return cmd
}

func filterTransactions(txns []model.Transaction, keep func(model.Transaction) bool) []model.Transaction {
	var out []model.Transaction
	for _, t := range txns {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func printTransactions(w io.Writer, txns []model.Transaction) {
	if len(txns) == 0 {
		fmt.Fprintln(w, "No transactions.")
		return
	}
	for _, t := range txns {
		fmt.Fprintf(w, "%s  %-8s ", t.Date.Format("2006-01-02"), shortID(t.ID))
		fprintAmount(w, t.Amount)
		fmt.Fprintf(w, "  %-24s %s", t.Category, t.Description)
		if t.MerchantName != "" {
			mutedColor.Fprintf(w, " (%s)", t.MerchantName)
		}
		if t.IsRecurring {
			mutedColor.Fprint(w, " [recurring]")
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d transactions\n", len(txns))
}

func newTransactionsSetCategoryCommand(opts *globalOptions) *cobra.Command {
	var always bool

	cmd := &cobra.Command{
		Use:   "set-category ID CATEGORY",
		Short: "Categorize a transaction by hand",
		Long: `Categorize a transaction by hand. ID may be an unambiguous prefix.
With --always a keyword rule is created from the description and applied to
every uncategorized transaction.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				t, err := a.findTransaction(args[0])
				if err != nil {
					return err
				}
				category := model.NormalizeCategory(args[1])
				if !model.IsValidCategory(category) {
					return fmt.Errorf("unknown category %q (one of: %s)", args[1], strings.Join(model.Categories(), ", "))
				}

				rule, err := a.store.CategorizeManually(t.ID, category, always)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s -> %s\n", t.Description, category)
				a.record(activitylog.ActionManual, category, t.ID, 1)
				if rule != nil {
					fmt.Fprintf(w, "Rule: %s -> %s\n", rule.Keyword, rule.Category)
					a.record(activitylog.ActionRuleAdd, rule.Keyword+" -> "+rule.Category, rule.ID, 1)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&always, "always", false, "also create a rule for similar transactions")

	return cmd
}

func newTransactionsEditCommand(opts *globalOptions) *cobra.Command {
	var merchant string
	var recurring bool

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Set the merchant name or recurring flag of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch store.Patch
			if cmd.Flags().Changed("merchant") {
				patch.MerchantName = &merchant
			}
			if cmd.Flags().Changed("recurring") {
				patch.IsRecurring = &recurring
			}
			if patch.MerchantName == nil && patch.IsRecurring == nil {
				return fmt.Errorf("nothing to change: pass --merchant or --recurring")
			}
			return withApp(opts, func(a *app) error {
				t, err := a.findTransaction(args[0])
				if err != nil {
					return err
				}
				if err := a.store.UpdateTransaction(t.ID, patch); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", shortID(t.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&merchant, "merchant", "", "clean merchant name")
	cmd.Flags().BoolVar(&recurring, "recurring", false, "mark as a recurring bill")

	return cmd
}

func newTransactionsDeleteCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				t, err := a.findTransaction(args[0])
				if err != nil {
					return err
				}
				if err := a.store.DeleteTransaction(t.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s\n", shortID(t.ID), t.Description)
				a.record(activitylog.ActionDelete, t.Description, t.ID, 1)
				return nil
			})
		},
	}
}
