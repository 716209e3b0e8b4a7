package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/truenorth-finance/truenorth/internal/activitylog"
	"github.com/truenorth-finance/truenorth/internal/model"
	"github.com/truenorth-finance/truenorth/internal/rules"
	"github.com/truenorth-finance/truenorth/internal/store"
)

func newRulesCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage keyword categorization rules",
	}
	cmd.AddCommand(
		newRulesListCommand(opts),
		newRulesAddCommand(opts),
		newRulesRemoveCommand(opts),
		newRulesSuggestCommand(),
	)
	return cmd
}

func newRulesListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				w := cmd.OutOrStdout()
				rs := rules.Sorted(a.store.Rules())
				if len(rs) == 0 {
					fmt.Fprintln(w, "No rules.")
					return nil
				}
				for _, r := range rs {
					fmt.Fprintf(w, "%-36s  %-30s %s\n", r.ID, r.Keyword, r.Category)
				}
				return nil
			})
		},
	}
}

func newRulesAddCommand(opts *globalOptions) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "add KEYWORD CATEGORY",
		Short: "Add a rule mapping a description keyword to a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				r, err := a.store.AddRule(args[0], model.NormalizeCategory(args[1]))
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Added rule %s -> %s\n", r.Keyword, r.Category)
				a.record(activitylog.ActionRuleAdd, r.Keyword+" -> "+r.Category, r.ID, 1)
				if !apply {
					return nil
				}
				return runCategorize(a.logContext(cmd.Context()), a, w, false)
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "categorize existing transactions afterwards")

	return cmd
}

func newRulesRemoveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID|KEYWORD",
		Short: "Remove a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				r, ok := findRule(a.store.Rules(), args[0])
				if !ok {
					return fmt.Errorf("rule %s: %w", args[0], store.ErrNotFound)
				}
				if err := a.store.RemoveRule(r.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed rule %s -> %s\n", r.Keyword, r.Category)
				a.record(activitylog.ActionRuleRemove, r.Keyword, r.ID, 1)
				return nil
			})
		},
	}
}

func findRule(rs []model.Rule, ref string) (model.Rule, bool) {
	for _, r := range rs {
		if r.ID == ref || strings.EqualFold(r.Keyword, ref) {
			return r, true
		}
	}
	return model.Rule{}, false
}

func newRulesSuggestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest DESCRIPTION",
		Short: "Show the keyword a rule would use for a description",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), rules.SuggestKeyword(strings.Join(args, " ")))
		},
	}
}
