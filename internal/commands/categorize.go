package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/truenorth-finance/truenorth/internal/activitylog"
	"github.com/truenorth-finance/truenorth/internal/categorize"
	"github.com/truenorth-finance/truenorth/internal/model"
)

func newCategorizeCommand(opts *globalOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Apply rules, then classify what is still uncategorized",
		Long: `Apply keyword rules to every transaction and send the ones still
uncategorized to the configured classifier. With --all every transaction is
reclassified regardless of its current category and rules are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				return runCategorize(a.logContext(cmd.Context()), a, cmd.OutOrStdout(), all)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "reclassify every transaction with the classifier")

	return cmd
}

func runCategorize(ctx context.Context, a *app, w io.Writer, all bool) error {
	before := countUncategorized(a.store.Transactions())

	var source string
	if all {
		analyzer, name, err := a.analyzer(ctx)
		if err != nil {
			return fmt.Errorf("reclassifying needs a classifier: %w", err)
		}
		source = name
		if err := a.store.Reclassify(ctx, analyzer, a.cfg.Classifier.AllBatchSize, a.progress); err != nil {
			return err
		}
	} else {
		analyzer, name := a.analyzerOrRules(ctx)
		source = name
		err := a.store.ReapplyRules(ctx, analyzer, categorize.Options{
			BatchSize:  a.cfg.Classifier.BatchSize,
			OnProgress: a.progress,
		})
		if err != nil {
			return err
		}
	}

	txns := a.store.Transactions()
	after := countUncategorized(txns)
	if all {
		fmt.Fprintf(w, "Reclassified %d transactions, %d uncategorized\n", len(txns), after)
		a.recordFrom(source, activitylog.ActionCategorize, "all", "", len(txns))
		return nil
	}
	fmt.Fprintf(w, "Categorized %d transactions, %d uncategorized\n", max(before-after, 0), after)
	a.recordFrom(source, activitylog.ActionCategorize, "uncategorized", "", max(before-after, 0))
	return nil
}

func countUncategorized(txns []model.Transaction) int {
	n := 0
	for _, t := range txns {
		if t.IsUncategorized() {
			n++
		}
	}
	return n
}
