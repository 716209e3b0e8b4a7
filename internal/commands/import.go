package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/truenorth-finance/truenorth/internal/activitylog"
	"github.com/truenorth-finance/truenorth/internal/importer"
)

func newImportCommand(opts *globalOptions) *cobra.Command {
	var bank string
	var noCategorize bool

	cmd := &cobra.Command{
		Use:   "import [FILE...]",
		Short: "Import bank statement CSVs (the import/ inbox when no files are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				return runImport(a.logContext(cmd.Context()), a, cmd.OutOrStdout(), args, bank, noCategorize)
			})
		},
	}

	cmd.Flags().StringVar(&bank, "bank", "", "force a bank format: commbank, nab, westpac, anz, suncorp")
	cmd.Flags().BoolVar(&noCategorize, "no-categorize", false, "skip rules and classification after import")

	return cmd
}

type importSource struct {
	path  string
	inbox bool
}

func runImport(ctx context.Context, a *app, w io.Writer, files []string, bank string, noCategorize bool) error {
	if bank == "" {
		bank = a.cfg.Import.Bank
	}

	var sources []importSource
	for _, f := range files {
		sources = append(sources, importSource{path: f})
	}
	if len(files) == 0 {
		found, err := importer.Scan(a.dataDir)
		if err != nil {
			return err
		}
		for _, f := range found {
			sources = append(sources, importSource{path: f.Path, inbox: true})
		}
		if len(sources) == 0 {
			fmt.Fprintf(w, "No CSV files in %s\n", filepath.Join(a.dataDir, importer.InboxDir))
			return nil
		}
	}

	registry := importer.DefaultRegistry()
	total := 0
	for _, src := range sources {
		added, err := importFile(a, w, registry, src, bank)
		if err != nil {
			return err
		}
		total += added
	}

	if total == 0 || noCategorize {
		return nil
	}
	return runCategorize(ctx, a, w, false)
}

func importFile(a *app, w io.Writer, registry *importer.Registry, src importSource, bank string) (int, error) {
	name := filepath.Base(src.path)
	f, err := os.Open(src.path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", name, err)
	}
	res, err := registry.ParseCSV(f, bank)
	f.Close()
	if err != nil {
		return 0, fmt.Errorf("importing %s: %w", name, err)
	}

	added, err := a.store.AddTransactions(res.Transactions)
	if err != nil {
		return 0, fmt.Errorf("saving %s: %w", name, err)
	}
	if res.Balance != nil {
		if err := a.store.SetBankBalance(*res.Balance); err != nil {
			return 0, fmt.Errorf("saving balance: %w", err)
		}
	}

	a.log.Debug().Str("file", name).Str("bank", res.Bank).Int("parsed", len(res.Transactions)).
		Int("skipped", res.Skipped).Msg("parsed statement")
	fmt.Fprintf(w, "Imported %d new transactions from %s (%s, %d duplicates", added, name, res.Bank, len(res.Transactions)-added)
	if res.Skipped > 0 {
		fmt.Fprintf(w, ", %d unreadable rows skipped", res.Skipped)
	}
	fmt.Fprintln(w, ")")
	if res.Balance != nil {
		fmt.Fprintf(w, "Bank balance is now %s\n", money(*res.Balance))
	}

	a.record(activitylog.ActionImport, res.Bank, name, added)

	if src.inbox {
		if err := importer.MarkProcessed(a.dataDir, name); err != nil {
			return added, err
		}
	}
	return added, nil
}
