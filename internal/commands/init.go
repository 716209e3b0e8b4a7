package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/truenorth-finance/truenorth/internal/config"
	"github.com/truenorth-finance/truenorth/internal/importer"
	"github.com/truenorth-finance/truenorth/internal/store"
)

func newInitCommand(opts *globalOptions) *cobra.Command {
	var provider string
	var bank string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			absDir, err := filepath.Abs(opts.dataDir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			if err := runInit(absDir, provider, bank); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized truenorth data directory at %s\n", absDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "anthropic", "classification provider: anthropic or gemini")
	cmd.Flags().StringVar(&bank, "bank", "", "default bank format for imports (detected when empty)")

	return cmd
}

func runInit(dir, provider, bank string) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	dirs := []string{
		".",
		"logs",
		importer.InboxDir,
		filepath.Join(importer.InboxDir, importer.ProcessedDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	cfg := config.Default()
	cfg.LLM.Provider = provider
	cfg.Import.Bank = bank
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	db, err := store.OpenBolt(filepath.Join(dir, DBFileName))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Save(store.Snapshot{Version: store.SnapshotVersion}); err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}

	return nil
}
