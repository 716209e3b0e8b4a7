package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/truenorth-finance/truenorth/internal/buildinfo"
)

// DataDirEnv overrides the default data directory.
const DataDirEnv = "TRUENORTH_DATA"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	dataDir  string
	logLevel string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "truenorth",
		Short:   "Personal finance tracker for Australian bank exports",
		Version: versionString(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data", defaultDataDir(), "data directory (env "+DataDirEnv+")")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (default from config)")

	rootCmd.AddCommand(
		newInitCommand(opts),
		newImportCommand(opts),
		newCategorizeCommand(opts),
		newTransactionsCommand(opts),
		newRulesCommand(opts),
		newBalanceCommand(opts),
		newSavingsCommand(opts),
		newBillsCommand(opts),
		newInsightsCommand(opts),
		newDashboardCommand(opts),
		newBackupCommand(opts),
		newRestoreCommand(opts),
		newExportCSVCommand(opts),
		newResetCommand(opts),
		newLogCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "truenorth "+versionString())
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".truenorth"
	}
	return filepath.Join(home, ".truenorth")
}
