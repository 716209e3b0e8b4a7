package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/truenorth-finance/truenorth/internal/activitylog"
)

func newLogCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the activity log, newest last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := activitylog.Read(opts.dataDir)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "No activity recorded.")
				return nil
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			for _, e := range entries {
				mutedColor.Fprint(w, e.Timestamp.Local().Format("2006-01-02 15:04:05"))
				fmt.Fprintf(w, "  %-10s %-18s %4d  %s", e.Source, e.Action, e.Count, e.Details)
				if e.Ref != "" {
					fmt.Fprintf(w, " [%s]", e.Ref)
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "show the last N entries (0 for all)")

	return cmd
}
