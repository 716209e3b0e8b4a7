package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/truenorth-finance/truenorth/internal/forecast"
	"github.com/truenorth-finance/truenorth/internal/insights"
)

func newBillsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bills",
		Short: "Show recurring bills and the safe-to-spend balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				w := cmd.OutOrStdout()
				printPatterns(w, a)
				fmt.Fprintln(w)
				printProjection(w, a.projection())
				return nil
			})
		},
	}
}

func (a *app) projection() forecast.Projection {
	return forecast.CalculateSafeBalance(a.store.BankBalance(), a.store.SavingsReserve(),
		a.store.Transactions(), a.store.Patterns(), a.today())
}

func printPatterns(w io.Writer, a *app) {
	fprintHeading(w, "Recurring")
	patterns := a.store.Patterns()
	if len(patterns) == 0 {
		fmt.Fprintln(w, "No recurring bills detected.")
		return
	}
	for _, p := range patterns {
		fmt.Fprintf(w, "%-20s %10s  day %2d  (%d seen)\n", p.Keyword, money(p.AverageAmount), p.DayOfMonth, p.Occurrences)
	}
}

func printProjection(w io.Writer, p forecast.Projection) {
	fprintHeading(w, "Next %d days", forecast.HorizonDays)
	if len(p.UpcomingBills) == 0 {
		fmt.Fprintln(w, "No bills due.")
	}
	for _, b := range p.UpcomingBills {
		fmt.Fprintf(w, "%s  %-20s %10s", b.DueDate.Format("Mon 02 Jan"), b.Keyword, money(b.Amount))
		if b.Overdue {
			fmt.Fprint(w, " ")
			overdueColor.Fprint(w, " OVERDUE ")
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Upcoming bills:  %s\n", money(p.TotalUpcomingBills))
	fmt.Fprintf(w, "Savings reserve: %s\n", money(p.ReservedForSavings))
	fmt.Fprint(w, "Safe to spend:  ")
	fprintAmount(w, p.SafeBalance)
	fmt.Fprintln(w)
}

func newInsightsCommand(opts *globalOptions) *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Subscriptions, fees and round-up savings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				m, err := parseMonth(month, a.today())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				txns := a.store.Transactions()

				fprintHeading(w, "Subscriptions")
				subs := insights.DetectSubscriptions(txns)
				if len(subs) == 0 {
					fmt.Fprintln(w, "No subscriptions found.")
				}
				for _, s := range subs {
					fmt.Fprintf(w, "%-24s %10s", s.Name, money(s.CurrentAmount))
					if s.PriceIncreased && s.PreviousAmount != nil {
						fmt.Fprint(w, "  ")
						increaseColor.Fprintf(w, "up from %s", money(*s.PreviousAmount))
					}
					fmt.Fprintln(w)
				}

				fmt.Fprintln(w)
				fprintHeading(w, "Fees and surcharges, %s", m.Format("January 2006"))
				fees := insights.DetectSurcharges(txns, m)
				for _, t := range fees.Transactions {
					fmt.Fprintf(w, "%s  %-30s %10s\n", t.Date.Format("2006-01-02"), t.Description, money(t.Amount.Abs()))
				}
				fmt.Fprintf(w, "Total fees: %s\n", money(fees.Total))

				fmt.Fprintln(w)
				fprintHeading(w, "Round-ups, %s", m.Format("January 2006"))
				ru := insights.CalculateRoundUpSavings(txns, m)
				fmt.Fprintf(w, "Rounding up %d purchases would have saved %s\n", ru.TransactionCount, money(ru.Total))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "month to report (YYYY-MM, default current)")

	return cmd
}

func newDashboardCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Balance, safe-to-spend and this month at a glance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				w := cmd.OutOrStdout()
				today := a.today()
				month, _ := parseMonth("", today)
				txns := a.store.Transactions()
				p := a.projection()

				fprintHeading(w, "truenorth, %s", today.Format("Mon 02 Jan 2006"))
				fmt.Fprint(w, "Bank balance:   ")
				fprintAmount(w, a.store.BankBalance())
				fmt.Fprintln(w)
				fmt.Fprint(w, "Safe to spend:  ")
				fprintAmount(w, p.SafeBalance)
				fmt.Fprintln(w)
				fmt.Fprintf(w, "Bills due (%dd): %d totalling %s\n", forecast.HorizonDays, len(p.UpcomingBills), money(p.TotalUpcomingBills))
				for _, b := range p.UpcomingBills {
					if b.Overdue {
						overdueColor.Fprintf(w, " OVERDUE %s %s ", b.Keyword, money(b.Amount))
						fmt.Fprintln(w)
					}
				}

				fees := insights.DetectSurcharges(txns, month)
				ru := insights.CalculateRoundUpSavings(txns, month)
				fmt.Fprintf(w, "Fees this month: %s\n", money(fees.Total))
				fmt.Fprintf(w, "Round-up potential: %s\n", money(ru.Total))

				if n := countUncategorized(txns); n > 0 {
					increaseColor.Fprintf(w, "%d transactions need a category (truenorth categorize)", n)
					fmt.Fprintln(w)
				}
				if last := a.store.LastBackupDate(); last != nil {
					mutedColor.Fprintf(w, "Last backup %s", last.In(a.loc).Format("2006-01-02 15:04"))
				} else {
					mutedColor.Fprint(w, "Never backed up (truenorth backup FILE)")
				}
				fmt.Fprintln(w)
				return nil
			})
		},
	}
}
