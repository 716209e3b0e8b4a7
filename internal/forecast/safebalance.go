// Package forecast projects recurring bills forward to work out how much of
// the bank balance is safe to spend.
package forecast

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/truenorth-finance/truenorth/internal/model"
)

// HorizonDays is how far ahead bills are counted against the balance.
const HorizonDays = 30

// Bill is a recurring charge expected within the horizon.
type Bill struct {
	Keyword string          `json:"keyword"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"dueDate"`
	// Overdue means the due date this month has passed with no matching
	// payment. The bill still counts against the balance.
	Overdue bool `json:"overdue"`
}

// Projection is the safe-to-spend breakdown.
type Projection struct {
	SafeBalance        decimal.Decimal `json:"safeBalance"`
	UpcomingBills      []Bill          `json:"upcomingBills"`
	ReservedForSavings decimal.Decimal `json:"reservedForSavings"`
	TotalUpcomingBills decimal.Decimal `json:"totalUpcomingBills"`
}

// CalculateSafeBalance subtracts upcoming bills and the savings reserve from
// balance.
//
// Each pattern is due on its day of month. If a matching expense already
// appeared this month the bill moves to next month; otherwise this month's
// date is used even when it has passed. Bills due on or before the date
// HorizonDays after today are included, earliest first.
func CalculateSafeBalance(balance, savingsReserve decimal.Decimal, txns []model.Transaction, patterns []model.RecurringPattern, today time.Time) Projection {
	loc := today.Location()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	horizon := start.AddDate(0, 0, HorizonDays)

	paid := paidThisMonth(txns, today)

	var bills []Bill
	total := decimal.Zero
	for _, p := range patterns {
		due := dueDate(today.Year(), today.Month(), p.DayOfMonth, loc)
		isPaid := paid[p.Keyword]
		if isPaid {
			due = dueDate(today.Year(), today.Month()+1, p.DayOfMonth, loc)
		}
		if due.After(horizon) {
			continue
		}
		bills = append(bills, Bill{
			Keyword: p.Keyword,
			Amount:  p.AverageAmount,
			DueDate: due,
			Overdue: !isPaid && due.Before(start),
		})
		total = total.Add(p.AverageAmount)
	}

	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].DueDate.Before(bills[j].DueDate)
	})

	return Projection{
		SafeBalance:        balance.Sub(total).Sub(savingsReserve),
		UpcomingBills:      bills,
		ReservedForSavings: savingsReserve,
		TotalUpcomingBills: total,
	}
}

// paidThisMonth returns the merchant keys of expenses in today's month.
func paidThisMonth(txns []model.Transaction, today time.Time) map[string]bool {
	paid := make(map[string]bool)
	for _, t := range txns {
		if t.IsExpense() && model.SameMonth(today, t.Date) {
			paid[model.MerchantKey(t)] = true
		}
	}
	return paid
}

// dueDate returns day of the given month, clamped to the month's last day.
// month may overflow into the next year.
func dueDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	day = min(max(day, 1), last)
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}
