package insights

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/truenorth-finance/truenorth/internal/model"
)

// roundUpEpsilon excludes whole-dollar charges.
var roundUpEpsilon = decimal.RequireFromString("0.001")

// RoundUpSummary is what rounding every purchase up to the next dollar
// would have saved.
type RoundUpSummary struct {
	Total            decimal.Decimal `json:"total"`
	TransactionCount int             `json:"transactionCount"`
}

// CalculateRoundUpSavings sums ceil(|amount|)-|amount| over the expenses in
// month's calendar month.
func CalculateRoundUpSavings(txns []model.Transaction, month time.Time) RoundUpSummary {
	total := decimal.Zero
	count := 0
	for _, t := range txns {
		if !t.IsExpense() || !model.SameMonth(month, t.Date) {
			continue
		}
		abs := t.Amount.Abs()
		diff := abs.Ceil().Sub(abs)
		if diff.GreaterThan(roundUpEpsilon) {
			total = total.Add(diff)
			count++
		}
	}
	return RoundUpSummary{Total: total.Round(2), TransactionCount: count}
}
