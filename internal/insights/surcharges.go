package insights

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/truenorth-finance/truenorth/internal/model"
)

// surchargeKeywords mark a description as a fee or surcharge.
var surchargeKeywords = []string{
	"SURCHARGE",
	"CARD FEE",
	"INTL TRANS FEE",
	"INTERNATIONAL TRANSACTION",
	"FOREIGN CURRENCY",
	"ATM FEE",
	"CASH ADVANCE FEE",
	"OVERSEAS FEE",
	"FOREIGN TRANSACTION",
	"CURRENCY CONVERSION",
	"PAYMENT PROCESSING FEE",
	"EFTPOS SURCHARGE",
}

// SurchargeSummary totals the fees paid in a month.
type SurchargeSummary struct {
	Total        decimal.Decimal     `json:"total"`
	Transactions []model.Transaction `json:"transactions"`
}

// IsSurcharge reports whether t is a fee by description or category.
func IsSurcharge(t model.Transaction) bool {
	if t.Category == string(model.CategoryFees) || t.Category == model.LegacyFeesCategory {
		return true
	}
	desc := strings.ToUpper(t.Description)
	for _, kw := range surchargeKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

// DetectSurcharges returns the fee expenses dated in month's calendar month
// and their total, rounded to cents.
func DetectSurcharges(txns []model.Transaction, month time.Time) SurchargeSummary {
	var matched []model.Transaction
	total := decimal.Zero
	for _, t := range txns {
		if !t.IsExpense() || !model.SameMonth(month, t.Date) || !IsSurcharge(t) {
			continue
		}
		matched = append(matched, t)
		total = total.Add(t.Amount.Abs())
	}
	return SurchargeSummary{Total: total.Round(2), Transactions: matched}
}
