package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// merchantPrefixLen is how much of a description is used as a grouping key
// when no cleaned merchant name is known.
const merchantPrefixLen = 15

// Transaction is a single bank statement line.
//
// ID, Date, Amount and Description are fixed once the transaction is
// created. Category, IsRecurring and MerchantName are filled in by
// categorization.
type Transaction struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"` // negative = expense, positive = income
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	IsRecurring  bool            `json:"isRecurring"`
	MerchantName string          `json:"merchantName,omitempty"`
}

// IsExpense reports whether money left the account.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// IsUncategorized reports whether no rule, model or user has classified t yet.
func (t Transaction) IsUncategorized() bool {
	return t.Category == "" || t.Category == string(CategoryUncategorized)
}

// MerchantKey returns the grouping key used by recurring detection, bill
// projection and subscription analysis: the upper-cased merchant name when
// known, otherwise the upper-cased first 15 characters of the description.
//
// The description fallback is coarse. Unrelated merchants sharing a prefix
// group together and one merchant with varying prefixes splits apart.
func MerchantKey(t Transaction) string {
	if t.MerchantName != "" {
		return strings.ToUpper(t.MerchantName)
	}
	return DescriptionPrefix(t.Description)
}

// DescriptionPrefix returns the upper-cased, trimmed first 15 characters of desc.
func DescriptionPrefix(desc string) string {
	r := []rune(strings.ToUpper(desc))
	if len(r) > merchantPrefixLen {
		r = r[:merchantPrefixLen]
	}
	return strings.TrimSpace(string(r))
}

// SameMonth reports whether a and b fall in the same calendar month of a's location.
func SameMonth(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// Rule maps a description keyword to a category.
type Rule struct {
	ID       string `json:"id"`
	Keyword  string `json:"keyword"` // stored upper-cased
	Category string `json:"category"`
}

// RecurringPattern is a bill or subscription inferred from repeated expenses.
// Patterns are derived from the transaction set and never stored on their own.
type RecurringPattern struct {
	Keyword       string          `json:"keyword"`
	AverageAmount decimal.Decimal `json:"averageAmount"` // latest known charge, positive
	DayOfMonth    int             `json:"dayOfMonth"`
	Occurrences   int             `json:"occurrences"`
}

// AnalysisResult is the classifier's verdict for one transaction.
type AnalysisResult struct {
	Category          string  `json:"category"`
	CleanMerchantName string  `json:"cleanMerchantName"`
	IsSubscription    bool    `json:"isSubscription"`
	IsRecurring       bool    `json:"isRecurring"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning"`
}
