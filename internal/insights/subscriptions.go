// Package insights derives read-only spending analytics from transactions.
package insights

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/truenorth-finance/truenorth/internal/model"
)

// priceNoise is the smallest change treated as a real price increase.
var priceNoise = decimal.RequireFromString("0.01")

// PricePoint is one observed charge.
type PricePoint struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// Subscription summarizes the charges of one recurring merchant.
type Subscription struct {
	Name           string           `json:"name"`
	CurrentAmount  decimal.Decimal  `json:"currentAmount"`
	PreviousAmount *decimal.Decimal `json:"previousAmount,omitempty"`
	PriceIncreased bool             `json:"priceIncreased"`
	History        []PricePoint     `json:"history"` // newest first
}

// DetectSubscriptions groups recurring or subscription-category expenses by
// merchant key and reports the latest price and whether it went up.
// Results are sorted by name.
func DetectSubscriptions(txns []model.Transaction) []Subscription {
	groups := make(map[string][]model.Transaction)
	for _, t := range txns {
		if !t.IsExpense() {
			continue
		}
		if !t.IsRecurring && t.Category != string(model.CategorySubscriptions) {
			continue
		}
		key := model.MerchantKey(t)
		groups[key] = append(groups[key], t)
	}

	subs := make([]Subscription, 0, len(groups))
	for name, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Date.After(group[j].Date)
		})

		sub := Subscription{
			Name:          name,
			CurrentAmount: group[0].Amount.Abs(),
			History:       make([]PricePoint, len(group)),
		}
		for i, t := range group {
			sub.History[i] = PricePoint{Date: t.Date, Amount: t.Amount.Abs()}
		}
		if len(group) > 1 {
			prev := group[1].Amount.Abs()
			sub.PreviousAmount = &prev
			sub.PriceIncreased = sub.CurrentAmount.Sub(prev).GreaterThan(priceNoise)
		}
		subs = append(subs, sub)
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].Name < subs[j].Name })
	return subs
}
