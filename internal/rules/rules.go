// Package rules categorizes transactions with user-defined keyword rules and
// suggests keywords for new rules.
package rules

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/truenorth-finance/truenorth/internal/model"
)

// ApplyRules assigns a category to every uncategorized transaction whose
// description contains a rule keyword. Longer keywords are tried first, so
// "WOOLWORTHS ONLINE" beats "WOOLWORTHS". Categorized transactions are never
// touched. The input slice is not modified.
func ApplyRules(txns []model.Transaction, rules []model.Rule) []model.Transaction {
	out := make([]model.Transaction, len(txns))
	copy(out, txns)
	if len(rules) == 0 {
		return out
	}

	sorted := Sorted(rules)
	for i := range out {
		if !out[i].IsUncategorized() {
			continue
		}
		if r, ok := Match(out[i].Description, sorted); ok {
			out[i].Category = r.Category
		}
	}
	return out
}

// Sorted returns a copy of rules ordered by keyword length, longest first.
// Rules of equal length keep their relative order.
func Sorted(rules []model.Rule) []model.Rule {
	sorted := make([]model.Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i].Keyword) > utf8.RuneCountInString(sorted[j].Keyword)
	})
	return sorted
}

// Match returns the first rule in sorted whose keyword occurs in desc,
// ignoring case.
func Match(desc string, sorted []model.Rule) (model.Rule, bool) {
	upper := strings.ToUpper(desc)
	for _, r := range sorted {
		if r.Keyword == "" {
			continue
		}
		if strings.Contains(upper, strings.ToUpper(r.Keyword)) {
			return r, true
		}
	}
	return model.Rule{}, false
}
