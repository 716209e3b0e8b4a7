// Package recurring infers bills and subscriptions from repeated expenses.
package recurring

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/truenorth-finance/truenorth/internal/model"
)

// Config holds the detection tolerances.
type Config struct {
	// OrganicTolerance is the allowed relative deviation from the mean
	// amount for groups nobody has flagged as recurring.
	OrganicTolerance float64 `yaml:"organic_tolerance" validate:"gte=0,lt=1"`
	// ExplicitTolerance is the band for groups containing a transaction
	// already flagged recurring. Such groups are kept even outside it; a
	// breach is logged as a price change.
	ExplicitTolerance float64 `yaml:"explicit_tolerance" validate:"gte=0,lt=1"`
	// DayWindow is how far (in days) a charge may land from the group's
	// average day of month.
	DayWindow int `yaml:"day_window" validate:"gte=0,lte=15"`
	// WrapWindow treats distances this large as month wraparound (day 1 vs
	// day 30).
	WrapWindow int `yaml:"wrap_window" validate:"gte=0,lte=31"`
}

// DefaultConfig returns the standard tolerances.
func DefaultConfig() Config {
	return Config{
		OrganicTolerance:  0.05,
		ExplicitTolerance: 0.40,
		DayWindow:         3,
		WrapWindow:        28,
	}
}

// Detector groups expenses by merchant key and keeps the groups that look
// like recurring charges.
type Detector struct {
	cfg Config
	log zerolog.Logger
}

// NewDetector creates a Detector.
func NewDetector(cfg Config, log zerolog.Logger) *Detector {
	return &Detector{cfg: cfg, log: log}
}

// DetectRecurring runs a Detector with DefaultConfig.
func DetectRecurring(txns []model.Transaction) []model.RecurringPattern {
	return NewDetector(DefaultConfig(), zerolog.Nop()).Detect(txns)
}

type group struct {
	key      string
	txns     []model.Transaction
	explicit bool
}

// Detect returns one pattern per qualifying merchant group, highest amount
// first.
//
// A group qualifies when it has at least two charges of consistent amount
// on a consistent day of month. A group containing a transaction already
// flagged recurring always qualifies.
func (d *Detector) Detect(txns []model.Transaction) []model.RecurringPattern {
	groups := groupExpenses(txns)

	var patterns []model.RecurringPattern
	for _, g := range groups {
		if len(g.txns) < 2 && !g.explicit {
			continue
		}

		amountsOK := d.amountsConsistent(g)
		avgDay, daysOK := d.daysConsistent(g)

		if g.explicit && !amountsOK {
			d.log.Debug().Str("merchant", g.key).Msg("recurring charge changed price")
		}
		if !g.explicit && (!amountsOK || !daysOK) {
			continue
		}

		latest := g.txns[0]
		for _, t := range g.txns[1:] {
			if t.Date.After(latest.Date) {
				latest = t
			}
		}

		patterns = append(patterns, model.RecurringPattern{
			Keyword:       g.key,
			AverageAmount: latest.Amount.Abs().Round(2),
			DayOfMonth:    avgDay,
			Occurrences:   len(g.txns),
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].AverageAmount.GreaterThan(patterns[j].AverageAmount)
	})
	return patterns
}

// groupExpenses buckets expenses by merchant key in first-seen order.
func groupExpenses(txns []model.Transaction) []*group {
	index := make(map[string]*group)
	var order []*group
	for _, t := range txns {
		if !t.IsExpense() {
			continue
		}
		key := model.MerchantKey(t)
		g, ok := index[key]
		if !ok {
			g = &group{key: key}
			index[key] = g
			order = append(order, g)
		}
		g.txns = append(g.txns, t)
		g.explicit = g.explicit || t.IsRecurring
	}
	return order
}

func (d *Detector) amountsConsistent(g *group) bool {
	tol := d.cfg.OrganicTolerance
	if g.explicit {
		tol = d.cfg.ExplicitTolerance
	}

	sum := decimal.Zero
	for _, t := range g.txns {
		sum = sum.Add(t.Amount.Abs())
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(g.txns))))
	if mean.IsZero() {
		return true
	}

	limit := decimal.NewFromFloat(tol)
	for _, t := range g.txns {
		if !t.Amount.Abs().Sub(mean).Abs().Div(mean).LessThan(limit) {
			return false
		}
	}
	return true
}

// daysConsistent returns the rounded mean day of month and whether every
// charge lands near it.
func (d *Detector) daysConsistent(g *group) (int, bool) {
	total := 0
	for _, t := range g.txns {
		total += t.Date.Day()
	}
	avg := int(math.Round(float64(total) / float64(len(g.txns))))

	for _, t := range g.txns {
		diff := t.Date.Day() - avg
		if diff < 0 {
			diff = -diff
		}
		if diff > d.cfg.DayWindow && diff < d.cfg.WrapWindow {
			return avg, false
		}
	}
	return avg, true
}

// MarkRecurringTransactions flags every expense whose merchant key matches
// a pattern. Income and non-matching transactions are returned unchanged.
// Applying it twice gives the same result as applying it once.
func MarkRecurringTransactions(txns []model.Transaction, patterns []model.RecurringPattern) []model.Transaction {
	keys := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		keys[p.Keyword] = true
	}

	out := make([]model.Transaction, len(txns))
	for i, t := range txns {
		if t.IsExpense() && !t.IsRecurring && keys[model.MerchantKey(t)] {
			t.IsRecurring = true
		}
		out[i] = t
	}
	return out
}
