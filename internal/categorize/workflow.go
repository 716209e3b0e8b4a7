// Package categorize runs the rules-then-classifier categorization pass.
package categorize

import (
	"context"
	"fmt"

	"github.com/truenorth-finance/truenorth/internal/model"
	"github.com/truenorth-finance/truenorth/internal/rules"
)

// Analyzer classifies a batch of transactions, keyed by transaction ID.
type Analyzer interface {
	AnalyzeBatch(ctx context.Context, txns []model.Transaction, batchSize int, onProgress func(completed, total int)) (map[string]model.AnalysisResult, error)
}

// Options are the optional hooks and tuning for Run.
type Options struct {
	// BatchSize is passed through to the analyzer. Zero uses its default.
	BatchSize int
	// OnProgress reports classifier progress after each chunk.
	OnProgress func(completed, total int)
	// OnUpdate receives the rule-categorized set before the classifier runs.
	OnUpdate func([]model.Transaction)
}

// Run applies rules to txns, then sends whatever is still uncategorized to
// analyzer and merges its verdicts. If rules resolve everything the analyzer
// is never called. Analyzer errors are returned as-is for the caller to
// handle; the input slice is never modified.
func Run(ctx context.Context, txns []model.Transaction, rs []model.Rule, analyzer Analyzer, opts Options) ([]model.Transaction, error) {
	categorized := rules.ApplyRules(txns, rs)
	if opts.OnUpdate != nil {
		opts.OnUpdate(categorized)
	}

	var residual []model.Transaction
	for _, t := range categorized {
		if t.IsUncategorized() {
			residual = append(residual, t)
		}
	}
	if len(residual) == 0 {
		return categorized, nil
	}

	results, err := analyzer.AnalyzeBatch(ctx, residual, opts.BatchSize, opts.OnProgress)
	if err != nil {
		return nil, fmt.Errorf("classifying %d transactions: %w", len(residual), err)
	}
	return Merge(categorized, results), nil
}

// Merge copies classifier verdicts onto the matching transactions. A
// transaction stays recurring once flagged, and keeps its merchant name
// unless the classifier supplied one. Transactions without a result are
// returned unchanged.
func Merge(txns []model.Transaction, results map[string]model.AnalysisResult) []model.Transaction {
	out := make([]model.Transaction, len(txns))
	for i, t := range txns {
		r, ok := results[t.ID]
		if ok {
			t.Category = r.Category
			t.IsRecurring = t.IsRecurring || r.IsSubscription || r.IsRecurring
			if r.CleanMerchantName != "" {
				t.MerchantName = r.CleanMerchantName
			}
		}
		out[i] = t
	}
	return out
}
