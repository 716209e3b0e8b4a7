package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truenorth-finance/truenorth/internal/categorize"
	"github.com/truenorth-finance/truenorth/internal/id"
	"github.com/truenorth-finance/truenorth/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func txn(txnID, desc, amount string, when time.Time) model.Transaction {
	return model.Transaction{
		ID:          txnID,
		Date:        when,
		Amount:      dec(amount),
		Description: desc,
		Category:    "Uncategorized",
	}
}

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	p, err := OpenBolt(path)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	s, err := New(p, WithClock(func() time.Time { return date(2024, 6, 1) }))
	require.NoError(t, err)
	return s
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return openStore(t, filepath.Join(t.TempDir(), "state.db"))
}

// fakeAnalyzer returns canned results and records what it was asked.
type fakeAnalyzer struct {
	results map[string]model.AnalysisResult
	err     error
	seen    []string
	block   chan struct{}
	started chan struct{}
}

func (f *fakeAnalyzer) AnalyzeBatch(ctx context.Context, txns []model.Transaction, batchSize int, onProgress func(completed, total int)) (map[string]model.AnalysisResult, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	for _, t := range txns {
		f.seen = append(f.seen, t.ID)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestAddTransactions_DedupesAndSorts(t *testing.T) {
	s := newTestStore(t)

	n, err := s.AddTransactions([]model.Transaction{
		txn("a", "COFFEE", "-4.50", date(2024, 1, 2)),
		txn("b", "RENT", "-500", date(2024, 1, 10)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.AddTransactions([]model.Transaction{
		txn("b", "RENT", "-500", date(2024, 1, 10)),
		txn("c", "SALARY", "3000", date(2024, 1, 5)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := s.Transactions()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestAddTransactions_RecomputesPatterns(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.Patterns())

	_, err := s.AddTransactions([]model.Transaction{
		txn("n1", "NETFLIX.COM", "-22.99", date(2024, 1, 5)),
		txn("n2", "NETFLIX.COM", "-22.99", date(2024, 2, 5)),
		txn("n3", "NETFLIX.COM", "-22.99", date(2024, 3, 6)),
	})
	require.NoError(t, err)

	patterns := s.Patterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, "NETFLIX.COM", patterns[0].Keyword)
	assert.Equal(t, 3, patterns[0].Occurrences)
	for _, tx := range s.Transactions() {
		assert.True(t, tx.IsRecurring, tx.ID)
	}

	snap, err := s.Export()
	require.NoError(t, err)
	for _, tx := range snap.Transactions {
		assert.False(t, tx.IsRecurring, "detected flag is not stored: %s", tx.ID)
	}

	// A lone charge nobody flagged is not a pattern.
	require.NoError(t, s.DeleteTransaction("n1"))
	require.NoError(t, s.DeleteTransaction("n2"))
	assert.Empty(t, s.Patterns())
	survivor, err := s.Transaction("n3")
	require.NoError(t, err)
	assert.False(t, survivor.IsRecurring)
}

func TestAddTransactions_OutlierBreaksDetectedGroup(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTransactions([]model.Transaction{
		txn("g1", "GYM MEMBERSHIP CO", "-30.00", date(2024, 4, 10)),
		txn("g2", "GYM MEMBERSHIP CO", "-30.00", date(2024, 5, 10)),
	})
	require.NoError(t, err)
	require.Len(t, s.Patterns(), 1)

	_, err = s.AddTransactions([]model.Transaction{
		txn("g3", "GYM MEMBERSHIP CO", "-45.00", date(2024, 6, 22)),
	})
	require.NoError(t, err)
	assert.Empty(t, s.Patterns(), "amount and day tests still apply to a detected group")

	require.NoError(t, s.DeleteTransaction("g3"))
	require.Len(t, s.Patterns(), 1)
	assert.Equal(t, "30", s.Patterns()[0].AverageAmount.String())
}

func TestUpdateTransaction(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTransactions([]model.Transaction{txn("a", "COLES 123", "-40", date(2024, 1, 2))})
	require.NoError(t, err)

	cat, name := "Groceries", "Coles"
	require.NoError(t, s.UpdateTransaction("a", Patch{Category: &cat, MerchantName: &name}))

	got, err := s.Transaction("a")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Category)
	assert.Equal(t, "Coles", got.MerchantName)
	assert.Equal(t, "COLES 123", got.Description)

	bad := "Crypto"
	assert.Error(t, s.UpdateTransaction("a", Patch{Category: &bad}))
	assert.ErrorIs(t, s.UpdateTransaction("missing", Patch{}), ErrNotFound)
}

func TestCategorizeManually(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTransactions([]model.Transaction{
		txn("a", "WOOLWORTHS 1234 SYDNEY", "-40", date(2024, 1, 2)),
		txn("b", "WOOLWORTHS METRO 55", "-12", date(2024, 1, 9)),
		txn("c", "BP FUEL", "-60", date(2024, 1, 9)),
	})
	require.NoError(t, err)

	rule, err := s.CategorizeManually("a", "Groceries", false)
	require.NoError(t, err)
	assert.Nil(t, rule)
	got, _ := s.Transaction("b")
	assert.Equal(t, "Uncategorized", got.Category)

	rule, err = s.CategorizeManually("a", "Groceries", true)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "WOOLWORTHS", rule.Keyword)
	assert.Len(t, s.Rules(), 1)

	got, _ = s.Transaction("b")
	assert.Equal(t, "Groceries", got.Category)
	got, _ = s.Transaction("c")
	assert.Equal(t, "Uncategorized", got.Category)

	// Same keyword again reuses the rule.
	again, err := s.CategorizeManually("b", "Groceries", true)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, again.ID)
	assert.Len(t, s.Rules(), 1)
}

func TestCategorizeManually_RecurringCategory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTransactions([]model.Transaction{txn("a", "ORIGIN ENERGY", "-180", date(2024, 1, 12))})
	require.NoError(t, err)

	_, err = s.CategorizeManually("a", "Utilities", false)
	require.NoError(t, err)

	got, _ := s.Transaction("a")
	assert.True(t, got.IsRecurring)
	require.Len(t, s.Patterns(), 1, "explicitly recurring charge forms a pattern on its own")
	assert.Equal(t, 12, s.Patterns()[0].DayOfMonth)

	_, err = s.CategorizeManually("a", "Bitcoin", false)
	assert.Error(t, err)
	_, err = s.CategorizeManually("zzz", "Utilities", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRules(t *testing.T) {
	s := newTestStore(t)

	r, err := s.AddRule("  netflix ", "Subscriptions")
	require.NoError(t, err)
	assert.Equal(t, "NETFLIX", r.Keyword)
	assert.NotEmpty(t, r.ID)

	_, err = s.AddRule("Netflix", "Entertainment")
	assert.ErrorIs(t, err, ErrDuplicateRule)

	_, err = s.AddRule("", "Groceries")
	assert.Error(t, err)
	_, err = s.AddRule("ALDI", "Food")
	assert.Error(t, err)

	require.NoError(t, s.RemoveRule(r.ID))
	assert.Empty(t, s.Rules())
	assert.ErrorIs(t, s.RemoveRule(r.ID), ErrNotFound)
}

func TestBalanceAndSavings(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetBankBalance(dec("-12.50")))
	require.NoError(t, s.SetSavingsReserve(dec("200")))
	assert.Error(t, s.SetSavingsReserve(dec("-1")))

	assert.Equal(t, "-12.50", s.BankBalance().StringFixed(2))
	assert.Equal(t, "200.00", s.SavingsReserve().StringFixed(2))
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	p, err := OpenBolt(path)
	require.NoError(t, err)
	s, err := New(p)
	require.NoError(t, err)
	_, err = s.AddTransactions([]model.Transaction{txn("a", "COFFEE", "-4.50", date(2024, 1, 2))})
	require.NoError(t, err)
	_, err = s.AddRule("coffee", "Dining Out")
	require.NoError(t, err)
	_, err = s.AddRule("aldi", "Groceries")
	require.NoError(t, err)
	require.NoError(t, s.SetBankBalance(dec("1000")))
	require.NoError(t, p.Close())

	s2 := openStore(t, path)
	require.Len(t, s2.Transactions(), 1)
	assert.Equal(t, "-4.50", s2.Transactions()[0].Amount.StringFixed(2))
	rules := s2.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "COFFEE", rules[0].Keyword)
	assert.Equal(t, "ALDI", rules[1].Keyword)
	assert.Equal(t, "1000.00", s2.BankBalance().StringFixed(2))
}

func TestExportImport(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTransactions([]model.Transaction{txn("a", "COFFEE", "-4.50", date(2024, 1, 2))})
	require.NoError(t, err)
	require.NoError(t, s.SetSavingsReserve(dec("50")))

	snap, err := s.Export()
	require.NoError(t, err)
	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Equal(t, date(2024, 6, 1), snap.ExportedAt)
	require.NotNil(t, s.LastBackupDate())
	assert.Equal(t, date(2024, 6, 1), *s.LastBackupDate())

	other := newTestStore(t)
	require.NoError(t, other.Import(snap))
	assert.Len(t, other.Transactions(), 1)
	assert.Equal(t, "50.00", other.SavingsReserve().StringFixed(2))

	require.NoError(t, other.Reset())
	assert.Empty(t, other.Transactions())
	assert.True(t, other.SavingsReserve().IsZero())
}

func TestImport_Rejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTransactions([]model.Transaction{txn("keep", "COFFEE", "-4.50", date(2024, 1, 2))})
	require.NoError(t, err)

	bad := Snapshot{
		Version: SnapshotVersion,
		Transactions: []model.Transaction{
			txn("a", "X", "-1", date(2024, 1, 1)),
			txn("a", "Y", "-1", date(2024, 1, 1)),
		},
	}
	err = s.Import(bad)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 1)
	assert.Contains(t, err.Error(), "duplicate id")

	require.Len(t, s.Transactions(), 1, "state untouched")
	assert.Equal(t, "keep", s.Transactions()[0].ID)
}

func TestImport_NormalizesLegacy(t *testing.T) {
	s := newTestStore(t)
	legacy := txn("a", "CARD SURCHARGE", "-0.50", date(2024, 1, 1))
	legacy.Category = model.LegacyFeesCategory

	require.NoError(t, s.Import(Snapshot{
		Transactions: []model.Transaction{legacy},
		Rules:        []model.Rule{{ID: "1706000000000", Keyword: "surcharge", Category: model.LegacyFeesCategory}},
	}))

	got, err := s.Transaction("a")
	require.NoError(t, err)
	assert.Equal(t, "Fees & Charges", got.Category)
	rules := s.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "SURCHARGE", rules[0].Keyword)
	assert.Equal(t, "Fees & Charges", rules[0].Category)
	assert.NoError(t, id.Validate(rules[0].ID), "timestamp rule ids are replaced")
}

func TestReapplyRules(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTransactions([]model.Transaction{
		txn("a", "ALDI STORES 12", "-30", date(2024, 1, 2)),
		txn("b", "SPOTIFY P1234", "-11.99", date(2024, 1, 3)),
	})
	require.NoError(t, err)
	_, err = s.AddRule("ALDI", "Groceries")
	require.NoError(t, err)

	fa := &fakeAnalyzer{results: map[string]model.AnalysisResult{
		"b": {Category: "Subscriptions", CleanMerchantName: "Spotify", IsSubscription: true, Confidence: 0.9},
	}}
	var updates int
	err = s.ReapplyRules(context.Background(), fa, categorize.Options{
		OnUpdate: func([]model.Transaction) { updates++ },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, fa.seen, "only the residual goes to the analyzer")
	assert.Equal(t, 1, updates)

	a, _ := s.Transaction("a")
	assert.Equal(t, "Groceries", a.Category)
	b, _ := s.Transaction("b")
	assert.Equal(t, "Subscriptions", b.Category)
	assert.Equal(t, "Spotify", b.MerchantName)
	assert.True(t, b.IsRecurring)
	assert.False(t, s.Busy())
}

func TestReapplyRules_AnalyzerFailureKeepsRules(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTransactions([]model.Transaction{
		txn("a", "ALDI STORES 12", "-30", date(2024, 1, 2)),
		txn("b", "MYSTERY", "-5", date(2024, 1, 3)),
	})
	require.NoError(t, err)
	_, err = s.AddRule("ALDI", "Groceries")
	require.NoError(t, err)

	err = s.ReapplyRules(context.Background(), &fakeAnalyzer{err: errors.New("boom")}, categorize.Options{})
	require.Error(t, err)

	a, _ := s.Transaction("a")
	assert.Equal(t, "Groceries", a.Category)
	assert.False(t, s.Busy())
}

func TestReapplyRules_Busy(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTransactions([]model.Transaction{txn("a", "MYSTERY", "-5", date(2024, 1, 3))})
	require.NoError(t, err)

	fa := &fakeAnalyzer{
		results: map[string]model.AnalysisResult{},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	done := make(chan error, 1)
	go func() {
		done <- s.ReapplyRules(context.Background(), fa, categorize.Options{})
	}()
	<-fa.started

	assert.True(t, s.Busy())
	err = s.ReapplyRules(context.Background(), &fakeAnalyzer{}, categorize.Options{})
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, s.Reset(), ErrBusy)

	close(fa.block)
	require.NoError(t, <-done)
	assert.False(t, s.Busy())
}

func TestReapplyRules_DeletedDuringRunStaysDeleted(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTransactions([]model.Transaction{
		txn("a", "MYSTERY ONE", "-5", date(2024, 1, 3)),
		txn("b", "MYSTERY TWO", "-6", date(2024, 1, 4)),
	})
	require.NoError(t, err)

	fa := &fakeAnalyzer{
		results: map[string]model.AnalysisResult{
			"a": {Category: "Shopping"},
			"b": {Category: "Shopping"},
		},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	done := make(chan error, 1)
	go func() {
		done <- s.ReapplyRules(context.Background(), fa, categorize.Options{})
	}()
	<-fa.started
	require.NoError(t, s.DeleteTransaction("a"))
	close(fa.block)
	require.NoError(t, <-done)

	got := s.Transactions()
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "Shopping", got[0].Category)
}

func TestReclassify(t *testing.T) {
	s := newTestStore(t)
	done := txn("a", "ALDI", "-30", date(2024, 1, 2))
	done.Category = "Shopping"
	_, err := s.AddTransactions([]model.Transaction{done, txn("b", "MYSTERY", "-5", date(2024, 1, 3))})
	require.NoError(t, err)

	fa := &fakeAnalyzer{results: map[string]model.AnalysisResult{
		"a": {Category: "Groceries"},
	}}
	require.NoError(t, s.Reclassify(context.Background(), fa, 100, nil))

	assert.ElementsMatch(t, []string{"a", "b"}, fa.seen)
	a, _ := s.Transaction("a")
	assert.Equal(t, "Groceries", a.Category)
	b, _ := s.Transaction("b")
	assert.Equal(t, "Uncategorized", b.Category)
}

func TestReclassify_FallbackKeepsExistingCategory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTransactions([]model.Transaction{
		txn("a", "ALDI STORES", "-30", date(2024, 1, 2)),
		txn("b", "MYSTERY", "-5", date(2024, 1, 3)),
	})
	require.NoError(t, err)
	_, err = s.CategorizeManually("a", "Groceries", false)
	require.NoError(t, err)

	fa := &fakeAnalyzer{results: map[string]model.AnalysisResult{
		"a": {Category: "Uncategorized", Reasoning: "Error: upstream 500"},
		"b": {Category: "Uncategorized", Reasoning: "Skipped by LLM"},
	}}
	require.NoError(t, s.Reclassify(context.Background(), fa, 100, nil))

	a, err := s.Transaction("a")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", a.Category)
	b, err := s.Transaction("b")
	require.NoError(t, err)
	assert.Equal(t, "Uncategorized", b.Category)
}
