// Package store owns the transaction collection and everything derived
// from it. All changes go through Store methods, which persist on success.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/truenorth-finance/truenorth/internal/categorize"
	"github.com/truenorth-finance/truenorth/internal/id"
	"github.com/truenorth-finance/truenorth/internal/model"
	"github.com/truenorth-finance/truenorth/internal/recurring"
	"github.com/truenorth-finance/truenorth/internal/rules"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrBusy          = errors.New("categorization already in progress")
	ErrDuplicateRule = errors.New("a rule for this keyword already exists")
)

// Patch holds the mutable transaction fields. Nil fields are left alone.
type Patch struct {
	Category     *string
	IsRecurring  *bool
	MerchantName *string
}

// Store is the single owner of application state. It is safe for
// concurrent use; writers are serialized and last write wins.
type Store struct {
	mu             sync.Mutex
	txns           []model.Transaction
	rules          []model.Rule
	patterns       []model.RecurringPattern
	bankBalance    decimal.Decimal
	savingsReserve decimal.Decimal
	lastBackup     *time.Time
	busy           bool

	persister Persister
	detector  *recurring.Detector
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithDetector sets the recurring detector used to derive patterns.
func WithDetector(d *recurring.Detector) Option {
	return func(s *Store) { s.detector = d }
}

// WithLogger sets the store's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New loads state from p and returns a ready Store.
func New(p Persister, opts ...Option) (*Store, error) {
	s := &Store{
		persister: p,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.detector == nil {
		s.detector = recurring.NewDetector(recurring.DefaultConfig(), s.log)
	}

	snap, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	if snap != nil {
		s.restoreLocked(*snap)
	}
	return s, nil
}

// Transactions returns a copy of all transactions, newest first. Members of
// a detected pattern are reported as recurring.
func (s *Store) Transactions() []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recurring.MarkRecurringTransactions(append([]model.Transaction(nil), s.txns...), s.patterns)
}

// Transaction returns the transaction with the given ID.
func (s *Store) Transaction(txnID string) (model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(txnID)
	if i < 0 {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", txnID, ErrNotFound)
	}
	return recurring.MarkRecurringTransactions([]model.Transaction{s.txns[i]}, s.patterns)[0], nil
}

// Rules returns a copy of the rules in insertion order.
func (s *Store) Rules() []model.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Rule(nil), s.rules...)
}

// Patterns returns the recurring patterns derived from the current
// transactions.
func (s *Store) Patterns() []model.RecurringPattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.RecurringPattern(nil), s.patterns...)
}

// BankBalance returns the last known account balance.
func (s *Store) BankBalance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bankBalance
}

// SavingsReserve returns the amount set aside from the safe balance.
func (s *Store) SavingsReserve() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savingsReserve
}

// LastBackupDate returns when Export last ran, or nil.
func (s *Store) LastBackupDate() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastBackup == nil {
		return nil
	}
	t := *s.lastBackup
	return &t
}

// Busy reports whether a categorization run is in progress.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// AddTransactions adds the transactions whose IDs are not already present
// and returns how many were added.
func (s *Store) AddTransactions(txns []model.Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool, len(s.txns))
	for _, t := range s.txns {
		existing[t.ID] = true
	}
	added := 0
	for _, t := range txns {
		if existing[t.ID] {
			continue
		}
		existing[t.ID] = true
		s.txns = append(s.txns, t)
		added++
	}
	if added == 0 {
		return 0, nil
	}

	s.recomputeLocked()
	if err := s.saveLocked(); err != nil {
		return 0, err
	}
	s.log.Debug().Int("added", added).Int("duplicates", len(txns)-added).Msg("transactions added")
	return added, nil
}

// UpdateTransaction applies p to one transaction.
func (s *Store) UpdateTransaction(txnID string, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(txnID)
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", txnID, ErrNotFound)
	}
	if p.Category != nil && !model.IsValidCategory(*p.Category) {
		return fmt.Errorf("unknown category %q", *p.Category)
	}

	t := s.txns[i]
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.IsRecurring != nil {
		t.IsRecurring = *p.IsRecurring
	}
	if p.MerchantName != nil {
		t.MerchantName = *p.MerchantName
	}
	s.txns[i] = t

	s.recomputeLocked()
	return s.saveLocked()
}

// CategorizeManually sets a user-chosen category. Utilities and
// Subscriptions also mark the transaction recurring. With alwaysApply a
// rule is created from the description's suggested keyword (or an
// existing rule for that keyword reused) and rules are re-applied to the
// uncategorized transactions. The rule is returned when one applies.
func (s *Store) CategorizeManually(txnID, category string, alwaysApply bool) (*model.Rule, error) {
	if !model.IsValidCategory(category) {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(txnID)
	if i < 0 {
		return nil, fmt.Errorf("transaction %s: %w", txnID, ErrNotFound)
	}
	s.txns[i].Category = category
	if model.ImpliesRecurring(category) {
		s.txns[i].IsRecurring = true
	}

	var rule *model.Rule
	if alwaysApply {
		kw := rules.SuggestKeyword(s.txns[i].Description)
		if r, ok := s.ruleByKeywordLocked(kw); ok {
			rule = &r
		} else if kw != "" {
			r := model.Rule{ID: id.Rule(), Keyword: kw, Category: category}
			s.rules = append(s.rules, r)
			rule = &r
		}
		s.txns = rules.ApplyRules(s.txns, s.rules)
	}

	s.recomputeLocked()
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return rule, nil
}

// DeleteTransaction removes one transaction.
func (s *Store) DeleteTransaction(txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(txnID)
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", txnID, ErrNotFound)
	}
	s.txns = append(s.txns[:i], s.txns[i+1:]...)

	s.recomputeLocked()
	return s.saveLocked()
}

// AddRule stores a keyword rule. Keywords are upper-cased and must be
// unique regardless of case.
func (s *Store) AddRule(keyword, category string) (model.Rule, error) {
	kw := strings.ToUpper(strings.TrimSpace(keyword))
	if kw == "" {
		return model.Rule{}, errors.New("rule keyword is empty")
	}
	if !model.IsValidCategory(category) {
		return model.Rule{}, fmt.Errorf("unknown category %q", category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ruleByKeywordLocked(kw); ok {
		return model.Rule{}, fmt.Errorf("rule %q: %w", kw, ErrDuplicateRule)
	}
	r := model.Rule{ID: id.Rule(), Keyword: kw, Category: category}
	s.rules = append(s.rules, r)
	if err := s.saveLocked(); err != nil {
		return model.Rule{}, err
	}
	return r, nil
}

// RemoveRule deletes a rule. Categories it already assigned stay.
func (s *Store) RemoveRule(ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.rules {
		if r.ID == ruleID {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return s.saveLocked()
		}
	}
	return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
}

// SetBankBalance records the current account balance.
func (s *Store) SetBankBalance(balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bankBalance = balance
	return s.saveLocked()
}

// SetSavingsReserve records how much to hold back from the safe balance.
func (s *Store) SetSavingsReserve(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.New("savings reserve must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savingsReserve = amount
	return s.saveLocked()
}

// Reset clears all state.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.restoreLocked(Snapshot{})
	return s.saveLocked()
}

// Export returns the full state for backup and records the backup time.
func (s *Store) Export() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.lastBackup = &now
	if err := s.saveLocked(); err != nil {
		return Snapshot{}, err
	}
	snap := s.snapshotLocked()
	snap.ExportedAt = now
	return snap, nil
}

// Import replaces all state with snap after validating it. Legacy
// category names are mapped onto the current set.
func (s *Store) Import(snap Snapshot) error {
	if errs := ValidateSnapshot(snap); len(errs) > 0 {
		return ValidationErrors(errs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.restoreLocked(snap)
	return s.saveLocked()
}

// ReapplyRules runs the categorization workflow over every transaction:
// rules first, then analyzer for what is still uncategorized. Only one run
// may be active; a concurrent call gets ErrBusy. If the analyzer fails the
// rule-applied categories are kept and the error is returned.
func (s *Store) ReapplyRules(ctx context.Context, analyzer categorize.Analyzer, opts categorize.Options) error {
	txns, rs, err := s.begin()
	if err != nil {
		return err
	}
	defer s.end()

	onUpdate := opts.OnUpdate
	opts.OnUpdate = func(categorized []model.Transaction) {
		if err := s.apply(categorized); err != nil {
			s.log.Error().Err(err).Msg("saving rule categorization")
		}
		if onUpdate != nil {
			onUpdate(categorized)
		}
	}

	result, err := categorize.Run(ctx, txns, rs, analyzer, opts)
	if err != nil {
		s.log.Error().Err(err).Msg("categorization failed")
		return err
	}
	return s.apply(result)
}

// Reclassify sends every transaction to analyzer regardless of its current
// category and merges the verdicts. Rules are not consulted. An
// Uncategorized verdict (including the fallback for a failed or skipped
// chunk) never replaces a category the transaction already has.
func (s *Store) Reclassify(ctx context.Context, analyzer categorize.Analyzer, batchSize int, onProgress func(completed, total int)) error {
	txns, _, err := s.begin()
	if err != nil {
		return err
	}
	defer s.end()

	results, err := analyzer.AnalyzeBatch(ctx, txns, batchSize, onProgress)
	if err != nil {
		s.log.Error().Err(err).Msg("reclassification failed")
		return fmt.Errorf("classifying %d transactions: %w", len(txns), err)
	}
	return s.apply(categorize.Merge(txns, keepCategorized(txns, results)))
}

// keepCategorized drops results that would downgrade a categorized
// transaction to Uncategorized.
func keepCategorized(txns []model.Transaction, results map[string]model.AnalysisResult) map[string]model.AnalysisResult {
	uncategorized := string(model.CategoryUncategorized)
	kept := make(map[string]model.AnalysisResult, len(results))
	for _, t := range txns {
		r, ok := results[t.ID]
		if !ok {
			continue
		}
		if r.Category == uncategorized && t.Category != uncategorized {
			continue
		}
		kept[t.ID] = r
	}
	return kept
}

func (s *Store) begin() ([]model.Transaction, []model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, nil, ErrBusy
	}
	s.busy = true
	return append([]model.Transaction(nil), s.txns...), append([]model.Rule(nil), s.rules...), nil
}

func (s *Store) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// apply copies categorization fields from updated onto the transactions
// still present. Transactions deleted while the run was in flight are
// not resurrected.
func (s *Store) apply(updated []model.Transaction) error {
	byID := make(map[string]model.Transaction, len(updated))
	for _, t := range updated {
		byID[t.ID] = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.txns {
		u, ok := byID[t.ID]
		if !ok {
			continue
		}
		t.Category = u.Category
		t.IsRecurring = u.IsRecurring
		t.MerchantName = u.MerchantName
		s.txns[i] = t
	}
	s.recomputeLocked()
	return s.saveLocked()
}

func (s *Store) indexLocked(txnID string) int {
	for i, t := range s.txns {
		if t.ID == txnID {
			return i
		}
	}
	return -1
}

func (s *Store) ruleByKeywordLocked(kw string) (model.Rule, bool) {
	kw = strings.ToUpper(kw)
	for _, r := range s.rules {
		if strings.ToUpper(r.Keyword) == kw {
			return r, true
		}
	}
	return model.Rule{}, false
}

// recomputeLocked keeps transactions sorted newest first and rebuilds the
// recurring patterns. Every transaction mutation calls it before
// releasing the lock.
//
// s.txns only carries IsRecurring flags set by rules, the classifier or the
// user. Detector marks are applied to the copies handed out, never stored,
// so they cannot turn a group explicit on the next pass.
func (s *Store) recomputeLocked() {
	sort.SliceStable(s.txns, func(i, j int) bool {
		return s.txns[i].Date.After(s.txns[j].Date)
	})
	s.patterns = s.detector.Detect(s.txns)
}

func (s *Store) restoreLocked(snap Snapshot) {
	s.txns = make([]model.Transaction, len(snap.Transactions))
	for i, t := range snap.Transactions {
		t.Category = model.NormalizeCategory(t.Category)
		if t.Category == "" {
			t.Category = string(model.CategoryUncategorized)
		}
		s.txns[i] = t
	}
	s.rules = make([]model.Rule, len(snap.Rules))
	for i, r := range snap.Rules {
		r.Keyword = strings.ToUpper(strings.TrimSpace(r.Keyword))
		r.Category = model.NormalizeCategory(r.Category)
		if id.Validate(r.ID) != nil {
			r.ID = id.Rule()
		}
		s.rules[i] = r
	}
	s.bankBalance = snap.BankBalance
	s.savingsReserve = snap.SavingsReserve
	s.lastBackup = snap.LastBackupDate
	s.recomputeLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:        SnapshotVersion,
		Transactions:   append([]model.Transaction(nil), s.txns...),
		Rules:          append([]model.Rule(nil), s.rules...),
		BankBalance:    s.bankBalance,
		SavingsReserve: s.savingsReserve,
		LastBackupDate: s.lastBackup,
	}
}

func (s *Store) saveLocked() error {
	if err := s.persister.Save(s.snapshotLocked()); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}
