package store

import (
	"fmt"
	"strings"

	"github.com/truenorth-finance/truenorth/internal/model"
)

// ValidationError describes one problem found in a snapshot.
type ValidationError struct {
	Field       string
	ID          string
	Description string
}

func (e ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Description)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Field, e.ID, e.Description)
}

// ValidationErrors is returned by Import when a snapshot is rejected.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ValidateSnapshot checks a snapshot before it replaces the current state.
func ValidateSnapshot(s Snapshot) []ValidationError {
	var errs []ValidationError

	if s.Version < 0 || s.Version > SnapshotVersion {
		errs = append(errs, ValidationError{
			Field:       "version",
			Description: fmt.Sprintf("unsupported version %d", s.Version),
		})
	}

	seen := make(map[string]bool, len(s.Transactions))
	for i, t := range s.Transactions {
		field := fmt.Sprintf("transactions[%d]", i)
		if t.ID == "" {
			errs = append(errs, ValidationError{Field: field, Description: "missing id"})
		} else if seen[t.ID] {
			errs = append(errs, ValidationError{Field: field, ID: t.ID, Description: "duplicate id"})
		}
		seen[t.ID] = true

		if t.Date.IsZero() {
			errs = append(errs, ValidationError{Field: field, ID: t.ID, Description: "missing date"})
		}
		if t.Category != "" && !model.IsValidCategory(model.NormalizeCategory(t.Category)) {
			errs = append(errs, ValidationError{
				Field:       field,
				ID:          t.ID,
				Description: fmt.Sprintf("unknown category %q", t.Category),
			})
		}
	}

	keywords := make(map[string]bool, len(s.Rules))
	for i, r := range s.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		kw := strings.ToUpper(strings.TrimSpace(r.Keyword))
		switch {
		case kw == "":
			errs = append(errs, ValidationError{Field: field, ID: r.ID, Description: "empty keyword"})
		case keywords[kw]:
			errs = append(errs, ValidationError{Field: field, ID: r.ID, Description: fmt.Sprintf("duplicate keyword %q", kw)})
		}
		keywords[kw] = true

		if !model.IsValidCategory(model.NormalizeCategory(r.Category)) {
			errs = append(errs, ValidationError{
				Field:       field,
				ID:          r.ID,
				Description: fmt.Sprintf("unknown category %q", r.Category),
			})
		}
	}

	if s.SavingsReserve.IsNegative() {
		errs = append(errs, ValidationError{Field: "savingsReserve", Description: "must not be negative"})
	}

	return errs
}
