package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// namespace scopes transaction IDs so they never collide with other
// name-based UUIDs derived from the same strings.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://truenorth.finance/transaction"))

// transactionKey returns the canonical "date|amount|description[|balance]"
// string a transaction ID is derived from.
func transactionKey(date time.Time, amount decimal.Decimal, description string, balance *decimal.Decimal) string {
	parts := []string{
		date.Format("2006-01-02"),
		amount.StringFixed(2),
		strings.TrimSpace(description),
	}
	if balance != nil {
		parts = append(parts, balance.StringFixed(2))
	}
	return strings.Join(parts, "|")
}

// Transaction returns a deterministic ID for a statement line. Re-importing
// the same statement yields the same IDs.
func Transaction(date time.Time, amount decimal.Decimal, description string, balance *decimal.Decimal) string {
	key := transactionKey(date, amount, description, balance)
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

// Rule returns a fresh random rule ID.
func Rule() string {
	return uuid.NewString()
}

// Validate checks that s looks like an ID produced by this package.
func Validate(s string) error {
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("invalid id %q: %w", s, err)
	}
	return nil
}
