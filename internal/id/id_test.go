package id

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionKey_Canonical(t *testing.T) {
	date := time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC)
	amt := decimal.RequireFromString("-8.29")
	bal := decimal.RequireFromString("2800")

	assert.Equal(t, "2025-01-28|-8.29|WOOLWORTHS", transactionKey(date, amt, " WOOLWORTHS ", nil))
	assert.Equal(t, "2025-01-28|-8.29|WOOLWORTHS|2800.00", transactionKey(date, amt, "WOOLWORTHS", &bal))
}

func TestTransaction_Deterministic(t *testing.T) {
	date := time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC)
	amt := decimal.RequireFromString("-8.29")

	a := Transaction(date, amt, "WOOLWORTHS", nil)
	b := Transaction(date, decimal.RequireFromString("-8.290"), "WOOLWORTHS", nil)
	assert.Equal(t, a, b)
	require.NoError(t, Validate(a))

	bal := decimal.RequireFromString("100")
	assert.NotEqual(t, a, Transaction(date, amt, "WOOLWORTHS", &bal))
	assert.NotEqual(t, a, Transaction(date.AddDate(0, 0, 1), amt, "WOOLWORTHS", nil))
}

func TestRule(t *testing.T) {
	a, b := Rule(), Rule()
	assert.NotEqual(t, a, b)
	require.NoError(t, Validate(a))
}

func TestValidate_Invalid(t *testing.T) {
	err := Validate("2025-01-001")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid id")
}
