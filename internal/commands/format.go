package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var (
	headingColor  = color.New(color.Bold, color.FgCyan)
	debitColor    = color.New(color.FgRed)
	creditColor   = color.New(color.FgGreen)
	overdueColor  = color.New(color.BgRed, color.FgWhite)
	increaseColor = color.New(color.FgYellow)
	mutedColor    = color.New(color.Faint)
)

const monthLayout = "2006-01"

// money renders d as dollars with a leading sign for negatives.
func money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// fprintAmount writes a right-aligned amount, coloured by sign.
func fprintAmount(w io.Writer, d decimal.Decimal) {
	s := fmt.Sprintf("%12s", money(d))
	switch {
	case d.IsNegative():
		debitColor.Fprint(w, s)
	case d.IsPositive():
		creditColor.Fprint(w, s)
	default:
		fmt.Fprint(w, s)
	}
}

func fprintHeading(w io.Writer, format string, args ...any) {
	headingColor.Fprintf(w, format, args...)
	fmt.Fprintln(w)
}

// parseMonth accepts YYYY-MM, defaulting to the month containing today.
// Transaction dates are UTC calendar dates, so months are too.
func parseMonth(s string, today time.Time) (time.Time, error) {
	if s == "" {
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	m, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, want YYYY-MM", s)
	}
	return m, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
