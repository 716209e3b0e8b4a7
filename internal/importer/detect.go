package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/truenorth-finance/truenorth/internal/id"
	"github.com/truenorth-finance/truenorth/internal/model"
)

// Bank format names, also the registry keys.
const (
	BankCommBank = "commbank"
	BankNAB      = "nab"
	BankWestpac  = "westpac"
	BankANZ      = "anz"
	BankSuncorp  = "suncorp"
	BankUnknown  = "unknown"
)

// dateLayouts are the statement date formats accepted, tried in order.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2 Jan 2006",
	"2 Jan 06",
	"2006-01-02",
}

// DetectBank identifies the bank from a header row. Checks run in a fixed
// order because some banks share column names.
func DetectBank(headers []string) string {
	h := strings.ToLower(strings.Join(headers, ","))
	has := func(s string) bool { return strings.Contains(h, s) }

	switch {
	case has("bank account") || has("narrative"):
		return BankWestpac
	case has("debit") && has("credit"):
		return BankNAB
	case has("particulars") || has("transaction details"):
		return BankANZ
	case has("account history for account"):
		return BankSuncorp
	case has("date") && has("amount") && has("description"):
		return BankCommBank
	case has("date") && (has("amount") || has("debit")):
		return BankCommBank
	}
	return BankUnknown
}

// looksLikeCommBankRow reports whether rec is a headerless CommBank line:
// date, signed amount, description, balance.
func looksLikeCommBankRow(rec []string) bool {
	if len(rec) < 3 {
		return false
	}
	if _, err := parseDate(rec[0]); err != nil {
		return false
	}
	_, err := parseMoney(rec[1])
	return err == nil
}

// parseDate parses a statement date in any accepted layout, as UTC midnight.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseMoney parses "$1,234.50", "-$8.29" or "+12.00".
func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return d, nil
}

// readRecords reads every non-blank CSV record with fields trimmed.
// Ragged rows are allowed; bank exports are not consistent about it.
var utf8BOM = []byte("\xef\xbb\xbf")

// toUTF8 strips a byte order mark and decodes exports saved as Windows-1252,
// which some banks still produce.
func toUTF8(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return bytes.ToValidUTF8(data, nil)
	}
	return out
}

func readRecords(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	out := records[:0]
	for _, rec := range records {
		blank := true
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
			if rec[i] != "" {
				blank = false
			}
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out, nil
}

// header maps lowercased column names to indices.
type header map[string]int

func newHeader(rec []string) header {
	h := make(header, len(rec))
	for i, name := range rec {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := h[key]; !ok {
			h[key] = i
		}
	}
	return h
}

// col returns the first non-empty value among the named columns.
func (h header) col(rec []string, names ...string) string {
	for _, n := range names {
		i, ok := h[n]
		if !ok || i >= len(rec) {
			continue
		}
		if v := rec[i]; v != "" {
			return v
		}
	}
	return ""
}

// has reports whether any of the named columns exist.
func (h header) has(names ...string) bool {
	for _, n := range names {
		if _, ok := h[n]; ok {
			return true
		}
	}
	return false
}

// row is one statement line before it becomes a transaction.
type row struct {
	date    string
	desc    string
	amount  string // signed
	debit   string
	credit  string
	balance string
}

// collector builds a Result and tracks the closing balance.
type collector struct {
	res        Result
	latest     time.Time
	hasBalance bool
}

func newCollector(bank string) *collector {
	return &collector{res: Result{Bank: bank}}
}

// add converts r and appends it. Rows with an unreadable date or amount
// are counted as skipped.
func (c *collector) add(r row) {
	date, err := parseDate(r.date)
	if err != nil {
		c.res.Skipped++
		return
	}

	amount, ok := rowAmount(r)
	if !ok {
		c.res.Skipped++
		return
	}

	var balance *decimal.Decimal
	if r.balance != "" {
		if b, err := parseMoney(r.balance); err == nil {
			balance = &b
		}
	}

	desc := strings.TrimSpace(r.desc)
	c.res.Transactions = append(c.res.Transactions, model.Transaction{
		ID:          id.Transaction(date, amount, desc, balance),
		Date:        date,
		Amount:      amount,
		Description: desc,
		Category:    string(model.CategoryUncategorized),
	})

	if balance != nil && (!c.hasBalance || date.After(c.latest)) {
		c.latest = date
		c.hasBalance = true
		b := *balance
		c.res.Balance = &b
	}
}

func (c *collector) result() Result {
	return c.res
}

// rowAmount resolves the signed amount. A debit column always means money
// out, a credit column money in, whatever sign the bank printed. A zero
// debit/credit pair carries no movement and is dropped.
func rowAmount(r row) (decimal.Decimal, bool) {
	if r.amount != "" {
		amount, err := parseMoney(r.amount)
		if err != nil {
			return decimal.Zero, false
		}
		return amount, true
	}
	if debit, err := parseMoney(r.debit); err == nil && !debit.IsZero() {
		return debit.Abs().Neg(), true
	}
	if credit, err := parseMoney(r.credit); err == nil && !credit.IsZero() {
		return credit.Abs(), true
	}
	return decimal.Zero, false
}
