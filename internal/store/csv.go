package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/truenorth-finance/truenorth/internal/model"
)

// TransactionHeader is the CSV header for transactions.csv.
const TransactionHeader = "id,date,amount,description,category,is_recurring,merchant_name"

// RuleHeader is the CSV header for rules.csv.
const RuleHeader = "id,keyword,category"

const (
	txnNumFields  = 7
	dateFormat    = "2006-01-02"
	colID         = 0
	colDate       = 1
	colAmount     = 2
	colDesc       = 3
	colCategory   = 4
	colRecurring  = 5
	colMerchant   = 6
	ruleNumFields = 3
	colRuleID     = 0
	colKeyword    = 1
	colRuleCat    = 2
)

// WriteTransactions writes txns to w, header first.
func WriteTransactions(w io.Writer, txns []model.Transaction) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(TransactionHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, t := range txns {
		if err := cw.Write(MarshalTransaction(t)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTransactions reads a file written by WriteTransactions.
func ReadTransactions(r io.Reader) ([]model.Transaction, error) {
	records, err := readAll(r, txnNumFields)
	if err != nil {
		return nil, fmt.Errorf("reading transactions CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	txns := make([]model.Transaction, 0, len(records)-1)
	for i, rec := range records[1:] {
		t, err := UnmarshalTransaction(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txns = append(txns, t)
	}
	return txns, nil
}

// MarshalTransaction converts a Transaction to a CSV row.
func MarshalTransaction(t model.Transaction) []string {
	row := make([]string, txnNumFields)
	row[colID] = t.ID
	row[colDate] = t.Date.Format(dateFormat)
	row[colAmount] = t.Amount.StringFixed(2)
	row[colDesc] = t.Description
	row[colCategory] = t.Category
	row[colRecurring] = strconv.FormatBool(t.IsRecurring)
	row[colMerchant] = t.MerchantName
	return row
}

// UnmarshalTransaction converts a CSV row to a Transaction.
func UnmarshalTransaction(record []string) (model.Transaction, error) {
	if len(record) != txnNumFields {
		return model.Transaction{}, fmt.Errorf("expected %d fields, got %d", txnNumFields, len(record))
	}

	date, err := time.Parse(dateFormat, record[colDate])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing date %q: %w", record[colDate], err)
	}

	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}

	recurring := false
	if record[colRecurring] != "" {
		recurring, err = strconv.ParseBool(record[colRecurring])
		if err != nil {
			return model.Transaction{}, fmt.Errorf("parsing is_recurring %q: %w", record[colRecurring], err)
		}
	}

	return model.Transaction{
		ID:           record[colID],
		Date:         date,
		Amount:       amount,
		Description:  record[colDesc],
		Category:     record[colCategory],
		IsRecurring:  recurring,
		MerchantName: record[colMerchant],
	}, nil
}

// WriteRules writes rules to w, header first.
func WriteRules(w io.Writer, rules []model.Rule) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(RuleHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, r := range rules {
		row := make([]string, ruleNumFields)
		row[colRuleID] = r.ID
		row[colKeyword] = r.Keyword
		row[colRuleCat] = r.Category
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRules reads a file written by WriteRules.
func ReadRules(r io.Reader) ([]model.Rule, error) {
	records, err := readAll(r, ruleNumFields)
	if err != nil {
		return nil, fmt.Errorf("reading rules CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	rules := make([]model.Rule, 0, len(records)-1)
	for _, rec := range records[1:] {
		rules = append(rules, model.Rule{
			ID:       rec[colRuleID],
			Keyword:  rec[colKeyword],
			Category: rec[colRuleCat],
		})
	}
	return rules, nil
}

func readAll(r io.Reader, fields int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = fields
	return cr.ReadAll()
}
