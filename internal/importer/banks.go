package importer

import (
	"io"
)

// CommBankParser parses Commonwealth Bank exports. Netbank downloads have
// no header row: date, signed amount, description, balance. Exports with
// a Date/Amount/Description header are also accepted.
type CommBankParser struct{}

const (
	cbaColDate    = 0
	cbaColAmount  = 1
	cbaColDesc    = 2
	cbaColBalance = 3
)

// Format returns the parser name.
func (p *CommBankParser) Format() string { return BankCommBank }

// Parse reads a CommBank CSV.
func (p *CommBankParser) Parse(r io.Reader) (Result, error) {
	records, err := readRecords(r)
	if err != nil {
		return Result{}, err
	}
	c := newCollector(BankCommBank)
	if len(records) == 0 {
		return c.result(), nil
	}

	if looksLikeCommBankRow(records[0]) {
		for _, rec := range records {
			c.add(row{
				date:    field(rec, cbaColDate),
				amount:  field(rec, cbaColAmount),
				desc:    field(rec, cbaColDesc),
				balance: field(rec, cbaColBalance),
			})
		}
		return c.result(), nil
	}

	h := newHeader(records[0])
	for _, rec := range records[1:] {
		r := row{
			date:    h.col(rec, "date"),
			amount:  h.col(rec, "amount"),
			desc:    h.col(rec, "description", "narrative"),
			balance: h.col(rec, "balance"),
		}
		if r.amount == "" {
			r.debit = h.col(rec, "debit")
			r.credit = h.col(rec, "credit")
		}
		c.add(r)
	}
	return c.result(), nil
}

// NABParser parses National Australia Bank exports:
// Date, Transaction Type, Debit, Credit, Balance.
type NABParser struct{}

// Format returns the parser name.
func (p *NABParser) Format() string { return BankNAB }

// Parse reads a NAB CSV.
func (p *NABParser) Parse(r io.Reader) (Result, error) {
	return parseHeadered(r, BankNAB, func(h header, rec []string) row {
		return row{
			date:    h.col(rec, "date"),
			desc:    h.col(rec, "transaction type", "transaction details", "particulars", "description", "narrative"),
			debit:   h.col(rec, "debit"),
			credit:  h.col(rec, "credit"),
			balance: h.col(rec, "balance"),
		}
	})
}

// WestpacParser parses Westpac exports:
// Bank Account, Date, Narrative, Debit Amount, Credit Amount, Balance.
type WestpacParser struct{}

// Format returns the parser name.
func (p *WestpacParser) Format() string { return BankWestpac }

// Parse reads a Westpac CSV.
func (p *WestpacParser) Parse(r io.Reader) (Result, error) {
	return parseHeadered(r, BankWestpac, func(h header, rec []string) row {
		return row{
			date:    h.col(rec, "date"),
			desc:    h.col(rec, "narrative", "description"),
			debit:   h.col(rec, "debit amount", "debit"),
			credit:  h.col(rec, "credit amount", "credit"),
			balance: h.col(rec, "balance"),
		}
	})
}

// ANZParser parses ANZ exports:
// Date, Transaction Details, Debit, Credit, Balance.
type ANZParser struct{}

// Format returns the parser name.
func (p *ANZParser) Format() string { return BankANZ }

// Parse reads an ANZ CSV. Some ANZ exports use a single signed Amount
// column instead of Debit/Credit.
func (p *ANZParser) Parse(r io.Reader) (Result, error) {
	return parseHeadered(r, BankANZ, func(h header, rec []string) row {
		r := row{
			date:    h.col(rec, "date"),
			desc:    h.col(rec, "transaction details", "particulars", "description"),
			debit:   h.col(rec, "debit"),
			credit:  h.col(rec, "credit"),
			balance: h.col(rec, "balance"),
		}
		if !h.has("debit", "credit") {
			r.amount = h.col(rec, "amount")
		}
		return r
	})
}

// SuncorpParser parses Suncorp exports. The first two lines are account
// metadata; data rows are date, description, signed amount, balance.
type SuncorpParser struct{}

const (
	suncorpMetaLines  = 2
	suncorpColDate    = 0
	suncorpColDesc    = 1
	suncorpColAmount  = 2
	suncorpColBalance = 3
)

// Format returns the parser name.
func (p *SuncorpParser) Format() string { return BankSuncorp }

// Parse reads a Suncorp CSV.
func (p *SuncorpParser) Parse(r io.Reader) (Result, error) {
	records, err := readRecords(r)
	if err != nil {
		return Result{}, err
	}
	c := newCollector(BankSuncorp)
	if len(records) <= suncorpMetaLines {
		return c.result(), nil
	}
	for _, rec := range records[suncorpMetaLines:] {
		c.add(row{
			date:    field(rec, suncorpColDate),
			desc:    field(rec, suncorpColDesc),
			amount:  field(rec, suncorpColAmount),
			balance: field(rec, suncorpColBalance),
		})
	}
	return c.result(), nil
}

// parseHeadered reads a CSV whose first record names the columns and maps
// each following record through extract.
func parseHeadered(r io.Reader, bank string, extract func(header, []string) row) (Result, error) {
	records, err := readRecords(r)
	if err != nil {
		return Result{}, err
	}
	c := newCollector(bank)
	if len(records) <= 1 {
		return c.result(), nil
	}
	h := newHeader(records[0])
	for _, rec := range records[1:] {
		c.add(extract(h, rec))
	}
	return c.result(), nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return rec[i]
}
