package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/truenorth-finance/truenorth/internal/model"
)

// Sentinel errors returned by ParseCSV.
var (
	ErrNoData         = errors.New("no data found in CSV")
	ErrUnknownFormat  = errors.New("could not detect bank format, use a CSV from CommBank, NAB, Westpac, Suncorp or ANZ")
	ErrNoTransactions = errors.New("no valid transactions found in CSV")
)

// Result is the outcome of parsing one statement.
type Result struct {
	Bank         string
	Transactions []model.Transaction
	// Balance is the closing balance of the most recent row, if the
	// statement carries balances.
	Balance *decimal.Decimal
	// Skipped counts rows dropped for an unreadable date or amount.
	Skipped int
}

// Parser converts one bank's CSV export into transactions.
type Parser interface {
	Parse(r io.Reader) (Result, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a CSV file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&CommBankParser{})
	r.Register(&NABParser{})
	r.Register(&WestpacParser{})
	r.Register(&ANZParser{})
	r.Register(&SuncorpParser{})
	return r
}

// ParseCSV detects the bank from the header row and parses with the
// matching registered parser. format forces a parser when non-empty.
func (r *Registry) ParseCSV(rd io.Reader, format string) (Result, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return Result{}, fmt.Errorf("reading CSV: %w", err)
	}
	data = toUTF8(data)

	records, err := readRecords(bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	if len(records) < 2 && !(len(records) == 1 && looksLikeCommBankRow(records[0])) {
		return Result{}, ErrNoData
	}

	if format == "" {
		format = DetectBank(records[0])
		if format == BankUnknown && looksLikeCommBankRow(records[0]) {
			format = BankCommBank
		}
	}
	if format == BankUnknown {
		return Result{}, ErrUnknownFormat
	}
	p := r.Get(format)
	if p == nil {
		return Result{}, fmt.Errorf("no parser registered for %q", format)
	}

	res, err := p.Parse(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("parsing %s CSV: %w", format, err)
	}
	if len(res.Transactions) == 0 {
		return res, ErrNoTransactions
	}
	return res, nil
}

// InboxDir is the subdirectory scanned for statement CSVs.
const InboxDir = "import"

// ProcessedDir is where imported files are moved, relative to InboxDir.
const ProcessedDir = "processed"

// Scan returns CSV files in <dataDir>/import/.
func Scan(dataDir string) ([]FileInfo, error) {
	dir := filepath.Join(dataDir, InboxDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(dataDir, fileName string) error {
	src := filepath.Join(dataDir, InboxDir, fileName)
	dstDir := filepath.Join(dataDir, InboxDir, ProcessedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
