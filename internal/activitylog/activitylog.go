// Package activitylog records what was done to the data directory in an
// append-only CSV.
package activitylog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Action names written to the log.
const (
	ActionImport     = "import"
	ActionCategorize = "categorize"
	ActionManual     = "set_category"
	ActionDelete     = "delete_transaction"
	ActionRuleAdd    = "rule_add"
	ActionRuleRemove = "rule_remove"
	ActionBackup     = "backup"
	ActionRestore    = "restore"
	ActionBalance    = "set_balance"
	ActionSavings    = "set_savings"
	ActionReset      = "reset"
)

// Entry is one row in the activity log.
type Entry struct {
	Timestamp time.Time
	Source    string // "cli" or the classifier provider name
	Action    string
	Details   string
	Ref       string // file name, transaction or rule ID
	Count     int
}

// Header is the CSV header for activity.csv.
const Header = "timestamp,source,action,details,ref,count"

const (
	numFields    = 6
	logDir       = "logs"
	logFile      = "logs/activity.csv"
	colTimestamp = 0
	colSource    = 1
	colAction    = 2
	colDetails   = 3
	colRef       = 4
	colCount     = 5
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colSource] = e.Source
	row[colAction] = e.Action
	row[colDetails] = e.Details
	row[colRef] = e.Ref
	row[colCount] = strconv.Itoa(e.Count)
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	count := 0
	if record[colCount] != "" {
		count, err = strconv.Atoi(record[colCount])
		if err != nil {
			return Entry{}, fmt.Errorf("parsing count %q: %w", record[colCount], err)
		}
	}

	return Entry{
		Timestamp: ts,
		Source:    record[colSource],
		Action:    record[colAction],
		Details:   record[colDetails],
		Ref:       record[colRef],
		Count:     count,
	}, nil
}

// Append writes entries to <dataDir>/logs/activity.csv, creating the file and header if needed.
func Append(dataDir string, entries []Entry) error {
	dir := filepath.Join(dataDir, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(dataDir, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <dataDir>/logs/activity.csv.
// Returns an empty slice if the file does not exist.
func Read(dataDir string) ([]Entry, error) {
	path := filepath.Join(dataDir, logFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading activity log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
