package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/truenorth-finance/truenorth/internal/model"
)

// SnapshotVersion is the backup format written by Export. Version 0 is a
// backup from before the field existed.
const SnapshotVersion = 1

// Snapshot is the full persisted state, also the backup file format.
// Recurring patterns are derived and not part of it.
type Snapshot struct {
	Version        int                 `json:"version"`
	ExportedAt     time.Time           `json:"exportedAt"`
	Transactions   []model.Transaction `json:"transactions"`
	Rules          []model.Rule        `json:"rules"`
	BankBalance    decimal.Decimal     `json:"bankBalance"`
	SavingsReserve decimal.Decimal     `json:"savingsReserve"`
	LastBackupDate *time.Time          `json:"lastBackupDate,omitempty"`
}

// legacySnapshot carries field names used by version 0 backups.
type legacySnapshot struct {
	SavingsBuckets *decimal.Decimal `json:"savingsBuckets"`
	Transactions   json.RawMessage  `json:"transactions"`
}

// EncodeSnapshot writes s as indented JSON.
func EncodeSnapshot(w io.Writer, s Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// DecodeSnapshot reads a backup. The transactions array must be present;
// everything else may be missing.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}

	var legacy legacySnapshot
	if err := json.Unmarshal(data, &legacy); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if len(legacy.Transactions) == 0 || legacy.Transactions[0] != '[' {
		return Snapshot{}, errors.New("decoding snapshot: missing transactions array")
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if s.Version == 0 && legacy.SavingsBuckets != nil {
		s.SavingsReserve = *legacy.SavingsBuckets
	}
	return s, nil
}
