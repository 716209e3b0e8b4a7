package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/shopspring/decimal"

	"github.com/truenorth-finance/truenorth/internal/model"
)

var (
	txnBucket  = []byte("transactions")
	ruleBucket = []byte("rules")
	metaBucket = []byte("meta")

	keyBalance    = []byte("bank_balance")
	keySavings    = []byte("savings_reserve")
	keyLastBackup = []byte("last_backup")
)

// Persister loads and saves the store's state.
type Persister interface {
	// Load returns the saved state, or nil if nothing was saved yet.
	Load() (*Snapshot, error)
	Save(s Snapshot) error
}

// BoltPersister keeps state in a bolt database: one bucket of
// transactions keyed by ID, one of rules in insertion order, and a bucket
// of scalar settings.
type BoltPersister struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*BoltPersister, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening state db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{txnBucket, ruleBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltPersister{db: db}, nil
}

// Close releases the database file lock.
func (p *BoltPersister) Close() error {
	return p.db.Close()
}

// Load reads the saved state.
func (p *BoltPersister) Load() (*Snapshot, error) {
	var (
		s     Snapshot
		found bool
	)
	err := p.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if v := meta.Get(keyBalance); v != nil {
			found = true
			if err := s.BankBalance.UnmarshalText(v); err != nil {
				return fmt.Errorf("decoding bank balance: %w", err)
			}
		}
		if v := meta.Get(keySavings); v != nil {
			if err := s.SavingsReserve.UnmarshalText(v); err != nil {
				return fmt.Errorf("decoding savings reserve: %w", err)
			}
		}
		if v := meta.Get(keyLastBackup); v != nil {
			var t time.Time
			if err := t.UnmarshalText(v); err != nil {
				return fmt.Errorf("decoding last backup date: %w", err)
			}
			s.LastBackupDate = &t
		}

		c := tx.Bucket(txnBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var t model.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("decoding transaction %s: %w", k, err)
			}
			s.Transactions = append(s.Transactions, t)
		}

		c = tx.Bucket(ruleBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r model.Rule
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decoding rule %s: %w", k, err)
			}
			s.Rules = append(s.Rules, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found && len(s.Transactions) == 0 && len(s.Rules) == 0 {
		return nil, nil
	}
	s.Version = SnapshotVersion
	return &s, nil
}

// Save replaces the stored state with s in a single transaction.
func (p *BoltPersister) Save(s Snapshot) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{txnBucket, ruleBucket} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return fmt.Errorf("clearing bucket %s: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		txns := tx.Bucket(txnBucket)
		for _, t := range s.Transactions {
			v, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("encoding transaction %s: %w", t.ID, err)
			}
			if err := txns.Put([]byte(t.ID), v); err != nil {
				return fmt.Errorf("writing transaction %s: %w", t.ID, err)
			}
		}

		rules := tx.Bucket(ruleBucket)
		for i, r := range s.Rules {
			v, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encoding rule %s: %w", r.ID, err)
			}
			if err := rules.Put([]byte(fmt.Sprintf("%08d", i)), v); err != nil {
				return fmt.Errorf("writing rule %s: %w", r.ID, err)
			}
		}

		meta := tx.Bucket(metaBucket)
		if err := putDecimal(meta, keyBalance, s.BankBalance); err != nil {
			return err
		}
		if err := putDecimal(meta, keySavings, s.SavingsReserve); err != nil {
			return err
		}
		if s.LastBackupDate == nil {
			return meta.Delete(keyLastBackup)
		}
		v, err := s.LastBackupDate.MarshalText()
		if err != nil {
			return fmt.Errorf("encoding last backup date: %w", err)
		}
		return meta.Put(keyLastBackup, v)
	})
}

func putDecimal(b *bolt.Bucket, key []byte, d decimal.Decimal) error {
	v, err := d.MarshalText()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := b.Put(key, v); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
