package store

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"

	"gonum.org/v1/gonum/floats"
)

// Scratch is the persistent keyed accumulation table used by series runs:
// partially-accumulated arrays keyed by series tag, surviving across
// per-series-point runs within one invocation.
type Scratch struct {
	db  *badger.DB
	dir string
}

// CreateScratch opens a fresh scratch store at dir, removing any stale one.
func CreateScratch(dir string) (*Scratch, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("scratch: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("scratch: %w", err)
	}
	return &Scratch{db: db, dir: dir}, nil
}

func encode(vals []float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vals); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(raw []byte) ([]float64, error) {
	var vals []float64
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&vals); err != nil {
		return nil, err
	}
	return vals, nil
}

// Accumulate adds vals elementwise into the entry for key, initializing it
// on first use. Entries are only ever added to until they are read back.
func (s *Scratch) Accumulate(key string, vals []float64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		acc := vals
		item, err := txn.Get([]byte(key))
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			prev, err := decode(raw)
			if err != nil {
				return err
			}
			if len(prev) != len(vals) {
				return fmt.Errorf("scratch: size mismatch for %q: %d vs %d", key, len(prev), len(vals))
			}
			floats.Add(prev, vals)
			acc = prev
		case errors.Is(err, badger.ErrKeyNotFound):
			acc = append([]float64(nil), vals...)
		default:
			return err
		}
		raw, err := encode(acc)
		if err != nil {
			return err
		}
		return txn.Set([]byte(key), raw)
	})
}

// Read returns the accumulated array for key.
func (s *Scratch) Read(key string) ([]float64, error) {
	var vals []float64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		vals, err = decode(raw)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("scratch: reading %q: %w", key, err)
	}
	return vals, nil
}

// Release drops the entry for key after its final read.
func (s *Scratch) Release(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Remove closes the store and deletes it from disk.
func (s *Scratch) Remove() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("scratch: %w", err)
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("scratch: %w", err)
	}
	return nil
}
