// Package kv is an embedded document store on LevelDB. Documents are JSON
// values under string keys; secondary lookups are kept as separate index keys
// written in the same transaction as the document.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
)

type contextKey string

const txKey contextKey = "kv_tx"

type Store struct {
	db *leveldb.DB
}

func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{Compression: opt.SnappyCompression})
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a LevelDB transaction. Writes made through the context
// passed to fn become visible atomically on commit. LevelDB allows a single
// open transaction, so concurrent InTx calls are serialised.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tr, err := s.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("open transaction: %w", err)
	}
	// Discard is a no-op once the transaction has committed.
	defer tr.Discard()

	if err := fn(context.WithValue(ctx, txKey, tr)); err != nil {
		return err
	}
	if err := tr.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func txFromContext(ctx context.Context) *leveldb.Transaction {
	tr, _ := ctx.Value(txKey).(*leveldb.Transaction)
	return tr
}

// Get decodes the document at key into v. It returns apperr.ErrNoRecord when
// the key is absent.
func (s *Store) Get(ctx context.Context, key string, v interface{}) error {
	var (
		data []byte
		err  error
	)
	if tr := txFromContext(ctx); tr != nil {
		data, err = tr.Get([]byte(key), nil)
	} else {
		data, err = s.db.Get([]byte(key), nil)
	}
	if errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("%s: %w", key, apperr.ErrNoRecord)
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Has reports whether key exists.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	if tr := txFromContext(ctx); tr != nil {
		return tr.Has([]byte(key), nil)
	}
	return s.db.Has([]byte(key), nil)
}

// Put encodes v as JSON and stores it at key.
func (s *Store) Put(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.PutRaw(ctx, key, data)
}

// PutRaw stores data at key as-is; used for index entries.
func (s *Store) PutRaw(ctx context.Context, key string, data []byte) error {
	if tr := txFromContext(ctx); tr != nil {
		return tr.Put([]byte(key), data, nil)
	}
	return s.db.Put([]byte(key), data, nil)
}

// GetRaw returns the bytes at key, or apperr.ErrNoRecord.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if tr := txFromContext(ctx); tr != nil {
		data, err = tr.Get([]byte(key), nil)
	} else {
		data, err = s.db.Get([]byte(key), nil)
	}
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", key, apperr.ErrNoRecord)
	}
	return data, err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if tr := txFromContext(ctx); tr != nil {
		return tr.Delete([]byte(key), nil)
	}
	return s.db.Delete([]byte(key), nil)
}

// Scan calls fn for every key with the given prefix, in key order. Returning
// ErrStopScan from fn ends the scan without error.
func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	var it iterator.Iterator
	if tr := txFromContext(ctx); tr != nil {
		it = tr.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	} else {
		it = s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	}
	defer it.Release()

	for it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Iterator buffers are reused on Next, so hand out copies.
		key := string(it.Key())
		value := append([]byte(nil), it.Value()...)
		if err := fn(key, value); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return it.Error()
}

// ErrStopScan ends a Scan early.
var ErrStopScan = errors.New("stop scan")

// Ping reports whether the database is open and readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.GetProperty("leveldb.stats")
	return err
}

// Stats returns LevelDB's compaction table for the health endpoint.
func (s *Store) Stats() interface{} {
	stats, err := s.db.GetProperty("leveldb.stats")
	if err != nil {
		return map[string]string{"error": err.Error()}
	}
	return map[string]string{"leveldb": stats}
}
