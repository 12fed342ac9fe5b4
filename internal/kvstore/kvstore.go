// Package kvstore is the Badger implementation of datastore.Datastore.
//
// Each entity is one Badger item keyed by its canonical key path. Badger
// orders items byte-wise, so the descendants of K are exactly the items
// with prefix K+"/".
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// Options configures Open.
type Options struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in memory. Used by tests.
	InMemory bool

	// Logger receives Badger's internal log output. Nil discards it below
	// warning level through slog.Default().
	Logger *slog.Logger
}

// Store is a Badger-backed datastore.Datastore.
type Store struct {
	db *badger.DB
}

var _ datastore.Datastore = (*Store)(nil)

// Open opens or creates a Badger database.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, errors.New("open badger: directory required")
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithLogger(newLogger(opts.Logger))

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// envelope is the stored value of one entity.
type envelope struct {
	Kind       string          `json:"kind"`
	Timestamp  int64           `json:"ts"`
	Properties json.RawMessage `json:"props"`
}

func encodeEntity(e *datastore.Entity) ([]byte, error) {
	props, err := field.Encode(e.Properties)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Kind:       e.Key.Kind(),
		Timestamp:  e.Timestamp.UnixNano(),
		Properties: props,
	})
}

func decodeEntity(keyPath string, data []byte) (*datastore.Entity, string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", keyPath, err)
	}
	key, err := datastore.ParseKey(keyPath)
	if err != nil {
		return nil, "", err
	}
	props, err := field.Decode(env.Properties)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", keyPath, err)
	}
	return &datastore.Entity{
		Key:        key,
		Properties: props,
		Timestamp:  time.Unix(0, env.Timestamp).UTC(),
	}, env.Kind, nil
}

// mapError turns Badger's optimistic-concurrency failure into
// datastore.ErrConflict.
func mapError(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", datastore.ErrConflict, err)
	}
	return err
}

// RunInTransaction runs fn inside one read-write Badger transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx datastore.Tx) error) error {
	var fnErr error
	err := s.db.Update(func(txn *badger.Txn) error {
		tx := &Tx{txn: txn}
		defer tx.finish()
		fnErr = fn(ctx, tx)
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("commit: %w", mapError(err))
	}
	return nil
}

// Get reads one committed entity.
func (s *Store) Get(ctx context.Context, key *datastore.Key) (*datastore.Entity, error) {
	var e *datastore.Entity
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = get(txn, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return e, nil
}

func get(txn *badger.Txn, key *datastore.Key) (*datastore.Entity, error) {
	keyPath := key.String()
	item, err := txn.Get([]byte(keyPath))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, datastore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	e, _, err := decodeEntity(keyPath, data)
	return e, err
}

// QueryDescendants scans the key prefix of ancestor and sorts the matches
// newest first, ties broken by key.
func (s *Store) QueryDescendants(ctx context.Context, ancestor *datastore.Key, kind string) ([]*datastore.Entity, error) {
	prefix := []byte(ancestor.String() + "/")
	entities := []*datastore.Entity{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			keyPath := string(item.KeyCopy(nil))
			err := item.Value(func(v []byte) error {
				e, k, err := decodeEntity(keyPath, v)
				if err != nil {
					return err
				}
				if kind == "" || k == kind {
					entities = append(entities, e)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query descendants: %w", err)
	}

	datastore.SortEntities(entities)
	return entities, nil
}

// Tx wraps a Badger read-write transaction.
type Tx struct {
	mu   sync.Mutex
	txn  *badger.Txn
	done bool
}

var _ datastore.Tx = (*Tx)(nil)

func (t *Tx) finish() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
}

// Active reports whether the transaction is still open.
func (t *Tx) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

// Get reads one entity, including writes pending in this transaction.
func (t *Tx) Get(ctx context.Context, key *datastore.Key) (*datastore.Entity, error) {
	if !t.Active() {
		return nil, datastore.ErrTxDone
	}
	e, err := get(t.txn, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, mapError(err))
	}
	return e, nil
}

// PutMulti sets every entity within the transaction.
func (t *Tx) PutMulti(ctx context.Context, entities []*datastore.Entity) error {
	if !t.Active() {
		return datastore.ErrTxDone
	}
	for _, e := range entities {
		if e == nil || e.Key == nil {
			return fmt.Errorf("put multi: entity without key")
		}
		data, err := encodeEntity(e)
		if err != nil {
			return fmt.Errorf("put %s: %w", e.Key, err)
		}
		if err := t.txn.Set([]byte(e.Key.String()), data); err != nil {
			return fmt.Errorf("put %s: %w", e.Key, mapError(err))
		}
	}
	return nil
}
