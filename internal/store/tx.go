package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// Tx is an open SQLite transaction. It is only valid inside the function
// passed to Store.RunInTransaction.
type Tx struct {
	mu   sync.Mutex
	tx   *sql.Tx
	done bool
}

var _ datastore.Tx = (*Tx)(nil)

// RunInTransaction runs fn inside one SQLite transaction. The transaction
// commits if fn returns nil and rolls back otherwise.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx datastore.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapError(err))
	}
	defer sqlTx.Rollback() // No-op if committed

	tx := &Tx{tx: sqlTx}
	defer tx.finish()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.finish()
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapError(err))
	}
	return nil
}

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

// Get reads one entity as seen by this transaction.
func (t *Tx) Get(ctx context.Context, key *datastore.Key) (*datastore.Entity, error) {
	if !t.Active() {
		return nil, datastore.ErrTxDone
	}
	row := t.tx.QueryRowContext(ctx, `
		SELECT key, properties, ts
		FROM entities
		WHERE key = ?
	`, key.String())

	e, err := scanEntity(row)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, mapError(err))
	}
	return e, nil
}

// PutMulti upserts every entity. Kinds may be mixed freely.
func (t *Tx) PutMulti(ctx context.Context, entities []*datastore.Entity) error {
	if !t.Active() {
		return datastore.ErrTxDone
	}

	for _, e := range entities {
		if e == nil || e.Key == nil {
			return fmt.Errorf("put multi: entity without key")
		}
		props, err := field.Encode(e.Properties)
		if err != nil {
			return fmt.Errorf("put %s: %w", e.Key, err)
		}

		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO entities (key, parent, kind, properties, ts)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				parent = excluded.parent,
				kind = excluded.kind,
				properties = excluded.properties,
				ts = excluded.ts
		`,
			e.Key.String(),
			e.Key.Parent().String(),
			e.Key.Kind(),
			string(props),
			e.Timestamp.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("put %s: %w", e.Key, mapError(err))
		}
	}
	return nil
}
