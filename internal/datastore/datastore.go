// Package datastore defines the entity store contract the audit engine
// writes through: hierarchical keys, atomic multi-entity transactions and
// strongly consistent descendant queries.
//
// Implementations live in internal/store (SQLite) and internal/kvstore
// (Badger).
package datastore

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/chronicle/internal/field"
)

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("entity not found")

	// ErrTxDone is returned when a transaction is used after it finished.
	ErrTxDone = errors.New("transaction already finished")

	// ErrConflict reports write contention. It is surfaced unchanged and
	// never retried by this module.
	ErrConflict = errors.New("transaction conflict")
)

// Entity is one stored row: a key, its properties and a sort timestamp.
type Entity struct {
	Key        *Key
	Properties field.Set
	Timestamp  time.Time
}

// Datastore is the external store.
type Datastore interface {
	// RunInTransaction runs fn in one all-or-nothing transaction.
	// An error from fn rolls back every write fn made.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Get reads one committed entity.
	Get(ctx context.Context, key *Key) (*Entity, error)

	// QueryDescendants returns every strict descendant of ancestor with the
	// given kind, newest timestamp first, ties broken by key ascending.
	// An empty kind matches all kinds. The query is strongly consistent.
	QueryDescendants(ctx context.Context, ancestor *Key, kind string) ([]*Entity, error)

	Close() error
}

// Tx is an open transaction.
type Tx interface {
	Get(ctx context.Context, key *Key) (*Entity, error)

	// PutMulti writes entities of any kinds. Existing keys are replaced.
	PutMulti(ctx context.Context, entities []*Entity) error

	// Active reports whether the transaction can still be used.
	Active() bool
}
