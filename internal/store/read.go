package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// Get reads one committed entity.
// Returns datastore.ErrNotFound if the key does not exist.
func (s *Store) Get(ctx context.Context, key *datastore.Key) (*datastore.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, properties, ts
		FROM entities
		WHERE key = ?
	`, key.String())

	e, err := scanEntity(row)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return e, nil
}

// QueryDescendants returns every strict descendant of ancestor with the
// given kind (all kinds when empty).
// Results are ordered: ORDER BY ts DESC, key ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryDescendants(ctx context.Context, ancestor *datastore.Key, kind string) ([]*datastore.Entity, error) {
	lo, hi := ancestor.DescendantRange()

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, properties, ts
		FROM entities
		WHERE key >= ? AND key < ?
		  AND (? = '' OR kind = ?)
		ORDER BY ts DESC, key COLLATE BINARY ASC
	`, lo, hi, kind, kind)
	if err != nil {
		return nil, fmt.Errorf("query descendants: %w", mapError(err))
	}
	defer rows.Close()

	entities := []*datastore.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descendants: %w", err)
	}

	return entities, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*datastore.Entity, error) {
	var (
		keyPath string
		props   string
		ts      int64
	)
	if err := row.Scan(&keyPath, &props, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, datastore.ErrNotFound
		}
		return nil, fmt.Errorf("scan entity: %w", err)
	}

	key, err := datastore.ParseKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	fields, err := field.Decode([]byte(props))
	if err != nil {
		return nil, fmt.Errorf("scan entity %s: %w", keyPath, err)
	}

	return &datastore.Entity{
		Key:        key,
		Properties: fields,
		Timestamp:  time.Unix(0, ts).UTC(),
	}, nil
}
