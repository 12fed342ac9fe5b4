package kvstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/datastore/dstest"
	"github.com/roach88/chronicle/internal/field"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDatastoreContract(t *testing.T) {
	dstest.Run(t, func(t *testing.T) datastore.Datastore {
		return createTestStore(t)
	})
}

func TestOpen_RequiresDir(t *testing.T) {
	_, err := Open(Options{})
	require.Error(t, err)
}

func TestOpen_PersistsOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := datastore.NewKey("Widget", "w1", nil)

	s1, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	err = s1.RunInTransaction(ctx, func(ctx context.Context, tx datastore.Tx) error {
		return tx.PutMulti(ctx, []*datastore.Entity{{
			Key:        key,
			Properties: field.Set{"v": field.Int(7)},
			Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}})
	})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, field.Set{"v": field.Int(7)}, got.Properties)
}

func TestRunInTransaction_Conflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	key := datastore.NewKey("Widget", "w1", nil)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.RunInTransaction(ctx, func(ctx context.Context, tx datastore.Tx) error {
		_, err := tx.Get(ctx, key)
		require.ErrorIs(t, err, datastore.ErrNotFound)

		// A concurrent writer commits the same key first.
		inner := s.RunInTransaction(ctx, func(ctx context.Context, tx datastore.Tx) error {
			return tx.PutMulti(ctx, []*datastore.Entity{{Key: key, Timestamp: ts}})
		})
		require.NoError(t, inner)

		return tx.PutMulti(ctx, []*datastore.Entity{{Key: key, Timestamp: ts}})
	})
	assert.ErrorIs(t, err, datastore.ErrConflict)
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(badger.ErrConflict), datastore.ErrConflict)
	assert.ErrorIs(t, mapError(fmt.Errorf("wrapped: %w", badger.ErrConflict)), datastore.ErrConflict)
	assert.NotErrorIs(t, mapError(badger.ErrKeyNotFound), datastore.ErrConflict)
}

func TestLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))

	l.Infof("opened %s\n", "db")
	assert.Empty(t, buf.String(), "info is demoted below warn")

	l.Warningf("compaction slow: %d", 3)
	assert.Contains(t, buf.String(), "compaction slow: 3")
	assert.Contains(t, buf.String(), "component=badger")
}
