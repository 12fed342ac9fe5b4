// Package dstest holds behaviour tests shared by every datastore backend.
package dstest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// Factory returns a fresh, empty datastore. The test owns closing it.
type Factory func(t *testing.T) datastore.Datastore

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises the datastore contract against backends built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("PutAndGet", func(t *testing.T) { testPutAndGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("Upsert", func(t *testing.T) { testUpsert(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollbackOnError(t, newStore(t)) })
	t.Run("TxReadsOwnWrites", func(t *testing.T) { testTxReadsOwnWrites(t, newStore(t)) })
	t.Run("TxDoneAfterReturn", func(t *testing.T) { testTxDoneAfterReturn(t, newStore(t)) })
	t.Run("QueryDescendantsOrder", func(t *testing.T) { testQueryDescendantsOrder(t, newStore(t)) })
	t.Run("QueryDescendantsScope", func(t *testing.T) { testQueryDescendantsScope(t, newStore(t)) })
	t.Run("QueryDescendantsEmpty", func(t *testing.T) { testQueryDescendantsEmpty(t, newStore(t)) })
}

func put(t *testing.T, ds datastore.Datastore, entities ...*datastore.Entity) {
	t.Helper()
	err := ds.RunInTransaction(context.Background(), func(ctx context.Context, tx datastore.Tx) error {
		return tx.PutMulti(ctx, entities)
	})
	require.NoError(t, err)
}

func testPutAndGet(t *testing.T, ds datastore.Datastore) {
	ctx := context.Background()
	key := datastore.NewKey("Widget", "w1", nil)
	props := field.Set{
		"name":  field.String("gear"),
		"count": field.Int(3),
		"blob":  field.Bytes{0, 1, 2},
		"parts": field.List{field.Group{"sku": field.String("a")}},
	}

	put(t, ds, &datastore.Entity{Key: key, Properties: props, Timestamp: t0})

	got, err := ds.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, key.Equal(got.Key))
	assert.Equal(t, props, got.Properties)
	assert.True(t, t0.Equal(got.Timestamp))
}

func testGetMissing(t *testing.T, ds datastore.Datastore) {
	_, err := ds.Get(context.Background(), datastore.NewKey("Widget", "nope", nil))
	assert.ErrorIs(t, err, datastore.ErrNotFound)
}

func testUpsert(t *testing.T, ds datastore.Datastore) {
	key := datastore.NewKey("Widget", "w1", nil)
	put(t, ds, &datastore.Entity{Key: key, Properties: field.Set{"v": field.Int(1)}, Timestamp: t0})
	put(t, ds, &datastore.Entity{Key: key, Properties: field.Set{"v": field.Int(2)}, Timestamp: t0})

	got, err := ds.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, field.Set{"v": field.Int(2)}, got.Properties)
}

func testRollbackOnError(t *testing.T, ds datastore.Datastore) {
	ctx := context.Background()
	a := datastore.NewKey("Widget", "a", nil)
	b := datastore.NewKey("Gadget", "b", nil)
	boom := errors.New("boom")

	err := ds.RunInTransaction(ctx, func(ctx context.Context, tx datastore.Tx) error {
		if err := tx.PutMulti(ctx, []*datastore.Entity{
			{Key: a, Properties: field.Set{}, Timestamp: t0},
			{Key: b, Properties: field.Set{}, Timestamp: t0},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = ds.Get(ctx, a)
	assert.ErrorIs(t, err, datastore.ErrNotFound)
	_, err = ds.Get(ctx, b)
	assert.ErrorIs(t, err, datastore.ErrNotFound)
}

func testTxReadsOwnWrites(t *testing.T, ds datastore.Datastore) {
	key := datastore.NewKey("Widget", "w1", nil)
	err := ds.RunInTransaction(context.Background(), func(ctx context.Context, tx datastore.Tx) error {
		if err := tx.PutMulti(ctx, []*datastore.Entity{{Key: key, Properties: field.Set{"v": field.Int(1)}, Timestamp: t0}}); err != nil {
			return err
		}
		got, err := tx.Get(ctx, key)
		if err != nil {
			return err
		}
		assert.Equal(t, field.Set{"v": field.Int(1)}, got.Properties)
		return nil
	})
	require.NoError(t, err)
}

func testTxDoneAfterReturn(t *testing.T, ds datastore.Datastore) {
	var leaked datastore.Tx
	err := ds.RunInTransaction(context.Background(), func(ctx context.Context, tx datastore.Tx) error {
		assert.True(t, tx.Active())
		leaked = tx
		return nil
	})
	require.NoError(t, err)

	assert.False(t, leaked.Active())
	err = leaked.PutMulti(context.Background(), []*datastore.Entity{
		{Key: datastore.NewKey("Widget", "late", nil), Properties: field.Set{}, Timestamp: t0},
	})
	assert.ErrorIs(t, err, datastore.ErrTxDone)
}

func testQueryDescendantsOrder(t *testing.T, ds datastore.Datastore) {
	parent := datastore.NewKey("Widget", "w1", nil)
	older := datastore.NewKey("Audit", "b", parent)
	newer := datastore.NewKey("Audit", "c", parent)
	tie := datastore.NewKey("Audit", "a", parent)

	put(t, ds,
		&datastore.Entity{Key: parent, Properties: field.Set{}, Timestamp: t0},
		&datastore.Entity{Key: older, Properties: field.Set{}, Timestamp: t0},
		&datastore.Entity{Key: newer, Properties: field.Set{}, Timestamp: t0.Add(time.Minute)},
		&datastore.Entity{Key: tie, Properties: field.Set{}, Timestamp: t0},
	)

	got, err := ds.QueryDescendants(context.Background(), parent, "Audit")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, newer.Equal(got[0].Key), "newest first")
	assert.True(t, tie.Equal(got[1].Key), "ties broken by key")
	assert.True(t, older.Equal(got[2].Key))
}

func testQueryDescendantsScope(t *testing.T, ds datastore.Datastore) {
	w1 := datastore.NewKey("Widget", "w1", nil)
	w10 := datastore.NewKey("Widget", "w10", nil)

	put(t, ds,
		&datastore.Entity{Key: datastore.NewKey("Audit", "x", w1), Properties: field.Set{}, Timestamp: t0},
		&datastore.Entity{Key: datastore.NewKey("Tag", "prod", w1), Properties: field.Set{}, Timestamp: t0},
		&datastore.Entity{Key: datastore.NewKey("Audit", "y", w10), Properties: field.Set{}, Timestamp: t0},
		&datastore.Entity{Key: datastore.NewKey("Audit", "z", datastore.NewKey("Child", "c", w1)), Properties: field.Set{}, Timestamp: t0},
	)

	audits, err := ds.QueryDescendants(context.Background(), w1, "Audit")
	require.NoError(t, err)
	assert.Len(t, audits, 2, "direct and nested audits of w1, none of w10")

	all, err := ds.QueryDescendants(context.Background(), w1, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testQueryDescendantsEmpty(t *testing.T, ds datastore.Datastore) {
	got, err := ds.QueryDescendants(context.Background(), datastore.NewKey("Widget", "none", nil), "Audit")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
