package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/chain"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
	"github.com/roach88/chronicle/internal/store"
)

const (
	dataHashA = "1d670f75" // {v1}bar=1|foo=a
	revHashA  = "a0c39d3c" // |foo-account|1d670f75
	dataHashB = "e23e2774" // {v1}bar=2|foo=b
	revHashB  = "f0b78330" // a0c39d3c|foo-account|e23e2774
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func put(t *testing.T, ds datastore.Datastore, entities ...*datastore.Entity) {
	t.Helper()
	err := ds.RunInTransaction(context.Background(), func(ctx context.Context, tx datastore.Tx) error {
		return tx.PutMulti(ctx, entities)
	})
	require.NoError(t, err)
}

func TestBuildKey(t *testing.T) {
	recordKey := datastore.NewKey("FooModel", "parentfoo", nil)

	k, err := BuildKey(recordKey, dataHashA, "", "foo-account")
	require.NoError(t, err)
	assert.Equal(t, Kind, k.Kind())
	assert.Equal(t, "{v1}|foo-account|1d670f75", k.Name())
	assert.True(t, recordKey.Equal(k.Parent()))

	again, err := BuildKey(recordKey, dataHashA, "", "foo-account")
	require.NoError(t, err)
	assert.True(t, k.Equal(again), "identical inputs give identical keys")

	withParent, err := BuildKey(recordKey, dataHashB, revHashA, "foo-account")
	require.NoError(t, err)
	assert.Equal(t, "{v1}a0c39d3c|foo-account|e23e2774", withParent.Name())
}

func TestBuildKeyRequiresAccount(t *testing.T) {
	_, err := BuildKey(datastore.NewKey("FooModel", "x", nil), dataHashA, "", "")
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
}

func TestBuildKeyRequiresRecordKey(t *testing.T) {
	_, err := BuildKey(nil, dataHashA, "", "foo-account")
	assert.True(t, IsInvalidArgument(err))
}

func TestCreateAudit(t *testing.T) {
	a := NewAuditor(nil, Options{})
	rec := newFoo("parentfoo", "a", 1)

	e, err := a.CreateAudit(rec, dataHashA, "", "foo-account", "0123456789abcdefghijk", t0)
	require.NoError(t, err)

	assert.Equal(t, "FooModel", e.SourceKind)
	assert.Equal(t, dataHashA, e.DataHash)
	assert.Equal(t, "", e.ParentHash)
	assert.Equal(t, "foo-account", e.Account)
	assert.Equal(t, "0123456789abcdef", e.RequestID)
	assert.Equal(t, revHashA, e.RevHash)
	assert.Equal(t, t0, e.Timestamp)
	assert.Equal(t, field.Set{"foo": field.String("a"), "bar": field.Int(1)}, e.Fields)
	assert.True(t, rec.Key().Equal(e.Key.Parent()))
}

func TestCreateAuditDefaultsTimestamp(t *testing.T) {
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.FixedZone("x", 3600))
	a := NewAuditor(nil, Options{Now: func() time.Time { return fixed }})

	e, err := a.CreateAudit(newFoo("f", "a", 1), dataHashA, "", "foo-account", "", time.Time{})
	require.NoError(t, err)
	assert.True(t, fixed.Equal(e.Timestamp))
	assert.Equal(t, time.UTC, e.Timestamp.Location())
}

func TestCreateAuditRequestIDLength(t *testing.T) {
	a := NewAuditor(nil, Options{RequestIDLength: 4})
	e, err := a.CreateAudit(newFoo("f", "a", 1), dataHashA, "", "foo-account", "abcdefgh", t0)
	require.NoError(t, err)
	assert.Equal(t, "abcd", e.RequestID)

	capped := NewAuditor(nil, Options{RequestIDLength: 64})
	e, err = capped.CreateAudit(newFoo("f", "a", 1), dataHashA, "", "foo-account", "0123456789abcdefghijk", t0)
	require.NoError(t, err)
	assert.Len(t, e.RequestID, MaxRequestIDLength)
}

func TestCreateAuditRequestIDDropsInvalidUTF8(t *testing.T) {
	a := NewAuditor(nil, Options{})
	e, err := a.CreateAudit(newFoo("f", "a", 1), dataHashA, "", "foo-account", "req\xff-1", t0)
	require.NoError(t, err)
	assert.Equal(t, "req-1", e.RequestID)
}

func TestCreateAuditPreconditions(t *testing.T) {
	a := NewAuditor(nil, Options{})
	rec := newFoo("f", "a", 1)

	_, err := a.CreateAudit(rec, "", "", "foo-account", "", t0)
	assert.True(t, IsPreconditionFailed(err), "absent data hash")

	_, err = a.CreateAudit(rec, dataHashB, "", "foo-account", "", t0)
	assert.True(t, IsPreconditionFailed(err), "stale data hash")

	_, err = a.CreateAudit(rec, dataHashA, "", "", "", t0)
	assert.True(t, IsInvalidArgument(err), "empty account")
}

func TestCreateAuditSnapshotsStructuredFields(t *testing.T) {
	doc := NewDocument(datastore.NewKey("FooStructured", "parentfoo", nil), "foo-structured-account")
	parts := field.List{
		field.Group{"foo": field.String("foomodela"), "bar": field.Int(11)},
		field.Group{"foo": field.String("foomodelb"), "bar": field.Int(22)},
	}
	require.NoError(t, doc.Set("baz", parts))

	a := NewAuditor(nil, Options{})
	dataHash, _, err := a.Chain().Compute(doc, "")
	require.NoError(t, err)

	e, err := a.CreateAudit(doc, dataHash, "", "foo-structured-account", "", t0)
	require.NoError(t, err)
	assert.Equal(t, parts, e.Fields["baz"])

	// Mutating the record afterwards leaves the snapshot alone.
	parts[0].(field.Group)["bar"] = field.Int(99999)
	require.NoError(t, doc.Set("baz", parts))
	assert.Equal(t, field.Int(11), e.Fields["baz"].(field.List)[0].(field.Group)["bar"])
}

func TestEntryEntityRoundTrip(t *testing.T) {
	for _, storeRev := range []bool{false, true} {
		a := NewAuditor(nil, Options{StoreRevHash: storeRev})
		e, err := a.CreateAudit(newFoo("f", "a", 1), dataHashA, "", "foo-account", "req-1", t0)
		require.NoError(t, err)

		ent := a.Entity(e)
		_, hasRev := ent.Properties["rev_hash"]
		assert.Equal(t, storeRev, hasRev)
		assert.Equal(t, field.Null{}, ent.Properties["parent_hash"])

		back, err := a.Decode(ent)
		require.NoError(t, err)
		assert.Equal(t, e, back)
	}
}

func TestEntryFromEntityRejectsOtherKinds(t *testing.T) {
	_, err := EntryFromEntity(&datastore.Entity{Key: datastore.NewKey("Tag", "x", nil)}, nil)
	require.Error(t, err)
}

func TestEntryVerify(t *testing.T) {
	a := NewAuditor(nil, Options{})
	e, err := a.CreateAudit(newFoo("f", "a", 1), dataHashA, "", "foo-account", "", t0)
	require.NoError(t, err)
	require.NoError(t, e.Verify(a.Chain().Hasher()))

	forged := *e
	forged.Fields = field.Set{"foo": field.String("z"), "bar": field.Int(1)}
	assert.ErrorIs(t, forged.Verify(a.Chain().Hasher()), ErrTampered)

	moved := *e
	moved.Account = "someone-else"
	assert.ErrorIs(t, moved.Verify(a.Chain().Hasher()), ErrTampered)
}

func TestHistoryNewestFirst(t *testing.T) {
	ds := createTestStore(t)
	a := NewAuditor(nil, Options{})
	rec := newFoo("parentfoo", "a", 1)

	first, err := a.CreateAudit(rec, dataHashA, "", "foo-account", "", t0)
	require.NoError(t, err)

	rec.Foo, rec.Bar = "b", 2
	second, err := a.CreateAudit(rec, dataHashB, first.RevHash, "foo-account", "", t0.Add(time.Second))
	require.NoError(t, err)

	put(t, ds, a.Entity(first), a.Entity(second))

	history, err := a.History(context.Background(), ds, rec)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, field.String("b"), history[0].Fields["foo"])
	assert.Equal(t, field.Int(2), history[0].Fields["bar"])
	assert.Equal(t, dataHashB, history[0].DataHash)
	assert.Equal(t, revHashA, history[0].ParentHash)
	assert.Equal(t, revHashB, history[0].RevHash)
	assert.Equal(t, field.String("a"), history[1].Fields["foo"])
	assert.Equal(t, revHashA, history[1].RevHash)
	assert.True(t, history[0].Timestamp.After(history[1].Timestamp))

	require.NoError(t, chain.New(nil).Verify([]chain.Link{history[0].Link(), history[1].Link()}))
}

func TestHistoryByKeyAndScope(t *testing.T) {
	ds := createTestStore(t)
	a := NewAuditor(nil, Options{})
	rec := newFoo("parentfoo", "a", 1)
	other := newFoo("parentfoo2", "a", 1)

	mine, err := a.CreateAudit(rec, dataHashA, "", "foo-account", "", t0)
	require.NoError(t, err)
	theirs, err := a.CreateAudit(other, dataHashA, "", "foo-account", "", t0)
	require.NoError(t, err)
	tag := &datastore.Entity{Key: datastore.NewKey("Tag", "prod", rec.Key()), Properties: field.Set{}, Timestamp: t0}

	put(t, ds, a.Entity(mine), a.Entity(theirs), tag)

	history, err := a.History(context.Background(), ds, rec.Key())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, mine.Key.Equal(history[0].Key))
}

func TestHistoryEmpty(t *testing.T) {
	history, err := NewAuditor(nil, Options{}).History(context.Background(), createTestStore(t), newFoo("none", "", 0))
	require.NoError(t, err)
	assert.Empty(t, history)
}
