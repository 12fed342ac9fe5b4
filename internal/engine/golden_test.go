package engine

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/field"
	"github.com/roach88/chronicle/internal/testutil"
)

func TestHistoryGolden(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, createTestStore(t), "req-0001", "req-0002", "req-0003")

	foo := testutil.NewFoo("parentfoo", "a", 1)
	require.NoError(t, e.Save(ctx, foo))
	foo.Foo, foo.Bar = "b", 2
	require.NoError(t, e.Save(ctx, foo))
	// Reverting the content is a new change with the old data hash.
	foo.Foo, foo.Bar = "a", 1
	require.NoError(t, e.Save(ctx, foo))

	history, err := e.History(ctx, foo)
	require.NoError(t, err)

	list := make(field.List, len(history))
	for i, entry := range history {
		list[i] = entry.Value()
	}
	data, err := field.MarshalCanonical(list)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "history", data)
}
