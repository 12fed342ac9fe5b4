package datastore

import (
	"cmp"
	"slices"
)

// SortEntities orders entities by timestamp descending then key ascending.
// Backends without native ordering use it for QueryDescendants.
func SortEntities(entities []*Entity) {
	slices.SortStableFunc(entities, func(a, b *Entity) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.String(), b.Key.String())
	})
}
