// Package chain computes content hashes and revision hashes and checks that a
// sequence of revisions forms an unbroken chain.
//
// Everything here is pure: no I/O, no clock, no shared state.
package chain

import (
	"fmt"

	"github.com/roach88/chronicle/internal/canon"
)

// Chain derives data and revision hashes with one Hasher.
type Chain struct {
	hasher *canon.Hasher
}

// New returns a Chain using h. A nil h selects canon.Default().
func New(h *canon.Hasher) *Chain {
	if h == nil {
		h = canon.Default()
	}
	return &Chain{hasher: h}
}

// Hasher returns the underlying hasher.
func (c *Chain) Hasher() *canon.Hasher {
	return c.hasher
}

// Compute hashes src and reports whether the result differs from
// previousDataHash. An empty previousDataHash means the record was never
// saved, so any content counts as a change.
func (c *Chain) Compute(src canon.Source, previousDataHash string) (dataHash string, changed bool, err error) {
	dataHash, err = c.hasher.Hash(src)
	if err != nil {
		return "", false, fmt.Errorf("compute data hash: %w", err)
	}
	changed = previousDataHash == "" || dataHash != previousDataHash
	return dataHash, changed, nil
}

// NextRevHash identifies one change event:
// Digest(parent + "|" + account + "|" + dataHash).
// parentRevHash is empty for the first revision.
func (c *Chain) NextRevHash(parentRevHash, account, dataHash string) string {
	return c.hasher.Digest(parentRevHash + "|" + account + "|" + dataHash)
}
