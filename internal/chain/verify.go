package chain

import (
	"cmp"
	"fmt"
	"slices"
)

// Link is the chain-relevant part of one revision.
type Link struct {
	RevHash    string
	ParentHash string
	Account    string
	DataHash   string
}

// BrokenLinkError reports the first link that fails verification.
type BrokenLinkError struct {
	Index   int
	RevHash string
	Reason  string
}

func (e *BrokenLinkError) Error() string {
	return fmt.Sprintf("broken chain at link %d (%s): %s", e.Index, e.RevHash, e.Reason)
}

// Verify re-derives every link's rev hash and checks that each non-empty
// parent hash names another link in the set. Order of links is irrelevant.
// Several links may have an empty parent: a record written again from a
// fresh, never-loaded instance starts a new root.
func (c *Chain) Verify(links []Link) error {
	known := make(map[string]int, len(links))
	for i, l := range links {
		if prev, dup := known[l.RevHash]; dup {
			return &BrokenLinkError{Index: i, RevHash: l.RevHash,
				Reason: fmt.Sprintf("duplicate of link %d", prev)}
		}
		known[l.RevHash] = i
	}

	for i, l := range links {
		if want := c.NextRevHash(l.ParentHash, l.Account, l.DataHash); want != l.RevHash {
			return &BrokenLinkError{Index: i, RevHash: l.RevHash,
				Reason: fmt.Sprintf("rev hash mismatch, derived %s", want)}
		}
		if l.ParentHash == "" {
			continue
		}
		if _, ok := known[l.ParentHash]; !ok {
			return &BrokenLinkError{Index: i, RevHash: l.RevHash,
				Reason: fmt.Sprintf("parent %s not found", l.ParentHash)}
		}
	}
	return nil
}

// CausalOrder orders links from the newest head back to the root by
// following parent hashes. The head is the link no other link names as its
// parent. When concurrent writers extended the same parent there are several
// heads; the walk then starts from the one sorting first by rev hash and the
// remaining branches are appended in the same manner.
func CausalOrder(links []Link) []Link {
	byRev := make(map[string]Link, len(links))
	children := make(map[string]int, len(links))
	for _, l := range links {
		byRev[l.RevHash] = l
		if l.ParentHash != "" {
			children[l.ParentHash]++
		}
	}

	var heads []Link
	for _, l := range links {
		if children[l.RevHash] == 0 {
			heads = append(heads, l)
		}
	}
	slices.SortFunc(heads, func(a, b Link) int { return cmp.Compare(a.RevHash, b.RevHash) })

	out := make([]Link, 0, len(links))
	seen := make(map[string]bool, len(links))
	for _, h := range heads {
		for cur, ok := h, true; ok && !seen[cur.RevHash]; cur, ok = byRev[cur.ParentHash] {
			seen[cur.RevHash] = true
			out = append(out, cur)
		}
	}
	return out
}
