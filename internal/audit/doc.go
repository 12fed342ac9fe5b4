// Package audit builds the immutable audit records that form a record's
// revision history, and defines the contract a record type implements to
// take part in it.
//
// An audit record is a child of the live record's key. Its name is
//
//	{v1}<parent rev hash>|<account>|<data hash>
//
// so re-deriving the same change yields the same key and a retried write
// lands on the same entity instead of creating a second one.
//
// History is returned newest first by timestamp. Under clock skew or
// concurrent writers that order can differ from the causal order of the
// chain; callers needing causality walk ParentHash links (see
// chain.CausalOrder).
package audit
