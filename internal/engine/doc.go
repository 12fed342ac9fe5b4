// Package engine is the write coordinator: every save of an audited record
// passes through it.
//
// A save runs one transaction. For each record the engine
//
//  1. resolves the author (Record.Account),
//  2. hashes the record's fields and compares with its committed data hash,
//  3. builds an audit entry if the content changed,
//
// and then issues a single PutMulti holding every live record plus every
// audit entry. Unchanged content is a blind put: the live record is still
// written but no audit entry is produced and the hashes stay as they were.
//
// Each record's progress is an explicit attempt value:
//
//	Idle -> HashComputed -> AuditDecided -> Committed | Skipped
//	                                  \---> Failed
//
// Hash state is applied to the in-memory record only once the transaction
// commits. On any failure every attempt of the transaction is discarded, so
// a retry recomputes from the last committed state.
//
// The engine never retries. Store conflicts (datastore.ErrConflict) reach
// the caller unchanged. Two writers extending the same revision
// concurrently is a lost update the engine does not resolve.
package engine
