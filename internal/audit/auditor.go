package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/roach88/chronicle/internal/canon"
	"github.com/roach88/chronicle/internal/chain"
	"github.com/roach88/chronicle/internal/datastore"
)

// MaxRequestIDLength bounds the stored request id.
const MaxRequestIDLength = 16

// Options configures an Auditor.
type Options struct {
	// RequestIDLength truncates request ids. Zero or values above
	// MaxRequestIDLength select MaxRequestIDLength.
	RequestIDLength int

	// StoreRevHash persists each entry's rev hash as a property. When unset
	// the rev hash is re-derived from the other metadata on read.
	StoreRevHash bool

	// Now supplies timestamps for entries created without one.
	// Defaults to time.Now.
	Now func() time.Time
}

// Auditor builds audit entries and reads them back.
type Auditor struct {
	chain        *chain.Chain
	requestIDLen int
	storeRevHash bool
	now          func() time.Time
}

// NewAuditor returns an Auditor deriving hashes with c.
func NewAuditor(c *chain.Chain, opts Options) *Auditor {
	if c == nil {
		c = chain.New(nil)
	}
	n := opts.RequestIDLength
	if n <= 0 || n > MaxRequestIDLength {
		n = MaxRequestIDLength
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Auditor{chain: c, requestIDLen: n, storeRevHash: opts.StoreRevHash, now: now}
}

// Chain returns the chain the auditor derives hashes with.
func (a *Auditor) Chain() *chain.Chain { return a.chain }

// StoresRevHash reports whether entries persist their rev hash.
func (a *Auditor) StoresRevHash() bool { return a.storeRevHash }

// CreateAudit snapshots rec into a new entry for the change from parentHash
// to dataHash authored by account.
//
// dataHash must be the freshly computed hash of rec's current fields;
// an empty or stale value is a PreconditionFailed error. An empty account is
// an InvalidArgument error. requestID is truncated, never rejected. A zero
// ts selects the current UTC time.
func (a *Auditor) CreateAudit(rec Record, dataHash, parentHash, account, requestID string, ts time.Time) (*Entry, error) {
	key := rec.Key()
	if dataHash == "" {
		return nil, Errorf(CodePreconditionFailed, key, "data hash must be computed before creating an audit")
	}

	fields := rec.Fields()
	current, _, err := a.chain.Compute(sourceOf(fields), "")
	if err != nil {
		return nil, fmt.Errorf("create audit: %w", err)
	}
	if current != dataHash {
		return nil, Errorf(CodePreconditionFailed, key, "data hash %s is stale, fields hash to %s", dataHash, current)
	}

	auditKey, err := BuildKey(key, dataHash, parentHash, account)
	if err != nil {
		return nil, err
	}

	if ts.IsZero() {
		ts = a.now()
	}

	return &Entry{
		Key:        auditKey,
		SourceKind: key.Kind(),
		DataHash:   dataHash,
		ParentHash: parentHash,
		Account:    account,
		RequestID:  a.truncate(requestID),
		RevHash:    a.chain.NextRevHash(parentHash, account, dataHash),
		Timestamp:  ts.UTC(),
		Fields:     fields.Without(canon.ManagedFields...),
	}, nil
}

func (a *Auditor) truncate(id string) string {
	id = strings.ToValidUTF8(id, "")
	if utf8.RuneCountInString(id) <= a.requestIDLen {
		return id
	}
	runes := []rune(id)
	return string(runes[:a.requestIDLen])
}

// Entity converts e to its stored form under this auditor's policy.
func (a *Auditor) Entity(e *Entry) *datastore.Entity {
	return e.Entity(a.storeRevHash)
}

// Decode parses a stored audit entity, deriving the rev hash if absent.
func (a *Auditor) Decode(ent *datastore.Entity) (*Entry, error) {
	return EntryFromEntity(ent, a.chain.NextRevHash)
}

// History returns every audit entry of the record named by ks, newest
// first by timestamp. The query is strongly consistent.
func (a *Auditor) History(ctx context.Context, ds datastore.Datastore, ks KeySource) ([]*Entry, error) {
	key := ks.Key()
	if key == nil {
		return nil, Errorf(CodeInvalidArgument, nil, "history needs a record key")
	}

	ents, err := ds.QueryDescendants(ctx, key, Kind)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	entries := make([]*Entry, 0, len(ents))
	for _, ent := range ents {
		// Audits of nested child records are not part of this record's chain.
		if !ent.Key.Parent().Equal(key) {
			continue
		}
		e, err := a.Decode(ent)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
