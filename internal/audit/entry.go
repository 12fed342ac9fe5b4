package audit

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/canon"
	"github.com/roach88/chronicle/internal/chain"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// Kind is the entity kind of audit records.
const Kind = "Audit"

// ErrTampered marks an entry whose snapshot or key disagrees with its
// metadata.
var ErrTampered = errors.New("audit record tampered")

// Property names of a stored audit entity.
const (
	propKind       = "kind"
	propDataHash   = "data_hash"
	propParentHash = "parent_hash"
	propAccount    = "account"
	propRequestID  = "request_id"
	propRevHash    = "rev_hash"
	propFields     = "fields"
)

// Entry is one audit record: a snapshot of a record's fields at one change
// event plus the chain metadata of that event. Entries are never modified
// after creation.
type Entry struct {
	Key        *datastore.Key
	SourceKind string
	DataHash   string
	ParentHash string
	Account    string
	RequestID  string
	RevHash    string
	Timestamp  time.Time

	// Fields is a deep copy of the record's fields, managed fields excluded.
	Fields field.Set
}

// Entity converts the entry to its stored form. The rev hash is stored only
// when storeRevHash is set; otherwise it is re-derived on read.
func (e *Entry) Entity(storeRevHash bool) *datastore.Entity {
	parent := field.Value(field.Null{})
	if e.ParentHash != "" {
		parent = field.String(e.ParentHash)
	}

	props := field.Set{
		propKind:       field.String(e.SourceKind),
		propDataHash:   field.String(e.DataHash),
		propParentHash: parent,
		propAccount:    field.String(e.Account),
		propRequestID:  field.String(e.RequestID),
		propFields:     field.Group(e.Fields.Clone()),
	}
	if storeRevHash {
		props[propRevHash] = field.String(e.RevHash)
	}

	return &datastore.Entity{Key: e.Key, Properties: props, Timestamp: e.Timestamp}
}

// EntryFromEntity parses a stored audit entity. revHash derives the rev
// hash when the entity does not carry one.
func EntryFromEntity(ent *datastore.Entity, revHash func(parent, account, dataHash string) string) (*Entry, error) {
	if ent.Key == nil || ent.Key.Kind() != Kind {
		return nil, fmt.Errorf("entity %s is not an audit record", ent.Key)
	}
	p := ent.Properties

	e := &Entry{
		Key:        ent.Key,
		SourceKind: stringProp(p, propKind),
		DataHash:   stringProp(p, propDataHash),
		ParentHash: stringProp(p, propParentHash),
		Account:    stringProp(p, propAccount),
		RequestID:  stringProp(p, propRequestID),
		RevHash:    stringProp(p, propRevHash),
		Timestamp:  ent.Timestamp,
		Fields:     field.Set{},
	}

	if g, ok := p[propFields].(field.Group); ok {
		e.Fields = field.Set(g).Clone()
	}
	if e.DataHash == "" || e.Account == "" {
		return nil, fmt.Errorf("audit record %s: missing data hash or account", ent.Key)
	}
	if e.RevHash == "" && revHash != nil {
		e.RevHash = revHash(e.ParentHash, e.Account, e.DataHash)
	}
	return e, nil
}

// Link returns the chain view of the entry.
func (e *Entry) Link() chain.Link {
	return chain.Link{
		RevHash:    e.RevHash,
		ParentHash: e.ParentHash,
		Account:    e.Account,
		DataHash:   e.DataHash,
	}
}

// Verify checks the entry against itself: the snapshot must hash to
// DataHash and the key must be the one BuildKey derives.
func (e *Entry) Verify(h *canon.Hasher) error {
	got, err := canon.Canonicalize(e.Fields)
	if err != nil {
		return err
	}
	if d := h.Digest(got); d != e.DataHash {
		return fmt.Errorf("%w: %s: snapshot hashes to %s, recorded %s", ErrTampered, e.Key, d, e.DataHash)
	}
	if want := KeyName(e.DataHash, e.ParentHash, e.Account); e.Key.Name() != want {
		return fmt.Errorf("%w: %s: key does not match its metadata", ErrTampered, e.Key)
	}
	return nil
}

// Value renders the entry as a field group, for display and snapshots.
// An empty parent hash renders as null.
func (e *Entry) Value() field.Group {
	parent := field.Value(field.Null{})
	if e.ParentHash != "" {
		parent = field.String(e.ParentHash)
	}
	return field.Group{
		"key":         field.String(e.Key.String()),
		"kind":        field.String(e.SourceKind),
		"data_hash":   field.String(e.DataHash),
		"parent_hash": parent,
		"rev_hash":    field.String(e.RevHash),
		"account":     field.String(e.Account),
		"request_id":  field.String(e.RequestID),
		"timestamp":   field.String(e.Timestamp.UTC().Format(time.RFC3339Nano)),
		"fields":      field.Group(e.Fields.Clone()),
	}
}
