// Package tag maintains named pointers from a record to one of its content
// hashes. A pointer's key is (record key, label), so each label has exactly
// one slot per record and re-tagging is a single keyed overwrite.
// Concurrent tags of the same label are last-write-wins.
package tag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// Kind is the entity kind of tag pointers.
const Kind = "Tag"

const (
	propDataHash = "data_hash"
)

// Pointer is one tag: a label on a record pointing at a data hash.
type Pointer struct {
	Key       *datastore.Key
	DataHash  string
	Timestamp time.Time
}

// Label returns the tag label.
func (p *Pointer) Label() string { return p.Key.Name() }

// BuildKey returns the key of label on the record named by ks.
func BuildKey(ks audit.KeySource, label string) (*datastore.Key, error) {
	recordKey := ks.Key()
	if recordKey == nil {
		return nil, audit.Errorf(audit.CodeInvalidArgument, nil, "tag needs a record key")
	}
	if label == "" {
		return nil, audit.Errorf(audit.CodeInvalidArgument, recordKey, "tag label is required")
	}
	return datastore.NewKey(Kind, label, recordKey), nil
}

// New builds a pointer without writing it. A zero ts selects the current
// UTC time.
func New(ks audit.KeySource, label, dataHash string, ts time.Time) (*Pointer, error) {
	key, err := BuildKey(ks, label)
	if err != nil {
		return nil, err
	}
	if dataHash == "" {
		return nil, audit.Errorf(audit.CodeInvalidArgument, key, "tag needs a data hash")
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Pointer{Key: key, DataHash: dataHash, Timestamp: ts.UTC()}, nil
}

// FromRecord builds a pointer at rec's committed data hash. A record that was
// never saved has no hash to point at and fails with PreconditionFailed.
func FromRecord(rec audit.Record, label string, ts time.Time) (*Pointer, error) {
	dataHash := audit.State(rec).DataHash
	if dataHash == "" {
		return nil, audit.Errorf(audit.CodePreconditionFailed, rec.Key(), "record has no committed data hash to tag")
	}
	return New(rec, label, dataHash, ts)
}

// Entity converts the pointer to its stored form.
func (p *Pointer) Entity() *datastore.Entity {
	return &datastore.Entity{
		Key:        p.Key,
		Properties: field.Set{propDataHash: field.String(p.DataHash)},
		Timestamp:  p.Timestamp,
	}
}

// FromEntity parses a stored tag entity.
func FromEntity(ent *datastore.Entity) (*Pointer, error) {
	if ent.Key == nil || ent.Key.Kind() != Kind {
		return nil, fmt.Errorf("entity %s is not a tag", ent.Key)
	}
	s, ok := ent.Properties[propDataHash].(field.String)
	if !ok || s == "" {
		return nil, fmt.Errorf("tag %s: missing data hash", ent.Key)
	}
	return &Pointer{Key: ent.Key, DataHash: string(s), Timestamp: ent.Timestamp}, nil
}

// Get reads one pointer. ok is false if the label is not set.
func Get(ctx context.Context, ds datastore.Datastore, ks audit.KeySource, label string) (p *Pointer, ok bool, err error) {
	key, err := BuildKey(ks, label)
	if err != nil {
		return nil, false, err
	}
	ent, err := ds.Get(ctx, key)
	if errors.Is(err, datastore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get tag: %w", err)
	}
	p, err = FromEntity(ent)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// List returns every tag of the record named by ks, newest first.
func List(ctx context.Context, ds datastore.Datastore, ks audit.KeySource) ([]*Pointer, error) {
	recordKey := ks.Key()
	ents, err := ds.QueryDescendants(ctx, recordKey, Kind)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	out := make([]*Pointer, 0, len(ents))
	for _, ent := range ents {
		if !ent.Key.Parent().Equal(recordKey) {
			continue
		}
		p, err := FromEntity(ent)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
