package audit

import (
	"github.com/roach88/chronicle/internal/canon"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// KeySource is anything that names a record: a *datastore.Key or a Record.
type KeySource interface {
	Key() *datastore.Key
}

// Record is a live, audited record.
//
// Record types embed Tracked, which supplies the managed hash state and
// the unexported method that seals this interface. The kind label of a
// record is the kind of its key.
type Record interface {
	KeySource

	// Fields returns the record's typed field values. Managed fields, if
	// present, are ignored.
	Fields() field.Set

	// Account returns the identity authoring the pending change. It is
	// called on every write. Tracked's default returns a NotImplemented
	// error.
	Account() (string, error)

	tracked() *Tracked
}

var _ canon.Source = Record(nil)

// Revision is the committed hash state of a record.
type Revision struct {
	DataHash string
	RevHash  string
}

// Tracked holds the engine-managed hash state of a record. Embed it by
// value in record types. Callers can read the state but not assign it.
type Tracked struct {
	rev Revision
}

// DataHash returns the content hash at the last committed write, or "" if
// the record was never saved.
func (t *Tracked) DataHash() string { return t.rev.DataHash }

// RevHash returns the revision hash at the last committed write.
func (t *Tracked) RevHash() string { return t.rev.RevHash }

// Account is the default author capability. Record types override it.
func (t *Tracked) Account() (string, error) {
	return "", Errorf(CodeNotImplemented, nil, "record type does not implement Account")
}

func (t *Tracked) tracked() *Tracked { return t }

// State returns the committed hash state of rec.
func State(rec Record) Revision {
	return rec.tracked().rev
}

// Apply sets the committed hash state of rec. Only the write coordinator
// calls it, after its transaction commits.
func Apply(rec Record, rev Revision) {
	rec.tracked().rev = rev
}

// Restore loads the managed hash state stored on a live entity into rec and
// returns the remaining user fields for the caller to populate its own.
func Restore(rec Record, e *datastore.Entity) field.Set {
	Apply(rec, Revision{
		DataHash: stringProp(e.Properties, canon.DataHashField),
		RevHash:  stringProp(e.Properties, canon.RevHashField),
	})
	return e.Properties.Without(canon.ManagedFields...)
}

// LiveEntity builds the stored form of rec carrying rev.
func LiveEntity(rec Record, rev Revision, props field.Set) *datastore.Entity {
	out := props.Without(canon.ManagedFields...)
	out[canon.DataHashField] = field.String(rev.DataHash)
	if rev.RevHash != "" {
		out[canon.RevHashField] = field.String(rev.RevHash)
	}
	return &datastore.Entity{Key: rec.Key(), Properties: out}
}

type fieldSet field.Set

func (f fieldSet) Fields() field.Set { return field.Set(f) }

func sourceOf(s field.Set) canon.Source { return fieldSet(s) }

func stringProp(props field.Set, name string) string {
	if s, ok := props[name].(field.String); ok {
		return string(s)
	}
	return ""
}
