package audit

import (
	"context"
	"fmt"

	"github.com/roach88/chronicle/internal/canon"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// Document is a schema-less audited record: any field name, any value kind.
// The author is set explicitly with SetAccount.
//
// A Document is not safe for concurrent use.
type Document struct {
	Tracked

	key     *datastore.Key
	fields  field.Set
	account string
}

var _ Record = (*Document)(nil)

// NewDocument returns an empty, never-saved document.
func NewDocument(key *datastore.Key, account string) *Document {
	return &Document{key: key, fields: field.Set{}, account: account}
}

// Key returns the document key.
func (d *Document) Key() *datastore.Key { return d.key }

// Fields returns a copy of the document's fields.
func (d *Document) Fields() field.Set { return d.fields.Clone() }

// Get returns one field value.
func (d *Document) Get(name string) (field.Value, bool) {
	v, ok := d.fields[name]
	return v, ok
}

// Set assigns one field. Managed field names are rejected.
func (d *Document) Set(name string, v field.Value) error {
	if name == canon.DataHashField || name == canon.RevHashField {
		return Errorf(CodeInvalidArgument, d.key, "field %q is managed by the engine", name)
	}
	if name == "" {
		return Errorf(CodeInvalidArgument, d.key, "field name is required")
	}
	if v == nil {
		v = field.Null{}
	}
	d.fields[name] = v
	return nil
}

// SetAll assigns every field of s.
func (d *Document) SetAll(s field.Set) error {
	for _, name := range s.SortedKeys() {
		if err := d.Set(name, s[name]); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes one field.
func (d *Document) Delete(name string) {
	delete(d.fields, name)
}

// SetAccount sets the author of the next change.
func (d *Document) SetAccount(account string) {
	d.account = account
}

// Account returns the author set with SetAccount. An unset author is a
// PreconditionFailed error.
func (d *Document) Account() (string, error) {
	if d.account == "" {
		return "", Errorf(CodePreconditionFailed, d.key, "no account set on document")
	}
	return d.account, nil
}

// LoadDocument reads the committed document at key, including its hash
// state. ok is false if the document does not exist yet; then a new empty
// document is returned.
func LoadDocument(ctx context.Context, ds datastore.Datastore, key *datastore.Key, account string) (doc *Document, ok bool, err error) {
	doc = NewDocument(key, account)
	ent, err := ds.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return doc, false, nil
		}
		return nil, false, fmt.Errorf("load document: %w", err)
	}
	doc.fields = Restore(doc, ent)
	return doc, true, nil
}
