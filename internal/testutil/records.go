package testutil

import (
	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// Foo is a fixed-shape record with a string and an integer field.
type Foo struct {
	audit.Tracked

	ID     string
	Foo    string
	Bar    int64
	Author string
}

// NewFoo returns a Foo authored by "foo-account".
func NewFoo(id, foo string, bar int64) *Foo {
	return &Foo{ID: id, Foo: foo, Bar: bar, Author: "foo-account"}
}

func (f *Foo) Key() *datastore.Key { return datastore.NewKey("FooModel", f.ID, nil) }

func (f *Foo) Fields() field.Set {
	return field.Set{"foo": field.String(f.Foo), "bar": field.Int(f.Bar)}
}

func (f *Foo) Account() (string, error) { return f.Author, nil }

// Part is one element of Assembly's repeated structured field.
type Part struct {
	Foo string
	Bar int64
}

// Assembly has a repeated structured field.
type Assembly struct {
	audit.Tracked

	ID    string
	Foo   string
	Bar   int64
	Parts []Part
}

func (a *Assembly) Key() *datastore.Key { return datastore.NewKey("FooStructured", a.ID, nil) }

func (a *Assembly) Fields() field.Set {
	parts := make(field.List, len(a.Parts))
	for i, p := range a.Parts {
		parts[i] = field.Group{"foo": field.String(p.Foo), "bar": field.Int(p.Bar)}
	}
	return field.Set{"foo": field.String(a.Foo), "bar": field.Int(a.Bar), "baz": parts}
}

func (a *Assembly) Account() (string, error) { return "foo-structured-account", nil }

// Blob carries binary content.
type Blob struct {
	audit.Tracked

	ID   string
	Data []byte
}

func (b *Blob) Key() *datastore.Key { return datastore.NewKey("Blob", b.ID, nil) }

func (b *Blob) Fields() field.Set { return field.Set{"data": field.Bytes(b.Data)} }

func (b *Blob) Account() (string, error) { return "blob-account", nil }

// Anonymous does not provide an author.
type Anonymous struct {
	audit.Tracked

	ID string
}

func (a *Anonymous) Key() *datastore.Key { return datastore.NewKey("Anonymous", a.ID, nil) }

func (a *Anonymous) Fields() field.Set { return field.Set{"id": field.String(a.ID)} }
