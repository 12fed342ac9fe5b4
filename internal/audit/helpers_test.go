package audit

import (
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

type fooModel struct {
	Tracked
	key *datastore.Key
	Foo string
	Bar int64
}

func newFoo(name, foo string, bar int64) *fooModel {
	return &fooModel{key: datastore.NewKey("FooModel", name, nil), Foo: foo, Bar: bar}
}

func (m *fooModel) Key() *datastore.Key { return m.key }

func (m *fooModel) Fields() field.Set {
	return field.Set{"foo": field.String(m.Foo), "bar": field.Int(m.Bar)}
}

func (m *fooModel) Account() (string, error) { return "foo-account", nil }

// anonymous has no Account override.
type anonymous struct {
	Tracked
}

func (anonymous) Key() *datastore.Key { return datastore.NewKey("Anon", "a", nil) }
func (anonymous) Fields() field.Set   { return field.Set{} }
