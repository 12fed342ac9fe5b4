// Package schema validates record fields against CUE definitions.
//
// A schema directory holds one CUE package whose top-level "kind" struct
// maps entity kinds to constraints:
//
//	kind: FooModel: close({
//		foo: string
//		bar: int & >=0
//	})
//
// Fields of a kind are unified with its constraint and must be concrete.
// Kinds without an entry are free-form. Write close() to reject unknown
// field names.
package schema
