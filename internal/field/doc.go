// Package field provides the typed values a record's fields are made of.
//
// Records hand their fields to the hasher as a Set of typed Values rather
// than as a pre-serialized projection. This keeps structured and repeated
// sub-records (Group, List of Group) and binary data (Bytes) hashable from
// their live values.
//
// This package imports nothing internal.
package field
