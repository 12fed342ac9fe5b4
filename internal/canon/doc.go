// Package canon turns a record's field set into a stable string and a short
// content digest.
//
// The canonical form is
//
//	{v1}name=value|name=value|...
//
// with the managed fields (data_hash, rev_hash) excluded and names sorted
// byte-wise. The version tag lets a future format coexist with this one
// without hash collisions.
//
// Digests are truncated to Config.Length characters. Truncation trades
// collision resistance for compact keys and indexes. The length is
// configuration, not a constant: stores written with 6-character hashes
// stay readable by configuring Length 6.
package canon
