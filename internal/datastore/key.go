package datastore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Key identifies an entity. Keys are hierarchical: a key with a parent is
// owned by that parent and is returned by descendant queries on it.
// Keys are immutable values.
type Key struct {
	parent *Key
	kind   string
	name   string
}

// NewKey builds a key of the given kind and name under parent (nil for a
// root key).
func NewKey(kind, name string, parent *Key) *Key {
	return &Key{parent: parent, kind: kind, name: name}
}

// Kind returns the key's kind label.
func (k *Key) Kind() string { return k.kind }

// Name returns the key's string identifier.
func (k *Key) Name() string { return k.name }

// Parent returns the parent key or nil for a root key.
func (k *Key) Parent() *Key { return k.parent }

// Key returns k itself, so a *Key can be passed wherever a record or key is
// accepted.
func (k *Key) Key() *Key { return k }

// Root returns the top-most ancestor of k.
func (k *Key) Root() *Key {
	for k.parent != nil {
		k = k.parent
	}
	return k
}

// String renders the canonical path Kind:name/Kind:name with each segment
// path-escaped. The rendering is unique per key and sorts every descendant
// of a key inside [k+"/", k+"0").
func (k *Key) String() string {
	if k == nil {
		return ""
	}
	var segs []string
	for cur := k; cur != nil; cur = cur.parent {
		segs = append(segs, escapeSegment(cur.kind)+":"+escapeSegment(cur.name))
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, "/")
}

// escapeSegment path-escapes s. PathEscape leaves ':' alone, which would be
// ambiguous with the kind separator.
func escapeSegment(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), ":", "%3A")
}

// Equal reports whether k and o name the same entity.
func (k *Key) Equal(o *Key) bool {
	for k != nil && o != nil {
		if k.kind != o.kind || k.name != o.name {
			return false
		}
		k, o = k.parent, o.parent
	}
	return k == nil && o == nil
}

// IsAncestorOf reports whether k is a strict ancestor of o.
func (k *Key) IsAncestorOf(o *Key) bool {
	if k == nil || o == nil {
		return false
	}
	for p := o.parent; p != nil; p = p.parent {
		if p.Equal(k) {
			return true
		}
	}
	return false
}

// ErrInvalidKey is returned when a key path cannot be parsed.
var ErrInvalidKey = errors.New("invalid key")

// ParseKey parses the output of Key.String.
func ParseKey(s string) (*Key, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	var k *Key
	for _, seg := range strings.Split(s, "/") {
		kind, name, ok := strings.Cut(seg, ":")
		if !ok || kind == "" {
			return nil, fmt.Errorf("%w: segment %q must be Kind:name", ErrInvalidKey, seg)
		}
		kind, err := url.PathUnescape(kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		name, err = url.PathUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		k = NewKey(kind, name, k)
	}
	return k, nil
}

// DescendantRange returns the half-open range [lo, hi) of key strings that
// covers every strict descendant of k.
func (k *Key) DescendantRange() (lo, hi string) {
	s := k.String()
	return s + "/", s + "0"
}
