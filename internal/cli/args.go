package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// parseKey parses a record key path such as "Note:n1" or "Book:b1/Page:3".
func parseKey(s string) (*datastore.Key, error) {
	k, err := datastore.ParseKey(s)
	if err != nil {
		return nil, audit.Errorf(audit.CodeInvalidArgument, nil, "key %q: %v", s, err)
	}
	return k, nil
}

// parseAssignments parses name=value arguments. Values that are valid JSON
// keep their type; anything else is a string. Names and text are NFC
// normalized, so the same visible input hashes the same on every terminal.
func parseAssignments(args []string) (field.Set, error) {
	out := make(field.Set, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, audit.Errorf(audit.CodeInvalidArgument, nil, "expected name=value, got %q", arg)
		}
		if _, dup := out[name]; dup {
			return nil, audit.Errorf(audit.CodeInvalidArgument, nil, "field %q assigned twice", name)
		}
		out[name] = field.ParseLiteral(value)
	}
	normalized := field.NFCSet(out)
	if len(normalized) != len(out) {
		return nil, audit.Errorf(audit.CodeInvalidArgument, nil, "field names differ only in Unicode composition")
	}
	return normalized, nil
}

// formatFields renders fields as sorted name=value pairs.
func formatFields(s field.Set) string {
	var b strings.Builder
	for i, name := range s.SortedKeys() {
		if i > 0 {
			b.WriteByte(' ')
		}
		v, err := field.MarshalCanonical(s[name])
		if err != nil {
			v = []byte(fmt.Sprintf("<%v>", err))
		}
		fmt.Fprintf(&b, "%s=%s", name, v)
	}
	return b.String()
}
