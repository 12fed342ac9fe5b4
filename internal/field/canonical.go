package field

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// BytesKey is the single member name used to carry a Bytes value in JSON.
const BytesKey = "$bytes"

// ErrInvalidUTF8 is returned for strings and member names that are not
// valid UTF-8. They cannot be stored without loss.
var ErrInvalidUTF8 = errors.New("string is not valid UTF-8")

// MarshalCanonical produces RFC 8785 style canonical JSON for a Value.
// This is the only serialization used for content hashing of compound fields
// and for persisted snapshots.
//
// Differences from encoding/json:
//   - object members sorted by UTF-16 code units
//   - no HTML escaping, U+2028/U+2029 emitted literally
//   - strings written exactly as given; invalid UTF-8 is an error
//   - Bytes encoded as {"$bytes":"<base64url, unpadded>"}
//   - Group member names starting with "$" get one more "$", so no
//     user member can be read back as a Bytes value
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalCanonicalSet marshals a whole field set as a canonical JSON object.
func MarshalCanonicalSet(s Set) ([]byte, error) {
	return MarshalCanonical(Group(s))
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		if err := writeCanonicalString(buf, string(val)); err != nil {
			return err
		}
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Bytes:
		buf.WriteByte('{')
		buf.WriteString(`"` + BytesKey + `":"`)
		buf.WriteString(base64.RawURLEncoding.EncodeToString(val))
		buf.WriteByte('"')
		buf.WriteByte('}')
	case List:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Group:
		buf.WriteByte('{')
		names := make(map[string]string, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			esc := escapeMember(k)
			names[esc] = k
			keys = append(keys, esc)
		}
		slices.SortFunc(keys, compareUTF16)
		for i, esc := range keys {
			k := names[esc]
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, esc); err != nil {
				return fmt.Errorf("group member %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("group[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported field value type: %T", v)
	}
	return nil
}

// escapeMember prefixes "$"-leading member names with another "$".
func escapeMember(k string) string {
	if strings.HasPrefix(k, "$") {
		return "$" + k
	}
	return k
}

// unescapeMember reverses escapeMember. Unescaped "$" names are reserved.
func unescapeMember(k string) (string, error) {
	if !strings.HasPrefix(k, "$") {
		return k, nil
	}
	if strings.HasPrefix(k, "$$") {
		return k[1:], nil
	}
	return "", fmt.Errorf("reserved member name %q", k)
}

// writeCanonicalString escapes only quote, backslash and control characters.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	const hex = "0123456789abcdef"
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidUTF8, s)
	}
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hex[r>>4])
				buf.WriteByte(hex[r&0xf])
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return nil
}

// compareUTF16 orders strings by UTF-16 code units as RFC 8785 requires.
// Byte-wise order differs for supplementary plane characters.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
