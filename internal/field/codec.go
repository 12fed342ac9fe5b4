package field

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Encode serializes a field set for storage. The output is canonical JSON,
// so equal sets always encode to equal bytes.
func Encode(s Set) ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	data, err := MarshalCanonicalSet(s)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return data, nil
}

// Decode parses bytes produced by Encode back into a field set.
func Decode(data []byte) (Set, error) {
	if len(data) == 0 {
		return Set{}, nil
	}
	v, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	g, ok := v.(Group)
	if !ok {
		return nil, fmt.Errorf("decode fields: expected object, got %T", v)
	}
	return Set(g), nil
}

// Unmarshal parses a single JSON document into a Value.
// Numbers must be integers. Objects of the form {"$bytes":"..."} become Bytes,
// and member names escaped by MarshalCanonical lose their extra "$". Other
// "$"-leading member names are rejected.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return fromJSON(raw)
}

func fromJSON(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not supported as field values: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			fv, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = fv
		}
		return out, nil
	case map[string]any:
		if b, ok := bytesMember(val); ok {
			raw, err := base64.RawURLEncoding.DecodeString(b)
			if err != nil {
				return nil, fmt.Errorf("bytes value: %w", err)
			}
			return Bytes(raw), nil
		}
		out := make(Group, len(val))
		for esc, elem := range val {
			k, err := unescapeMember(esc)
			if err != nil {
				return nil, err
			}
			fv, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("group[%q]: %w", k, err)
			}
			out[k] = fv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported JSON type: %T", v)
	}
}

func bytesMember(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	s, ok := m[BytesKey].(string)
	return s, ok
}

// ParseLiteral interprets command-line input. Valid JSON scalars, arrays and
// objects become typed values; anything else is taken as a plain String.
func ParseLiteral(s string) Value {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return String(s)
	}
	v, err := Unmarshal([]byte(trimmed))
	if err != nil {
		return String(s)
	}
	return v
}
