package field

import (
	"fmt"
	"math"
	"slices"
)

// Value is a sealed interface over the typed values a record field can hold.
// Only Null, String, Int, Bool, Bytes, List and Group implement it.
// There is no float kind: floats do not stringify deterministically.
type Value interface {
	fieldValue()
}

// Null is an explicitly unset field.
type Null struct{}

func (Null) fieldValue() {}

// String is a text field.
type String string

func (String) fieldValue() {}

// Int is an integer field. Always int64.
type Int int64

func (Int) fieldValue() {}

// Bool is a boolean field.
type Bool bool

func (Bool) fieldValue() {}

// Bytes is a binary field holding the raw, undecoded bytes.
type Bytes []byte

func (Bytes) fieldValue() {}

// List is a repeated field. A repeated structured field is a List of Group.
type List []Value

func (List) fieldValue() {}

// Group is a structured sub-record.
type Group map[string]Value

func (Group) fieldValue() {}

// SortedKeys returns the group's field names in byte-wise lexicographic order.
func (g Group) SortedKeys() []string {
	return sortedKeys(g)
}

// Set is the field mapping of one record: field name to typed value.
type Set map[string]Value

// SortedKeys returns the field names in byte-wise lexicographic order.
func (s Set) SortedKeys() []string {
	return sortedKeys(s)
}

// Clone returns a shallow copy of the set. Values are immutable by convention
// except Bytes, List and Group, which are copied deeply.
func (s Set) Clone() Set {
	if s == nil {
		return Set{}
	}
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

// Without returns a copy of the set with the named fields removed.
func (s Set) Without(names ...string) Set {
	out := s.Clone()
	for _, n := range names {
		delete(out, n)
	}
	return out
}

func sortedKeys[M ~map[string]Value](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case Bytes:
		return slices.Clone(val)
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case Group:
		out := make(Group, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// FromGo converts a plain Go value into a Value.
// Supported: nil, Value, string, bool, all signed and unsigned integer kinds
// that fit int64, []byte, []any, map[string]any and map[string]Value.
// Floats are rejected.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(val), nil
	case []byte:
		return Bytes(slices.Clone(val)), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not supported as field values: %v", val)
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			fv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = fv
		}
		return out, nil
	case map[string]any:
		out := make(Group, len(val))
		for k, elem := range val {
			fv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = fv
		}
		return out, nil
	case map[string]Value:
		return Group(val), nil
	default:
		return nil, fmt.Errorf("unsupported field value type: %T", v)
	}
}

// SetFromGo converts a map of plain Go values into a Set.
func SetFromGo(m map[string]any) (Set, error) {
	out := make(Set, len(m))
	for k, v := range m {
		fv, err := FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = fv
	}
	return out, nil
}

// ToGo converts a Value back into plain Go values: string, int64, bool,
// []byte, []any, map[string]any or nil.
func ToGo(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case Bytes:
		return []byte(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Group:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}
