package field

import (
	"golang.org/x/text/unicode/norm"
)

// NFC returns v with every string and member name in Unicode normalization
// form C. Bytes are left alone. Stored values are never normalized; callers
// apply this to text input whose composition is incidental, such as
// command-line arguments.
func NFC(v Value) Value {
	switch val := v.(type) {
	case String:
		return String(norm.NFC.String(string(val)))
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = NFC(elem)
		}
		return out
	case Group:
		out := make(Group, len(val))
		for k, elem := range val {
			out[norm.NFC.String(k)] = NFC(elem)
		}
		return out
	default:
		return v
	}
}

// NFCSet applies NFC to every field name and value of s.
func NFCSet(s Set) Set {
	return Set(NFC(Group(s)).(Group))
}
