package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNFC(t *testing.T) {
	in := Set{
		"e\u0301": String("cafe\u0301"),
		"list":    List{String("e\u0301"), Int(1)},
		"group":   Group{"e\u0301": String("e\u0301")},
		"blob":    Bytes("e\u0301"),
	}

	got := NFCSet(in)
	assert.Equal(t, Set{
		"\u00e9": String("caf\u00e9"),
		"list":   List{String("\u00e9"), Int(1)},
		"group":  Group{"\u00e9": String("\u00e9")},
		"blob":   Bytes("e\u0301"),
	}, got)
	assert.Equal(t, String("cafe\u0301"), in["e\u0301"], "input is not modified")
}
