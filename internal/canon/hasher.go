package canon

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"

	"github.com/roach88/chronicle/internal/field"
)

// FormatTag prefixes every canonical string.
const FormatTag = "{v1}"

// Engine-managed field names. They never take part in hashing.
const (
	DataHashField = "data_hash"
	RevHashField  = "rev_hash"
)

// ManagedFields lists the field names excluded from canonicalization.
var ManagedFields = []string{DataHashField, RevHashField}

// Algorithm names a digest function.
type Algorithm string

const (
	SHA1    Algorithm = "sha1"
	SHA256  Algorithm = "sha256"
	SHA3256 Algorithm = "sha3-256"
)

// Encoding names how digest bytes are rendered before truncation.
type Encoding string

const (
	Hex       Encoding = "hex"
	Base64URL Encoding = "base64url"
)

// ErrInvalidConfig is returned by New for unusable configurations.
var ErrInvalidConfig = errors.New("invalid hash config")

// Source yields the typed field values of a record.
// Compound values (groups, repeated groups, bytes) are read live from the
// record, never from a pre-serialized projection.
type Source interface {
	Fields() field.Set
}

// Config selects the digest algorithm, output encoding and truncation length.
type Config struct {
	Algorithm Algorithm `mapstructure:"algorithm"`
	Length    int       `mapstructure:"length"`
	Encoding  Encoding  `mapstructure:"encoding"`
}

// DefaultConfig returns sha1, hex, 8 characters.
func DefaultConfig() Config {
	return Config{Algorithm: SHA1, Length: 8, Encoding: Hex}
}

// Hasher computes canonical strings and truncated digests.
// A Hasher is immutable and safe for concurrent use.
type Hasher struct {
	cfg     Config
	newHash func() hash.Hash
}

// New validates cfg and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	var newHash func() hash.Hash
	var size int
	switch cfg.Algorithm {
	case SHA1:
		newHash, size = sha1.New, sha1.Size
	case SHA256:
		newHash, size = sha256.New, sha256.Size
	case SHA3256:
		newHash, size = sha3.New256, 32
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, cfg.Algorithm)
	}

	var full int
	switch cfg.Encoding {
	case Hex:
		full = hex.EncodedLen(size)
	case Base64URL:
		full = base64.RawURLEncoding.EncodedLen(size)
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrInvalidConfig, cfg.Encoding)
	}

	if cfg.Length <= 0 || cfg.Length > full {
		return nil, fmt.Errorf("%w: length %d outside 1..%d for %s/%s",
			ErrInvalidConfig, cfg.Length, full, cfg.Algorithm, cfg.Encoding)
	}

	return &Hasher{cfg: cfg, newHash: newHash}, nil
}

// Default returns a Hasher for DefaultConfig.
func Default() *Hasher {
	h, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return h
}

// Config returns the configuration the hasher was built with.
func (h *Hasher) Config() Config {
	return h.cfg
}

// Digest hashes s and truncates the encoded output to the configured length.
// The empty string digests to the empty string.
func (h *Hasher) Digest(s string) string {
	if s == "" {
		return ""
	}
	d := h.newHash()
	d.Write([]byte(s))
	sum := d.Sum(nil)

	var enc string
	switch h.cfg.Encoding {
	case Base64URL:
		enc = base64.RawURLEncoding.EncodeToString(sum)
	default:
		enc = hex.EncodeToString(sum)
	}
	return enc[:h.cfg.Length]
}

// Hash returns Digest(Canonicalize(src.Fields())).
func (h *Hasher) Hash(src Source) (string, error) {
	s, err := Canonicalize(src.Fields())
	if err != nil {
		return "", err
	}
	return h.Digest(s), nil
}

// Canonicalize renders fields as FormatTag followed by sorted name=value
// pairs joined with "|". Managed fields are skipped. Names and string
// values must be valid UTF-8; otherwise the error wraps field.ErrInvalidUTF8.
func Canonicalize(fields field.Set) (string, error) {
	var b strings.Builder
	b.WriteString(FormatTag)

	first := true
	for _, name := range fields.SortedKeys() {
		if isManaged(name) {
			continue
		}
		if !utf8.ValidString(name) {
			return "", fmt.Errorf("canonicalize field %q: %w", name, field.ErrInvalidUTF8)
		}
		s, err := Stringify(fields[name])
		if err != nil {
			return "", fmt.Errorf("canonicalize field %q: %w", name, err)
		}
		if !first {
			b.WriteByte('|')
		}
		first = false
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(s)
	}
	return b.String(), nil
}

// Stringify renders one field value for the canonical string.
// Scalars render as plain text, Bytes as the raw bytes, and List and Group
// as canonical JSON of their typed contents.
func Stringify(v field.Value) (string, error) {
	switch val := v.(type) {
	case nil, field.Null:
		return "null", nil
	case field.String:
		if !utf8.ValidString(string(val)) {
			return "", field.ErrInvalidUTF8
		}
		return string(val), nil
	case field.Int:
		return strconv.FormatInt(int64(val), 10), nil
	case field.Bool:
		return strconv.FormatBool(bool(val)), nil
	case field.Bytes:
		return string(val), nil
	case field.List, field.Group:
		data, err := field.MarshalCanonical(val)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported field value type: %T", v)
	}
}

func isManaged(name string) bool {
	return name == DataHashField || name == RevHashField
}
