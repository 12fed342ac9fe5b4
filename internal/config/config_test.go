package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/canon"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chronicle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendSQLite, cfg.Database.Backend)
	assert.Equal(t, canon.DefaultConfig(), cfg.Hash)
	assert.Equal(t, 16, cfg.Audit.RequestIDLength)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/chronicle
  backend: badger
hash:
  algorithm: sha256
  length: 12
audit:
  request_id_length: 8
  store_rev_hash: true
schema:
  dir: schemas
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/chronicle", cfg.Database.Path)
	assert.Equal(t, BackendBadger, cfg.Database.Backend)
	assert.Equal(t, canon.Config{Algorithm: canon.SHA256, Length: 12, Encoding: canon.Hex}, cfg.Hash)
	assert.Equal(t, 8, cfg.Audit.RequestIDLength)
	assert.True(t, cfg.Audit.StoreRevHash)
	assert.Equal(t, "schemas", cfg.Schema.Dir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "database:\n  path: from-file.db\n")
	t.Setenv("CHRONICLE_DATABASE_PATH", "from-env.db")
	t.Setenv("CHRONICLE_HASH_ENCODING", "base64url")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database.Path)
	assert.Equal(t, canon.Base64URL, cfg.Hash.Encoding)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Database.Backend = "postgres" }},
		{"path", func(c *Config) { c.Database.Path = "" }},
		{"request id length zero", func(c *Config) { c.Audit.RequestIDLength = 0 }},
		{"request id length too long", func(c *Config) { c.Audit.RequestIDLength = 17 }},
		{"algorithm", func(c *Config) { c.Hash.Algorithm = "md5" }},
		{"length", func(c *Config) { c.Hash.Length = 41 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "hash:\n  algorithm: md5\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, canon.ErrInvalidConfig)
}

func TestAuditor(t *testing.T) {
	cfg := Default()
	cfg.Audit.StoreRevHash = true

	a, err := cfg.Auditor()
	require.NoError(t, err)
	assert.True(t, a.StoresRevHash())
	assert.Equal(t, "1d670f75", a.Chain().Hasher().Digest("{v1}bar=1|foo=a"))
}
