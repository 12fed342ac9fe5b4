// Package config loads chronicle settings from a YAML file, CHRONICLE_*
// environment variables and built-in defaults, in that order of precedence
// (environment over file over defaults).
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/canon"
	"github.com/roach88/chronicle/internal/chain"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// EnvPrefix prefixes every environment override, e.g. CHRONICLE_DATABASE_PATH.
const EnvPrefix = "CHRONICLE"

// FileName is the config file searched for when no path is given.
const FileName = "chronicle"

// Database selects the storage backend and its location. Path is a file
// for sqlite and a directory for badger.
type Database struct {
	Path    string `mapstructure:"path"`
	Backend string `mapstructure:"backend"`
}

// Audit controls how entries are stored.
type Audit struct {
	RequestIDLength int  `mapstructure:"request_id_length"`
	StoreRevHash    bool `mapstructure:"store_rev_hash"`
}

// Schema points at an optional CUE schema directory.
type Schema struct {
	Dir string `mapstructure:"dir"`
}

// Config is the complete configuration.
type Config struct {
	Database Database     `mapstructure:"database"`
	Hash     canon.Config `mapstructure:"hash"`
	Audit    Audit        `mapstructure:"audit"`
	Schema   Schema       `mapstructure:"schema"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: Database{Path: "chronicle.db", Backend: BackendSQLite},
		Hash:     canon.DefaultConfig(),
		Audit:    Audit{RequestIDLength: audit.MaxRequestIDLength},
	}
}

// Load reads configuration. An explicit path must exist; with an empty path
// chronicle.yaml is looked up in the current directory and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.backend", d.Database.Backend)
	v.SetDefault("hash.algorithm", string(d.Hash.Algorithm))
	v.SetDefault("hash.length", d.Hash.Length)
	v.SetDefault("hash.encoding", string(d.Hash.Encoding))
	v.SetDefault("audit.request_id_length", d.Audit.RequestIDLength)
	v.SetDefault("audit.store_rev_hash", d.Audit.StoreRevHash)
	v.SetDefault("schema.dir", d.Schema.Dir)
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("config: database.backend %q: must be %s or %s", c.Database.Backend, BackendSQLite, BackendBadger)
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	if n := c.Audit.RequestIDLength; n < 1 || n > audit.MaxRequestIDLength {
		return fmt.Errorf("config: audit.request_id_length %d outside 1..%d", n, audit.MaxRequestIDLength)
	}
	if _, err := canon.New(c.Hash); err != nil {
		return fmt.Errorf("config: hash: %w", err)
	}
	return nil
}

// Auditor builds the auditor the configuration describes.
func (c *Config) Auditor() (*audit.Auditor, error) {
	h, err := canon.New(c.Hash)
	if err != nil {
		return nil, fmt.Errorf("config: hash: %w", err)
	}
	return audit.NewAuditor(chain.New(h), audit.Options{
		RequestIDLength: c.Audit.RequestIDLength,
		StoreRevHash:    c.Audit.StoreRevHash,
	}), nil
}
