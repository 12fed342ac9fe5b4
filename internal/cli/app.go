package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/config"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/engine"
	"github.com/roach88/chronicle/internal/kvstore"
	"github.com/roach88/chronicle/internal/schema"
	"github.com/roach88/chronicle/internal/store"
)

// errConfig marks configuration failures for ErrorCode.
var errConfig = errors.New("load config")

// app is the wiring shared by commands that touch the database.
type app struct {
	cfg    *config.Config
	ds     datastore.Datastore
	engine *engine.Engine
	log    *slog.Logger
}

// loadConfig reads the config file and applies flag overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.Database != "" {
		cfg.Database.Path = o.Database
	}
	if o.Backend != "" {
		cfg.Database.Backend = o.Backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// open loads configuration, opens the datastore and builds the engine.
func (o *RootOptions) open(cmd *cobra.Command) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	log := o.logger(cmd)

	ds, err := openDatastore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	auditor, err := cfg.Auditor()
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}

	opts := []engine.Option{engine.WithAuditor(auditor), engine.WithLogger(log)}
	if cfg.Schema.Dir != "" {
		reg, err := schema.Load(cfg.Schema.Dir)
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("load schemas: %w", err)
		}
		log.Debug("schemas loaded", "dir", cfg.Schema.Dir, "kinds", reg.Kinds())
		opts = append(opts, engine.WithValidator(reg))
	}

	log.Debug("database ready", "backend", cfg.Database.Backend, "path", cfg.Database.Path)
	return &app{cfg: cfg, ds: ds, engine: engine.New(ds, opts...), log: log}, nil
}

func openDatastore(cfg *config.Config, log *slog.Logger) (datastore.Datastore, error) {
	switch cfg.Database.Backend {
	case config.BackendSQLite:
		return store.Open(cfg.Database.Path)
	case config.BackendBadger:
		return kvstore.Open(kvstore.Options{Dir: cfg.Database.Path, Logger: log})
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Database.Backend)
	}
}

func (a *app) close() {
	if err := a.ds.Close(); err != nil {
		a.log.Error("error closing database", "error", err)
	}
}

// withRequestID attaches an explicit request id, if one was given.
func withRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return engine.WithRequestID(ctx, id)
}
