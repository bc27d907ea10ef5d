package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/seantiz/modreg/internal/cache"
	"github.com/seantiz/modreg/internal/config"
	"github.com/seantiz/modreg/internal/engine"
	"github.com/seantiz/modreg/internal/store"
)

var errManagementDisabled = errors.New("disabled by configuration")

// app is the registry wiring shared by every command.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.SQLiteStore
	cache  cache.Cache
	engine *engine.Engine
}

// openApp builds the registry from the environment, overridden by the
// global flags. Commands log at warn unless --verbose is set.
func openApp(ctx context.Context, opts *RootOptions, logOut io.Writer, level slog.Level) (*app, error) {
	cfg := config.Load()
	cfg.DBPath = opts.DB
	cfg.Manifest = opts.Manifest
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := config.NewLogger(logOut, level)

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "open database", err)
	}
	c, err := cache.Open(ctx, cfg.CacheOptions(), logger)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "open cache", err)
	}

	layer := cache.NewLayer(c, cfg.CacheTTL, logger)
	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		cache:  c,
		engine: engine.NewEngine(st, layer, cache.Keyspace(cfg.CachePrefix), logger),
	}, nil
}

func (a *app) Close() {
	a.engine.Events().Close()
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("close cache", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}

func (a *app) requireInstall() error {
	if !a.cfg.AllowInstall {
		return fmt.Errorf("module installation: %w", errManagementDisabled)
	}
	return nil
}

func (a *app) requireUninstall() error {
	if !a.cfg.AllowUninstall {
		return fmt.Errorf("module uninstallation: %w", errManagementDisabled)
	}
	return nil
}
