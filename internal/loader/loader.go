package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/seantiz/modreg/internal/model"
)

var (
	ErrModuleDisabled      = errors.New("module is disabled")
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrNotLoaded           = errors.New("module is not loaded")
)

// Source is the part of the registry the loader reads from and reports to.
type Source interface {
	EnabledModules(ctx context.Context) ([]model.Config, error)
	ModuleConfig(ctx context.Context, key string) (*model.Config, error)
	MarkLoaded(key, ref string)
}

type instance struct {
	integration Integration
	booted      bool
}

// Loader instantiates and runs the integrations of enabled modules.
type Loader struct {
	source  Source
	catalog *Catalog
	logger  *slog.Logger

	mu        sync.Mutex
	instances map[string]*instance
	order     []string
}

// New creates a loader resolving integrations from catalog.
func New(source Source, catalog *Catalog, logger *slog.Logger) *Loader {
	return &Loader{
		source:    source,
		catalog:   catalog,
		logger:    logger,
		instances: make(map[string]*instance),
	}
}

// RegisterAll registers every enabled, auto-registered module in order.
// Modules whose integration cannot be resolved or fails to register are
// logged and skipped. It returns the number of modules registered by this
// call.
func (l *Loader) RegisterAll(ctx context.Context) (int, error) {
	configs, err := l.source.EnabledModules(ctx)
	if err != nil {
		return 0, fmt.Errorf("list enabled modules: %w", err)
	}

	n := 0
	for _, cfg := range configs {
		if l.registered(cfg.Key) {
			continue
		}
		if err := l.register(ctx, cfg); err != nil {
			l.logger.Warn("module registration skipped", "module", cfg.Key, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// BootAll boots every registered module that has not booted yet, in
// registration order. Failures are logged. It returns the number of modules
// booted by this call.
func (l *Loader) BootAll(ctx context.Context) int {
	l.mu.Lock()
	order := append([]string(nil), l.order...)
	l.mu.Unlock()

	n := 0
	for _, key := range order {
		booted, err := l.boot(ctx, key)
		if err != nil {
			l.logger.Error("module boot failed", "module", key, "error", err)
			continue
		}
		if booted {
			n++
		}
	}
	return n
}

// Register loads a single module. The module must be enabled.
func (l *Loader) Register(ctx context.Context, key string) error {
	if l.registered(key) {
		return nil
	}
	cfg, err := l.source.ModuleConfig(ctx, key)
	if err != nil {
		return fmt.Errorf("get module config: %w", err)
	}
	if !cfg.Enabled {
		return fmt.Errorf("register %q: %w", key, ErrModuleDisabled)
	}
	return l.register(ctx, *cfg)
}

// Boot boots a single registered module.
func (l *Loader) Boot(ctx context.Context, key string) error {
	_, err := l.boot(ctx, key)
	return err
}

func (l *Loader) register(ctx context.Context, cfg model.Config) error {
	ref := ResolveRef(cfg)
	factory, ok := l.catalog.Lookup(ref)
	if !ok {
		return fmt.Errorf("register %q: %w: %s", cfg.Key, ErrIntegrationNotFound, ref)
	}
	integration, err := factory(cfg)
	if err != nil {
		return fmt.Errorf("create integration %s: %w", ref, err)
	}
	if err := integration.Register(ctx, cfg.Settings); err != nil {
		return fmt.Errorf("register integration %s: %w", ref, err)
	}

	l.mu.Lock()
	if _, ok := l.instances[cfg.Key]; !ok {
		l.order = append(l.order, cfg.Key)
	}
	l.instances[cfg.Key] = &instance{integration: integration}
	l.mu.Unlock()

	l.source.MarkLoaded(cfg.Key, ref)
	l.logger.Info("module registered", "module", cfg.Key, "integration", ref)
	return nil
}

// boot reports whether the module booted during this call.
func (l *Loader) boot(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	inst, ok := l.instances[key]
	booted := ok && inst.booted
	l.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("boot %q: %w", key, ErrNotLoaded)
	}
	if booted {
		return false, nil
	}
	if err := inst.integration.Boot(ctx); err != nil {
		return false, fmt.Errorf("boot %q: %w", key, err)
	}

	l.mu.Lock()
	inst.booted = true
	l.mu.Unlock()
	l.logger.Info("module booted", "module", key)
	return true, nil
}

func (l *Loader) registered(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.instances[key]
	return ok
}
