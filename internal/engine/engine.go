package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/seantiz/modreg/internal/cache"
	"github.com/seantiz/modreg/internal/model"
	"github.com/seantiz/modreg/internal/store"
)

// Registry is the set of registry operations exposed to the API, the CLI
// and the runtime loader.
type Registry interface {
	Enable(ctx context.Context, key string) error
	Disable(ctx context.Context, key string) error
	UpdateSettings(ctx context.Context, key string, partial map[string]any) error
	Install(ctx context.Context, req InstallRequest) (*model.Module, error)
	Uninstall(ctx context.Context, key string) error
	Sync(ctx context.Context, declared []model.Descriptor) SyncReport
	Status(ctx context.Context) ([]ModuleStatus, error)
	Statistics(ctx context.Context) (Statistics, error)
	EnabledModules(ctx context.Context) ([]model.Config, error)
	Module(ctx context.Context, key string) (*model.Module, error)
	ModuleConfig(ctx context.Context, key string) (*model.Config, error)
	IsEnabled(ctx context.Context, key string) bool
	Dependencies(ctx context.Context, key string) ([]string, error)
	Dependents(ctx context.Context, key string) ([]string, error)
	ClearCache(ctx context.Context)
	MarkLoaded(key, ref string)
	MarkUnloaded(key string)
	IsLoaded(key string) bool
	Loaded() map[string]string
	Events() *Broker
}

var _ Registry = (*Engine)(nil)

// InstallRequest carries the caller-supplied fields of a new module.
// AutoRegister defaults to true when nil.
type InstallRequest struct {
	Key            string         `json:"key"`
	Name           string         `json:"name,omitempty"`
	Description    string         `json:"description,omitempty"`
	Enabled        bool           `json:"enabled"`
	AutoRegister   *bool          `json:"auto_register,omitempty"`
	IntegrationRef string         `json:"integration_ref,omitempty"`
	Settings       map[string]any `json:"settings,omitempty"`
	Dependencies   []string       `json:"dependencies,omitempty"`
	Version        string         `json:"version,omitempty"`
	Author         string         `json:"author,omitempty"`
	Changelog      string         `json:"changelog,omitempty"`
	IsCore         bool           `json:"is_core"`
	SortOrder      int            `json:"sort_order"`
}

// Engine enforces the module lifecycle rules on top of a Store and keeps the
// cached read views consistent with it.
type Engine struct {
	store  store.Store
	cache  *cache.Layer
	keys   cache.Keyspace
	logger *slog.Logger
	locks  *keyLocks
	events *Broker

	loadedMu sync.RWMutex
	loaded   map[string]string
}

// NewEngine creates a registry engine. Cache entries are named within keys.
func NewEngine(s store.Store, c *cache.Layer, keys cache.Keyspace, logger *slog.Logger) *Engine {
	return &Engine{
		store:  s,
		cache:  c,
		keys:   keys,
		logger: logger,
		locks:  newKeyLocks(),
		events: NewBroker(),
		loaded: make(map[string]string),
	}
}

// Events returns the broker publishing committed lifecycle changes.
func (e *Engine) Events() *Broker {
	return e.events
}

// Enable turns a module on. Every declared dependency must exist and be
// enabled; otherwise the full list of unmet dependencies is reported.
// Enabling an enabled module is a no-op.
func (e *Engine) Enable(ctx context.Context, key string) error {
	const op = "enable"
	unlock := e.locks.lock(key)
	defer unlock()

	changed := false
	err := e.store.WithTx(ctx, func(q store.Queries) error {
		m, err := e.find(ctx, q, op, key)
		if err != nil {
			return err
		}
		if m.IsCore {
			return opError(op, key, ErrCoreModuleImmutable)
		}
		unmet, err := unmetDependencies(ctx, q, m.Dependencies)
		if err != nil {
			return err
		}
		if len(unmet) > 0 {
			return opError(op, key, ErrUnmetDependencies, unmet...)
		}
		if m.Enabled {
			return nil
		}
		m.Enabled = true
		if err := q.Update(ctx, m); err != nil {
			return fmt.Errorf("update module: %w", err)
		}
		changed = true
		return nil
	})
	observe(op, err)
	if err != nil {
		return err
	}

	if changed {
		e.committed(ctx, EventEnabled, key)
		e.logger.Info("module enabled", "module", key)
	}
	return nil
}

// Disable turns a module off. It is rejected while any enabled module lists
// key as a dependency. Disabling a disabled module is a no-op.
func (e *Engine) Disable(ctx context.Context, key string) error {
	const op = "disable"
	unlock := e.locks.lock(key)
	defer unlock()

	changed := false
	err := e.store.WithTx(ctx, func(q store.Queries) error {
		m, err := e.find(ctx, q, op, key)
		if err != nil {
			return err
		}
		if m.IsCore {
			return opError(op, key, ErrCoreModuleImmutable)
		}
		if err := checkDependents(ctx, q, op, key); err != nil {
			return err
		}
		if !m.Enabled {
			return nil
		}
		m.Enabled = false
		if err := q.Update(ctx, m); err != nil {
			return fmt.Errorf("update module: %w", err)
		}
		changed = true
		return nil
	})
	observe(op, err)
	if err != nil {
		return err
	}

	if changed {
		e.committed(ctx, EventDisabled, key)
		e.logger.Info("module disabled", "module", key)
	}
	return nil
}

// UpdateSettings shallow-merges partial into the module's settings: keys in
// partial overwrite, other keys are kept.
func (e *Engine) UpdateSettings(ctx context.Context, key string, partial map[string]any) error {
	const op = "update settings"
	if partial == nil {
		err := opError(op, key, ErrInvalidSettingsPayload)
		observe(op, err)
		return err
	}

	unlock := e.locks.lock(key)
	defer unlock()

	err := e.store.WithTx(ctx, func(q store.Queries) error {
		m, err := e.find(ctx, q, op, key)
		if err != nil {
			return err
		}
		if m.Settings == nil {
			m.Settings = make(map[string]any, len(partial))
		}
		maps.Copy(m.Settings, partial)
		if err := q.Update(ctx, m); err != nil {
			return fmt.Errorf("update module: %w", err)
		}
		return nil
	})
	observe(op, err)
	if err != nil {
		return err
	}

	e.committed(ctx, EventSettingsUpdated, key)
	e.logger.Info("module settings updated", "module", key, "keys", slices.Sorted(maps.Keys(partial)))
	return nil
}

// Install creates a new module record from req. An enabled install must
// satisfy the same dependency rule as Enable.
func (e *Engine) Install(ctx context.Context, req InstallRequest) (*model.Module, error) {
	const op = "install"
	m, err := newModule(req)
	if err != nil {
		err = opError(op, req.Key, err)
		observe(op, err)
		return nil, err
	}

	unlock := e.locks.lock(req.Key)
	defer unlock()

	err = e.store.WithTx(ctx, func(q store.Queries) error {
		if m.Enabled {
			unmet, err := unmetDependencies(ctx, q, m.Dependencies)
			if err != nil {
				return err
			}
			if len(unmet) > 0 {
				return opError(op, m.Key, ErrUnmetDependencies, unmet...)
			}
		}
		err := q.Insert(ctx, m)
		if errors.Is(err, store.ErrDuplicateKey) {
			return opError(op, m.Key, ErrDuplicateKey)
		}
		if err != nil {
			return fmt.Errorf("insert module: %w", err)
		}
		return nil
	})
	observe(op, err)
	if err != nil {
		return nil, err
	}

	e.committed(ctx, EventInstalled, m.Key)
	e.logger.Info("module installed", "module", m.Key, "version", m.Version)
	return m, nil
}

// Uninstall permanently deletes a module record. Core modules and modules
// that enabled modules depend on cannot be removed.
func (e *Engine) Uninstall(ctx context.Context, key string) error {
	const op = "uninstall"
	unlock := e.locks.lock(key)
	defer unlock()

	err := e.store.WithTx(ctx, func(q store.Queries) error {
		m, err := e.find(ctx, q, op, key)
		if err != nil {
			return err
		}
		if m.IsCore {
			return opError(op, key, ErrCoreModuleImmutable)
		}
		if err := checkDependents(ctx, q, op, key); err != nil {
			return err
		}
		if err := q.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete module: %w", err)
		}
		return nil
	})
	observe(op, err)
	if err != nil {
		return err
	}

	e.committed(ctx, EventUninstalled, key)
	e.logger.Info("module uninstalled", "module", key)
	return nil
}

// Module returns the stored record for key.
func (e *Engine) Module(ctx context.Context, key string) (*model.Module, error) {
	return e.find(ctx, e.store, "get", key)
}

// Dependencies returns the declared dependency keys of a module.
func (e *Engine) Dependencies(ctx context.Context, key string) ([]string, error) {
	m, err := e.find(ctx, e.store, "dependencies", key)
	if err != nil {
		return nil, err
	}
	return m.Dependencies, nil
}

// Dependents returns the keys of enabled modules that declare key as a
// dependency.
func (e *Engine) Dependents(ctx context.Context, key string) ([]string, error) {
	return enabledDependents(ctx, e.store, key)
}

// ClearCache drops every cached view.
func (e *Engine) ClearCache(ctx context.Context) {
	e.cache.InvalidateAll(ctx)
	e.events.Publish(Event{Type: EventCacheCleared})
	e.logger.Info("module cache cleared")
}

// committed invalidates the views affected by a change to key and announces it.
func (e *Engine) committed(ctx context.Context, eventType, key string) {
	e.cache.Invalidate(ctx, e.keys.AllEnabled(), e.keys.ModuleConfig(key))
	e.events.Publish(Event{Type: eventType, Key: key})
}

func (e *Engine) find(ctx context.Context, q store.Queries, op, key string) (*model.Module, error) {
	m, err := q.Find(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, opError(op, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find module: %w", err)
	}
	return m, nil
}

// unmetDependencies returns, in declaration order, every dependency that is
// missing or disabled.
func unmetDependencies(ctx context.Context, q store.Queries, deps []string) ([]string, error) {
	var unmet []string
	for _, dep := range deps {
		if slices.Contains(unmet, dep) {
			continue
		}
		d, err := q.Find(ctx, dep)
		if errors.Is(err, store.ErrNotFound) {
			unmet = append(unmet, dep)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find dependency: %w", err)
		}
		if !d.Enabled {
			unmet = append(unmet, dep)
		}
	}
	return unmet, nil
}

func checkDependents(ctx context.Context, q store.Queries, op, key string) error {
	dependents, err := enabledDependents(ctx, q, key)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return opError(op, key, ErrHasDependents, dependents...)
	}
	return nil
}

// enabledDependents lists enabled modules depending on key. A module
// declaring itself as a dependency does not block its own removal.
func enabledDependents(ctx context.Context, q store.Queries, key string) ([]string, error) {
	keys, err := q.Dependents(ctx, key, store.Filter{Enabled: store.Bool(true)})
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}
	return slices.DeleteFunc(keys, func(k string) bool { return k == key }), nil
}

func newModule(req InstallRequest) (*model.Module, error) {
	if err := model.ValidateKey(req.Key); err != nil {
		return nil, err
	}
	version := req.Version
	if version == "" {
		version = model.DefaultVersion
	} else if _, err := semver.NewVersion(version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	name := req.Name
	if name == "" {
		name = model.DisplayName(req.Key)
	}
	autoRegister := true
	if req.AutoRegister != nil {
		autoRegister = *req.AutoRegister
	}
	settings := maps.Clone(req.Settings)
	if settings == nil {
		settings = map[string]any{}
	}
	deps := slices.Clone(req.Dependencies)
	if deps == nil {
		deps = []string{}
	}

	return &model.Module{
		Key:            req.Key,
		Name:           name,
		Description:    req.Description,
		Enabled:        req.Enabled,
		AutoRegister:   autoRegister,
		IntegrationRef: req.IntegrationRef,
		Settings:       settings,
		Dependencies:   deps,
		Version:        version,
		Author:         req.Author,
		Changelog:      req.Changelog,
		IsCore:         req.IsCore,
		SortOrder:      req.SortOrder,
	}, nil
}
