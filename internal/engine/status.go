package engine

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/seantiz/modreg/internal/cache"
	"github.com/seantiz/modreg/internal/model"
	"github.com/seantiz/modreg/internal/store"
)

// ModuleStatus is a stored record annotated with runtime and dependency
// state.
type ModuleStatus struct {
	model.Module
	Loaded               bool     `json:"loaded"`
	CanBeDisabled        bool     `json:"can_be_disabled"`
	HasUnmetDependencies bool     `json:"has_unmet_dependencies"`
	UnmetDependencies    []string `json:"unmet_dependencies"`
}

// Statistics summarises the registry.
type Statistics struct {
	Total             int     `json:"total"`
	Enabled           int     `json:"enabled"`
	Disabled          int     `json:"disabled"`
	Core              int     `json:"core"`
	Custom            int     `json:"custom"`
	Loaded            int     `json:"loaded"`
	EnabledPercentage float64 `json:"enabled_percentage"`
}

// Status returns every module ordered by sort order then key. Dependency
// state is computed from a single snapshot of the store.
func (e *Engine) Status(ctx context.Context) ([]ModuleStatus, error) {
	modules, err := e.store.List(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}

	enabled := make(map[string]bool, len(modules))
	for _, m := range modules {
		enabled[m.Key] = m.Enabled
	}

	statuses := make([]ModuleStatus, 0, len(modules))
	for _, m := range modules {
		unmet := []string{}
		for _, dep := range m.Dependencies {
			if !enabled[dep] && !slices.Contains(unmet, dep) {
				unmet = append(unmet, dep)
			}
		}
		statuses = append(statuses, ModuleStatus{
			Module:               *m,
			Loaded:               e.IsLoaded(m.Key),
			CanBeDisabled:        !m.IsCore,
			HasUnmetDependencies: len(unmet) > 0,
			UnmetDependencies:    unmet,
		})
	}
	return statuses, nil
}

// Statistics counts modules by state. The counts come from one transaction
// so they are mutually consistent.
func (e *Engine) Statistics(ctx context.Context) (Statistics, error) {
	var s Statistics
	err := e.store.WithTx(ctx, func(q store.Queries) error {
		counts := []struct {
			dst    *int
			filter store.Filter
		}{
			{&s.Total, store.Filter{}},
			{&s.Enabled, store.Filter{Enabled: store.Bool(true)}},
			{&s.Core, store.Filter{Core: store.Bool(true)}},
		}
		for _, c := range counts {
			n, err := q.Count(ctx, c.filter)
			if err != nil {
				return fmt.Errorf("count modules: %w", err)
			}
			*c.dst = n
		}
		return nil
	})
	if err != nil {
		return Statistics{}, err
	}

	s.Disabled = s.Total - s.Enabled
	s.Custom = s.Total - s.Core
	s.Loaded = len(e.Loaded())
	if s.Total > 0 {
		s.EnabledPercentage = math.Round(float64(s.Enabled)/float64(s.Total)*10000) / 100
	}
	return s, nil
}

// EnabledModules returns the configuration of every module that is enabled
// and auto-registered, ordered by sort order then key. The result is served
// from the cache.
func (e *Engine) EnabledModules(ctx context.Context) ([]model.Config, error) {
	return cache.GetOrCompute(ctx, e.cache, e.keys.AllEnabled(), func(ctx context.Context) ([]model.Config, error) {
		modules, err := e.store.List(ctx, store.Filter{
			Enabled:      store.Bool(true),
			AutoRegister: store.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("list enabled modules: %w", err)
		}
		configs := make([]model.Config, 0, len(modules))
		for _, m := range modules {
			configs = append(configs, model.ConfigOf(m))
		}
		return configs, nil
	})
}

// ModuleConfig returns the cached configuration of one module.
func (e *Engine) ModuleConfig(ctx context.Context, key string) (*model.Config, error) {
	cfg, err := cache.GetOrCompute(ctx, e.cache, e.keys.ModuleConfig(key), func(ctx context.Context) (model.Config, error) {
		m, err := e.find(ctx, e.store, "config", key)
		if err != nil {
			return model.Config{}, err
		}
		return model.ConfigOf(m), nil
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsEnabled reports whether key names an enabled module. Lookup failures
// count as disabled.
func (e *Engine) IsEnabled(ctx context.Context, key string) bool {
	cfg, err := e.ModuleConfig(ctx, key)
	if err != nil {
		return false
	}
	return cfg.Enabled
}
