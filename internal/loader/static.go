package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/modreg/internal/model"
)

// ErrUndeclared is returned by StaticSource for keys the baseline does not
// declare.
var ErrUndeclared = errors.New("module not declared")

// Marker records which modules the loader registered.
type Marker interface {
	MarkLoaded(key, ref string)
}

// StaticSource feeds the loader from a declared baseline without a store.
type StaticSource struct {
	marker Marker

	mu      sync.RWMutex
	modules []*model.Module
	byKey   map[string]*model.Module
}

var _ Source = (*StaticSource)(nil)

// NewStaticSource serves declared. Registrations are reported to marker,
// which may be nil.
func NewStaticSource(declared []model.Descriptor, marker Marker) *StaticSource {
	s := &StaticSource{marker: marker}
	s.Replace(declared)
	return s
}

// Replace swaps in a new baseline. Later declarations of a key win.
func (s *StaticSource) Replace(declared []model.Descriptor) {
	byKey := make(map[string]*model.Module, len(declared))
	for _, d := range declared {
		m := &model.Module{Key: d.Key}
		d.Apply(m)
		byKey[d.Key] = m
	}
	modules := make([]*model.Module, 0, len(byKey))
	for _, m := range byKey {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool { return model.Less(modules[i], modules[j]) })

	s.mu.Lock()
	s.modules = modules
	s.byKey = byKey
	s.mu.Unlock()
}

// EnabledModules returns the declared modules that are enabled and
// auto-registered, by sort order then key.
func (s *StaticSource) EnabledModules(ctx context.Context) ([]model.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configs := []model.Config{}
	for _, m := range s.modules {
		if m.Enabled && m.AutoRegister {
			configs = append(configs, model.ConfigOf(m.Clone()))
		}
	}
	return configs, nil
}

// ModuleConfig returns the declared configuration of key.
func (s *StaticSource) ModuleConfig(ctx context.Context, key string) (*model.Config, error) {
	s.mu.RLock()
	m, ok := s.byKey[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndeclared, key)
	}
	cfg := model.ConfigOf(m.Clone())
	return &cfg, nil
}

// MarkLoaded forwards to the marker.
func (s *StaticSource) MarkLoaded(key, ref string) {
	if s.marker != nil {
		s.marker.MarkLoaded(key, ref)
	}
}
