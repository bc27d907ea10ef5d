package loader

import (
	"context"
	"slices"
	"sync"

	"github.com/seantiz/modreg/internal/model"
)

// Integration is the runtime side of a module.
type Integration interface {
	// Register hands the module its settings. It runs before any Boot.
	Register(ctx context.Context, settings map[string]any) error

	// Boot starts the integration once every enabled module is registered.
	Boot(ctx context.Context) error
}

// Factory creates a fresh Integration for the module described by cfg.
type Factory func(cfg model.Config) (Integration, error)

// Funcs adapts a pair of functions to the Integration interface. Nil
// functions succeed.
type Funcs struct {
	RegisterFunc func(ctx context.Context, settings map[string]any) error
	BootFunc     func(ctx context.Context) error
}

func (f Funcs) Register(ctx context.Context, settings map[string]any) error {
	if f.RegisterFunc == nil {
		return nil
	}
	return f.RegisterFunc(ctx, settings)
}

func (f Funcs) Boot(ctx context.Context) error {
	if f.BootFunc == nil {
		return nil
	}
	return f.BootFunc(ctx)
}

// Catalog holds the integration factories known to the process, keyed by
// integration ref.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
	}
}

// Add registers f under ref, replacing any previous factory.
func (c *Catalog) Add(ref string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[ref] = f
}

// Lookup returns the factory for ref.
func (c *Catalog) Lookup(ref string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[ref]
	return f, ok
}

// List returns every known ref, sorted.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	refs := make([]string, 0, len(c.factories))
	for ref := range c.factories {
		refs = append(refs, ref)
	}
	slices.Sort(refs)
	return refs
}

// ResolveRef returns the integration ref for a module: its configured ref,
// or the conventional ref derived from its key.
func ResolveRef(cfg model.Config) string {
	if cfg.IntegrationRef != "" {
		return cfg.IntegrationRef
	}
	return model.ConventionalRef(cfg.Key)
}
