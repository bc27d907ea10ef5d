package store

import (
	"context"
	"errors"

	"github.com/seantiz/modreg/internal/model"
)

var (
	// ErrNotFound is returned when no module exists for a key.
	ErrNotFound = errors.New("module not found")

	// ErrDuplicateKey is returned when inserting a key that already exists.
	ErrDuplicateKey = errors.New("module key already exists")

	// ErrNotProvisioned is returned by Ready when the schema is missing.
	ErrNotProvisioned = errors.New("module store not provisioned")
)

// Filter restricts List, Count and Dependents. Nil fields match everything.
type Filter struct {
	Enabled      *bool
	AutoRegister *bool
	Core         *bool
}

// Bool returns a pointer to b, for building filters.
func Bool(b bool) *bool { return &b }

// Queries are the row operations on module records. Implementations run them
// either directly against the database or inside a transaction.
type Queries interface {
	Find(ctx context.Context, key string) (*model.Module, error)
	List(ctx context.Context, f Filter) ([]*model.Module, error)
	Count(ctx context.Context, f Filter) (int, error)
	// Dependents returns the keys of modules matching f whose dependency
	// list contains key, ordered like List.
	Dependents(ctx context.Context, key string, f Filter) ([]string, error)
	Insert(ctx context.Context, m *model.Module) error
	// Upsert inserts m or overwrites the existing record with the same key.
	// It reports whether a new record was created.
	Upsert(ctx context.Context, m *model.Module) (bool, error)
	Update(ctx context.Context, m *model.Module) error
	Delete(ctx context.Context, key string) error
}

// Store defines the persistence operations for module records.
type Store interface {
	Queries
	// WithTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. fn must only use the Queries it
	// is given.
	WithTx(ctx context.Context, fn func(q Queries) error) error
	// Ready reports whether the store is reachable and provisioned.
	Ready(ctx context.Context) error
	Close() error
}
