package model

import (
	"maps"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultVersion is recorded when a module is installed or declared without one.
const DefaultVersion = "1.0.0"

// NewID generates a new ULID string for use as a record identifier.
func NewID() string {
	return ulid.Make().String()
}

// Module is the persisted record for a single module key.
type Module struct {
	ID             string         `json:"id"`
	Key            string         `json:"key"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Enabled        bool           `json:"enabled"`
	AutoRegister   bool           `json:"auto_register"`
	IntegrationRef string         `json:"integration_ref,omitempty"`
	Settings       map[string]any `json:"settings"`
	Dependencies   []string       `json:"dependencies"`
	Version        string         `json:"version,omitempty"`
	Author         string         `json:"author,omitempty"`
	Changelog      string         `json:"changelog,omitempty"`
	IsCore         bool           `json:"is_core"`
	SortOrder      int            `json:"sort_order"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Clone returns a deep-enough copy: the settings map and dependency slice
// are copied so callers can mutate them freely. Nested settings values are
// shared.
func (m *Module) Clone() *Module {
	c := *m
	c.Settings = maps.Clone(m.Settings)
	c.Dependencies = slices.Clone(m.Dependencies)
	return &c
}

// Config is the resolved view of a module handed to the runtime loader.
type Config struct {
	Key            string         `json:"key"`
	Enabled        bool           `json:"enabled"`
	AutoRegister   bool           `json:"auto_register"`
	IntegrationRef string         `json:"integration_ref,omitempty"`
	Settings       map[string]any `json:"settings"`
	Dependencies   []string       `json:"dependencies"`
	Version        string         `json:"version,omitempty"`
	Author         string         `json:"author,omitempty"`
	IsCore         bool           `json:"is_core"`
	SortOrder      int            `json:"sort_order"`
}

// ConfigOf projects a record onto its resolved configuration.
func ConfigOf(m *Module) Config {
	settings := m.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	deps := m.Dependencies
	if deps == nil {
		deps = []string{}
	}
	return Config{
		Key:            m.Key,
		Enabled:        m.Enabled,
		AutoRegister:   m.AutoRegister,
		IntegrationRef: m.IntegrationRef,
		Settings:       settings,
		Dependencies:   deps,
		Version:        m.Version,
		Author:         m.Author,
		IsCore:         m.IsCore,
		SortOrder:      m.SortOrder,
	}
}

// Descriptor is one entry of the declarative module baseline.
type Descriptor struct {
	Key            string         `json:"key"`
	Name           string         `json:"name,omitempty"`
	Description    string         `json:"description,omitempty"`
	Enabled        bool           `json:"enabled"`
	AutoRegister   bool           `json:"auto_register"`
	IntegrationRef string         `json:"integration_ref,omitempty"`
	Settings       map[string]any `json:"settings,omitempty"`
	Dependencies   []string       `json:"dependencies,omitempty"`
	Version        string         `json:"version,omitempty"`
	Author         string         `json:"author,omitempty"`
	IsCore         bool           `json:"is_core"`
	SortOrder      int            `json:"sort_order"`
}

// Apply overwrites every declared field of m with the descriptor's values.
// Identity (ID, Key) and fields the baseline does not carry are preserved.
func (d Descriptor) Apply(m *Module) {
	m.Name = d.Name
	if m.Name == "" {
		m.Name = DisplayName(d.Key)
	}
	m.Description = d.Description
	m.Enabled = d.Enabled
	m.AutoRegister = d.AutoRegister
	m.IntegrationRef = d.IntegrationRef
	m.Settings = maps.Clone(d.Settings)
	if m.Settings == nil {
		m.Settings = map[string]any{}
	}
	m.Dependencies = slices.Clone(d.Dependencies)
	if m.Dependencies == nil {
		m.Dependencies = []string{}
	}
	m.Version = d.Version
	if m.Version == "" {
		m.Version = DefaultVersion
	}
	m.Author = d.Author
	m.IsCore = d.IsCore
	m.SortOrder = d.SortOrder
}

// Less orders modules by sort order, then key.
func Less(a, b *Module) bool {
	if a.SortOrder != b.SortOrder {
		return a.SortOrder < b.SortOrder
	}
	return a.Key < b.Key
}
