// Package manifest loads the declarative module baseline that sync
// reconciles into the registry. The file extension selects the format:
// .yaml/.yml, .toml, .hcl or .json.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/seantiz/modreg/internal/model"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
	ErrInvalidManifest   = errors.New("invalid manifest")
)

// entry is one module in a YAML, TOML or JSON manifest.
type entry struct {
	Key            string         `yaml:"key" toml:"key" json:"key"`
	Name           string         `yaml:"name" toml:"name" json:"name"`
	Description    string         `yaml:"description" toml:"description" json:"description"`
	Enabled        bool           `yaml:"enabled" toml:"enabled" json:"enabled"`
	AutoRegister   *bool          `yaml:"auto_register" toml:"auto_register" json:"auto_register"`
	IntegrationRef string         `yaml:"integration_ref" toml:"integration_ref" json:"integration_ref"`
	Settings       map[string]any `yaml:"settings" toml:"settings" json:"settings"`
	Dependencies   []string       `yaml:"dependencies" toml:"dependencies" json:"dependencies"`
	Version        string         `yaml:"version" toml:"version" json:"version"`
	Author         string         `yaml:"author" toml:"author" json:"author"`
	IsCore         bool           `yaml:"is_core" toml:"is_core" json:"is_core"`
	SortOrder      int            `yaml:"sort_order" toml:"sort_order" json:"sort_order"`
}

type document struct {
	Modules []entry `yaml:"modules" toml:"modules" json:"modules"`
}

func (e entry) descriptor() model.Descriptor {
	autoRegister := true
	if e.AutoRegister != nil {
		autoRegister = *e.AutoRegister
	}
	d := model.Descriptor{
		Key:            e.Key,
		Name:           e.Name,
		Description:    e.Description,
		Enabled:        e.Enabled,
		AutoRegister:   autoRegister,
		IntegrationRef: e.IntegrationRef,
		Settings:       e.Settings,
		Dependencies:   e.Dependencies,
		Version:        e.Version,
		Author:         e.Author,
		IsCore:         e.IsCore,
		SortOrder:      e.SortOrder,
	}
	if d.Name == "" {
		d.Name = model.DisplayName(d.Key)
	}
	return d
}

// Load reads the manifest at path. A missing file yields an empty baseline.
func Load(path string) ([]model.Descriptor, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes manifest data, choosing the format from name's extension.
func Parse(name string, data []byte) ([]model.Descriptor, error) {
	var (
		descriptors []model.Descriptor
		err         error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		descriptors, err = decodeWith(func(doc *document) error {
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(doc); err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		})
	case ".toml":
		descriptors, err = decodeWith(func(doc *document) error {
			md, err := toml.Decode(string(data), doc)
			if err != nil {
				return err
			}
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				return fmt.Errorf("unknown field %s", undecoded[0])
			}
			return nil
		})
	case ".json":
		descriptors, err = decodeWith(func(doc *document) error {
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			return dec.Decode(doc)
		})
	case ".hcl":
		descriptors, err = decodeHCL(name, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", name, err)
	}
	if err := validate(descriptors); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", name, err)
	}
	return descriptors, nil
}

func decodeWith(decode func(doc *document) error) ([]model.Descriptor, error) {
	var doc document
	if err := decode(&doc); err != nil {
		return nil, err
	}
	descriptors := make([]model.Descriptor, 0, len(doc.Modules))
	for _, e := range doc.Modules {
		descriptors = append(descriptors, e.descriptor())
	}
	return descriptors, nil
}

func validate(descriptors []model.Descriptor) error {
	seen := make(map[string]int, len(descriptors))
	for i, d := range descriptors {
		if err := model.ValidateKey(d.Key); err != nil {
			return fmt.Errorf("%w: module %d: %v", ErrInvalidManifest, i+1, err)
		}
		if first, ok := seen[d.Key]; ok {
			return fmt.Errorf("%w: module %q declared twice (entries %d and %d)", ErrInvalidManifest, d.Key, first+1, i+1)
		}
		seen[d.Key] = i
	}
	return nil
}
