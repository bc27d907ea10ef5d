package manifest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/seantiz/modreg/internal/model"
)

// hclFile is the top-level structure of an HCL manifest:
//
//	module "payment_gateway" {
//	  enabled  = true
//	  settings = { currency = "EUR" }
//	}
type hclFile struct {
	Modules []*hclModule `hcl:"module,block"`
}

type hclModule struct {
	Key            string    `hcl:"key,label"`
	Name           string    `hcl:"name,optional"`
	Description    string    `hcl:"description,optional"`
	Enabled        bool      `hcl:"enabled,optional"`
	AutoRegister   *bool     `hcl:"auto_register,optional"`
	IntegrationRef string    `hcl:"integration_ref,optional"`
	Settings       cty.Value `hcl:"settings,optional"`
	Dependencies   []string  `hcl:"dependencies,optional"`
	Version        string    `hcl:"version,optional"`
	Author         string    `hcl:"author,optional"`
	IsCore         bool      `hcl:"is_core,optional"`
	SortOrder      int       `hcl:"sort_order,optional"`
}

func decodeHCL(name string, data []byte) ([]model.Descriptor, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %w", diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %w", diags)
	}

	descriptors := make([]model.Descriptor, 0, len(parsed.Modules))
	for _, m := range parsed.Modules {
		settings, err := settingsFromCty(m.Settings)
		if err != nil {
			return nil, fmt.Errorf("module %q settings: %w", m.Key, err)
		}
		e := entry{
			Key:            m.Key,
			Name:           m.Name,
			Description:    m.Description,
			Enabled:        m.Enabled,
			AutoRegister:   m.AutoRegister,
			IntegrationRef: m.IntegrationRef,
			Settings:       settings,
			Dependencies:   m.Dependencies,
			Version:        m.Version,
			Author:         m.Author,
			IsCore:         m.IsCore,
			SortOrder:      m.SortOrder,
		}
		descriptors = append(descriptors, e.descriptor())
	}
	return descriptors, nil
}

// settingsFromCty converts an HCL object value into plain Go values by way
// of its JSON encoding.
func settingsFromCty(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, errors.New("settings must be a constant value")
	}
	if t := v.Type(); !t.IsObjectType() && !t.IsMapType() {
		return nil, fmt.Errorf("settings must be an object, got %s", t.FriendlyName())
	}

	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}
