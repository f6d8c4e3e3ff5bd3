package ai

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CatalogProvider is one entry in providers.yaml.
type CatalogProvider struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	BaseURL      string `yaml:"base_url,omitempty"`
	DefaultModel string `yaml:"default_model"`
	Default      bool   `yaml:"default,omitempty"`
}

// Catalog is the user-editable list of AI providers for the direct edit path.
type Catalog struct {
	Providers []CatalogProvider `yaml:"providers"`
}

// DefaultCatalog is what a fresh install starts with.
func DefaultCatalog() Catalog {
	return Catalog{Providers: []CatalogProvider{
		{Name: "anthropic", Type: "anthropic", DefaultModel: "claude-sonnet-4-5", Default: true},
		{Name: "openai", Type: "openai", DefaultModel: "gpt-5"},
	}}
}

// Validate enforces the catalog's shape: unique non-empty names, supported types, a model per
// entry, and exactly one default.
func (c *Catalog) Validate() error {
	if c == nil || len(c.Providers) == 0 {
		return errors.New("providers: at least one entry required")
	}
	seen := make(map[string]struct{}, len(c.Providers))
	defaults := 0
	for i, p := range c.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("providers[%d]: name required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("providers[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		switch strings.ToLower(strings.TrimSpace(p.Type)) {
		case "anthropic", "openai":
		case "openai_compatible":
			if strings.TrimSpace(p.BaseURL) == "" {
				return fmt.Errorf("providers[%d] (%s): openai_compatible requires base_url", i, name)
			}
		default:
			return fmt.Errorf("providers[%d] (%s): unsupported type %q", i, name, p.Type)
		}
		if strings.TrimSpace(p.DefaultModel) == "" {
			return fmt.Errorf("providers[%d] (%s): default_model required", i, name)
		}
		if p.Default {
			defaults++
		}
	}
	if defaults != 1 {
		return fmt.Errorf("providers: exactly one entry must be default, found %d", defaults)
	}
	return nil
}

// Provider looks an entry up by name, case-insensitive.
func (c *Catalog) Provider(name string) (CatalogProvider, bool) {
	if c == nil {
		return CatalogProvider{}, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range c.Providers {
		if strings.ToLower(strings.TrimSpace(p.Name)) == name {
			return p, true
		}
	}
	return CatalogProvider{}, false
}

// Default returns the catalog's default entry. Validate guarantees one exists.
func (c *Catalog) Default() (CatalogProvider, bool) {
	if c == nil {
		return CatalogProvider{}, false
	}
	for _, p := range c.Providers {
		if p.Default {
			return p, true
		}
	}
	return CatalogProvider{}, false
}

// LoadCatalog reads and validates providers.yaml. A missing file yields the default catalog.
func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCatalog(), nil
		}
		return Catalog{}, fmt.Errorf("read provider catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse provider catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("provider catalog %s: %w", path, err)
	}
	return c, nil
}
