// Package catalog serves the system license templates.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
)

// Catalog exposes the current set of templates.
type Catalog interface {
	All(ctx context.Context) []license.Template
	ByName(ctx context.Context, name string) (license.Template, bool)
}

// Static is a fixed in-memory catalog.
type Static []license.Template

// All implements Catalog.
func (s Static) All(context.Context) []license.Template {
	out := make([]license.Template, len(s))
	copy(out, s)
	return out
}

// ByName implements Catalog.
func (s Static) ByName(_ context.Context, name string) (license.Template, bool) {
	for _, t := range s {
		if t.Name == name {
			return t, true
		}
	}
	return license.Template{}, false
}

// FileCatalog loads templates from a JSON or YAML file and can be reloaded
// while sessions are reading it.
type FileCatalog struct {
	path    string
	current atomic.Pointer[[]license.Template]
}

// NewFileCatalog reads path and returns a catalog.
func NewFileCatalog(path string) (*FileCatalog, error) {
	c := &FileCatalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the file. On error the previous templates stay in place.
func (c *FileCatalog) Reload() error {
	templates, err := LoadFile(c.path)
	if err != nil {
		return err
	}
	c.current.Store(&templates)
	logger.Info("license templates loaded", "path", c.path, "count", len(templates))
	return nil
}

// All implements Catalog.
func (c *FileCatalog) All(ctx context.Context) []license.Template {
	return Static(*c.current.Load()).All(ctx)
}

// ByName implements Catalog.
func (c *FileCatalog) ByName(ctx context.Context, name string) (license.Template, bool) {
	return Static(*c.current.Load()).ByName(ctx, name)
}

// LoadFile parses and validates a template file.
func LoadFile(path string) ([]license.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML or JSON array of templates and validates it.
func Parse(data []byte) ([]license.Template, error) {
	var templates []license.Template
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if err := Validate(templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// Validate checks names are present, within limits and unique.
func Validate(templates []license.Template) error {
	var errs []error
	seen := make(map[string]bool, len(templates))
	for i, t := range templates {
		name, err := license.ValidateName(t.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("template %d: %w", i, err))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("template %d: duplicate name %q", i, name))
		}
		seen[name] = true
		if t.RestrictionsNote != nil {
			if _, err := license.ValidateNote(*t.RestrictionsNote); err != nil {
				errs = append(errs, fmt.Errorf("template %q: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

var (
	_ Catalog = Static(nil)
	_ Catalog = (*FileCatalog)(nil)
)
