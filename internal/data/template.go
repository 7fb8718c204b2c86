package data

import (
	"fmt"
	"os"
	"sort"

	"github.com/l1jgo/forge/internal/core/ecs"
	"github.com/l1jgo/forge/internal/snapshot"
	"gopkg.in/yaml.v3"
)

// Template is a named set of component values loaded from YAML. Component
// keys are registered component names.
type Template struct {
	Name       string              `yaml:"name"`
	Components snapshot.Components `yaml:"components"`
}

type templateListFile struct {
	Templates []Template `yaml:"templates"`
}

// Creator allocates entities; both ecs.World and engine.Engine satisfy it.
type Creator interface {
	Create() *ecs.Entity
}

// TemplateTable holds entity templates indexed by name.
type TemplateTable struct {
	templates map[string]*Template
}

// LoadTemplateTable loads templates from a YAML file. Component types must be
// registered before loading.
func LoadTemplateTable(path string) (*TemplateTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	t, err := ParseTemplates(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseTemplates decodes a template list.
func ParseTemplates(raw []byte) (*TemplateTable, error) {
	var f templateListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	t := &TemplateTable{templates: make(map[string]*Template, len(f.Templates))}
	for i := range f.Templates {
		tpl := &f.Templates[i]
		if tpl.Name == "" {
			return nil, fmt.Errorf("template %d has no name", i)
		}
		if _, dup := t.templates[tpl.Name]; dup {
			return nil, fmt.Errorf("duplicate template %q", tpl.Name)
		}
		t.templates[tpl.Name] = tpl
	}
	return t, nil
}

// Get returns a template by name, or nil if not found.
func (t *TemplateTable) Get(name string) *Template {
	return t.templates[name]
}

// Count returns the number of loaded templates.
func (t *TemplateTable) Count() int {
	return len(t.templates)
}

// Names lists template names in order.
func (t *TemplateTable) Names() []string {
	out := make([]string, 0, len(t.templates))
	for n := range t.templates {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Spawn creates an entity from the named template. Components are staged and
// become visible when the entity is committed.
func (t *TemplateTable) Spawn(c Creator, name string) (*ecs.Entity, error) {
	tpl := t.templates[name]
	if tpl == nil {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	comps, err := tpl.Components.Typed()
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", name, err)
	}
	e := c.Create()
	for ct, v := range comps {
		e.SetValue(ct, v)
	}
	return e, nil
}
