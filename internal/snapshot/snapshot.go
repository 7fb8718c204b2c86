// Package snapshot defines the persisted shape of an engine and its YAML
// encoding.
package snapshot

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/l1jgo/forge/internal/core/ecs"
	"gopkg.in/yaml.v3"
)

// Snapshot is the complete live state of an engine between frames.
type Snapshot struct {
	Frame     uint64        `yaml:"frame"`
	Pool      ecs.PoolState `yaml:"pool"`
	Singleton Entity        `yaml:"singleton"`
	Active    []Entity      `yaml:"active"`
	Added     []Entity      `yaml:"added"`
	Removed   []Entity      `yaml:"removed"`
	Systems   []System      `yaml:"systems,omitempty"`
}

// Entity carries committed components, writes staged for the next commit and
// components removed at the latest commit.
type Entity struct {
	ID         ecs.EntityID `yaml:"id"`
	Components Components   `yaml:"components,omitempty"`
	Staged     Components   `yaml:"staged,omitempty"`
	Unset      []string     `yaml:"unset,omitempty,flow"`
	Previous   Components   `yaml:"previous,omitempty"`
}

// System carries per-system state: entities marked modified for the next
// frame and, for restorable systems, their exported state as text.
type System struct {
	Name      string         `yaml:"name"`
	Modified  []ecs.EntityID `yaml:"modified,omitempty,flow"`
	RestoreID string         `yaml:"restore_id,omitempty"`
	State     string         `yaml:"state,omitempty"`
}

// Components maps registered component names to values. Decoding resolves
// each name through the ecs component registry so values come back typed.
type Components map[string]any

func (c *Components) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: components must be a mapping", node.Line)
	}
	out := make(Components, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		val := node.Content[i+1]
		_, v, err := ecs.DecodeComponent(name, func(ptr any) error {
			return val.Decode(ptr)
		})
		if err != nil {
			return fmt.Errorf("line %d: %w", val.Line, err)
		}
		out[name] = v
	}
	*c = out
	return nil
}

// Typed converts to component types.
func (c Components) Typed() (map[ecs.ComponentType]any, error) {
	out := make(map[ecs.ComponentType]any, len(c))
	for name, v := range c {
		t, ok := ecs.LookupType(name)
		if !ok {
			return nil, fmt.Errorf("unknown component %q", name)
		}
		out[t] = v
	}
	return out, nil
}

// FromTyped converts component types to names; nil for an empty map.
func FromTyped(m map[ecs.ComponentType]any) Components {
	if len(m) == 0 {
		return nil
	}
	out := make(Components, len(m))
	for t, v := range m {
		out[t.Name()] = v
	}
	return out
}

func Encode(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) (*Snapshot, error) {
	s := &Snapshot{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// LoadFile reads a YAML snapshot.
func LoadFile(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	s, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// SaveFile writes a YAML snapshot through a temp file and rename so a crash
// never leaves a truncated file behind.
func SaveFile(path string, s *Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
