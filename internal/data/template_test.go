package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l1jgo/forge/internal/core/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tplPos struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type tplTag struct {
	Label string `yaml:"label"`
}

func init() {
	ecs.RegisterComponent[tplPos]("tpl_pos")
	ecs.RegisterComponent[tplTag]("tpl_tag")
}

const templates = `
templates:
  - name: marker
    components:
      tpl_pos: {x: 3, y: 4}
      tpl_tag: {label: here}
  - name: dot
    components:
      tpl_pos: {x: 1}
`

func TestParseTemplates(t *testing.T) {
	tt, err := ParseTemplates([]byte(templates))
	require.NoError(t, err)
	assert.Equal(t, 2, tt.Count())
	assert.Equal(t, []string{"dot", "marker"}, tt.Names())
	assert.Nil(t, tt.Get("nope"))

	m := tt.Get("marker")
	require.NotNil(t, m)
	assert.Equal(t, tplPos{X: 3, Y: 4}, m.Components["tpl_pos"])
	assert.Equal(t, tplTag{Label: "here"}, m.Components["tpl_tag"])
}

func TestParseTemplatesErrors(t *testing.T) {
	_, err := ParseTemplates([]byte("templates:\n  - components: {}\n"))
	assert.ErrorContains(t, err, "has no name")

	_, err = ParseTemplates([]byte("templates:\n  - name: a\n  - name: a\n"))
	assert.ErrorContains(t, err, `duplicate template "a"`)

	_, err = ParseTemplates([]byte("templates:\n  - name: a\n    components:\n      nope: {}\n"))
	assert.Error(t, err)
}

func TestSpawnStagesComponents(t *testing.T) {
	tt, err := ParseTemplates([]byte(templates))
	require.NoError(t, err)
	w := ecs.NewWorld()

	e, err := tt.Spawn(w, "marker")
	require.NoError(t, err)
	assert.Equal(t, ecs.StatePendingAdd, e.State())
	assert.False(t, ecs.Has[tplPos](e))

	w.Swap()
	w.Commit(1)
	p, ok := ecs.Get[tplPos](e)
	require.True(t, ok)
	assert.Equal(t, tplPos{X: 3, Y: 4}, p)
	tag, _ := ecs.Get[tplTag](e)
	assert.Equal(t, "here", tag.Label)

	_, err = tt.Spawn(w, "ghost")
	assert.ErrorContains(t, err, `unknown template "ghost"`)
}

func TestLoadTemplateTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(templates), 0o644))
	tt, err := LoadTemplateTable(path)
	require.NoError(t, err)
	assert.Equal(t, 2, tt.Count())

	_, err = LoadTemplateTable(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorContains(t, err, "read templates")
}
