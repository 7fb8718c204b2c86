package scripting

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/l1jgo/forge/internal/core/ecs"
	"github.com/l1jgo/forge/internal/core/engine"
	"github.com/l1jgo/forge/internal/core/event"
	coresys "github.com/l1jgo/forge/internal/core/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

type spos struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type sfrozen struct{}

func init() {
	ecs.RegisterComponent[spos]("spos")
	ecs.RegisterComponent[sfrozen]("sfrozen")
}

const moverSrc = `
name = "lua_mover"
filter = { require = {"spos"}, exclude = {"sfrozen"} }
state = { updates = 0 }

function on_update(e)
  local p = e:get("spos")
  e:set("spos", { x = p.x + 1, y = p.y })
  state.updates = state.updates + 1
end
`

func TestCapabilitiesFollowDefinedFunctions(t *testing.T) {
	s, err := Load("mover", "mover.lua", moverSrc, Options{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "lua_mover", s.Name())
	assert.Equal(t, coresys.CapUpdate, s.Capabilities())
	assert.Equal(t, "lua:lua_mover", s.RestoreID())

	f, ok := s.Trigger().(coresys.Filtered)
	require.True(t, ok)
	assert.Equal(t, "require[spos] exclude[sfrozen]", f.Filter().String())

	g, err := Load("ticker", "ticker.lua", `function on_pre_update(frame) end`, Options{})
	require.NoError(t, err)
	defer g.Close()
	assert.Equal(t, "ticker", g.Name())
	_, ok = g.Trigger().(coresys.Filtered)
	assert.False(t, ok)

	sys := coresys.New(g.Trigger())
	assert.Equal(t, coresys.CapPreUpdate, sys.Capabilities())
}

func TestScriptUpdatesEntities(t *testing.T) {
	s, err := Load("mover", "mover.lua", moverSrc, Options{})
	require.NoError(t, err)
	defer s.Close()

	eng, err := engine.New(engine.Options{})
	require.NoError(t, err)
	require.NoError(t, eng.Register(s.Trigger()))

	moving := eng.Create()
	ecs.Set(moving, spos{X: 1})
	frozen := eng.Create()
	ecs.Set(frozen, spos{X: 1})
	ecs.Set(frozen, sfrozen{})

	for i := 0; i < 3; i++ {
		require.NoError(t, eng.Step(context.Background()))
	}
	p, _ := ecs.Get[spos](moving)
	assert.Equal(t, spos{X: 3}, p)
	p, _ = ecs.Get[spos](frozen)
	assert.Equal(t, spos{X: 1}, p)

	state, err := s.ExportState()
	require.NoError(t, err)
	assert.Equal(t, "updates: 3\n", string(state))
}

func TestStateSurvivesReload(t *testing.T) {
	a, err := Load("mover", "mover.lua", moverSrc, Options{})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.ImportState([]byte("updates: 41\n")))

	b, err := Load("mover", "mover.lua", moverSrc, Options{})
	require.NoError(t, err)
	defer b.Close()
	state, err := a.ExportState()
	require.NoError(t, err)
	require.NoError(t, b.ImportState(state))

	v := b.vm.GetGlobal("state").(*lua.LTable).RawGetString("updates")
	assert.Equal(t, lua.LNumber(41), v)
	assert.Error(t, b.ImportState([]byte("{")))
}

func TestEmitAndRemove(t *testing.T) {
	bus := event.NewBus()
	eng, err := engine.New(engine.Options{Bus: bus})
	require.NoError(t, err)

	s, err := Load("reaper", "reaper.lua", `
filter = { require = {"spos"} }
function on_added(e)
  if e:get("spos").x < 0 then
    e:emit({ reason = "offscreen", tags = {"a", "b"} })
    e:remove()
  end
end
`, Options{Remover: eng})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, eng.Register(s.Trigger()))

	var got []Event
	event.Subscribe(bus, func(_ ecs.EntityID, ev Event) { got = append(got, ev) })

	keep := eng.Create()
	ecs.Set(keep, spos{X: 1})
	drop := eng.Create()
	ecs.Set(drop, spos{X: -1})

	require.NoError(t, eng.Step(context.Background()))
	require.Len(t, got, 1)
	assert.Equal(t, "reaper", got[0].Script)
	assert.Equal(t, map[string]any{
		"reason": "offscreen",
		"tags":   []any{"a", "b"},
	}, got[0].Data)
	assert.False(t, drop.Visible())
	assert.True(t, keep.Visible())

	require.NoError(t, eng.Step(context.Background()))
	assert.Equal(t, 1, eng.World().Registry().Len())
}

func TestScriptErrors(t *testing.T) {
	_, err := Load("bad", "bad.lua", `function on_update(e`, Options{})
	assert.ErrorContains(t, err, "load bad.lua")

	_, err = Load("bad", "bad.lua", `filter = { require = {"nope"} }`, Options{})
	assert.ErrorContains(t, err, `unknown component "nope"`)

	_, err = Load("bad", "bad.lua", `filter = 3`, Options{})
	assert.ErrorContains(t, err, "filter must be a table")

	s, err := Load("broken", "broken.lua", `
filter = { require = {"spos"} }
function on_update(e) e:set("missing", {}) end
`, Options{})
	require.NoError(t, err)
	defer s.Close()

	eng, err := engine.New(engine.Options{})
	require.NoError(t, err)
	require.NoError(t, eng.Register(s.Trigger()))
	ecs.Set(eng.Create(), spos{})

	err = eng.Step(context.Background())
	assert.ErrorContains(t, err, "lua broken on_update")
}

func TestRemoveWithoutWorldRaises(t *testing.T) {
	s, err := Load("r", "r.lua", `
filter = { require = {"spos"} }
function on_update(e) e:remove() end
`, Options{})
	require.NoError(t, err)
	defer s.Close()

	w := ecs.NewWorld()
	e := w.Create()
	assert.ErrorContains(t, s.OnUpdate(e), "has no world")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	write("b_second.lua", `function on_post_update(frame) end`)
	write("a_first.lua", `name = "first"`)
	write("notes.txt", `not lua`)

	scripts, err := LoadDir(dir, Options{})
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Equal(t, "first", scripts[0].Name())
	assert.Equal(t, "b_second", scripts[1].Name())
	for _, s := range scripts {
		s.Close()
	}

	none, err := LoadDir(filepath.Join(dir, "missing"), Options{})
	require.NoError(t, err)
	assert.Empty(t, none)

	write("c_bad.lua", `error("boom")`)
	_, err = LoadDir(dir, Options{})
	assert.ErrorContains(t, err, "boom")
}

func TestFromLuaShapes(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	require.NoError(t, L.DoString(`
list = {1, 2.5, "x"}
map = { a = true, n = { 3 } }
bad = { [true] = 1 }
`))

	v, err := fromLua(L.GetGlobal("list"))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), 2.5, "x"}, v)

	v, err = fromLua(L.GetGlobal("map"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": true, "n": []any{int64(3)}}, v)

	_, err = fromLua(L.GetGlobal("bad"))
	assert.Error(t, err)
}
