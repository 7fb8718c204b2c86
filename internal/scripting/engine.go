// Package scripting runs systems written in Lua. Each script gets its own
// gopher-lua VM; a system's callbacks never run on two goroutines at once, so
// a VM is only ever used by one goroutine at a time.
package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/l1jgo/forge/internal/core/ecs"
	coresys "github.com/l1jgo/forge/internal/core/system"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const entityTypeName = "forge.entity"

// Callback globals a script may define.
var callbacks = map[string]coresys.Capability{
	"on_update":       coresys.CapUpdate,
	"on_input":        coresys.CapInput,
	"on_global_input": coresys.CapGlobalInput,
	"on_pre_update":   coresys.CapPreUpdate,
	"on_post_update":  coresys.CapPostUpdate,
	"on_added":        coresys.CapAdded,
	"on_removed":      coresys.CapRemoved,
	"on_modified":     coresys.CapModified,
}

// Remover queues entity removal for the entity:remove() script method.
type Remover interface {
	Remove(e *ecs.Entity) bool
}

// Event is emitted on an entity by entity:emit(value).
type Event struct {
	Script string
	Data   any
}

// Script is a Lua-backed system trigger.
type Script struct {
	name    string
	path    string
	vm      *lua.LState
	log     *zap.Logger
	remover Remover

	caps      coresys.Capability
	filter    ecs.Filter
	hasFilter bool
	fns       map[string]*lua.LFunction
}

// Options configure loading.
type Options struct {
	Log *zap.Logger
	// Remover backs entity:remove(); nil makes it raise an error.
	Remover Remover
}

// LoadDir loads every .lua file in dir, in file name order. A missing dir
// yields no scripts.
func LoadDir(dir string, opts Options) ([]*Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	scripts := make([]*Script, 0, len(names))
	for _, n := range names {
		s, err := LoadFile(filepath.Join(dir, n), opts)
		if err != nil {
			for _, loaded := range scripts {
				loaded.Close()
			}
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// LoadFile loads one script. The system name defaults to the file name
// without extension.
func LoadFile(path string, opts Options) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	def := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Load(def, path, string(src), opts)
}

// Load compiles src and reads its globals.
func Load(defaultName, chunk, src string, opts Options) (*Script, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	s := &Script{
		name:    defaultName,
		path:    chunk,
		vm:      vm,
		remover: opts.Remover,
		fns:     make(map[string]*lua.LFunction, len(callbacks)),
	}
	s.log = log.With(zap.String("script", chunk))
	s.registerAPI()

	fn, err := vm.Load(strings.NewReader(src), chunk)
	if err != nil {
		vm.Close()
		return nil, fmt.Errorf("load %s: %w", chunk, err)
	}
	vm.Push(fn)
	if err := vm.PCall(0, lua.MultRet, nil); err != nil {
		vm.Close()
		return nil, fmt.Errorf("run %s: %w", chunk, err)
	}
	if err := s.readGlobals(); err != nil {
		vm.Close()
		return nil, fmt.Errorf("%s: %w", chunk, err)
	}
	s.log.Debug("loaded lua script",
		zap.String("system", s.name),
		zap.Uint16("caps", uint16(s.caps)),
		zap.Stringer("filter", s.filter),
	)
	return s, nil
}

func (s *Script) readGlobals() error {
	if n, ok := s.vm.GetGlobal("name").(lua.LString); ok && n != "" {
		s.name = string(n)
	}
	for g, c := range callbacks {
		if fn, ok := s.vm.GetGlobal(g).(*lua.LFunction); ok {
			s.fns[g] = fn
			s.caps |= c
		}
	}

	switch f := s.vm.GetGlobal("filter").(type) {
	case *lua.LNilType:
	case *lua.LTable:
		req, err := typeList(f.RawGetString("require"))
		if err != nil {
			return fmt.Errorf("filter.require: %w", err)
		}
		exc, err := typeList(f.RawGetString("exclude"))
		if err != nil {
			return fmt.Errorf("filter.exclude: %w", err)
		}
		s.filter = ecs.NewFilter(req...).Without(exc...)
		s.hasFilter = true
	default:
		return fmt.Errorf("filter must be a table, got %s", f.Type())
	}
	return nil
}

func typeList(v lua.LValue) ([]ecs.ComponentType, error) {
	if v == lua.LNil {
		return nil, nil
	}
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("expected a list of component names")
	}
	var out []ecs.ComponentType
	var bad error
	t.ForEach(func(_, n lua.LValue) {
		ct, ok := ecs.LookupType(lua.LVAsString(n))
		if !ok && bad == nil {
			bad = fmt.Errorf("unknown component %q", lua.LVAsString(n))
		}
		out = append(out, ct)
	})
	return out, bad
}

// Trigger returns the value to register with the engine: a filtered trigger
// when the script declares a filter, the script itself otherwise.
func (s *Script) Trigger() any {
	if s.hasFilter {
		return filtered{s}
	}
	return s
}

type filtered struct{ *Script }

func (f filtered) Filter() ecs.Filter { return f.filter }

func (s *Script) Name() string                     { return s.name }
func (s *Script) Path() string                     { return s.path }
func (s *Script) Capabilities() coresys.Capability { return s.caps }

func (s *Script) OnUpdate(e *ecs.Entity) error {
	return s.call("on_update", s.entity(e))
}

func (s *Script) OnInput(in any, e *ecs.Entity) error {
	v, err := toLuaValue(s.vm, in)
	if err != nil {
		return err
	}
	return s.call("on_input", v, s.entity(e))
}

func (s *Script) OnGlobalInput(in any) error {
	v, err := toLuaValue(s.vm, in)
	if err != nil {
		return err
	}
	return s.call("on_global_input", v)
}

func (s *Script) OnPreUpdate(frame uint64) error {
	return s.call("on_pre_update", lua.LNumber(frame))
}

func (s *Script) OnPostUpdate(frame uint64) error {
	return s.call("on_post_update", lua.LNumber(frame))
}

func (s *Script) OnAdded(e *ecs.Entity) error    { return s.call("on_added", s.entity(e)) }
func (s *Script) OnRemoved(e *ecs.Entity) error  { return s.call("on_removed", s.entity(e)) }
func (s *Script) OnModified(e *ecs.Entity) error { return s.call("on_modified", s.entity(e)) }

func (s *Script) RestoreID() string { return "lua:" + s.name }

// ExportState encodes the script's global state table as YAML.
func (s *Script) ExportState() ([]byte, error) {
	v, err := fromLua(s.vm.GetGlobal("state"))
	if err != nil {
		return nil, fmt.Errorf("export state: %w", err)
	}
	return yaml.Marshal(v)
}

// ImportState replaces the script's global state table.
func (s *Script) ImportState(data []byte) error {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("import state: %w", err)
	}
	s.vm.SetGlobal("state", toLua(s.vm, v))
	return nil
}

func (s *Script) call(name string, args ...lua.LValue) error {
	fn := s.fns[name]
	if fn == nil {
		return nil
	}
	if err := s.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...); err != nil {
		return fmt.Errorf("lua %s %s: %w", s.name, name, err)
	}
	return nil
}

// Close shuts down the Lua VM.
func (s *Script) Close() {
	s.vm.Close()
}

// --- entity bridge ---

func (s *Script) registerAPI() {
	mt := s.vm.NewTypeMetatable(entityTypeName)
	s.vm.SetField(mt, "__index", s.vm.SetFuncs(s.vm.NewTable(), map[string]lua.LGFunction{
		"id":       s.luaID,
		"has":      s.luaHas,
		"get":      s.luaGet,
		"previous": s.luaPrevious,
		"set":      s.luaSet,
		"unset":    s.luaUnset,
		"emit":     s.luaEmit,
		"remove":   s.luaRemove,
	}))
	s.vm.SetGlobal("log", s.vm.NewFunction(func(L *lua.LState) int {
		s.log.Info(L.CheckString(1), zap.String("system", s.name))
		return 0
	}))
}

func (s *Script) entity(e *ecs.Entity) lua.LValue {
	ud := s.vm.NewUserData()
	ud.Value = e
	s.vm.SetMetatable(ud, s.vm.GetTypeMetatable(entityTypeName))
	return ud
}

func checkEntity(L *lua.LState) *ecs.Entity {
	ud := L.CheckUserData(1)
	if e, ok := ud.Value.(*ecs.Entity); ok {
		return e
	}
	L.ArgError(1, "entity expected")
	return nil
}

func checkType(L *lua.LState, n int) ecs.ComponentType {
	name := L.CheckString(n)
	t, ok := ecs.LookupType(name)
	if !ok {
		L.ArgError(n, fmt.Sprintf("unknown component %q", name))
	}
	return t
}

func (s *Script) luaID(L *lua.LState) int {
	L.Push(lua.LNumber(checkEntity(L).ID()))
	return 1
}

func (s *Script) luaHas(L *lua.LState) int {
	e := checkEntity(L)
	L.Push(lua.LBool(e.Has(checkType(L, 2))))
	return 1
}

func (s *Script) luaGet(L *lua.LState) int {
	e := checkEntity(L)
	v, ok := e.Value(checkType(L, 2))
	return s.pushValue(L, v, ok)
}

func (s *Script) luaPrevious(L *lua.LState) int {
	e := checkEntity(L)
	v, ok := e.PreviousValue(checkType(L, 2))
	return s.pushValue(L, v, ok)
}

func (s *Script) pushValue(L *lua.LState, v any, ok bool) int {
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	lv, err := toLuaValue(L, v)
	if err != nil {
		L.RaiseError("%v", err)
		return 0
	}
	L.Push(lv)
	return 1
}

func (s *Script) luaSet(L *lua.LState) int {
	e := checkEntity(L)
	name := L.CheckString(2)
	raw, err := fromLua(L.CheckAny(3))
	if err != nil {
		L.ArgError(3, err.Error())
		return 0
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		L.RaiseError("set %s: %v", name, err)
		return 0
	}
	t, v, err := ecs.DecodeComponent(name, func(ptr any) error {
		return yaml.Unmarshal(data, ptr)
	})
	if err != nil {
		L.RaiseError("set: %v", err)
		return 0
	}
	e.SetValue(t, v)
	return 0
}

func (s *Script) luaUnset(L *lua.LState) int {
	e := checkEntity(L)
	L.Push(lua.LBool(e.Unset(checkType(L, 2))))
	return 1
}

func (s *Script) luaEmit(L *lua.LState) int {
	e := checkEntity(L)
	v, err := fromLua(L.CheckAny(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	e.Emit(Event{Script: s.name, Data: v})
	return 0
}

func (s *Script) luaRemove(L *lua.LState) int {
	e := checkEntity(L)
	if s.remover == nil {
		L.RaiseError("remove: script %s has no world", s.name)
		return 0
	}
	L.Push(lua.LBool(s.remover.Remove(e)))
	return 1
}

// --- value conversion ---

// toLuaValue converts a Go value to Lua through its YAML form, so component
// structs show up with their yaml field names.
func toLuaValue(L *lua.LState, v any) (lua.LValue, error) {
	switch x := v.(type) {
	case nil:
		return lua.LNil, nil
	case string:
		return lua.LString(x), nil
	case bool:
		return lua.LBool(x), nil
	case int:
		return lua.LNumber(x), nil
	case float64:
		return lua.LNumber(x), nil
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return toLua(L, generic), nil
}

// toLua converts the generic YAML shapes.
func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []any:
		t := L.CreateTable(len(x), 0)
		for _, item := range x {
			t.Append(toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(x))
		for k, item := range x {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

// fromLua converts a Lua value to generic Go data. Tables with only
// consecutive integer keys become slices; other tables need string keys.
// Integral numbers come back as int64.
func fromLua(v lua.LValue) (any, error) {
	switch x := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(x), nil
	case lua.LString:
		return string(x), nil
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), nil
		}
		return f, nil
	case *lua.LTable:
		if n := x.MaxN(); n > 0 && x.Len() == n && countKeys(x) == n {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				item, err := fromLua(x.RawGetInt(i))
				if err != nil {
					return nil, err
				}
				out = append(out, item)
			}
			return out, nil
		}
		out := make(map[string]any)
		var err error
		x.ForEach(func(k, item lua.LValue) {
			if err != nil {
				return
			}
			ks, ok := k.(lua.LString)
			if !ok {
				err = fmt.Errorf("table key %s is not a string", k.String())
				return
			}
			var conv any
			conv, err = fromLua(item)
			out[string(ks)] = conv
		})
		return out, err
	default:
		return nil, fmt.Errorf("cannot convert lua %s", v.Type())
	}
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(_, _ lua.LValue) { n++ })
	return n
}
