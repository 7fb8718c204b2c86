package ecs

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// MaxComponentTypes bounds the number of registered component types; it
// matches the width of Mask.
const MaxComponentTypes = 256

// ComponentType identifies a registered component type. Values are small,
// dense integers handed out in registration order.
type ComponentType uint8

type componentInfo struct {
	name string
	typ  reflect.Type
}

// The type table is process-wide so generic accessors can resolve T without
// carrying a world around.
var types = struct {
	sync.RWMutex
	infos  []componentInfo
	byType map[reflect.Type]ComponentType
	byName map[string]ComponentType
}{
	byType: make(map[reflect.Type]ComponentType, 32),
	byName: make(map[string]ComponentType, 32),
}

// RegisterComponent registers T under a stable name used by snapshots and
// scripts. Registering the same T and name again returns the existing type.
// It panics when the name or T is already bound to something else, or when the
// table is full.
func RegisterComponent[T any](name string) ComponentType {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	types.Lock()
	defer types.Unlock()
	if t, ok := types.byType[rt]; ok {
		if types.infos[t].name != name {
			panic(fmt.Sprintf("ecs: %s already registered as %q", rt, types.infos[t].name))
		}
		return t
	}
	if _, ok := types.byName[name]; ok {
		panic(fmt.Sprintf("ecs: component name %q already registered", name))
	}
	if len(types.infos) >= MaxComponentTypes {
		panic("ecs: too many component types")
	}
	t := ComponentType(len(types.infos))
	types.infos = append(types.infos, componentInfo{name: name, typ: rt})
	types.byType[rt] = t
	types.byName[name] = t
	return t
}

// TypeOf returns the registered type of T. It panics if T was never registered.
func TypeOf[T any]() ComponentType {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	types.RLock()
	t, ok := types.byType[rt]
	types.RUnlock()
	if !ok {
		panic(fmt.Sprintf("ecs: component %s not registered", rt))
	}
	return t
}

// LookupType resolves a registered component name.
func LookupType(name string) (ComponentType, bool) {
	types.RLock()
	defer types.RUnlock()
	t, ok := types.byName[name]
	return t, ok
}

func (t ComponentType) Name() string {
	types.RLock()
	defer types.RUnlock()
	if int(t) >= len(types.infos) {
		return fmt.Sprintf("component#%d", t)
	}
	return types.infos[t].name
}

// DecodeComponent builds a zero value of the type registered under name and
// lets decode fill it through a pointer. It returns the value (not the pointer).
func DecodeComponent(name string, decode func(ptr any) error) (ComponentType, any, error) {
	types.RLock()
	t, ok := types.byName[name]
	var rt reflect.Type
	if ok {
		rt = types.infos[t].typ
	}
	types.RUnlock()
	if !ok {
		return 0, nil, fmt.Errorf("unknown component %q", name)
	}
	ptr := reflect.New(rt)
	if err := decode(ptr.Interface()); err != nil {
		return 0, nil, fmt.Errorf("decode component %q: %w", name, err)
	}
	return t, ptr.Elem().Interface(), nil
}

// sortByName orders component types by registered name, the canonical order
// for hashing and export.
func sortByName(ts []ComponentType) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Name() < ts[j].Name() })
}

// Get returns the committed value of component T.
func Get[T any](e *Entity) (T, bool) {
	v, ok := e.Value(TypeOf[T]())
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Set stages a write of component T; it becomes visible at the next commit.
func Set[T any](e *Entity, v T) {
	e.SetValue(TypeOf[T](), v)
}

// Unset stages removal of component T.
func Unset[T any](e *Entity) bool {
	return e.Unset(TypeOf[T]())
}

// Has reports whether T is part of the committed composition.
func Has[T any](e *Entity) bool {
	return e.Has(TypeOf[T]())
}

// Previous returns the last value of T if it was removed at the latest commit.
func Previous[T any](e *Entity) (T, bool) {
	v, ok := e.PreviousValue(TypeOf[T]())
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}
