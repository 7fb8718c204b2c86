package ecs

import (
	"sync"
	"sync/atomic"
)

// State is an entity's lifecycle position.
type State int32

const (
	StatePendingAdd State = iota
	StateActive
	StatePendingRemove
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StatePendingAdd:
		return "pending_add"
	case StateActive:
		return "active"
	case StatePendingRemove:
		return "pending_remove"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

type tombstone struct {
	value any
	frame uint64
}

// Entity owns a sparse set of component values.
//
// Reads (Value, Has, Mask, Get) see the committed state, which only changes
// while no worker runs. Writes (SetValue, Unset, Emit) are staged under the
// entity mutex and may come from any goroutine; they fire the matching
// notifier immediately and are applied by the world at the next commit.
type Entity struct {
	id EntityID

	data map[ComponentType]any
	mask Mask
	prev map[ComponentType]tombstone

	mu     sync.Mutex
	writes map[ComponentType]any
	unsets map[ComponentType]struct{}
	events []any

	state   atomic.Int32
	visible atomic.Bool

	// Owned by the world and only touched while no worker runs.
	live  bool
	index int
	slots []int

	queuedWrite  atomic.Bool
	queuedEvents atomic.Bool

	// Modified fires on a write to a component the entity already holds.
	Modified Notifier
	// Composition fires when a component type is added or removed.
	Composition Notifier
	// Events fires when an event is emitted on the entity.
	Events Notifier
}

func newEntity(id EntityID) *Entity {
	return &Entity{
		id:    id,
		data:  make(map[ComponentType]any, 8),
		index: -1,
	}
}

func (e *Entity) ID() EntityID  { return e.id }
func (e *Entity) State() State  { return State(e.state.Load()) }
func (e *Entity) Visible() bool { return e.visible.Load() }

// Live reports whether the entity is attached to the registry.
func (e *Entity) Live() bool { return e.live }
func (e *Entity) Mask() Mask { return e.mask }

func (e *Entity) Has(t ComponentType) bool { return e.mask.Has(t) }

func (e *Entity) Value(t ComponentType) (any, bool) {
	v, ok := e.data[t]
	return v, ok
}

// PreviousValue returns the value of t if it was removed at the latest commit
// and has not been purged yet.
func (e *Entity) PreviousValue(t ComponentType) (any, bool) {
	ts, ok := e.prev[t]
	if !ok {
		return nil, false
	}
	return ts.value, true
}

// Types lists the committed component types in name order.
func (e *Entity) Types() []ComponentType {
	ts := make([]ComponentType, 0, len(e.data))
	for t := range e.data {
		ts = append(ts, t)
	}
	sortByName(ts)
	return ts
}

// SetValue stages v as the next value of t.
func (e *Entity) SetValue(t ComponentType, v any) {
	e.mu.Lock()
	existed := e.willHaveLocked(t)
	if e.writes == nil {
		e.writes = make(map[ComponentType]any, 4)
	}
	e.writes[t] = v
	delete(e.unsets, t)
	e.mu.Unlock()

	if existed {
		e.Modified.Fire(e)
	} else {
		e.Composition.Fire(e)
	}
}

// Unset stages removal of t. It returns false when the entity would not hold
// t after the next commit anyway.
func (e *Entity) Unset(t ComponentType) bool {
	e.mu.Lock()
	if !e.willHaveLocked(t) {
		e.mu.Unlock()
		return false
	}
	delete(e.writes, t)
	if e.mask.Has(t) {
		if e.unsets == nil {
			e.unsets = make(map[ComponentType]struct{}, 2)
		}
		e.unsets[t] = struct{}{}
	}
	e.mu.Unlock()

	e.Composition.Fire(e)
	return true
}

// Emit queues an event; the world hands queued events to its bus at the end
// of the frame.
func (e *Entity) Emit(event any) {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
	e.Events.Fire(e)
}

func (e *Entity) willHaveLocked(t ComponentType) bool {
	if _, ok := e.writes[t]; ok {
		return true
	}
	if _, ok := e.unsets[t]; ok {
		return false
	}
	return e.mask.Has(t)
}

// Staged returns copies of the pending writes and unsets.
func (e *Entity) Staged() (map[ComponentType]any, []ComponentType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var writes map[ComponentType]any
	if len(e.writes) > 0 {
		writes = make(map[ComponentType]any, len(e.writes))
		for t, v := range e.writes {
			writes[t] = v
		}
	}
	var unsets []ComponentType
	for t := range e.unsets {
		unsets = append(unsets, t)
	}
	sortByName(unsets)
	return writes, unsets
}

// HasStaged reports whether a commit would change anything.
func (e *Entity) HasStaged() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.writes) > 0 || len(e.unsets) > 0
}

// Tombstones returns the removed-but-readable components.
func (e *Entity) Tombstones() map[ComponentType]any {
	if len(e.prev) == 0 {
		return nil
	}
	out := make(map[ComponentType]any, len(e.prev))
	for t, ts := range e.prev {
		out[t] = ts.value
	}
	return out
}

// commit applies staged writes. It reports whether the composition changed.
func (e *Entity) commit(frame uint64) bool {
	e.queuedWrite.Store(false)
	e.mu.Lock()
	defer e.mu.Unlock()
	changed := false
	for t := range e.unsets {
		if v, ok := e.data[t]; ok {
			e.tombstone(t, v, frame)
			delete(e.data, t)
			e.mask.Unset(t)
			changed = true
		}
	}
	for t, v := range e.writes {
		if !e.mask.Has(t) {
			e.mask.Set(t)
			changed = true
		}
		e.data[t] = v
		delete(e.prev, t)
	}
	clear(e.writes)
	clear(e.unsets)
	return changed
}

// strip moves every component into tombstones and drops staged writes.
func (e *Entity) strip(frame uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for t, v := range e.data {
		e.tombstone(t, v, frame)
	}
	clear(e.data)
	e.mask = Mask{}
	clear(e.writes)
	clear(e.unsets)
}

func (e *Entity) tombstone(t ComponentType, v any, frame uint64) {
	if e.prev == nil {
		e.prev = make(map[ComponentType]tombstone, 2)
	}
	e.prev[t] = tombstone{value: v, frame: frame}
}

// settle purges tombstones older than frame and reports whether any remain.
func (e *Entity) settle(frame uint64) bool {
	for t, ts := range e.prev {
		if ts.frame < frame {
			delete(e.prev, t)
		}
	}
	return len(e.prev) > 0
}

func (e *Entity) hasEvents() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events) > 0
}

func (e *Entity) takeEvents() []any {
	e.queuedEvents.Store(false)
	e.mu.Lock()
	defer e.mu.Unlock()
	evs := e.events
	e.events = nil
	return evs
}

// Slot returns the cache position of e in system i, or -1.
func (e *Entity) Slot(i int) int {
	if i >= len(e.slots) {
		return -1
	}
	return e.slots[i]
}

// SetSlot records the cache position of e in system i. Each system's worker
// only writes its own index.
func (e *Entity) SetSlot(i, slot int) {
	e.slots[i] = slot
}

// restoreComponent installs a committed value directly, bypassing staging.
func (e *Entity) restoreComponent(t ComponentType, v any) {
	e.data[t] = v
	e.mask.Set(t)
}

// Components returns a copy of the committed components.
func (e *Entity) Components() map[ComponentType]any {
	out := make(map[ComponentType]any, len(e.data))
	for t, v := range e.data {
		out[t] = v
	}
	return out
}
