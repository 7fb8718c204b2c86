package ecs

import (
	"errors"
	"fmt"
)

// ErrEntitiesExist is returned when the system count changes after entities
// were created; existing entities would lack cache slots.
var ErrEntitiesExist = errors.New("entities already exist")

// World is the top-level ECS container. It owns the entity pool, the active
// registry, the singleton and the staging buffers feeding each frame.
//
// Create, Remove and entity writes are safe from any goroutine. Everything
// else is driver-only.
type World struct {
	pool      *EntityPool
	registry  *Registry
	singleton *Entity
	systems   int
	frame     uint64

	added       *Staged[*Entity]
	removed     *Staged[*Entity]
	cacheUpdate *Staged[*Entity]
	writes      *Staged[*Entity]
	eventful    *Staged[*Entity]

	onWrite       writeListener
	onComposition compositionListener
	onEvent       eventListener
}

func NewWorld() *World {
	w := &World{
		pool:        NewEntityPool(),
		registry:    NewRegistry(),
		singleton:   newEntity(SingletonID),
		added:       NewStaged[*Entity](64),
		removed:     NewStaged[*Entity](64),
		cacheUpdate: NewStaged[*Entity](64),
		writes:      NewStaged[*Entity](256),
		eventful:    NewStaged[*Entity](64),
	}
	w.onWrite.w = w
	w.onComposition.w = w
	w.onEvent.w = w
	w.singleton.state.Store(int32(StateActive))
	w.singleton.visible.Store(true)
	w.singleton.Events.Subscribe(&w.onEvent)
	return w
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }
func (w *World) Singleton() *Entity  { return w.singleton }
func (w *World) Frame() uint64       { return w.frame }

// Added, Removed and CacheUpdates expose the lifecycle buffers to workers.
func (w *World) Added() *Staged[*Entity]        { return w.added }
func (w *World) Removed() *Staged[*Entity]      { return w.removed }
func (w *World) CacheUpdates() *Staged[*Entity] { return w.cacheUpdate }

// HasEntities reports whether any entity was ever created or restored.
func (w *World) HasEntities() bool {
	return w.pool.Allocated() || w.registry.Len() > 0
}

// SetSystemCount sizes the per-entity cache slot table.
func (w *World) SetSystemCount(n int) error {
	if n == w.systems {
		return nil
	}
	if w.HasEntities() {
		return ErrEntitiesExist
	}
	w.systems = n
	return nil
}

// Create allocates a hidden entity that becomes active at the next commit.
func (w *World) Create() *Entity {
	e := newEntity(w.pool.Create())
	e.state.Store(int32(StatePendingAdd))
	w.added.Append(e)
	w.cacheUpdate.Append(e)
	return e
}

// Remove hides e immediately and queues it for removal at the next commit.
// Removing an entity twice is a no-op.
func (w *World) Remove(e *Entity) bool {
	if e == w.singleton {
		return false
	}
	for {
		s := e.state.Load()
		if s == int32(StatePendingRemove) || s == int32(StateRemoved) {
			return false
		}
		if e.state.CompareAndSwap(s, int32(StatePendingRemove)) {
			break
		}
	}
	e.visible.Store(false)
	w.removed.Append(e)
	return true
}

// Swap rotates the lifecycle and write buffers at the start of a frame.
func (w *World) Swap() {
	w.added.Swap()
	w.removed.Swap()
	w.cacheUpdate.Swap()
	w.writes.Swap()
}

// Commit runs the Begin-phase commits for frame: adds, then removes, then
// the writes staged during the previous frame. The immutable slots are
// sorted by id first so commit and cache order do not depend on which
// goroutine produced an entry.
func (w *World) Commit(frame uint64) {
	w.frame = frame
	sortUnique(w.added, 0)
	sortUnique(w.removed, 0)
	sortUnique(w.cacheUpdate, 0)
	sortUnique(w.writes, 0)

	for _, e := range w.added.Get(0) {
		w.attach(e, frame)
	}
	for _, e := range w.removed.Get(0) {
		w.detach(e, frame)
	}
	for _, e := range w.writes.Get(0) {
		if !e.live {
			e.queuedWrite.Store(false)
			continue
		}
		e.commit(frame)
	}
	w.writes.Clear(0)
}

// End clears the consumed lifecycle buffers. Entities in the consumed
// cache-update slot that are still settling are carried to the next frame.
func (w *World) End(frame uint64) {
	w.added.Clear(0)
	w.removed.Clear(0)
	for _, e := range w.cacheUpdate.Get(0) {
		if e.live && e.settle(frame) {
			w.cacheUpdate.Append(e)
		}
	}
	w.cacheUpdate.Clear(0)
}

// CommitSingleton applies the singleton's staged writes. Singleton
// tombstones live until the following commit.
func (w *World) CommitSingleton() {
	w.singleton.settle(w.frame)
	w.singleton.commit(w.frame)
}

// FlushEvents hands every queued entity event to publish, entities in id
// order, events in emission order. Events emitted while publishing are kept
// for the next flush.
func (w *World) FlushEvents(publish func(id EntityID, event any)) int {
	w.eventful.Swap()
	sortUnique(w.eventful, 0)
	n := 0
	for _, e := range w.eventful.Get(0) {
		for _, ev := range e.takeEvents() {
			publish(e.id, ev)
			n++
		}
	}
	w.eventful.Clear(0)
	return n
}

func (w *World) attach(e *Entity, frame uint64) {
	if e.live {
		return
	}
	e.live = true
	w.registry.insert(e)
	e.slots = make([]int, w.systems)
	for i := range e.slots {
		e.slots[i] = -1
	}
	if e.state.CompareAndSwap(int32(StatePendingAdd), int32(StateActive)) {
		e.visible.Store(true)
	}
	e.Modified.Subscribe(&w.onWrite)
	e.Composition.Subscribe(&w.onComposition)
	e.Events.Subscribe(&w.onEvent)
	// Events emitted before promotion had no listener.
	if e.hasEvents() {
		w.onEvent.Notify(e)
	}
	e.commit(frame)
}

func (w *World) detach(e *Entity, frame uint64) {
	e.Modified.Unsubscribe(&w.onWrite)
	e.Composition.Unsubscribe(&w.onComposition)
	e.Events.Unsubscribe(&w.onEvent)
	if e.live {
		w.registry.remove(e)
		e.live = false
		w.pool.Destroy(e.id)
	}
	e.strip(frame)
	e.visible.Store(false)
	e.state.Store(int32(StateRemoved))
}

// Restore kinds used when rebuilding a world from a snapshot.
const (
	RestoreActive = iota
	RestorePendingAdd
	RestorePendingRemove
)

// RestoreEntity rebuilds an entity with a known id. Active and
// PendingRemove entities are attached immediately; PendingAdd entities go
// through the normal add path. components are installed as committed state.
func (w *World) RestoreEntity(id EntityID, kind int, components map[ComponentType]any) (*Entity, error) {
	if id == SingletonID {
		return nil, fmt.Errorf("restore entity: id %s is reserved", id)
	}
	e := newEntity(id)
	for t, v := range components {
		e.restoreComponent(t, v)
	}
	switch kind {
	case RestoreActive, RestorePendingRemove:
		e.state.Store(int32(StatePendingAdd))
		w.attach(e, w.frame)
		if kind == RestorePendingRemove {
			w.Remove(e)
		}
	case RestorePendingAdd:
		e.state.Store(int32(StatePendingAdd))
		w.added.Append(e)
		w.cacheUpdate.Append(e)
	default:
		return nil, fmt.Errorf("restore entity %s: unknown kind %d", id, kind)
	}
	return e, nil
}

// RestoreTombstone installs a removed-component value readable through
// Previous. The entity is re-queued for cache settling.
func (w *World) RestoreTombstone(e *Entity, t ComponentType, v any) {
	if len(e.prev) == 0 && e.live {
		w.cacheUpdate.Append(e)
	}
	e.tombstone(t, v, w.frame)
}

// RestoreSingleton installs committed singleton components.
func (w *World) RestoreSingleton(components map[ComponentType]any) {
	for t, v := range components {
		w.singleton.restoreComponent(t, v)
	}
}

// RestoreFrame sets the frame counter; used before restoring entities.
func (w *World) RestoreFrame(frame uint64) { w.frame = frame }

// Pending returns the entities waiting in the mutable add and remove slots,
// ordered by id.
func (w *World) Pending() (added, removed []*Entity) {
	added = append(added, w.added.Get(1)...)
	removed = append(removed, w.removed.Get(1)...)
	SortByID(added)
	SortByID(removed)
	return added, removed
}

func sortUnique(s *Staged[*Entity], i int) {
	list := s.Get(i)
	if len(list) < 2 {
		return
	}
	SortByID(list)
	var last *Entity
	s.Filter(i, func(e *Entity) bool {
		if e == last {
			return false
		}
		last = e
		return true
	})
}

type writeListener struct{ w *World }

func (l *writeListener) Notify(e *Entity) {
	if e.queuedWrite.CompareAndSwap(false, true) {
		l.w.writes.Append(e)
	}
}

type compositionListener struct{ w *World }

func (l *compositionListener) Notify(e *Entity) {
	l.w.onWrite.Notify(e)
	l.w.cacheUpdate.Append(e)
}

type eventListener struct{ w *World }

func (l *eventListener) Notify(e *Entity) {
	if e.queuedEvents.CompareAndSwap(false, true) {
		l.w.eventful.Append(e)
	}
}
