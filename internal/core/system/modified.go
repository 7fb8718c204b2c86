package system

import (
	"sync"

	"github.com/l1jgo/forge/internal/core/ecs"
)

// ModifiedList is a system's double-buffered list of entities with component
// writes. Marks arrive from whichever goroutine performed the write, so the
// mutable side is guarded; each entity is listed at most once per frame.
type ModifiedList struct {
	mu     sync.Mutex
	staged *ecs.Staged[*ecs.Entity]
	seen   map[*ecs.Entity]struct{}
}

func NewModifiedList() *ModifiedList {
	return &ModifiedList{
		staged: ecs.NewStaged[*ecs.Entity](32),
		seen:   make(map[*ecs.Entity]struct{}, 32),
	}
}

// Mark records e in the mutable slot.
func (m *ModifiedList) Mark(e *ecs.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[e]; ok {
		return
	}
	m.seen[e] = struct{}{}
	m.staged.Append(e)
}

// Drop removes e from the mutable slot.
func (m *ModifiedList) Drop(e *ecs.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[e]; !ok {
		return
	}
	delete(m.seen, e)
	m.staged.RemoveFunc(func(x *ecs.Entity) bool { return x == e })
}

// Swap makes this frame's marks the immutable slot.
func (m *ModifiedList) Swap() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged.Swap()
	clear(m.seen)
}

// Immutable returns the marks being consumed this frame.
func (m *ModifiedList) Immutable() []*ecs.Entity { return m.staged.Get(0) }

// ClearImmutable empties the consumed slot.
func (m *ModifiedList) ClearImmutable() { m.staged.Clear(0) }

// Pending returns a copy of the marks waiting for the next frame, by id.
func (m *ModifiedList) Pending() []*ecs.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*ecs.Entity(nil), m.staged.Get(1)...)
	ecs.SortByID(out)
	return out
}
