package system

import (
	"fmt"

	"github.com/l1jgo/forge/internal/core/ecs"
)

// Phase defines execution ordering within the sequential part of a frame.
type Phase int

const (
	PhasePreUpdate  Phase = iota // 0: global pre-update hooks
	PhaseInput                   // 1: structured input, global hooks then per entity
	PhaseUpdate                  // 2: per-entity update
	PhasePostUpdate              // 3: global post-update hooks
)

func (p Phase) String() string {
	switch p {
	case PhasePreUpdate:
		return "pre_update"
	case PhaseInput:
		return "input"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post_update"
	default:
		return "unknown"
	}
}

// Capability flags what a trigger reacts to. They are computed once when the
// system is built.
type Capability uint16

const (
	CapUpdate Capability = 1 << iota
	CapInput
	CapGlobalInput
	CapPreUpdate
	CapPostUpdate
	CapAdded
	CapRemoved
	CapModified
)

// cacheCaps need a filter; a trigger without one cannot use them.
const cacheCaps = CapUpdate | CapInput | CapAdded | CapRemoved | CapModified

func (c Capability) Has(o Capability) bool { return c&o == o }

// Trigger capability interfaces. A trigger implements any subset.
type (
	Filtered interface {
		Filter() ecs.Filter
	}
	Updater interface {
		OnUpdate(e *ecs.Entity) error
	}
	InputHandler interface {
		OnInput(input any, e *ecs.Entity) error
	}
	GlobalInputHandler interface {
		OnGlobalInput(input any) error
	}
	PreUpdater interface {
		OnPreUpdate(frame uint64) error
	}
	PostUpdater interface {
		OnPostUpdate(frame uint64) error
	}
	AddedObserver interface {
		OnAdded(e *ecs.Entity) error
	}
	RemovedObserver interface {
		OnRemoved(e *ecs.Entity) error
	}
	ModifiedObserver interface {
		OnModified(e *ecs.Entity) error
	}
	// Named gives a system a stable name; snapshots key pending
	// modifications by it.
	Named interface {
		Name() string
	}
	// Capable narrows the detected capabilities, for triggers that implement
	// every method but only use some (scripted triggers).
	Capable interface {
		Capabilities() Capability
	}
	// Restorable systems persist their own state in snapshots.
	Restorable interface {
		RestoreID() string
		ExportState() ([]byte, error)
		ImportState(data []byte) error
	}
)

// System pairs a trigger with its filter, cache and modified list.
type System struct {
	index    int
	name     string
	trigger  any
	caps     Capability
	filter   ecs.Filter
	filtered bool

	cache    *Cache
	modified *ModifiedList
	listener modifiedListener
	primed   []*ecs.Entity

	updater     Updater
	input       InputHandler
	globalInput GlobalInputHandler
	preUpdate   PreUpdater
	postUpdate  PostUpdater
	added       AddedObserver
	removed     RemovedObserver
	mod         ModifiedObserver
}

// New inspects trigger once and records its capabilities.
func New(trigger any) *System {
	s := &System{trigger: trigger, index: -1}
	if n, ok := trigger.(Named); ok {
		s.name = n.Name()
	} else {
		s.name = fmt.Sprintf("%T", trigger)
	}
	if f, ok := trigger.(Filtered); ok {
		s.filter = f.Filter()
		s.filtered = true
	}

	var caps Capability
	if t, ok := trigger.(Updater); ok {
		s.updater, caps = t, caps|CapUpdate
	}
	if t, ok := trigger.(InputHandler); ok {
		s.input, caps = t, caps|CapInput
	}
	if t, ok := trigger.(GlobalInputHandler); ok {
		s.globalInput, caps = t, caps|CapGlobalInput
	}
	if t, ok := trigger.(PreUpdater); ok {
		s.preUpdate, caps = t, caps|CapPreUpdate
	}
	if t, ok := trigger.(PostUpdater); ok {
		s.postUpdate, caps = t, caps|CapPostUpdate
	}
	if t, ok := trigger.(AddedObserver); ok {
		s.added, caps = t, caps|CapAdded
	}
	if t, ok := trigger.(RemovedObserver); ok {
		s.removed, caps = t, caps|CapRemoved
	}
	if t, ok := trigger.(ModifiedObserver); ok {
		s.mod, caps = t, caps|CapModified
	}
	if c, ok := trigger.(Capable); ok {
		caps &= c.Capabilities()
	}
	if !s.filtered {
		caps &^= cacheCaps
	}
	s.caps = caps
	s.listener.s = s
	return s
}

func (s *System) Name() string             { return s.name }
func (s *System) Index() int               { return s.index }
func (s *System) Trigger() any             { return s.trigger }
func (s *System) Capabilities() Capability { return s.caps }
func (s *System) Filtered() bool           { return s.filtered }
func (s *System) Filter() ecs.Filter       { return s.filter }

// Cache is nil for systems without a filter.
func (s *System) Cache() *Cache { return s.cache }

// Modified is nil for systems without a filter.
func (s *System) Modified() *ModifiedList { return s.modified }

// Restorable returns the trigger's restore hooks, if any.
func (s *System) Restorable() (Restorable, bool) {
	r, ok := s.trigger.(Restorable)
	return r, ok
}

// bind assigns the system's slot in the runner.
func (s *System) bind(index int) {
	s.index = index
	if s.filtered {
		s.cache = NewCache(index, s.filter)
		s.modified = NewModifiedList()
	}
}

func (s *System) String() string {
	return fmt.Sprintf("%s(%d)", s.name, s.index)
}

type modifiedListener struct{ s *System }

func (l *modifiedListener) Notify(e *ecs.Entity) {
	l.s.modified.Mark(e)
}
