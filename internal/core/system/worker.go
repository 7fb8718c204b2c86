package system

import (
	"fmt"
	"runtime/debug"

	"github.com/l1jgo/forge/internal/core/ecs"
)

// Worker applies one frame's frozen lifecycle buffers to a single system's
// cache and runs that system's lifecycle callbacks. Workers never touch each
// other's state; they read the world's immutable slots and write only their
// own cache and modified list.
type Worker struct {
	sys   *System
	world *ecs.World
}

func NewWorker(sys *System, world *ecs.World) *Worker {
	return &Worker{sys: sys, world: world}
}

func (w *Worker) System() *System { return w.sys }

// Run processes the current frame. A panic in a callback is returned as an
// error so the frame aborts instead of the process.
func (w *Worker) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("system %s: panic: %v\n%s", w.sys.name, r, debug.Stack())
		}
	}()

	s := w.sys
	if len(s.primed) > 0 {
		primed := s.primed
		s.primed = nil
		for _, e := range primed {
			if err := s.onCacheChange(e, Added); err != nil {
				return err
			}
		}
	}

	for _, e := range w.world.Added().Get(0) {
		if err := s.onCacheChange(e, s.cache.UpdateCache(e)); err != nil {
			return err
		}
	}
	for _, e := range w.world.Removed().Get(0) {
		if s.cache.Remove(e) {
			if err := s.onCacheChange(e, Removed); err != nil {
				return err
			}
		}
	}
	for _, e := range w.world.CacheUpdates().Get(0) {
		if err := s.onCacheChange(e, s.cache.UpdateCache(e)); err != nil {
			return err
		}
	}

	if s.caps.Has(CapModified) {
		list := s.modified.Immutable()
		ecs.SortByID(list)
		for _, e := range list {
			if !s.cache.Contains(e) || !e.Visible() {
				continue
			}
			if err := s.mod.OnModified(e); err != nil {
				s.modified.ClearImmutable()
				return fmt.Errorf("system %s: modified %s: %w", s.name, e.ID(), err)
			}
		}
	}
	s.modified.ClearImmutable()
	return nil
}

func (s *System) onCacheChange(e *ecs.Entity, change CacheChange) error {
	switch change {
	case Added:
		if s.caps.Has(CapModified) {
			e.Modified.Subscribe(&s.listener)
		}
		if s.caps.Has(CapAdded) {
			if err := s.added.OnAdded(e); err != nil {
				return fmt.Errorf("system %s: added %s: %w", s.name, e.ID(), err)
			}
		}
	case Removed:
		if s.caps.Has(CapModified) {
			e.Modified.Unsubscribe(&s.listener)
			s.modified.Drop(e)
		}
		if s.caps.Has(CapRemoved) {
			if err := s.removed.OnRemoved(e); err != nil {
				return fmt.Errorf("system %s: removed %s: %w", s.name, e.ID(), err)
			}
		}
	}
	return nil
}
