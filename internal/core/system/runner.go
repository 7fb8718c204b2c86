package system

import (
	"context"
	"errors"
	"fmt"

	"github.com/l1jgo/forge/internal/core/ecs"
	"golang.org/x/sync/errgroup"
)

// ErrDuplicateSystem is returned when two systems share a name.
var ErrDuplicateSystem = errors.New("duplicate system name")

// Runner holds the registered systems. It fans the concurrent phase out to
// one worker per filtered system and runs the sequential phases in order.
type Runner struct {
	systems []*System
	workers []*Worker
	byName  map[string]*System
	limit   int
}

// NewRunner creates a runner; limit caps the number of workers running at
// once (0 means one goroutine per filtered system).
func NewRunner(limit int) *Runner {
	return &Runner{
		systems: make([]*System, 0, 16),
		byName:  make(map[string]*System, 16),
		limit:   limit,
	}
}

// Register binds s to the next slot and creates its worker.
func (r *Runner) Register(s *System, world *ecs.World) error {
	if _, ok := r.byName[s.name]; ok {
		return fmt.Errorf("register %s: %w", s.name, ErrDuplicateSystem)
	}
	if err := world.SetSystemCount(len(r.systems) + 1); err != nil {
		return fmt.Errorf("register %s: %w", s.name, err)
	}
	s.bind(len(r.systems))
	r.systems = append(r.systems, s)
	r.byName[s.name] = s
	if s.filtered {
		r.workers = append(r.workers, NewWorker(s, world))
	}
	return nil
}

func (r *Runner) Systems() []*System { return r.systems }

func (r *Runner) Lookup(name string) (*System, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Prime fills every cache with the currently live entities and defers their
// Added notifications to the next Run. Used once after loading a snapshot.
func (r *Runner) Prime(world *ecs.World) {
	live := world.Registry().Sorted()
	for _, w := range r.workers {
		s := w.sys
		for _, e := range live {
			if s.cache.UpdateCache(e) == Added {
				s.primed = append(s.primed, e)
			}
		}
	}
}

// Swap rotates every system's modified list.
func (r *Runner) Swap() {
	for _, w := range r.workers {
		w.sys.modified.Swap()
	}
}

// Run executes one worker per filtered system and waits for all of them.
// The first failure is returned after every worker has finished.
func (r *Runner) Run(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for _, w := range r.workers {
		g.Go(w.Run)
	}
	return g.Wait()
}

// Sequential runs the single-threaded phases in order: pre-update, input,
// update, post-update.
func (r *Runner) Sequential(frame uint64, inputs []any) error {
	for _, phase := range []Phase{PhasePreUpdate, PhaseInput, PhaseUpdate, PhasePostUpdate} {
		if err := r.TickPhase(phase, frame, inputs); err != nil {
			return err
		}
	}
	return nil
}

// TickPhase runs one sequential phase across all systems in registration
// order.
func (r *Runner) TickPhase(phase Phase, frame uint64, inputs []any) error {
	switch phase {
	case PhasePreUpdate:
		for _, s := range r.systems {
			if s.caps.Has(CapPreUpdate) {
				if err := s.preUpdate.OnPreUpdate(frame); err != nil {
					return fmt.Errorf("system %s: pre-update: %w", s.name, err)
				}
			}
		}
	case PhaseInput:
		for i, in := range inputs {
			if err := r.dispatchInput(in); err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
		}
	case PhaseUpdate:
		for _, s := range r.systems {
			if !s.caps.Has(CapUpdate) {
				continue
			}
			for _, e := range s.cache.Entities() {
				if !e.Visible() {
					continue
				}
				if err := s.updater.OnUpdate(e); err != nil {
					return fmt.Errorf("system %s: update %s: %w", s.name, e.ID(), err)
				}
			}
		}
	case PhasePostUpdate:
		for _, s := range r.systems {
			if s.caps.Has(CapPostUpdate) {
				if err := s.postUpdate.OnPostUpdate(frame); err != nil {
					return fmt.Errorf("system %s: post-update: %w", s.name, err)
				}
			}
		}
	}
	return nil
}

func (r *Runner) dispatchInput(in any) error {
	for _, s := range r.systems {
		if s.caps.Has(CapGlobalInput) {
			if err := s.globalInput.OnGlobalInput(in); err != nil {
				return fmt.Errorf("system %s: global input: %w", s.name, err)
			}
		}
	}
	for _, s := range r.systems {
		if !s.caps.Has(CapInput) {
			continue
		}
		for _, e := range s.cache.Entities() {
			if !e.Visible() {
				continue
			}
			if err := s.input.OnInput(in, e); err != nil {
				return fmt.Errorf("system %s: input %s: %w", s.name, e.ID(), err)
			}
		}
	}
	return nil
}
