package system

import (
	"github.com/l1jgo/forge/internal/component"
	"github.com/l1jgo/forge/internal/core/ecs"
)

// Remover queues entity removal; ecs.World and engine.Engine satisfy it.
type Remover interface {
	Remove(e *ecs.Entity) bool
}

// LifetimeSystem counts Lifetime down once per frame and removes the entity
// when it reaches zero, emitting Expired first.
type LifetimeSystem struct {
	world  Remover
	filter ecs.Filter
	frame  uint64
}

func NewLifetimeSystem(w Remover) *LifetimeSystem {
	return &LifetimeSystem{
		world:  w,
		filter: ecs.NewFilter(ecs.TypeOf[component.Lifetime]()),
	}
}

func (s *LifetimeSystem) Name() string       { return "lifetime" }
func (s *LifetimeSystem) Filter() ecs.Filter { return s.filter }

func (s *LifetimeSystem) OnPreUpdate(frame uint64) error {
	s.frame = frame
	return nil
}

func (s *LifetimeSystem) OnUpdate(e *ecs.Entity) error {
	l, _ := ecs.Get[component.Lifetime](e)
	if l.Frames <= 1 {
		e.Emit(component.Expired{Frame: s.frame})
		s.world.Remove(e)
		return nil
	}
	ecs.Set(e, component.Lifetime{Frames: l.Frames - 1})
	return nil
}
