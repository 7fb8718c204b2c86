package system

import (
	"sync/atomic"

	"github.com/l1jgo/forge/internal/component"
	"github.com/l1jgo/forge/internal/core/ecs"
)

// DeathSystem watches Health writes and removes entities whose hit points
// dropped to zero. It runs in the concurrent phase through OnModified and
// OnAdded, so it only touches the entity it is handed.
type DeathSystem struct {
	world  Remover
	filter ecs.Filter
	deaths atomic.Int64
}

func NewDeathSystem(w Remover) *DeathSystem {
	return &DeathSystem{
		world:  w,
		filter: ecs.NewFilter(ecs.TypeOf[component.Health]()),
	}
}

func (s *DeathSystem) Name() string       { return "death" }
func (s *DeathSystem) Filter() ecs.Filter { return s.filter }

func (s *DeathSystem) OnAdded(e *ecs.Entity) error    { return s.check(e) }
func (s *DeathSystem) OnModified(e *ecs.Entity) error { return s.check(e) }

// Deaths returns the number of entities removed so far.
func (s *DeathSystem) Deaths() int64 { return s.deaths.Load() }

func (s *DeathSystem) check(e *ecs.Entity) error {
	hp, _ := ecs.Get[component.Health](e)
	if hp.Cur > 0 {
		return nil
	}
	if s.world.Remove(e) {
		e.Emit(component.Died{})
		s.deaths.Add(1)
	}
	return nil
}
