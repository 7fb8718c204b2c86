package system

import (
	"github.com/l1jgo/forge/internal/component"
	"github.com/l1jgo/forge/internal/core/ecs"
)

// MovementSystem adds Velocity to Position every frame. Update phase.
type MovementSystem struct {
	filter ecs.Filter
}

func NewMovementSystem() *MovementSystem {
	return &MovementSystem{
		filter: ecs.NewFilter(ecs.TypeOf[component.Position](), ecs.TypeOf[component.Velocity]()),
	}
}

func (s *MovementSystem) Name() string       { return "movement" }
func (s *MovementSystem) Filter() ecs.Filter { return s.filter }

func (s *MovementSystem) OnUpdate(e *ecs.Entity) error {
	v, _ := ecs.Get[component.Velocity](e)
	if v.DX == 0 && v.DY == 0 {
		return nil
	}
	p, _ := ecs.Get[component.Position](e)
	ecs.Set(e, component.Position{X: p.X + v.DX, Y: p.Y + v.DY})
	return nil
}
