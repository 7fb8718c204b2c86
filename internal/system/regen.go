package system

import (
	"github.com/l1jgo/forge/internal/component"
	"github.com/l1jgo/forge/internal/core/ecs"
)

// RegenSystem restores hit points on entities holding Health and Regen.
// Each entity carries its own accumulator in Regen.Acc; the heal fires every
// Regen.Interval frames while Health is below its maximum. Dead entities
// (Cur <= 0) never regenerate.
type RegenSystem struct {
	filter ecs.Filter
}

func NewRegenSystem() *RegenSystem {
	return &RegenSystem{
		filter: ecs.NewFilter(ecs.TypeOf[component.Health](), ecs.TypeOf[component.Regen]()),
	}
}

func (s *RegenSystem) Name() string       { return "regen" }
func (s *RegenSystem) Filter() ecs.Filter { return s.filter }

func (s *RegenSystem) OnUpdate(e *ecs.Entity) error {
	hp, _ := ecs.Get[component.Health](e)
	if hp.Cur <= 0 || hp.Cur >= hp.Max {
		return nil
	}
	r, _ := ecs.Get[component.Regen](e)
	r.Acc++
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	if r.Acc < interval {
		ecs.Set(e, r)
		return nil
	}
	r.Acc = 0
	ecs.Set(e, r)

	healed := r.Amount
	if hp.Cur+healed > hp.Max {
		healed = hp.Max - hp.Cur
	}
	if healed <= 0 {
		return nil
	}
	ecs.Set(e, component.Health{Cur: hp.Cur + healed, Max: hp.Max})
	e.Emit(component.Healed{Amount: healed})
	return nil
}
