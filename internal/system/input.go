package system

import (
	"fmt"

	"github.com/l1jgo/forge/internal/component"
	"github.com/l1jgo/forge/internal/core/ecs"
	"github.com/l1jgo/forge/internal/data"
	"go.uber.org/zap"
)

// Input commands accepted by InputSystem. They arrive through
// Engine.Advance and are dispatched in order during the input phase.
type (
	// Spawn creates an entity from a template, optionally placed at At.
	Spawn struct {
		Template string              `yaml:"template"`
		At       *component.Position `yaml:"at,omitempty"`
	}
	// Despawn removes an entity by id.
	Despawn struct {
		ID ecs.EntityID `yaml:"id"`
	}
	// Impulse adds to an entity's velocity.
	Impulse struct {
		ID ecs.EntityID `yaml:"id"`
		DX float64      `yaml:"dx"`
		DY float64      `yaml:"dy"`
	}
	// Damage subtracts hit points.
	Damage struct {
		ID     ecs.EntityID `yaml:"id"`
		Amount int32        `yaml:"amount"`
	}
)

// World is the slice of ecs.World the input system needs.
type World interface {
	data.Creator
	Remover
	Registry() *ecs.Registry
}

// InputSystem applies structured input. Spawn and Despawn are handled once
// per input by the global hook; Impulse and Damage go through the per-entity
// hook and only touch the positioned entity they name. Input phase.
type InputSystem struct {
	world     World
	templates *data.TemplateTable
	filter    ecs.Filter
	log       *zap.Logger
}

func NewInputSystem(w World, templates *data.TemplateTable, log *zap.Logger) *InputSystem {
	return &InputSystem{
		world:     w,
		templates: templates,
		filter:    ecs.NewFilter(ecs.TypeOf[component.Position]()),
		log:       log,
	}
}

func (s *InputSystem) Name() string       { return "input" }
func (s *InputSystem) Filter() ecs.Filter { return s.filter }

func (s *InputSystem) OnGlobalInput(in any) error {
	switch cmd := in.(type) {
	case Spawn:
		if s.templates == nil {
			return fmt.Errorf("spawn %q: no templates loaded", cmd.Template)
		}
		e, err := s.templates.Spawn(s.world, cmd.Template)
		if err != nil {
			return err
		}
		if cmd.At != nil {
			ecs.Set(e, *cmd.At)
		}
		s.log.Debug("spawned", zap.String("template", cmd.Template), zap.Stringer("entity", e.ID()))
	case Despawn:
		e := s.world.Registry().Get(cmd.ID)
		if e == nil {
			s.log.Debug("despawn: unknown entity", zap.Stringer("entity", cmd.ID))
			return nil
		}
		s.world.Remove(e)
	}
	return nil
}

func (s *InputSystem) OnInput(in any, e *ecs.Entity) error {
	switch cmd := in.(type) {
	case Impulse:
		if cmd.ID != e.ID() {
			return nil
		}
		v, _ := ecs.Get[component.Velocity](e)
		ecs.Set(e, component.Velocity{DX: v.DX + cmd.DX, DY: v.DY + cmd.DY})
	case Damage:
		if cmd.ID != e.ID() {
			return nil
		}
		hp, ok := ecs.Get[component.Health](e)
		if !ok {
			return nil
		}
		hp.Cur -= cmd.Amount
		if hp.Cur < 0 {
			hp.Cur = 0
		}
		ecs.Set(e, hp)
	}
	return nil
}
