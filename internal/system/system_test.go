package system

import (
	"context"
	"testing"

	"github.com/l1jgo/forge/internal/component"
	"github.com/l1jgo/forge/internal/core/ecs"
	"github.com/l1jgo/forge/internal/core/engine"
	"github.com/l1jgo/forge/internal/core/event"
	"github.com/l1jgo/forge/internal/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const templatesYAML = `
templates:
  - name: drone
    components:
      position: {x: 0, y: 0}
      velocity: {dx: 1, dy: 0.5}
  - name: spark
    components:
      position: {x: 1, y: 1}
      lifetime: {frames: 3}
  - name: grunt
    components:
      position: {x: 5, y: 5}
      health: {cur: 5, max: 10}
      regen: {amount: 2, interval: 2}
`

type sim struct {
	eng     *engine.Engine
	log     *EventLog
	death   *DeathSystem
	persist *PersistenceSystem
}

func newSim(t *testing.T) *sim {
	t.Helper()
	component.Register()
	templates, err := data.ParseTemplates([]byte(templatesYAML))
	require.NoError(t, err)

	bus := event.NewBus()
	eng, err := engine.New(engine.Options{Bus: bus})
	require.NoError(t, err)
	w := eng.World()

	s := &sim{
		eng:     eng,
		log:     NewEventLog(bus, zap.NewNop()),
		death:   NewDeathSystem(w),
		persist: NewPersistenceSystem(3),
	}
	for _, trig := range []any{
		NewInputSystem(w, templates, zap.NewNop()),
		NewMovementSystem(),
		NewLifetimeSystem(w),
		NewRegenSystem(),
		s.death,
		s.persist,
	} {
		require.NoError(t, eng.Register(trig))
	}
	return s
}

func (s *sim) step(t *testing.T, inputs ...any) {
	t.Helper()
	require.NoError(t, s.eng.Step(context.Background(), inputs...))
}

func (s *sim) only(t *testing.T) *ecs.Entity {
	t.Helper()
	ents := s.eng.World().Registry().Sorted()
	require.Len(t, ents, 1)
	return ents[0]
}

func TestSpawnAndMove(t *testing.T) {
	s := newSim(t)
	s.step(t, Spawn{Template: "drone", At: &component.Position{X: 10, Y: 10}})
	s.step(t)
	e := s.only(t)

	p, _ := ecs.Get[component.Position](e)
	assert.Equal(t, component.Position{X: 10, Y: 10}, p)

	s.step(t)
	p, _ = ecs.Get[component.Position](e)
	assert.Equal(t, component.Position{X: 11, Y: 10.5}, p)

	s.step(t, Impulse{ID: e.ID(), DX: 1})
	s.step(t)
	v, _ := ecs.Get[component.Velocity](e)
	assert.Equal(t, component.Velocity{DX: 2, DY: 0.5}, v)
}

func TestSpawnUnknownTemplateFailsFrame(t *testing.T) {
	s := newSim(t)
	err := s.eng.Step(context.Background(), Spawn{Template: "nope"})
	assert.ErrorContains(t, err, `unknown template "nope"`)
}

func TestLifetimeExpires(t *testing.T) {
	s := newSim(t)
	s.step(t, Spawn{Template: "spark"})
	s.step(t)
	e := s.only(t)
	s.step(t)
	s.step(t)

	// The last update emits Expired and hides the entity.
	assert.False(t, e.Visible())
	expired, _, _ := s.log.Totals()
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, s.eng.World().Registry().Len())

	s.step(t)
	assert.Zero(t, s.eng.World().Registry().Len())
	assert.Equal(t, ecs.StateRemoved, e.State())
}

func TestRegenAndDeath(t *testing.T) {
	s := newSim(t)
	s.step(t, Spawn{Template: "grunt"})
	s.step(t)
	e := s.only(t)

	// The second update fills the accumulator; the heal commits a frame later.
	s.step(t)
	s.step(t)
	hp, _ := ecs.Get[component.Health](e)
	assert.Equal(t, int32(7), hp.Cur)
	_, _, healed := s.log.Totals()
	assert.EqualValues(t, 2, healed)

	s.step(t)
	s.step(t, Damage{ID: e.ID(), Amount: 100})
	hp, _ = ecs.Get[component.Health](e)
	assert.Equal(t, int32(9), hp.Cur)
	_, _, healed = s.log.Totals()
	assert.EqualValues(t, 4, healed)

	// The damage commits and the death system reacts in the same frame's
	// concurrent phase.
	s.step(t)
	hp, _ = ecs.Get[component.Health](e)
	assert.Zero(t, hp.Cur)
	assert.EqualValues(t, 1, s.death.Deaths())
	assert.False(t, e.Visible())
	_, died, _ := s.log.Totals()
	assert.Equal(t, 1, died)

	s.step(t)
	assert.Zero(t, s.eng.World().Registry().Len())
}

func TestDespawn(t *testing.T) {
	s := newSim(t)
	s.step(t, Spawn{Template: "drone"})
	s.step(t)
	e := s.only(t)
	s.step(t, Despawn{ID: e.ID()}, Despawn{ID: ecs.NewEntityID(99, 0)})
	assert.False(t, e.Visible())
	s.step(t)
	assert.Zero(t, s.eng.World().Registry().Len())
}

func TestPersistenceCadenceSurvivesRestore(t *testing.T) {
	s := newSim(t)
	var due []bool
	for i := 0; i < 4; i++ {
		s.step(t)
		due = append(due, s.persist.Due())
	}
	assert.Equal(t, []bool{false, false, true, false}, due)

	state, err := s.persist.ExportState()
	require.NoError(t, err)
	p := NewPersistenceSystem(3)
	require.NoError(t, p.ImportState(state))
	require.NoError(t, p.OnPostUpdate(5))
	require.NoError(t, p.OnPostUpdate(6))
	assert.True(t, p.Due())
	assert.Error(t, p.ImportState([]byte("x")))
}
