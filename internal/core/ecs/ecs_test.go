package ecs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPos struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type testTag struct{}

type testHP struct {
	Cur int `yaml:"cur"`
}

var (
	posType = RegisterComponent[testPos]("pos")
	tagType = RegisterComponent[testTag]("tag")
	hpType  = RegisterComponent[testHP]("hp")
)

// frame runs the world half of a frame with no systems attached.
func frame(w *World) {
	f := w.Frame() + 1
	w.Swap()
	w.Commit(f)
	w.End(f)
	w.CommitSingleton()
}

func TestRegisterComponentIdempotent(t *testing.T) {
	assert.Equal(t, posType, RegisterComponent[testPos]("pos"))
	assert.Panics(t, func() { RegisterComponent[testPos]("other") })
	assert.Panics(t, func() { RegisterComponent[testHP]("pos") })

	got, ok := LookupType("hp")
	require.True(t, ok)
	assert.Equal(t, hpType, got)
	assert.Equal(t, "tag", tagType.Name())
}

func TestDecodeComponent(t *testing.T) {
	ct, v, err := DecodeComponent("pos", func(ptr any) error {
		ptr.(*testPos).X = 7
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, posType, ct)
	assert.Equal(t, testPos{X: 7}, v)

	_, _, err = DecodeComponent("nope", func(any) error { return nil })
	assert.Error(t, err)
}

func TestPoolRecyclesWithNewGeneration(t *testing.T) {
	p := NewEntityPool()
	assert.False(t, p.Allocated())

	a := p.Create()
	b := p.Create()
	assert.Equal(t, uint32(1), a.Index())
	assert.Equal(t, uint32(2), b.Index())
	assert.True(t, p.Alive(a))

	p.Destroy(a)
	assert.False(t, p.Alive(a))
	p.Destroy(a) // stale, ignored

	c := p.Create()
	assert.Equal(t, a.Index(), c.Index())
	assert.Equal(t, a.Generation()+1, c.Generation())
	assert.NotEqual(t, a, c)
	assert.False(t, p.Alive(SingletonID))
}

func TestPoolStateRoundTrip(t *testing.T) {
	p := NewEntityPool()
	ids := []EntityID{p.Create(), p.Create(), p.Create()}
	p.Destroy(ids[1])

	q := NewEntityPool()
	require.NoError(t, q.Restore(p.State()))
	assert.Equal(t, p.State(), q.State())
	assert.Equal(t, p.Create(), q.Create())

	assert.Error(t, q.Restore(PoolState{Generations: []uint32{0}, NextIndex: 3}))
	assert.Error(t, q.Restore(PoolState{Generations: []uint32{0, 0}, FreeList: []uint32{5}, NextIndex: 2}))
}

func TestMaskAndFilter(t *testing.T) {
	m := MaskOf(posType, hpType)
	assert.True(t, m.Has(posType))
	assert.False(t, m.Has(tagType))
	assert.True(t, m.Contains(MaskOf(posType)))
	assert.False(t, m.Intersects(MaskOf(tagType)))
	assert.True(t, Mask{}.IsZero())

	w := NewWorld()
	e := w.Create()
	Set(e, testPos{})
	frame(w)

	assert.True(t, NewFilter(posType).Matches(e))
	assert.False(t, NewFilter(posType, hpType).Matches(e))
	assert.True(t, NewFilter(posType).Without(tagType).Matches(e))

	Set(e, testTag{})
	frame(w)
	assert.False(t, NewFilter(posType).Without(tagType).Matches(e))
	assert.Equal(t, "require[pos] exclude[tag]", NewFilter(posType).Without(tagType).String())
}

func TestStagedSwapKeepsSlots(t *testing.T) {
	s := NewStaged[int](4)
	s.Append(1)
	s.Append(2)
	assert.Empty(t, s.Get(0))
	assert.Equal(t, []int{1, 2}, s.Get(1))

	s.Swap()
	assert.Equal(t, []int{1, 2}, s.Get(0))
	assert.Empty(t, s.Get(1))

	s.Append(3)
	s.Clear(0)
	assert.Empty(t, s.Get(0))
	assert.Equal(t, []int{3}, s.Get(1))
}

func TestStagedConcurrentAppend(t *testing.T) {
	s := NewStaged[int](0)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Append(i)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, s.Get(1), 4000)
}

func TestNotifierUnsubscribe(t *testing.T) {
	var n Notifier
	calls := 0
	fn := ListenerFunc(func(*Entity) { calls++ })
	n.Unsubscribe(&fn)
	n.Subscribe(&fn)
	n.Fire(nil)
	n.Unsubscribe(&fn)
	n.Fire(nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, n.Len())
}

func TestCreateBecomesActiveAtCommit(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	Set(e, testPos{X: 1})

	assert.Equal(t, StatePendingAdd, e.State())
	assert.False(t, e.Visible())
	assert.False(t, Has[testPos](e))
	assert.Equal(t, 0, w.Registry().Len())

	frame(w)
	assert.Equal(t, StateActive, e.State())
	assert.True(t, e.Visible())
	p, ok := Get[testPos](e)
	require.True(t, ok)
	assert.Equal(t, 1, p.X)
	assert.Equal(t, 1, w.Registry().Len())
}

func TestWritesInvisibleUntilCommit(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	Set(e, testPos{X: 1})
	frame(w)

	Set(e, testPos{X: 2})
	p, _ := Get[testPos](e)
	assert.Equal(t, 1, p.X)
	assert.True(t, e.HasStaged())

	frame(w)
	p, _ = Get[testPos](e)
	assert.Equal(t, 2, p.X)
	assert.False(t, e.HasStaged())
}

func TestUnsetLeavesTombstoneForOneFrame(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	Set(e, testPos{X: 1})
	Set(e, testHP{Cur: 9})
	frame(w)

	assert.True(t, Unset[testHP](e))
	assert.False(t, Unset[testTag](e))
	frame(w)

	assert.False(t, Has[testHP](e))
	prev, ok := Previous[testHP](e)
	require.True(t, ok)
	assert.Equal(t, 9, prev.Cur)

	// Still readable through the frame after the commit, purged at its end.
	frame(w)
	_, ok = Previous[testHP](e)
	assert.False(t, ok)
	assert.Empty(t, e.Tombstones())
}

func TestSetAfterUnsetCancelsRemoval(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	Set(e, testHP{Cur: 1})
	frame(w)

	Unset[testHP](e)
	Set(e, testHP{Cur: 2})
	frame(w)

	hp, ok := Get[testHP](e)
	require.True(t, ok)
	assert.Equal(t, 2, hp.Cur)
	_, ok = Previous[testHP](e)
	assert.False(t, ok)
}

func TestNotifiersSplitModifiedFromComposition(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	Set(e, testPos{})
	frame(w)

	var modified, composition int
	mod := ListenerFunc(func(*Entity) { modified++ })
	comp := ListenerFunc(func(*Entity) { composition++ })
	e.Modified.Subscribe(&mod)
	e.Composition.Subscribe(&comp)

	Set(e, testPos{X: 1})
	Set(e, testHP{})
	Unset[testPos](e)
	assert.Equal(t, 1, modified)
	assert.Equal(t, 2, composition)
}

func TestRemoveHidesImmediately(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	frame(w)

	require.True(t, w.Remove(e))
	assert.False(t, w.Remove(e))
	assert.False(t, e.Visible())
	assert.Equal(t, StatePendingRemove, e.State())
	assert.Equal(t, 1, w.Registry().Len())

	frame(w)
	assert.Equal(t, StateRemoved, e.State())
	assert.Equal(t, 0, w.Registry().Len())
	assert.False(t, w.Pool().Alive(e.ID()))
	assert.False(t, w.Remove(w.Singleton()))
}

func TestCreateThenRemoveNeverGoesLive(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	w.Remove(e)

	added, removed := w.Pending()
	assert.Equal(t, []*Entity{e}, added)
	assert.Equal(t, []*Entity{e}, removed)

	frame(w)
	assert.Equal(t, StateRemoved, e.State())
	assert.False(t, e.Visible())
	assert.Equal(t, 0, w.Registry().Len())
	assert.False(t, w.Pool().Alive(e.ID()))
}

func TestFlushEventsOrder(t *testing.T) {
	w := NewWorld()
	a := w.Create()
	b := w.Create()
	frame(w)

	b.Emit("b1")
	a.Emit("a1")
	b.Emit("b2")
	w.Singleton().Emit("s")

	type rec struct {
		id EntityID
		ev any
	}
	var got []rec
	n := w.FlushEvents(func(id EntityID, ev any) { got = append(got, rec{id, ev}) })
	assert.Equal(t, 4, n)
	assert.Equal(t, []rec{
		{SingletonID, "s"},
		{a.ID(), "a1"},
		{b.ID(), "b1"},
		{b.ID(), "b2"},
	}, got)
	assert.Zero(t, w.FlushEvents(func(EntityID, any) {}))
}

func TestEventsEmittedBeforeCommitAreFlushed(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	e.Emit("hello")

	var got []any
	collect := func(_ EntityID, ev any) { got = append(got, ev) }
	assert.Zero(t, w.FlushEvents(collect))

	frame(w)
	assert.Equal(t, 1, w.FlushEvents(collect))
	assert.Equal(t, []any{"hello"}, got)
}

func TestSystemCountFixedOnceEntitiesExist(t *testing.T) {
	w := NewWorld()
	require.NoError(t, w.SetSystemCount(2))
	w.Create()
	assert.NoError(t, w.SetSystemCount(2))
	assert.ErrorIs(t, w.SetSystemCount(3), ErrEntitiesExist)
}

func TestSingletonCommitsAfterSequential(t *testing.T) {
	w := NewWorld()
	s := w.Singleton()
	assert.Equal(t, SingletonID, s.ID())
	Set(s, testHP{Cur: 3})

	f := w.Frame() + 1
	w.Swap()
	w.Commit(f)
	w.End(f)
	assert.False(t, Has[testHP](s))
	w.CommitSingleton()
	assert.True(t, Has[testHP](s))
}

func TestRestoreEntity(t *testing.T) {
	w := NewWorld()
	id := NewEntityID(4, 2)
	e, err := w.RestoreEntity(id, RestoreActive, map[ComponentType]any{posType: testPos{X: 5}})
	require.NoError(t, err)
	assert.Equal(t, StateActive, e.State())
	assert.True(t, e.Live())
	p, _ := Get[testPos](e)
	assert.Equal(t, 5, p.X)

	_, err = w.RestoreEntity(SingletonID, RestoreActive, nil)
	assert.Error(t, err)
	_, err = w.RestoreEntity(NewEntityID(5, 0), 99, nil)
	assert.Error(t, err)
}
