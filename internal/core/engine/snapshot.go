package engine

import (
	"fmt"

	"github.com/l1jgo/forge/internal/core/ecs"
	"github.com/l1jgo/forge/internal/snapshot"
)

// Export captures the complete live state. Each of the active, added and
// removed sets is read from its own source. A failed engine has no
// consistent state to export.
func (e *Engine) Export() (*snapshot.Snapshot, error) {
	if e.inFlight.Load() {
		return nil, ErrFrameInFlight
	}
	if e.failed != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineFailed, e.failed)
	}
	s := &snapshot.Snapshot{
		Frame:     e.world.Frame(),
		Pool:      e.world.Pool().State(),
		Singleton: exportEntity(e.world.Singleton()),
	}
	for _, ent := range e.world.Registry().Sorted() {
		if ent.State() == ecs.StateActive {
			s.Active = append(s.Active, exportEntity(ent))
		}
	}
	added, removed := e.world.Pending()
	for _, ent := range added {
		s.Added = append(s.Added, exportEntity(ent))
	}
	for _, ent := range removed {
		s.Removed = append(s.Removed, exportEntity(ent))
	}

	for _, sys := range e.runner.Systems() {
		ss := snapshot.System{Name: sys.Name()}
		if ml := sys.Modified(); ml != nil {
			for _, ent := range ml.Pending() {
				ss.Modified = append(ss.Modified, ent.ID())
			}
		}
		if r, ok := sys.Restorable(); ok {
			state, err := r.ExportState()
			if err != nil {
				return nil, fmt.Errorf("export %s: %w", sys.Name(), err)
			}
			ss.RestoreID = r.RestoreID()
			ss.State = string(state)
		}
		s.Systems = append(s.Systems, ss)
	}
	return s, nil
}

func exportEntity(ent *ecs.Entity) snapshot.Entity {
	writes, unsets := ent.Staged()
	out := snapshot.Entity{
		ID:         ent.ID(),
		Components: snapshot.FromTyped(ent.Components()),
		Staged:     snapshot.FromTyped(writes),
		Previous:   snapshot.FromTyped(ent.Tombstones()),
	}
	for _, t := range unsets {
		out.Unset = append(out.Unset, t.Name())
	}
	return out
}

func (e *Engine) importSnapshot(s *snapshot.Snapshot) error {
	w := e.world
	w.RestoreFrame(s.Frame)
	if err := w.Pool().Restore(s.Pool); err != nil {
		return err
	}

	singleton, err := s.Singleton.Components.Typed()
	if err != nil {
		return fmt.Errorf("singleton: %w", err)
	}
	w.RestoreSingleton(singleton)
	if err := restoreStaged(w, w.Singleton(), s.Singleton); err != nil {
		return fmt.Errorf("singleton: %w", err)
	}

	byID := make(map[ecs.EntityID]*ecs.Entity, len(s.Active)+len(s.Added))
	restore := func(se snapshot.Entity, kind int) error {
		if _, dup := byID[se.ID]; dup {
			return fmt.Errorf("entity %s listed twice", se.ID)
		}
		comps, err := se.Components.Typed()
		if err != nil {
			return fmt.Errorf("entity %s: %w", se.ID, err)
		}
		ent, err := w.RestoreEntity(se.ID, kind, comps)
		if err != nil {
			return err
		}
		if err := restoreStaged(w, ent, se); err != nil {
			return fmt.Errorf("entity %s: %w", se.ID, err)
		}
		byID[se.ID] = ent
		return nil
	}
	for _, se := range s.Active {
		if err := restore(se, ecs.RestoreActive); err != nil {
			return err
		}
	}
	pendingAdd := make(map[ecs.EntityID]bool, len(s.Added))
	for _, se := range s.Added {
		if err := restore(se, ecs.RestorePendingAdd); err != nil {
			return err
		}
		pendingAdd[se.ID] = true
	}
	for _, se := range s.Removed {
		if pendingAdd[se.ID] {
			w.Remove(byID[se.ID])
			continue
		}
		if err := restore(se, ecs.RestorePendingRemove); err != nil {
			return err
		}
	}

	return e.importSystems(s.Systems, byID)
}

// restoreStaged replays staged writes and unsets so the notifiers queue the
// entity as the exported writes did, then installs tombstones.
func restoreStaged(w *ecs.World, ent *ecs.Entity, se snapshot.Entity) error {
	staged, err := se.Staged.Typed()
	if err != nil {
		return err
	}
	for t, v := range staged {
		ent.SetValue(t, v)
	}
	for _, name := range se.Unset {
		t, ok := ecs.LookupType(name)
		if !ok {
			return fmt.Errorf("unknown component %q", name)
		}
		ent.Unset(t)
	}
	prev, err := se.Previous.Typed()
	if err != nil {
		return err
	}
	for t, v := range prev {
		w.RestoreTombstone(ent, t, v)
	}
	return nil
}

// importSystems delivers exactly one ImportState per restore id and restores
// pending modification marks.
func (e *Engine) importSystems(states []snapshot.System, byID map[ecs.EntityID]*ecs.Entity) error {
	restorables := make(map[string]func([]byte) error)
	for _, sys := range e.runner.Systems() {
		if r, ok := sys.Restorable(); ok {
			restorables[r.RestoreID()] = r.ImportState
		}
	}
	matched := make(map[string]bool, len(states))
	for _, ss := range states {
		if ss.RestoreID != "" {
			load, ok := restorables[ss.RestoreID]
			if !ok || matched[ss.RestoreID] {
				return fmt.Errorf("system %s: %w: %q", ss.Name, ErrUnmatchedRestore, ss.RestoreID)
			}
			matched[ss.RestoreID] = true
			if err := load([]byte(ss.State)); err != nil {
				return fmt.Errorf("system %s: import state: %w", ss.Name, err)
			}
		}
		if len(ss.Modified) == 0 {
			continue
		}
		sys, ok := e.runner.Lookup(ss.Name)
		if !ok || sys.Modified() == nil {
			return fmt.Errorf("system %s: pending modifications for unknown or unfiltered system", ss.Name)
		}
		for _, id := range ss.Modified {
			ent, ok := byID[id]
			if !ok {
				return fmt.Errorf("system %s: modified entity %s not in snapshot", ss.Name, id)
			}
			sys.Modified().Mark(ent)
		}
	}
	return nil
}
