package ecs

import "sort"

// Registry is the unordered set of active entities. Insert and remove are
// O(1): removal swaps the last entity into the freed slot.
type Registry struct {
	entities []*Entity
	byID     map[EntityID]*Entity
}

func NewRegistry() *Registry {
	return &Registry{
		entities: make([]*Entity, 0, 256),
		byID:     make(map[EntityID]*Entity, 256),
	}
}

func (r *Registry) insert(e *Entity) {
	e.index = len(r.entities)
	r.entities = append(r.entities, e)
	r.byID[e.id] = e
}

// Get returns the registered entity with id, or nil.
func (r *Registry) Get(id EntityID) *Entity {
	return r.byID[id]
}

func (r *Registry) remove(e *Entity) bool {
	i := e.index
	if i < 0 || i >= len(r.entities) || r.entities[i] != e {
		return false
	}
	last := len(r.entities) - 1
	moved := r.entities[last]
	r.entities[i] = moved
	moved.index = i
	r.entities[last] = nil
	r.entities = r.entities[:last]
	e.index = -1
	delete(r.byID, e.id)
	return true
}

func (r *Registry) Len() int { return len(r.entities) }

// Each visits entities in storage order.
func (r *Registry) Each(fn func(*Entity)) {
	for _, e := range r.entities {
		fn(e)
	}
}

// Sorted returns the active entities ordered by id.
func (r *Registry) Sorted() []*Entity {
	out := append([]*Entity(nil), r.entities...)
	SortByID(out)
	return out
}

// SortByID orders entities by id in place.
func SortByID(es []*Entity) {
	sort.Slice(es, func(i, j int) bool { return es[i].id < es[j].id })
}
