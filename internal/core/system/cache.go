package system

import "github.com/l1jgo/forge/internal/core/ecs"

// CacheChange is the outcome of a cache update.
type CacheChange int

const (
	NoChange CacheChange = iota
	Added
	Removed
)

func (c CacheChange) String() string {
	switch c {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "no_change"
	}
}

// Cache is a system's materialized set of live entities matching its filter.
// Each cached entity stores its slot in Entity.slots[index] so add and remove
// are O(1).
type Cache struct {
	index    int
	filter   ecs.Filter
	entities []*ecs.Entity
}

func NewCache(index int, filter ecs.Filter) *Cache {
	return &Cache{
		index:    index,
		filter:   filter,
		entities: make([]*ecs.Entity, 0, 64),
	}
}

// UpdateCache re-evaluates membership of e.
func (c *Cache) UpdateCache(e *ecs.Entity) CacheChange {
	want := e.Live() && c.filter.Matches(e)
	cached := c.Contains(e)
	switch {
	case want && !cached:
		e.SetSlot(c.index, len(c.entities))
		c.entities = append(c.entities, e)
		return Added
	case !want && cached:
		c.removeAt(e.Slot(c.index))
		return Removed
	}
	return NoChange
}

// Remove drops e if cached.
func (c *Cache) Remove(e *ecs.Entity) bool {
	if !c.Contains(e) {
		return false
	}
	c.removeAt(e.Slot(c.index))
	return true
}

func (c *Cache) Contains(e *ecs.Entity) bool {
	s := e.Slot(c.index)
	return s >= 0 && s < len(c.entities) && c.entities[s] == e
}

func (c *Cache) Len() int { return len(c.entities) }

// Entities returns the cache in storage order. The slice is only stable while
// no worker runs.
func (c *Cache) Entities() []*ecs.Entity { return c.entities }

func (c *Cache) removeAt(i int) {
	e := c.entities[i]
	last := len(c.entities) - 1
	moved := c.entities[last]
	c.entities[i] = moved
	moved.SetSlot(c.index, i)
	c.entities[last] = nil
	c.entities = c.entities[:last]
	e.SetSlot(c.index, -1)
}
