package ecs

import (
	"fmt"
	"sync"
)

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on destroy so an id value is never
// handed out twice.
type EntityID uint64

// SingletonID is reserved for the world's singleton entity. The pool never
// allocates index 0.
const SingletonID EntityID = 0

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

func (id EntityID) String() string {
	return fmt.Sprintf("%d:%d", id.Index(), id.Generation())
}

// EntityPool manages entity allocation with generational indices and a free list.
// Create may be called from trigger callbacks on any goroutine.
type EntityPool struct {
	mu          sync.Mutex
	generations []uint32
	freeList    []uint32
	nextIndex   uint32
}

// PoolState is the serializable form of an EntityPool.
type PoolState struct {
	Generations []uint32 `yaml:"generations,flow"`
	FreeList    []uint32 `yaml:"free_list,flow"`
	NextIndex   uint32   `yaml:"next_index"`
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		generations: append(make([]uint32, 0, 1024), 0),
		freeList:    make([]uint32, 0, 256),
		nextIndex:   1,
	}
}

func (p *EntityPool) Create() EntityID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.freeList) > 0 {
		idx := p.freeList[0]
		p.freeList = p.freeList[1:]
		return NewEntityID(idx, p.generations[idx])
	}
	idx := p.nextIndex
	p.nextIndex++
	if int(idx) >= len(p.generations) {
		p.generations = append(p.generations, 0)
	}
	return NewEntityID(idx, p.generations[idx])
}

func (p *EntityPool) Alive(id EntityID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := id.Index()
	if idx == 0 || idx >= p.nextIndex {
		return false
	}
	return p.generations[idx] == id.Generation()
}

func (p *EntityPool) Destroy(id EntityID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := id.Index()
	if idx == 0 || idx >= p.nextIndex {
		return
	}
	if p.generations[idx] != id.Generation() {
		return // already destroyed (stale reference)
	}
	p.generations[idx]++
	p.freeList = append(p.freeList, idx)
}

// Allocated reports whether any id was ever handed out.
func (p *EntityPool) Allocated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextIndex > 1
}

func (p *EntityPool) State() PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolState{
		Generations: append([]uint32(nil), p.generations...),
		FreeList:    append([]uint32(nil), p.freeList...),
		NextIndex:   p.nextIndex,
	}
}

// Restore replaces the pool contents. A zero state leaves a fresh pool.
func (p *EntityPool) Restore(s PoolState) error {
	if s.NextIndex == 0 {
		return nil
	}
	if int(s.NextIndex) != len(s.Generations) {
		return fmt.Errorf("pool state: next index %d does not match %d generations", s.NextIndex, len(s.Generations))
	}
	for _, idx := range s.FreeList {
		if idx == 0 || idx >= s.NextIndex {
			return fmt.Errorf("pool state: free index %d out of range", idx)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generations = append(p.generations[:0], s.Generations...)
	p.freeList = append(p.freeList[:0], s.FreeList...)
	p.nextIndex = s.NextIndex
	return nil
}
