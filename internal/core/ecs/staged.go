package ecs

import "sync"

// Staged is a double-buffered list. Get(0) is the immutable slot read by this
// frame's consumers; Get(1) is the mutable slot producers append to. Swap
// exchanges the roles and clears neither slot; the driver clears the consumed
// slot once it is done with it.
type Staged[T any] struct {
	mu    sync.Mutex // guards appends to the mutable slot
	slots [2][]T
	front int
}

func NewStaged[T any](capacity int) *Staged[T] {
	return &Staged[T]{
		slots: [2][]T{make([]T, 0, capacity), make([]T, 0, capacity)},
	}
}

// Get returns slot 0 (immutable) or 1 (mutable). Reading the mutable slot is
// only safe while no producer runs.
func (s *Staged[T]) Get(i int) []T {
	return s.slots[s.physical(i)]
}

// Append adds v to the mutable slot. Safe from any goroutine.
func (s *Staged[T]) Append(v T) {
	s.mu.Lock()
	m := s.physical(1)
	s.slots[m] = append(s.slots[m], v)
	s.mu.Unlock()
}

// Swap turns the mutable slot into the immutable one and vice versa.
func (s *Staged[T]) Swap() {
	s.mu.Lock()
	s.front ^= 1
	s.mu.Unlock()
}

// Clear empties slot i, keeping its capacity.
func (s *Staged[T]) Clear(i int) {
	p := s.physical(i)
	clear(s.slots[p])
	s.slots[p] = s.slots[p][:0]
}

// Set replaces the contents of slot i.
func (s *Staged[T]) Set(i int, list []T) {
	s.slots[s.physical(i)] = list
}

// Filter keeps the elements of slot i for which keep returns true.
func (s *Staged[T]) Filter(i int, keep func(T) bool) {
	p := s.physical(i)
	kept := s.slots[p][:0]
	for _, v := range s.slots[p] {
		if keep(v) {
			kept = append(kept, v)
		}
	}
	var zero T
	for j := len(kept); j < len(s.slots[p]); j++ {
		s.slots[p][j] = zero
	}
	s.slots[p] = kept
}

// RemoveFunc drops every element of the mutable slot matching fn, under the
// append lock.
func (s *Staged[T]) RemoveFunc(fn func(T) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.physical(1)
	kept := s.slots[m][:0]
	for _, v := range s.slots[m] {
		if !fn(v) {
			kept = append(kept, v)
		}
	}
	s.slots[m] = kept
}

func (s *Staged[T]) physical(i int) int {
	if i == 0 {
		return s.front
	}
	return s.front ^ 1
}
