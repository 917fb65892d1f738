package ecs

import (
	"fmt"
	"slices"
)

// Removable is implemented by all component stores so the Registry can
// bulk-remove an entity's data from every store on destroy.
type Removable interface {
	Remove(id EntityID)
}

// Set is the read side of a store used by Query.
type Set interface {
	Has(id EntityID) bool
	Len() int
	IDs() []EntityID
}

// Store is a generic typed map store for ECS components.
// Pure generics, no reflection.
//
// Observers registered with Observe run synchronously inside Set and Remove.
// They must not add or remove components of the same store.
type Store[T any] struct {
	name     string
	pool     *EntityPool
	data     map[EntityID]*T
	onSet    []func(id EntityID, prev, next *T)
	onRemove []func(id EntityID, prev *T)
}

// NewStore creates a store bound to w and registers it for bulk removal.
func NewStore[T any](w *World, name string) *Store[T] {
	s := &Store[T]{
		name: name,
		pool: w.pool,
		data: make(map[EntityID]*T, 256),
	}
	w.registry.Register(s)
	return s
}

func (s *Store[T]) Name() string { return s.name }

// Set attaches or overwrites the component. Attaching to a dead entity is a
// programming error and panics.
func (s *Store[T]) Set(id EntityID, c *T) {
	if !s.pool.Alive(id) {
		panic(fmt.Sprintf("ecs: %s attached to dead entity %s", s.name, id))
	}
	prev := s.data[id]
	s.data[id] = c
	for _, fn := range s.onSet {
		fn(id, prev, c)
	}
}

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *Store[T]) Remove(id EntityID) {
	prev, ok := s.data[id]
	if !ok {
		return
	}
	delete(s.data, id)
	for _, fn := range s.onRemove {
		fn(id, prev)
	}
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Len() int {
	return len(s.data)
}

// Each visits components in map order. Use IDs or Query when order matters.
func (s *Store[T]) Each(fn func(EntityID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}

// IDs returns a sorted snapshot of the entities holding this component.
func (s *Store[T]) IDs() []EntityID {
	ids := make([]EntityID, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Observe registers hooks fired after a component is set or removed.
// Either hook may be nil.
func (s *Store[T]) Observe(onSet func(id EntityID, prev, next *T), onRemove func(id EntityID, prev *T)) {
	if onSet != nil {
		s.onSet = append(s.onSet, onSet)
	}
	if onRemove != nil {
		s.onRemove = append(s.onRemove, onRemove)
	}
}
