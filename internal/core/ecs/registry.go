package ecs

// Registry tracks all component stores and supports bulk cleanup on entity destroy.
type Registry struct {
	stores []Removable
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make([]Removable, 0, 16),
	}
}

// Register adds a component store to the registry.
func (r *Registry) Register(store Removable) {
	r.stores = append(r.stores, store)
}

// RemoveAll clears the given entity from every registered component store.
// Stores are visited in reverse registration order so that stores registered
// first (Position) are detached last and observers of later stores can still
// read them.
func (r *Registry) RemoveAll(id EntityID) {
	for i := len(r.stores) - 1; i >= 0; i-- {
		r.stores[i].Remove(id)
	}
}

// Len returns the number of registered stores.
func (r *Registry) Len() int { return len(r.stores) }
