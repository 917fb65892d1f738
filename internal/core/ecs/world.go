package ecs

// World is the top-level ECS container: the entity pool, the component
// registry, and the deferred destruction queue drained by the cleanup phase.
type World struct {
	pool     *EntityPool
	registry *Registry
	queue    []EntityID
	queued   map[EntityID]struct{}
}

func NewWorld() *World {
	return &World{
		pool:     NewEntityPool(),
		registry: NewRegistry(),
		queue:    make([]EntityID, 0, 64),
		queued:   make(map[EntityID]struct{}),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// Destroy strips every component from id, firing remove observers, then
// frees the id. Dead or stale ids are ignored.
func (w *World) Destroy(id EntityID) {
	if !w.pool.Alive(id) {
		return
	}
	w.registry.RemoveAll(id)
	w.pool.Destroy(id)
}

// MarkForDestruction queues a live entity for the next FlushDestroyQueue.
// Marking twice queues once.
func (w *World) MarkForDestruction(id EntityID) {
	if !w.pool.Alive(id) {
		return
	}
	if _, ok := w.queued[id]; ok {
		return
	}
	w.queued[id] = struct{}{}
	w.queue = append(w.queue, id)
}

// PendingDestruction reports how many entities are queued.
func (w *World) PendingDestruction() int { return len(w.queue) }

// FlushDestroyQueue destroys queued entities in the order they were marked.
func (w *World) FlushDestroyQueue() {
	for _, id := range w.queue {
		w.Destroy(id)
	}
	w.queue = w.queue[:0]
	clear(w.queued)
}

// Entities returns every live entity in ascending index order.
func (w *World) Entities() []EntityID {
	out := make([]EntityID, 0, w.pool.Len())
	w.pool.Each(func(id EntityID) { out = append(out, id) })
	return out
}

// Reset destroys every entity, drops the pending queue and rewinds the pool
// so restored ids can be placed at their original indices.
func (w *World) Reset() {
	for _, id := range w.Entities() {
		w.Destroy(id)
	}
	w.queue = w.queue[:0]
	clear(w.queued)
	w.pool.Reset()
}
