package event

import "github.com/factoryforge/simcore/internal/core/ecs"

// ChunkLoaded is emitted when a chunk becomes resident.
type ChunkLoaded struct {
	X, Y      int32
	Generated bool // false when read back from storage
	Entities  int
}

// ChunkEvicted is emitted when a chunk leaves memory.
type ChunkEvicted struct {
	X, Y  int32
	Saved bool
}

// ChunkSaveFailed is emitted when persisting a chunk fails. The chunk stays
// dirty and will be retried on the next save.
type ChunkSaveFailed struct {
	X, Y int32
	Slot string
	Err  error
}

// NetworksRebuilt is emitted after a fluid resolve pass that changed topology.
type NetworksRebuilt struct {
	Touched  int
	Networks int
}

// EntityRemoved is emitted when the placement API removes an entity.
type EntityRemoved struct {
	EntityID ecs.EntityID
}
