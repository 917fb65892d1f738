package world

import (
	"slices"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/core/ecs"
)

// SpatialIndex maps tiles to the entities standing on them.
// Accessed only from the simulation goroutine; no locks.
type SpatialIndex struct {
	cells map[component.Tile]map[ecs.EntityID]struct{}
	count int
}

func NewSpatialIndex() *SpatialIndex {
	return &SpatialIndex{
		cells: make(map[component.Tile]map[ecs.EntityID]struct{}),
	}
}

// Add places an entity into the index.
func (g *SpatialIndex) Add(id ecs.EntityID, t component.Tile) {
	cell := g.cells[t]
	if cell == nil {
		cell = make(map[ecs.EntityID]struct{})
		g.cells[t] = cell
	}
	if _, ok := cell[id]; !ok {
		cell[id] = struct{}{}
		g.count++
	}
}

// Remove takes an entity out of the index.
func (g *SpatialIndex) Remove(id ecs.EntityID, t component.Tile) {
	cell := g.cells[t]
	if cell == nil {
		return
	}
	if _, ok := cell[id]; ok {
		delete(cell, id)
		g.count--
	}
	if len(cell) == 0 {
		delete(g.cells, t)
	}
}

// Move updates an entity's tile.
func (g *SpatialIndex) Move(id ecs.EntityID, from, to component.Tile) {
	if from == to {
		return
	}
	g.Remove(id, from)
	g.Add(id, to)
}

// At returns the entities on a tile in ascending id order.
func (g *SpatialIndex) At(t component.Tile) []ecs.EntityID {
	cell := g.cells[t]
	if len(cell) == 0 {
		return nil
	}
	out := make([]ecs.EntityID, 0, len(cell))
	for id := range cell {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Contains reports whether id is indexed at t.
func (g *SpatialIndex) Contains(id ecs.EntityID, t component.Tile) bool {
	_, ok := g.cells[t][id]
	return ok
}

// Nearby returns all entities within Chebyshev distance radius of t.
func (g *SpatialIndex) Nearby(t component.Tile, radius int32) []ecs.EntityID {
	var result []ecs.EntityID
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			for id := range g.cells[component.Tile{X: t.X + dx, Y: t.Y + dy}] {
				result = append(result, id)
			}
		}
	}
	slices.Sort(result)
	return result
}

// Len returns the number of indexed entities.
func (g *SpatialIndex) Len() int { return g.count }

// Reset drops every entry.
func (g *SpatialIndex) Reset() {
	clear(g.cells)
	g.count = 0
}
