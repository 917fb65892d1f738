package belt

import (
	"fmt"
	"slices"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/core/ecs"
	"github.com/factoryforge/simcore/internal/world"
	"go.uber.org/zap"
)

// DefaultMinGap is the minimum distance between two items on one lane.
const DefaultMinGap = component.BeltUnits / 4

// Entry is one registered belt tile. Adjacency is derived from Tile and
// Direction; item contents live in the entity's Belt component.
type Entry struct {
	Entity    ecs.EntityID
	Tile      component.Tile
	Direction component.Direction
	// mergeCursor is the feed direction served next when several
	// upstream belts compete for this tile.
	mergeCursor component.Direction
}

// Downstream is the tile this belt delivers into.
func (e *Entry) Downstream() component.Tile { return e.Tile.Step(e.Direction) }

// Network is the position-keyed belt registry and item transport.
// It is a cache over the world: Reset plus re-registration rebuilds it.
type Network struct {
	world    *world.World
	log      *zap.Logger
	entries  map[component.Tile]*Entry
	byEntity map[ecs.EntityID]component.Tile

	// MinGap is the minimum spacing between items, in belt units.
	MinGap int32
	// Strict turns registration conflicts into panics.
	Strict bool
}

func NewNetwork(w *world.World, log *zap.Logger) *Network {
	return &Network{
		world:    w,
		log:      log,
		entries:  make(map[component.Tile]*Entry),
		byEntity: make(map[ecs.EntityID]component.Tile),
		MinGap:   DefaultMinGap,
	}
}

// RegisterBelt adds or overwrites the entry at t. An entity registered at
// another tile is moved.
func (n *Network) RegisterBelt(id ecs.EntityID, t component.Tile, dir component.Direction) {
	if old, ok := n.entries[t]; ok && old.Entity != id && n.world.Alive(old.Entity) && n.world.Belts.Has(old.Entity) {
		if n.Strict {
			panic(fmt.Sprintf("belt: %s at %s already holds live belt %s", id, t, old.Entity))
		}
		n.log.Warn("belt registration overwrites live belt",
			zap.Stringer("tile", t), zap.Stringer("old", old.Entity), zap.Stringer("new", id))
		delete(n.byEntity, old.Entity)
	}
	if prev, ok := n.byEntity[id]; ok && prev != t {
		delete(n.entries, prev)
	}
	cursor := component.North
	if old, ok := n.entries[t]; ok && old.Entity == id {
		cursor = old.mergeCursor
	}
	n.entries[t] = &Entry{Entity: id, Tile: t, Direction: dir, mergeCursor: cursor}
	n.byEntity[id] = t
}

// UnregisterBelt removes the entry at t, if any.
func (n *Network) UnregisterBelt(t component.Tile) {
	e, ok := n.entries[t]
	if !ok {
		return
	}
	delete(n.entries, t)
	if n.byEntity[e.Entity] == t {
		delete(n.byEntity, e.Entity)
	}
}

// UnregisterEntity removes whatever entry id holds.
func (n *Network) UnregisterEntity(id ecs.EntityID) {
	if t, ok := n.byEntity[id]; ok {
		n.UnregisterBelt(t)
	}
}

// Entry returns the registration at t.
func (n *Network) Entry(t component.Tile) (*Entry, bool) {
	e, ok := n.entries[t]
	return e, ok
}

// TileOf returns where id is registered.
func (n *Network) TileOf(id ecs.EntityID) (component.Tile, bool) {
	t, ok := n.byEntity[id]
	return t, ok
}

// Len returns the number of registered belts.
func (n *Network) Len() int { return len(n.entries) }

// Entries returns all registrations ordered row-major by tile.
func (n *Network) Entries() []*Entry {
	out := make([]*Entry, 0, len(n.entries))
	for _, e := range n.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int {
		switch {
		case a.Tile.Less(b.Tile):
			return -1
		case b.Tile.Less(a.Tile):
			return 1
		}
		return 0
	})
	return out
}

// Reset forgets every registration.
func (n *Network) Reset() {
	clear(n.entries)
	clear(n.byEntity)
}

// belt resolves an entry to its component. Entries pointing at despawned
// entities are pruned and read as empty.
func (n *Network) belt(e *Entry) (*component.Belt, bool) {
	if n.world.Alive(e.Entity) {
		if b, ok := n.world.Belts.Get(e.Entity); ok {
			return b, true
		}
	}
	n.log.Debug("pruning stale belt entry", zap.Stringer("tile", e.Tile), zap.Stringer("entity", e.Entity))
	n.UnregisterBelt(e.Tile)
	return nil, false
}

// Insert places a stack at the entry edge of the belt at t if the lane has
// room. Used by loaders and machines.
func (n *Network) Insert(t component.Tile, stack component.ItemStack) bool {
	e, ok := n.entries[t]
	if !ok {
		return false
	}
	b, ok := n.belt(e)
	if !ok || !n.hasRoom(b) {
		return false
	}
	stack.Progress, stack.Overflow = 0, 0
	b.Items = append(b.Items, stack)
	return true
}

// Take removes the front stack of the belt at t if it has reached the exit
// edge.
func (n *Network) Take(t component.Tile) (component.ItemStack, bool) {
	e, ok := n.entries[t]
	if !ok {
		return component.ItemStack{}, false
	}
	b, ok := n.belt(e)
	if !ok || len(b.Items) == 0 || b.Items[0].Progress < component.BeltUnits {
		return component.ItemStack{}, false
	}
	it := b.Items[0]
	b.Items = slices.Delete(b.Items, 0, 1)
	it.Overflow = 0
	return it, true
}

func (n *Network) hasRoom(b *component.Belt) bool {
	if len(b.Items) == 0 {
		return true
	}
	return b.Items[len(b.Items)-1].Progress >= n.MinGap
}
