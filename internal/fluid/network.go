package fluid

import (
	"fmt"
	"slices"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/core/ecs"
	"github.com/factoryforge/simcore/internal/world"
	"go.uber.org/zap"
)

// NetworkID names one connected component. IDs are never reused.
type NetworkID uint32

// Network is a maximal connected set of fluid entities sharing one pool.
type Network struct {
	ID      NetworkID
	Fluid   string
	Members []ecs.EntityID // ascending
}

// System partitions fluid-capable entities into networks and moves fluid
// within them. Membership is derived state: Reset plus MarkEntityDirty on
// every fluid entity rebuilds it from the world.
type System struct {
	world *world.World
	log   *zap.Logger

	membership map[ecs.EntityID]NetworkID
	networks   map[NetworkID]*Network
	lastTile   map[ecs.EntityID]component.Tile
	dirty      map[ecs.EntityID]struct{}
	nextID     NetworkID
}

func NewSystem(w *world.World, log *zap.Logger) *System {
	return &System{
		world:      w,
		log:        log,
		membership: make(map[ecs.EntityID]NetworkID),
		networks:   make(map[NetworkID]*Network),
		lastTile:   make(map[ecs.EntityID]component.Tile),
		dirty:      make(map[ecs.EntityID]struct{}),
	}
}

// MarkEntityDirty schedules id's neighbourhood for the next Resolve.
// Valid for entities that were just placed, moved or removed.
func (s *System) MarkEntityDirty(id ecs.EntityID) {
	s.dirty[id] = struct{}{}
}

// Dirty reports how many entities wait for resolution.
func (s *System) Dirty() int { return len(s.dirty) }

// Reset discards all membership and pending dirty marks.
func (s *System) Reset() {
	clear(s.membership)
	clear(s.networks)
	clear(s.lastTile)
	clear(s.dirty)
}

// NetworkOf returns the network id holds.
func (s *System) NetworkOf(id ecs.EntityID) (NetworkID, bool) {
	nid, ok := s.membership[id]
	return nid, ok
}

// Network returns a network by id.
func (s *System) Network(id NetworkID) (*Network, bool) {
	n, ok := s.networks[id]
	return n, ok
}

// Networks returns all networks ordered by id.
func (s *System) Networks() []*Network {
	out := make([]*Network, 0, len(s.networks))
	for _, n := range s.networks {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *Network) int { return int(a.ID) - int(b.ID) })
	return out
}

// Len returns the number of networks.
func (s *System) Len() int { return len(s.networks) }

func (s *System) dissolve(nid NetworkID, into *[]ecs.EntityID) {
	n, ok := s.networks[nid]
	if !ok {
		return
	}
	for _, m := range n.Members {
		delete(s.membership, m)
		*into = append(*into, m)
	}
	delete(s.networks, nid)
}

// neighbourFluids returns fluid entities on the four tiles around t.
func (s *System) neighbourFluids(t component.Tile) []ecs.EntityID {
	var out []ecs.EntityID
	for _, nt := range t.Neighbors() {
		for _, id := range s.world.At(nt) {
			if s.world.IsFluid(id) {
				out = append(out, id)
			}
		}
	}
	return out
}

// Resolve rebuilds the networks around dirty entities. Dirty entities,
// their old and new neighbours, and every member of a network any of them
// belonged to are flood-filled again; other networks keep their ids.
// It returns how many entities were reassigned.
func (s *System) Resolve() int {
	if len(s.dirty) == 0 {
		return 0
	}
	var seeds []ecs.EntityID
	for id := range s.dirty {
		seeds = append(seeds, id)
		if t, ok := s.lastTile[id]; ok {
			seeds = append(seeds, s.neighbourFluids(t)...)
		}
		if t, ok := s.world.TileOf(id); ok {
			seeds = append(seeds, s.neighbourFluids(t)...)
		}
	}
	clear(s.dirty)
	slices.Sort(seeds)
	seeds = slices.Compact(seeds)

	work := make([]ecs.EntityID, 0, len(seeds))
	for _, id := range seeds {
		if nid, ok := s.membership[id]; ok {
			s.dissolve(nid, &work)
		}
		work = append(work, id)
	}

	// Networks numbered above base were built during this pass and are final.
	base := s.nextID
	touched := 0
	var reshape []ecs.EntityID
	for i := 0; i < len(work); i++ {
		id := work[i]
		if _, assigned := s.membership[id]; assigned {
			continue
		}
		if !s.world.Alive(id) || !s.world.IsFluid(id) {
			delete(s.lastTile, id)
			continue
		}
		members := s.flood(id, base, &work)
		touched += len(members)
		reshape = append(reshape, members...)
	}

	for _, id := range reshape {
		s.reshape(id)
		if t, ok := s.world.TileOf(id); ok {
			for _, n := range s.neighbourFluids(t) {
				s.reshape(n)
			}
		}
	}
	s.log.Debug("fluid networks resolved", zap.Int("touched", touched), zap.Int("networks", len(s.networks)))
	return touched
}

// flood assigns a new network to everything connected to start. Older
// networks met on the way are dissolved and their members appended to work.
// Members of networks newer than base stay where they are, so an empty pipe
// between two different fluids belongs to whichever side reached it first.
func (s *System) flood(start ecs.EntityID, base NetworkID, work *[]ecs.EntityID) []ecs.EntityID {
	s.nextID++
	net := &Network{ID: s.nextID}
	box, _ := s.world.FluidBox(start)
	net.Fluid = box.Fluid

	queue := []ecs.EntityID{start}
	s.membership[start] = net.ID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		net.Members = append(net.Members, id)
		t, ok := s.world.TileOf(id)
		if !ok {
			continue
		}
		s.lastTile[id] = t
		for _, n := range s.neighbourFluids(t) {
			if got, ok := s.membership[n]; ok {
				if got == net.ID || got > base {
					continue
				}
				if !s.joinable(net, n) {
					continue
				}
				s.dissolve(got, work)
			}
			if !s.joinable(net, n) {
				continue
			}
			nb, _ := s.world.FluidBox(n)
			if net.Fluid == "" && nb.Fluid != "" {
				net.Fluid = nb.Fluid
			}
			s.membership[n] = net.ID
			queue = append(queue, n)
		}
	}
	slices.Sort(net.Members)
	s.networks[net.ID] = net
	return net.Members
}

func (s *System) joinable(net *Network, id ecs.EntityID) bool {
	box, kind := s.world.FluidBox(id)
	if kind == world.FluidNone {
		return false
	}
	return compatible(net.Fluid, box.Fluid)
}

func compatible(a, b string) bool {
	return a == "" || b == "" || a == b
}

// reshape recomputes one pipe's connection mask from its neighbours.
func (s *System) reshape(id ecs.EntityID) {
	p, ok := s.world.Pipes.Get(id)
	if !ok {
		return
	}
	t, ok := s.world.TileOf(id)
	if !ok {
		p.Shape = 0
		return
	}
	var mask component.ConnMask
	for d := component.North; d <= component.West; d++ {
		for _, n := range s.world.At(t.Step(d)) {
			nb, kind := s.world.FluidBox(n)
			if kind != world.FluidNone && compatible(p.Box.Fluid, nb.Fluid) {
				mask = mask.With(d)
				break
			}
		}
	}
	p.Shape = mask
}

// RecomputePipeShapes recalculates every pipe's shape from adjacency alone.
func (s *System) RecomputePipeShapes() {
	for _, id := range s.world.Pipes.IDs() {
		s.reshape(id)
	}
}

// CheckPartition verifies that every fluid entity is in exactly one
// network and that networks hold nothing else.
func (s *System) CheckPartition() error {
	fluids := s.world.FluidEntities()
	seen := make(map[ecs.EntityID]NetworkID, len(fluids))
	for _, n := range s.networks {
		for _, m := range n.Members {
			if prev, dup := seen[m]; dup {
				return fmt.Errorf("entity %s in networks %d and %d", m, prev, n.ID)
			}
			seen[m] = n.ID
			if s.membership[m] != n.ID {
				return fmt.Errorf("entity %s membership disagrees with network %d", m, n.ID)
			}
		}
	}
	for _, id := range fluids {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("fluid entity %s has no network", id)
		}
	}
	if len(seen) != len(fluids) {
		return fmt.Errorf("networks hold %d entities, world has %d fluid entities", len(seen), len(fluids))
	}
	return nil
}
