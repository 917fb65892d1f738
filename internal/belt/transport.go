package belt

import (
	"math"
	"slices"
	"time"

	"github.com/factoryforge/simcore/internal/component"
)

// StepUnits converts a belt speed (tiles/s) over dt into belt units.
func StepUnits(speed float64, dt time.Duration) int32 {
	return int32(math.Round(speed * dt.Seconds() * float64(component.BeltUnits)))
}

// live pairs an entry with its resolved component for one tick.
type live struct {
	entry *Entry
	belt  *component.Belt
}

// Tick advances every lane by its speed and then hands items across belt
// boundaries. Items that cannot cross wait at the exit edge.
func (n *Network) Tick(dt time.Duration) {
	belts := n.resolve()
	for _, l := range belts {
		n.advance(l.belt, StepUnits(l.belt.Speed, dt))
	}
	n.transfer(belts)
}

// resolve returns live entries in deterministic tile order, pruning stale ones.
func (n *Network) resolve() []live {
	entries := n.Entries()
	out := make([]live, 0, len(entries))
	for _, e := range entries {
		if b, ok := n.belt(e); ok {
			out = append(out, live{entry: e, belt: b})
		}
	}
	return out
}

// advance moves items within one lane, front first, keeping MinGap.
func (n *Network) advance(b *component.Belt, step int32) {
	if step <= 0 {
		return
	}
	for i := range b.Items {
		it := &b.Items[i]
		target := it.Progress + step
		if i == 0 {
			if target >= component.BeltUnits {
				it.Overflow = target - component.BeltUnits
				target = component.BeltUnits
			}
		} else {
			limit := b.Items[i-1].Progress - n.MinGap
			if target > limit {
				target = max(limit, it.Progress)
			}
		}
		it.Progress = target
	}
}

func waiting(b *component.Belt) bool {
	return len(b.Items) > 0 && b.Items[0].Progress >= component.BeltUnits
}

// handoff is the per-tick transfer state.
type handoff struct {
	byTile map[component.Tile]*live
	// accepted belts took an item this tick; arrived belts got it as their
	// front item, which may move on only while it still carries overflow.
	accepted map[component.Tile]bool
	arrived  map[component.Tile]bool
}

func (h *handoff) ready(l *live) bool {
	if !waiting(l.belt) {
		return false
	}
	return l.belt.Items[0].Overflow > 0 || !h.arrived[l.entry.Tile]
}

// transfer hands items across belt boundaries. Each belt accepts at most one
// item per tick. Passes repeat so a fast item keeps hopping until its
// overflow is spent; a front item still blocked afterwards loses the
// distance it earned this tick.
func (n *Network) transfer(belts []live) {
	h := &handoff{
		byTile:   make(map[component.Tile]*live, len(belts)),
		accepted: make(map[component.Tile]bool),
		arrived:  make(map[component.Tile]bool),
	}
	for i := range belts {
		h.byTile[belts[i].entry.Tile] = &belts[i]
	}
	for n.transferPass(belts, h) > 0 {
	}
	for i := range belts {
		if waiting(belts[i].belt) {
			belts[i].belt.Items[0].Overflow = 0
		}
	}
}

// transferPass runs splitters first, round-robin over forward, left and
// right; then every belt accepts from its feeders round-robin by feed
// direction. It returns how many items moved.
func (n *Network) transferPass(belts []live, h *handoff) int {
	moved := 0
	for i := range belts {
		src := &belts[i]
		sp, ok := n.world.Splitters.Get(src.entry.Entity)
		if !ok || !h.ready(src) {
			continue
		}
		outs := splitterOutputs(src.entry)
		for k := 0; k < len(outs); k++ {
			slot := (sp.Cursor + k) % len(outs)
			dst, ok := h.byTile[outs[slot]]
			if !ok || h.accepted[dst.entry.Tile] || pointsInto(dst.entry, src.entry.Tile) || !n.hasRoom(dst.belt) {
				continue
			}
			n.hand(src, dst, h)
			sp.Cursor = (slot + 1) % len(outs)
			moved++
			break
		}
	}

	for i := range belts {
		dst := &belts[i]
		if h.accepted[dst.entry.Tile] || !n.hasRoom(dst.belt) {
			continue
		}
		start := dst.entry.mergeCursor
		for k := component.Direction(0); k < 4; k++ {
			feed := (start + k) % 4
			// a feeder moving in direction feed sits one tile against it
			src, ok := h.byTile[dst.entry.Tile.Step(feed.Opposite())]
			if !ok || src.entry.Direction != feed || !h.ready(src) || n.world.Splitters.Has(src.entry.Entity) {
				continue
			}
			n.hand(src, dst, h)
			dst.entry.mergeCursor = (feed + 1) % 4
			moved++
			break
		}
	}
	return moved
}

func (n *Network) hand(src, dst *live, h *handoff) {
	front := len(dst.belt.Items) == 0
	n.move(src.belt, dst.belt)
	h.accepted[dst.entry.Tile] = true
	if front {
		h.arrived[dst.entry.Tile] = true
	}
}

func splitterOutputs(e *Entry) []component.Tile {
	return []component.Tile{
		e.Tile.Step(e.Direction),
		e.Tile.Step(e.Direction.Left()),
		e.Tile.Step(e.Direction.Right()),
	}
}

// pointsInto reports whether e delivers into tile t.
func pointsInto(e *Entry, t component.Tile) bool {
	return e.Downstream() == t
}

// move hands the front stack of src to the tail of dst. The stack spends
// its overflow on dst but never closes the gap to dst's last item. On an
// empty belt, overflow beyond the exit edge is kept for the next hop.
func (n *Network) move(src, dst *component.Belt) {
	it := src.Items[0]
	src.Items = slices.Delete(src.Items, 0, 1)
	pos := it.Overflow
	it.Overflow = 0
	if k := len(dst.Items); k > 0 {
		pos = min(pos, dst.Items[k-1].Progress-n.MinGap)
	} else if pos >= component.BeltUnits {
		it.Overflow = pos - component.BeltUnits
		pos = component.BeltUnits
	}
	it.Progress = max(pos, 0)
	dst.Items = append(dst.Items, it)
}
