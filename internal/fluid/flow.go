package fluid

import (
	"time"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/world"
)

// Flow advances every network by dt: producers fill, consumers drain, then
// the network settles to one fill ratio. Total fluid is conserved apart
// from production and consumption. Networks are visited in id order.
func (s *System) Flow(dt time.Duration) {
	secs := dt.Seconds()
	for _, n := range s.Networks() {
		s.flow(n, secs)
	}
}

func (s *System) flow(n *Network, secs float64) {
	boxes := make([]*component.FluidBox, 0, len(n.Members))
	for _, id := range n.Members {
		box, kind := s.world.FluidBox(id)
		if kind == world.FluidNone {
			continue
		}
		switch kind {
		case world.FluidProducer:
			p, _ := s.world.Producers.Get(id)
			box.Level = min(box.Capacity, box.Level+p.Rate*secs)
			if box.Fluid != "" && n.Fluid == "" {
				n.Fluid = box.Fluid
			}
		case world.FluidConsumer:
			c, _ := s.world.Consumers.Get(id)
			drain := min(box.Level, c.Rate*secs)
			box.Level -= drain
			c.Consumed += drain
		}
		boxes = append(boxes, box)
	}

	var level, capacity float64
	for _, b := range boxes {
		level += b.Level
		capacity += b.Capacity
	}
	if capacity <= 0 {
		return
	}
	ratio := min(level/capacity, 1)
	for _, b := range boxes {
		b.Level = b.Capacity * ratio
		if b.Level > 0 && b.Fluid == "" {
			b.Fluid = n.Fluid
		}
	}
}

// Tick resolves pending topology changes and then flows.
func (s *System) Tick(dt time.Duration) {
	s.Resolve()
	s.Flow(dt)
}

// Totals sums level and capacity over every network member.
func (s *System) Totals() (level, capacity float64) {
	for _, n := range s.networks {
		for _, id := range n.Members {
			if box, kind := s.world.FluidBox(id); kind != world.FluidNone {
				level += box.Level
				capacity += box.Capacity
			}
		}
	}
	return level, capacity
}
