package component

// FluidBox is the shared level/capacity record of every fluid-capable entity.
// An empty Fluid means the box has not been primed and accepts any fluid.
type FluidBox struct {
	Fluid    string  `yaml:"fluid,omitempty"`
	Capacity float64 `yaml:"capacity"`
	Level    float64 `yaml:"level"`
}

// FillRatio returns Level/Capacity, 0 for a zero-capacity box.
func (b *FluidBox) FillRatio() float64 {
	if b.Capacity <= 0 {
		return 0
	}
	return b.Level / b.Capacity
}

// ConnMask is a 4-bit set of connected sides, bit i = Direction(i).
type ConnMask uint8

func (m ConnMask) Has(d Direction) bool { return m&(1<<d) != 0 }
func (m ConnMask) With(d Direction) ConnMask {
	return m | 1<<d
}

// Count returns the number of connected sides.
func (m ConnMask) Count() int {
	n := 0
	for d := North; d <= West; d++ {
		if m.Has(d) {
			n++
		}
	}
	return n
}

// Pipe carries fluid between neighbours. Shape is derived from adjacency.
type Pipe struct {
	Box   FluidBox `yaml:"box"`
	Shape ConnMask `yaml:"shape"`
}

// FluidTank stores fluid.
type FluidTank struct {
	Box FluidBox `yaml:"box"`
}

// FluidProducer adds Rate units per second to its own box (pumps, wells).
type FluidProducer struct {
	Box  FluidBox `yaml:"box"`
	Rate float64  `yaml:"rate"`
}

// FluidConsumer drains Rate units per second from its own box.
type FluidConsumer struct {
	Box      FluidBox `yaml:"box"`
	Rate     float64  `yaml:"rate"`
	Consumed float64  `yaml:"consumed"`
}
