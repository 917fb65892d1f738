package belt

import (
	"testing"
	"time"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/core/ecs"
	"github.com/factoryforge/simcore/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// quarter is the tick length that moves a 4 tiles/s belt by 64 units.
const quarter = 62500 * time.Microsecond

type fixture struct {
	w   *world.World
	net *Network
}

func newFixture() *fixture {
	w := world.New(zap.NewNop())
	return &fixture{w: w, net: NewNetwork(w, zap.NewNop())}
}

func (f *fixture) place(x, y int32, dir component.Direction, speed float64) ecs.EntityID {
	id := f.w.Spawn()
	t := component.Tile{X: x, Y: y}
	f.w.Positions.Set(id, &component.Position{Tile: t})
	f.w.Belts.Set(id, &component.Belt{Direction: dir, Speed: speed})
	f.net.RegisterBelt(id, t, dir)
	return id
}

func (f *fixture) items(id ecs.EntityID) []component.ItemStack {
	b, _ := f.w.Belts.Get(id)
	return b.Items
}

func (f *fixture) total() int {
	n := 0
	f.w.Belts.Each(func(_ ecs.EntityID, b *component.Belt) {
		for _, it := range b.Items {
			n += it.Count
		}
	})
	return n
}

func TestRegistry(t *testing.T) {
	f := newFixture()
	a := f.place(0, 0, component.East, 4)
	e, ok := f.net.Entry(component.Tile{X: 0, Y: 0})
	require.True(t, ok)
	assert.Equal(t, a, e.Entity)
	assert.Equal(t, component.Tile{X: 1, Y: 0}, e.Downstream())

	// re-registering the same entity elsewhere moves it
	f.net.RegisterBelt(a, component.Tile{X: 5, Y: 5}, component.North)
	_, ok = f.net.Entry(component.Tile{X: 0, Y: 0})
	assert.False(t, ok)
	assert.Equal(t, 1, f.net.Len())
	tile, _ := f.net.TileOf(a)
	assert.Equal(t, component.Tile{X: 5, Y: 5}, tile)

	f.net.UnregisterEntity(a)
	assert.Equal(t, 0, f.net.Len())
	f.net.UnregisterBelt(component.Tile{X: 9, Y: 9}) // unknown tile is a no-op
}

func TestStrictRegistrationConflictPanics(t *testing.T) {
	f := newFixture()
	f.net.Strict = true
	f.place(0, 0, component.East, 4)
	other := f.w.Spawn()
	f.w.Belts.Set(other, &component.Belt{})
	assert.Panics(t, func() {
		f.net.RegisterBelt(other, component.Tile{X: 0, Y: 0}, component.East)
	})
}

func TestItemReachesFarEndOnTime(t *testing.T) {
	cases := []struct {
		name   string
		length int32
		speed  float64 // tiles/s at quarter ticks
		ticks  int
	}{
		{"exact step", 3, 4, 12},    // 64 units/tick, 768 units
		{"uneven step", 2, 6.25, 6}, // 100 units/tick, 512 units
		{"single belt", 1, 4, 4},
		{"quarter tile per tick", 5, 4, 20},
		{"tile and a half per tick", 6, 24, 4},      // 384 units/tick, 1536 units
		{"uneven multi-hop", 7, 24, 5},              // 1792 units
		{"two and a half tiles per tick", 5, 40, 2}, // 640 units/tick, 1280 units
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			var ids []ecs.EntityID
			for x := int32(0); x < tc.length; x++ {
				ids = append(ids, f.place(x, 0, component.East, tc.speed))
			}
			require.True(t, f.net.Insert(component.Tile{}, component.ItemStack{Item: "gear", Count: 1}))
			last := ids[len(ids)-1]

			for tick := 1; tick <= tc.ticks; tick++ {
				f.net.Tick(quarter)
				atEnd := len(f.items(last)) == 1 && f.items(last)[0].Progress == component.BeltUnits
				if tick < tc.ticks {
					assert.False(t, atEnd, "arrived early at tick %d", tick)
				} else {
					assert.True(t, atEnd, "not at far end at tick %d", tick)
				}
				assert.Equal(t, 1, f.total(), "item duplicated or lost at tick %d", tick)
			}
		})
	}
}

func TestBackpressureKeepsSpacing(t *testing.T) {
	f := newFixture()
	a := f.place(0, 0, component.East, 4)
	b := f.place(1, 0, component.East, 4)

	inserted := 0
	for i := 0; i < 40; i++ {
		if f.net.Insert(component.Tile{}, component.ItemStack{Item: "ore", Count: 1}) {
			inserted++
		}
		f.net.Tick(quarter)
	}
	// two tiles at MinGap = quarter tile hold 4 items each plus the waiting slot
	assert.Equal(t, inserted, f.total())
	assert.LessOrEqual(t, len(f.items(b)), 5)
	for _, lane := range [][]component.ItemStack{f.items(a), f.items(b)} {
		for i := 1; i < len(lane); i++ {
			assert.GreaterOrEqual(t, lane[i-1].Progress-lane[i].Progress, DefaultMinGap)
		}
	}
	require.NotEmpty(t, f.items(b))
	assert.Equal(t, component.BeltUnits, f.items(b)[0].Progress, "front item blocked at the exit edge")

	got, ok := f.net.Take(component.Tile{X: 1, Y: 0})
	require.True(t, ok)
	assert.Equal(t, "ore", got.Item)
	assert.Equal(t, inserted-1, f.total())
}

func TestFastBeltBackpressure(t *testing.T) {
	f := newFixture()
	var ids []ecs.EntityID
	for x := int32(0); x < 4; x++ {
		ids = append(ids, f.place(x, 0, component.East, 24))
	}

	inserted := 0
	for i := 0; i < 60; i++ {
		if f.net.Insert(component.Tile{}, component.ItemStack{Item: "plate", Count: 1}) {
			inserted++
		}
		f.net.Tick(quarter)
		require.Equal(t, inserted, f.total(), "item duplicated or lost at tick %d", i+1)
	}
	for _, id := range ids {
		lane := f.items(id)
		for i := 1; i < len(lane); i++ {
			assert.GreaterOrEqual(t, lane[i-1].Progress-lane[i].Progress, DefaultMinGap)
		}
	}
	last := f.items(ids[len(ids)-1])
	require.NotEmpty(t, last)
	assert.Equal(t, component.BeltUnits, last[0].Progress)
	assert.Zero(t, last[0].Overflow, "blocked item keeps no distance across ticks")
}

func TestBlockedItemResumesAtBeltSpeed(t *testing.T) {
	f := newFixture()
	a := f.place(0, 0, component.East, 4)
	c := f.place(1, 0, component.East, 4)
	b, _ := f.w.Belts.Get(a)
	b.Items = []component.ItemStack{{Item: "gear", Count: 1, Progress: component.BeltUnits}}

	// no route while the second belt is out of the registry
	f.net.UnregisterEntity(c)
	for i := 0; i < 10; i++ {
		f.net.Tick(quarter)
	}
	require.Len(t, f.items(a), 1)
	assert.Zero(t, f.items(a)[0].Overflow)

	f.net.RegisterBelt(c, component.Tile{X: 1, Y: 0}, component.East)
	f.net.Tick(quarter)
	require.Len(t, f.items(c), 1)
	assert.Equal(t, int32(64), f.items(c)[0].Progress, "one tick of travel, not ten")
}

func TestMergeIsRoundRobin(t *testing.T) {
	f := newFixture()
	// west feeder and north feeder both deliver into (1,1), which runs east.
	f.place(0, 1, component.East, 4)
	f.place(1, 0, component.South, 4)
	f.place(1, 1, component.East, 4)
	sink := component.Tile{X: 2, Y: 1}
	f.place(2, 1, component.East, 4)

	fromWest, fromNorth := 0, 0
	for i := 0; i < 200; i++ {
		f.net.Insert(component.Tile{X: 0, Y: 1}, component.ItemStack{Item: "west", Count: 1})
		f.net.Insert(component.Tile{X: 1, Y: 0}, component.ItemStack{Item: "north", Count: 1})
		f.net.Tick(quarter)
		if it, ok := f.net.Take(sink); ok {
			switch it.Item {
			case "west":
				fromWest++
			case "north":
				fromNorth++
			}
		}
	}
	require.Greater(t, fromWest+fromNorth, 20)
	assert.InDelta(t, fromWest, fromNorth, 1)
}

func TestSplitterDistributes(t *testing.T) {
	f := newFixture()
	src := f.place(0, 1, component.East, 4)
	f.w.Splitters.Set(src, &component.Splitter{})
	fwd := f.place(1, 1, component.East, 4)
	left := f.place(0, 0, component.North, 4)
	right := f.place(0, 2, component.South, 4)

	for i := 0; i < 6; i++ {
		b, _ := f.w.Belts.Get(src)
		b.Items = append(b.Items, component.ItemStack{Item: "plate", Count: 1, Progress: component.BeltUnits})
		f.net.Tick(quarter)
	}
	assert.Len(t, f.items(fwd), 2)
	assert.Len(t, f.items(left), 2)
	assert.Len(t, f.items(right), 2)
	assert.Equal(t, 6, f.total())
}

func TestSplitterSkipsBeltPointingBack(t *testing.T) {
	f := newFixture()
	src := f.place(0, 0, component.East, 4)
	f.w.Splitters.Set(src, &component.Splitter{})
	back := f.place(1, 0, component.West, 4) // points into the splitter
	right := f.place(0, 1, component.South, 4)

	b, _ := f.w.Belts.Get(src)
	b.Items = append(b.Items, component.ItemStack{Item: "x", Count: 1, Progress: component.BeltUnits})
	f.net.Tick(quarter)
	assert.Empty(t, f.items(back))
	assert.Len(t, f.items(right), 1)
}

func TestStaleEntryIsPruned(t *testing.T) {
	f := newFixture()
	a := f.place(0, 0, component.East, 4)
	f.place(1, 0, component.East, 4)
	f.w.Despawn(a) // no observer wired: the registry still holds a

	assert.Equal(t, 2, f.net.Len())
	assert.False(t, f.net.Insert(component.Tile{}, component.ItemStack{Item: "x", Count: 1}))
	f.net.Tick(quarter)
	assert.Equal(t, 1, f.net.Len())
	_, ok := f.net.Entry(component.Tile{})
	assert.False(t, ok)
}

func TestStepUnits(t *testing.T) {
	assert.Equal(t, int32(64), StepUnits(4, quarter))
	assert.Equal(t, int32(0), StepUnits(0, quarter))
}
