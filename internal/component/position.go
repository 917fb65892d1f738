package component

import "fmt"

// Tile is an integer world tile coordinate.
type Tile struct {
	X int32 `yaml:"x"`
	Y int32 `yaml:"y"`
}

func (t Tile) String() string { return fmt.Sprintf("(%d,%d)", t.X, t.Y) }

// Step returns the neighbouring tile in direction d.
func (t Tile) Step(d Direction) Tile {
	dx, dy := d.Delta()
	return Tile{X: t.X + dx, Y: t.Y + dy}
}

// Neighbors returns the four orthogonal neighbours in N, E, S, W order.
func (t Tile) Neighbors() [4]Tile {
	return [4]Tile{t.Step(North), t.Step(East), t.Step(South), t.Step(West)}
}

// Less orders tiles row-major (Y then X).
func (t Tile) Less(o Tile) bool {
	if t.Y != o.Y {
		return t.Y < o.Y
	}
	return t.X < o.X
}

// Direction is a cardinal facing. Y grows southwards.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

var directionNames = [...]string{"north", "east", "south", "west"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return "invalid"
}

func (d Direction) Valid() bool { return d <= West }

func (d Direction) Delta() (int32, int32) {
	switch d {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	case West:
		return -1, 0
	}
	return 0, 0
}

func (d Direction) Opposite() Direction { return (d + 2) % 4 }
func (d Direction) Left() Direction     { return (d + 3) % 4 }
func (d Direction) Right() Direction    { return (d + 1) % 4 }

// ParseDirection accepts the lower-case names used in data files.
func ParseDirection(s string) (Direction, error) {
	for i, n := range directionNames {
		if n == s {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Position places an entity on a tile with a sub-tile offset in [0,1).
type Position struct {
	Tile    Tile    `yaml:"tile"`
	OffsetX float32 `yaml:"offset_x,omitempty"`
	OffsetY float32 `yaml:"offset_y,omitempty"`
}

// Collision marks an entity as occupying its footprint for placement checks.
type Collision struct {
	Width  int32 `yaml:"width"`
	Height int32 `yaml:"height"`
}

// Sprite names the visual used by the renderer. Opaque to the simulation.
type Sprite struct {
	Name string `yaml:"name"`
}
