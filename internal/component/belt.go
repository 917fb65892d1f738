package component

// BeltUnits is the fixed-point length of one belt tile.
const BeltUnits int32 = 256

// ItemStack is a stack of items riding a belt lane. Progress is measured in
// BeltUnits from the belt's entry edge; BeltUnits means "at the exit edge".
type ItemStack struct {
	Item     string `yaml:"item"`
	Count    int    `yaml:"count"`
	Progress int32  `yaml:"progress"`
	// Overflow is distance earned past the exit edge while waiting for a
	// transfer. It is spent on the downstream belt.
	Overflow int32 `yaml:"overflow,omitempty"`
}

// Belt is a single-lane conveyor tile. Items are ordered front (highest
// progress) first. Speed is in tiles per second.
type Belt struct {
	Direction Direction   `yaml:"direction"`
	Speed     float64     `yaml:"speed"`
	Items     []ItemStack `yaml:"items,omitempty"`
}

// Splitter turns a belt into a distributor: items leaving it are handed out
// round-robin across the forward, left and right neighbours.
type Splitter struct {
	Cursor int `yaml:"cursor,omitempty"`
}
