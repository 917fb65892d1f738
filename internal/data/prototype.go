package data

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPrototype is returned when a prototype name is not in the table.
var ErrUnknownPrototype = errors.New("unknown prototype")

// Kind selects which components a prototype attaches when placed.
type Kind string

const (
	KindBelt     Kind = "belt"
	KindSplitter Kind = "splitter"
	KindPipe     Kind = "pipe"
	KindTank     Kind = "tank"
	KindPump     Kind = "pump"
	KindConsumer Kind = "consumer"
)

func (k Kind) Valid() bool {
	switch k {
	case KindBelt, KindSplitter, KindPipe, KindTank, KindPump, KindConsumer:
		return true
	}
	return false
}

// IsFluid reports whether entities of this kind join fluid networks.
func (k Kind) IsFluid() bool {
	switch k {
	case KindPipe, KindTank, KindPump, KindConsumer:
		return true
	}
	return false
}

// Size is a footprint in tiles.
type Size struct {
	W int32 `yaml:"w"`
	H int32 `yaml:"h"`
}

// Prototype is one placeable entity definition.
type Prototype struct {
	Name     string  `yaml:"name"`
	Kind     Kind    `yaml:"kind"`
	Speed    float64 `yaml:"speed"`    // belts and splitters, tiles per second
	Capacity float64 `yaml:"capacity"` // fluid box size
	Rate     float64 `yaml:"rate"`     // pumps and consumers, units per second
	Fluid    string  `yaml:"fluid"`    // pumps only
	Sprite   string  `yaml:"sprite"`
	Size     Size    `yaml:"size"`
}

func (p *Prototype) validate() error {
	if p.Name == "" {
		return errors.New("missing name")
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("%s: invalid kind %q", p.Name, p.Kind)
	}
	switch p.Kind {
	case KindBelt, KindSplitter:
		if p.Speed <= 0 {
			return fmt.Errorf("%s: speed must be positive", p.Name)
		}
	default:
		if p.Capacity <= 0 {
			return fmt.Errorf("%s: capacity must be positive", p.Name)
		}
	}
	if p.Kind == KindPump && p.Fluid == "" {
		return fmt.Errorf("%s: pump needs a fluid", p.Name)
	}
	if p.Size.W <= 0 {
		p.Size.W = 1
	}
	if p.Size.H <= 0 {
		p.Size.H = 1
	}
	if p.Sprite == "" {
		p.Sprite = p.Name
	}
	return nil
}

// PrototypeTable indexes prototypes by name.
type PrototypeTable struct {
	byName map[string]*Prototype
}

// Get returns the prototype called name.
func (t *PrototypeTable) Get(name string) (*Prototype, error) {
	p, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrototype, name)
	}
	return p, nil
}

// Names returns every prototype name, sorted.
func (t *PrototypeTable) Names() []string {
	out := make([]string, 0, len(t.byName))
	for n := range t.byName {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Count returns the number of prototypes loaded.
func (t *PrototypeTable) Count() int {
	return len(t.byName)
}

// --- YAML loading ---

type prototypeFile struct {
	Prototypes []Prototype `yaml:"prototypes"`
}

// LoadPrototypes loads the prototype table from a YAML file.
func LoadPrototypes(path string) (*PrototypeTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prototypes: read %s: %w", path, err)
	}
	t, err := ParsePrototypes(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParsePrototypes decodes a prototype table. Names must be unique.
func ParsePrototypes(raw []byte) (*PrototypeTable, error) {
	var f prototypeFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("prototypes: parse: %w", err)
	}
	t := &PrototypeTable{byName: make(map[string]*Prototype, len(f.Prototypes))}
	for i := range f.Prototypes {
		p := &f.Prototypes[i]
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("prototypes: entry %d: %w", i, err)
		}
		if _, dup := t.byName[p.Name]; dup {
			return nil, fmt.Errorf("prototypes: duplicate name %q", p.Name)
		}
		t.byName[p.Name] = p
	}
	return t, nil
}
