package chunk

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrNotFound means no record is persisted for the chunk in the slot.
	ErrNotFound = errors.New("chunk not persisted")
	// ErrClosed is returned by a manager after Close.
	ErrClosed = errors.New("chunk manager closed")
)

// Record is the persisted form of a chunk.
type Record struct {
	Coord    Coord    `yaml:"coord"`
	Terrain  []byte   `yaml:"terrain"`
	Entities []uint64 `yaml:"entities,omitempty"`
}

const tileBytes = 4

func packTiles(tiles []Tile) []byte {
	out := make([]byte, len(tiles)*tileBytes)
	for i, t := range tiles {
		b := out[i*tileBytes:]
		b[0] = t.Terrain
		b[1] = t.Resource
		binary.LittleEndian.PutUint16(b[2:], t.Amount)
	}
	return out
}

func unpackTiles(raw []byte, tiles []Tile) error {
	if len(raw) != len(tiles)*tileBytes {
		return fmt.Errorf("terrain blob is %d bytes, want %d", len(raw), len(tiles)*tileBytes)
	}
	for i := range tiles {
		b := raw[i*tileBytes:]
		tiles[i] = Tile{Terrain: b[0], Resource: b[1], Amount: binary.LittleEndian.Uint16(b[2:])}
	}
	return nil
}

// Store persists chunk records namespaced by save slot.
// Implementations must be safe for concurrent use: saves run on background
// goroutines.
type Store interface {
	Load(ctx context.Context, slot string, c Coord) (*Record, error)
	Save(ctx context.Context, slot string, rec *Record) error
	Delete(ctx context.Context, slot string, c Coord) error
}

// Lister is implemented by stores that can enumerate a slot.
type Lister interface {
	List(ctx context.Context, slot string) ([]Coord, error)
}

type memKey struct {
	slot string
	c    Coord
}

// MemoryStore keeps records in memory. Used by tests and headless runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[memKey]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[memKey]*Record)}
}

func (m *MemoryStore) Load(_ context.Context, slot string, c Coord) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[memKey{slot, c}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) Save(_ context.Context, slot string, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[memKey{slot, rec.Coord}] = cloneRecord(rec)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, slot string, c Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, memKey{slot, c})
	return nil
}

// List returns the coordinates stored for slot, sorted row-major.
func (m *MemoryStore) List(_ context.Context, slot string) ([]Coord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Coord
	for k := range m.records {
		if k.slot == slot {
			out = append(out, k.c)
		}
	}
	slices.SortFunc(out, compareCoord)
	return out, nil
}

// Len returns the number of records across all slots.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func cloneRecord(r *Record) *Record {
	return &Record{
		Coord:    r.Coord,
		Terrain:  append([]byte(nil), r.Terrain...),
		Entities: append([]uint64(nil), r.Entities...),
	}
}
