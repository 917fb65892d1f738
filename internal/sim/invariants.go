package sim

import (
	"errors"
	"fmt"

	"github.com/factoryforge/simcore/internal/chunk"
)

// CheckInvariants cross-checks every derived index against the world:
// chunk membership, spatial index, belt registry and fluid partition.
// It is meant for tests and debug builds; cost is linear in entities.
func (s *Simulation) CheckInvariants() error {
	var errs []error
	w := s.world

	positioned := w.Positions.IDs()
	for _, id := range positioned {
		t, _ := w.TileOf(id)
		if !w.Spatial().Contains(id, t) {
			errs = append(errs, fmt.Errorf("spatial index misses %s at %s", id, t))
		}
		want := chunk.CoordOf(t)
		if ch := s.chunks.GetChunk(t); ch != nil && !ch.Has(id) {
			errs = append(errs, fmt.Errorf("chunk %s misses %s", want, id))
		}
		if got, ok := s.chunks.ChunkOf(id); !ok || got != want {
			errs = append(errs, fmt.Errorf("%s tracked in chunk %s, stands in %s", id, got, want))
		}
	}
	if n := w.Spatial().Len(); n != len(positioned) {
		errs = append(errs, fmt.Errorf("spatial index holds %d entries for %d positioned entities", n, len(positioned)))
	}
	for _, c := range s.chunks.Resident() {
		for _, id := range s.chunks.GetChunkByCoord(c).Entities() {
			t, ok := w.TileOf(id)
			if !ok || chunk.CoordOf(t) != c {
				errs = append(errs, fmt.Errorf("chunk %s holds orphan %s", c, id))
			}
		}
	}

	belts := w.Query(w.Belts, w.Positions)
	for _, id := range belts {
		t, _ := w.TileOf(id)
		e, ok := s.belts.Entry(t)
		if !ok || e.Entity != id {
			errs = append(errs, fmt.Errorf("belt %s at %s not registered", id, t))
		}
	}
	if n := s.belts.Len(); n != len(belts) {
		errs = append(errs, fmt.Errorf("belt registry holds %d entries for %d belts", n, len(belts)))
	}

	if s.fluids.Dirty() == 0 {
		if err := s.fluids.CheckPartition(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
