package ecs

import "slices"

// Query returns the entities present in every given set, in ascending id
// order. The result is a snapshot: callers may destroy entities while
// ranging over it.
func Query(sets ...Set) []EntityID {
	if len(sets) == 0 {
		return nil
	}
	smallest := 0
	for i, s := range sets {
		if s.Len() < sets[smallest].Len() {
			smallest = i
		}
	}
	base := sets[smallest].IDs()
	out := base[:0]
	for _, id := range base {
		keep := true
		for i, s := range sets {
			if i != smallest && !s.Has(id) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, id)
		}
	}
	return slices.Clip(out)
}

// Each2 iterates over entities that have both component A and B, in
// ascending id order.
func Each2[A, B any](sa *Store[A], sb *Store[B], fn func(EntityID, *A, *B)) {
	for _, id := range Query(sa, sb) {
		a, ok := sa.data[id]
		if !ok {
			continue
		}
		b, ok := sb.data[id]
		if !ok {
			continue
		}
		fn(id, a, b)
	}
}

// Each3 iterates over entities that have components A, B, and C.
func Each3[A, B, C any](sa *Store[A], sb *Store[B], sc *Store[C], fn func(EntityID, *A, *B, *C)) {
	for _, id := range Query(sa, sb, sc) {
		a, ok := sa.data[id]
		if !ok {
			continue
		}
		b, ok := sb.data[id]
		if !ok {
			continue
		}
		c, ok := sc.data[id]
		if !ok {
			continue
		}
		fn(id, a, b, c)
	}
}
