package ecs

import "fmt"

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on destroy to invalidate stale refs.
// Index 0 generation 0 is never handed out, so the zero EntityID means "none".
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

func (id EntityID) String() string {
	return fmt.Sprintf("%d:%d", id.Index(), id.Generation())
}

// EntityPool manages entity allocation with generational indices and a free list.
type EntityPool struct {
	generations []uint32
	alive       []bool
	freeList    []uint32
	nextIndex   uint32
	count       int
}

func NewEntityPool() *EntityPool {
	p := &EntityPool{
		generations: make([]uint32, 0, 1024),
		alive:       make([]bool, 0, 1024),
		freeList:    make([]uint32, 0, 256),
	}
	p.reserveZero()
	return p
}

// reserveZero burns index 0 so that no live entity encodes to 0.
func (p *EntityPool) reserveZero() {
	p.generations = append(p.generations, 0)
	p.alive = append(p.alive, false)
	p.nextIndex = 1
}

func (p *EntityPool) Create() EntityID {
	for len(p.freeList) > 0 {
		idx := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		if p.alive[idx] {
			continue // restored after it was freed
		}
		p.alive[idx] = true
		p.count++
		return NewEntityID(idx, p.generations[idx])
	}
	idx := p.nextIndex
	p.nextIndex++
	p.grow(idx)
	p.alive[idx] = true
	p.count++
	return NewEntityID(idx, p.generations[idx])
}

func (p *EntityPool) grow(idx uint32) {
	for int(idx) >= len(p.generations) {
		p.generations = append(p.generations, 0)
		p.alive = append(p.alive, false)
	}
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if idx == 0 || idx >= p.nextIndex {
		return false
	}
	return p.alive[idx] && p.generations[idx] == id.Generation()
}

func (p *EntityPool) Destroy(id EntityID) {
	if !p.Alive(id) {
		return // already destroyed (stale reference)
	}
	idx := id.Index()
	p.alive[idx] = false
	p.generations[idx]++
	p.freeList = append(p.freeList, idx)
	p.count--
}

// Len returns the number of live entities.
func (p *EntityPool) Len() int { return p.count }

// Each calls fn for every live entity in ascending index order.
func (p *EntityPool) Each(fn func(EntityID)) {
	for idx := uint32(1); idx < p.nextIndex; idx++ {
		if p.alive[idx] {
			fn(NewEntityID(idx, p.generations[idx]))
		}
	}
}

// Restore brings a specific id back to life. Used when rebuilding a world
// from a snapshot so that persisted references stay valid. Restoring an id
// whose index is already live is a contract violation. A restored index
// stays on the free list and is skipped by Create, so restoring n ids is
// linear.
func (p *EntityPool) Restore(id EntityID) {
	idx := id.Index()
	if idx == 0 {
		panic("ecs: restore of zero entity id")
	}
	if idx < p.nextIndex && p.alive[idx] {
		panic(fmt.Sprintf("ecs: restore of %s collides with live entity", id))
	}
	if idx >= p.nextIndex {
		p.grow(idx)
		for i := p.nextIndex; i < idx; i++ {
			p.freeList = append(p.freeList, i)
		}
		p.nextIndex = idx + 1
	}
	p.generations[idx] = id.Generation()
	p.alive[idx] = true
	p.count++
}

// Reset forgets every entity. Generations are kept so ids handed out
// before the reset stay stale.
func (p *EntityPool) Reset() {
	p.freeList = p.freeList[:0]
	for idx := uint32(1); idx < p.nextIndex; idx++ {
		if p.alive[idx] {
			p.alive[idx] = false
			p.generations[idx]++
		}
		p.freeList = append(p.freeList, idx)
	}
	p.count = 0
}
