package chunk

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/core/ecs"
	"github.com/factoryforge/simcore/internal/core/event"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tunes residency and persistence. Radii are in chunks.
type Options struct {
	LoadRadius      int32
	EvictRadius     int32
	ForceLoadRadius int32
	SaveWorkers     int
	WriteQueue      int
}

func DefaultOptions() Options {
	return Options{
		LoadRadius:      2,
		EvictRadius:     4,
		ForceLoadRadius: 1,
		SaveWorkers:     4,
		WriteQueue:      64,
	}
}

// Locator answers where an entity currently stands. The world implements it;
// the manager uses it to drop stale entity references read from storage.
type Locator interface {
	TileOf(id ecs.EntityID) (component.Tile, bool)
}

// Manager owns the chunk grid: residency, generation, persistence and
// entity membership. Accessed only from the simulation goroutine, except
// for the background writer it owns.
type Manager struct {
	store    Store
	gen      Generator
	fallback Generator
	log      *zap.Logger
	bus      *event.Bus
	opts     Options

	slot     string
	seed     int64
	chunks   map[Coord]*Chunk
	pending  map[Coord]map[ecs.EntityID]struct{}
	interest []component.Tile
	locator  Locator
	writer   *writer
	closed   bool
}

// NewManager creates a manager. gen may be nil to use the built-in noise
// generator; bus may be nil.
func NewManager(store Store, gen Generator, opts Options, bus *event.Bus, log *zap.Logger) *Manager {
	fallback := NewNoiseGenerator()
	if gen == nil {
		gen = fallback
	}
	if opts.EvictRadius < opts.LoadRadius {
		opts.EvictRadius = opts.LoadRadius
	}
	if opts.SaveWorkers < 1 {
		opts.SaveWorkers = 1
	}
	m := &Manager{
		store:    store,
		gen:      gen,
		fallback: fallback,
		log:      log,
		bus:      bus,
		opts:     opts,
		slot:     "default",
		chunks:   make(map[Coord]*Chunk),
		pending:  make(map[Coord]map[ecs.EntityID]struct{}),
	}
	m.writer = newWriter(store, opts.WriteQueue, log, m.reportFailure)
	return m
}

func (m *Manager) reportFailure(slot string, c Coord, err error) {
	if m.bus != nil {
		event.Emit(m.bus, event.ChunkSaveFailed{X: c.X, Y: c.Y, Slot: slot, Err: err})
	}
}

// SetLocator installs the entity position source.
func (m *Manager) SetLocator(l Locator) { m.locator = l }

// SetSaveSlot redirects later loads and saves. Resident chunks are not moved.
func (m *Manager) SetSaveSlot(name string) {
	if name == m.slot {
		return
	}
	m.log.Info("chunk save slot changed", zap.String("from", m.slot), zap.String("to", name))
	m.slot = name
}

func (m *Manager) SaveSlot() string { return m.slot }

// UpdateSeed changes the generation seed for chunks generated from now on.
func (m *Manager) UpdateSeed(seed int64) { m.seed = seed }

func (m *Manager) Seed() int64 { return m.seed }

// GetChunk returns the resident chunk containing t, or nil.
func (m *Manager) GetChunk(t component.Tile) *Chunk {
	return m.chunks[CoordOf(t)]
}

// GetChunkByCoord returns the resident chunk at c, or nil.
func (m *Manager) GetChunkByCoord(c Coord) *Chunk {
	return m.chunks[c]
}

// Resident returns the resident chunk coordinates, sorted row-major.
func (m *Manager) Resident() []Coord {
	out := make([]Coord, 0, len(m.chunks))
	for c := range m.chunks {
		out = append(out, c)
	}
	slices.SortFunc(out, compareCoord)
	return out
}

func compareCoord(a, b Coord) int {
	if a.Y != b.Y {
		return int(a.Y) - int(b.Y)
	}
	return int(a.X) - int(b.X)
}

// Len returns the number of resident chunks.
func (m *Manager) Len() int { return len(m.chunks) }

// ForceLoadChunksAround makes every chunk within ForceLoadRadius of t
// resident before returning. Persisted data always wins over generation.
func (m *Manager) ForceLoadChunksAround(ctx context.Context, t component.Tile) error {
	return m.loadAround(ctx, CoordOf(t), m.opts.ForceLoadRadius)
}

func (m *Manager) loadAround(ctx context.Context, center Coord, radius int32) error {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if _, err := m.ensure(ctx, Coord{X: center.X + dx, Y: center.Y + dy}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensure returns the resident chunk at c, loading or generating it.
func (m *Manager) ensure(ctx context.Context, c Coord) (*Chunk, error) {
	if ch, ok := m.chunks[c]; ok {
		return ch, nil
	}
	if m.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := newChunk(c)
	rec, unsaved := m.readRecord(ctx, c)
	generated := rec == nil
	if rec != nil {
		if err := unpackTiles(rec.Terrain, ch.Tiles[:]); err != nil {
			m.log.Warn("corrupt chunk record, regenerating",
				zap.String("slot", m.slot), zap.Stringer("chunk", c), zap.Error(err))
			generated = true
		}
	}
	if generated {
		m.generate(c, ch)
	}

	stale := 0
	if rec != nil {
		for _, ref := range rec.Entities {
			id := ecs.EntityID(ref)
			if m.locator != nil {
				t, ok := m.locator.TileOf(id)
				if !ok || CoordOf(t) != c {
					stale++
					continue
				}
			}
			ch.entities[id] = struct{}{}
		}
	}
	adopted := 0
	for id := range m.pending[c] {
		if _, ok := ch.entities[id]; !ok {
			ch.entities[id] = struct{}{}
			adopted++
		}
	}
	delete(m.pending, c)

	// A record taken from the writer is not known to be on disk; the
	// resident chunk owns it from now on.
	ch.dirty = generated || unsaved || stale > 0 || adopted > 0
	if unsaved {
		m.writer.release(m.slot, c)
	}
	m.chunks[c] = ch

	if stale > 0 {
		m.log.Debug("dropped stale chunk entity refs", zap.Stringer("chunk", c), zap.Int("stale", stale))
	}
	if m.bus != nil {
		event.Emit(m.bus, event.ChunkLoaded{X: c.X, Y: c.Y, Generated: generated, Entities: ch.Len()})
	}
	return ch, nil
}

// readRecord finds the newest form of c: a queued or failed background
// write first, then the store. unsaved reports the former. A missing or
// unreadable record yields nil, which means "generate".
func (m *Manager) readRecord(ctx context.Context, c Coord) (rec *Record, unsaved bool) {
	if rec, ok := m.writer.pending(m.slot, c); ok {
		return rec, true
	}
	rec, err := m.store.Load(ctx, m.slot, c)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.log.Warn("chunk load failed, regenerating",
				zap.String("slot", m.slot), zap.Stringer("chunk", c), zap.Error(err))
		}
		return nil, false
	}
	return rec, false
}

func (m *Manager) generate(c Coord, ch *Chunk) {
	if err := m.gen.Generate(m.seed, c, ch.Tiles[:]); err != nil {
		m.log.Warn("chunk generator failed, using built-in noise",
			zap.Stringer("chunk", c), zap.Error(err))
		_ = m.fallback.Generate(m.seed, c, ch.Tiles[:])
	}
}

// SetInterest replaces the points that keep chunks resident.
func (m *Manager) SetInterest(points ...component.Tile) {
	m.interest = append(m.interest[:0], points...)
}

// Stream loads chunks within LoadRadius of any interest point and evicts
// resident chunks farther than EvictRadius from all of them. Evicted dirty
// chunks are written in the background. It returns how many chunks were
// loaded and evicted.
func (m *Manager) Stream(ctx context.Context) (loaded, evicted int, err error) {
	if len(m.interest) == 0 {
		return 0, 0, nil
	}
	before := len(m.chunks)
	for _, p := range m.interest {
		if err := m.loadAround(ctx, CoordOf(p), m.opts.LoadRadius); err != nil {
			return len(m.chunks) - before, 0, err
		}
	}
	loaded = len(m.chunks) - before

	centers := make([]Coord, len(m.interest))
	for i, p := range m.interest {
		centers[i] = CoordOf(p)
	}
	for _, c := range m.Resident() {
		far := true
		for _, center := range centers {
			if c.Distance(center) <= m.opts.EvictRadius {
				far = false
				break
			}
		}
		if far {
			m.Evict(c, true)
			evicted++
		}
	}
	return loaded, evicted, nil
}

// Evict removes one chunk from memory. With save set, a dirty chunk is
// queued for a background write first. Membership moves to the pending
// index so it is adopted again on reload.
func (m *Manager) Evict(c Coord, save bool) {
	ch, ok := m.chunks[c]
	if !ok {
		return
	}
	saved := false
	if save && ch.dirty && !m.closed {
		m.writer.enqueue(m.slot, ch.record())
		saved = true
	}
	m.park(ch)
	delete(m.chunks, c)
	if m.bus != nil {
		event.Emit(m.bus, event.ChunkEvicted{X: c.X, Y: c.Y, Saved: saved})
	}
}

func (m *Manager) park(ch *Chunk) {
	if len(ch.entities) == 0 {
		return
	}
	set := m.pending[ch.Coord]
	if set == nil {
		set = make(map[ecs.EntityID]struct{}, len(ch.entities))
		m.pending[ch.Coord] = set
	}
	for id := range ch.entities {
		set[id] = struct{}{}
	}
}

type saveResult struct {
	key memKey
	err error
}

// SaveAllChunks synchronously persists every resident chunk plus any
// background write that failed earlier. Failures are logged, reported on
// the bus and leave the chunk dirty; the returned error summarises them.
func (m *Manager) SaveAllChunks(ctx context.Context) error {
	return m.save(ctx, false)
}

func (m *Manager) save(ctx context.Context, dirtyOnly bool) error {
	if m.closed {
		return ErrClosed
	}
	m.writer.flush()

	jobs := make([]writeJob, 0, len(m.chunks))
	for _, c := range m.Resident() {
		ch := m.chunks[c]
		if dirtyOnly && !ch.dirty {
			continue
		}
		jobs = append(jobs, writeJob{key: memKey{m.slot, c}, rec: ch.record()})
	}
	for key, rec := range m.writer.takeFailed() {
		if _, resident := m.chunks[key.c]; resident && key.slot == m.slot {
			continue
		}
		jobs = append(jobs, writeJob{key: key, rec: rec})
	}
	if len(jobs) == 0 {
		return nil
	}

	results := make([]saveResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(m.opts.SaveWorkers)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = saveResult{key: job.key, err: m.store.Save(ctx, job.key.slot, job.rec)}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("chunk %s: %w", r.key.c, r.err))
			m.log.Error("chunk save failed",
				zap.String("slot", r.key.slot), zap.Stringer("chunk", r.key.c), zap.Error(r.err))
			m.reportFailure(r.key.slot, r.key.c, r.err)
			if _, resident := m.chunks[r.key.c]; !resident || r.key.slot != m.slot {
				// keep evicted data reachable until a later save succeeds
				m.writer.keepFailed(r.key.slot, jobs[i].rec)
			}
			continue
		}
		if ch, ok := m.chunks[r.key.c]; ok && r.key.slot == m.slot {
			ch.dirty = false
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("saved %d of %d chunks: %w", len(jobs)-len(errs), len(jobs), errors.Join(errs...))
	}
	m.log.Info("chunks saved", zap.String("slot", m.slot), zap.Int("count", len(jobs)))
	return nil
}

// ClearLoadedChunks evicts every resident chunk. With saveDirty set, dirty
// chunks are persisted synchronously first; otherwise in-memory changes
// are dropped. Entity membership is kept in the pending index.
func (m *Manager) ClearLoadedChunks(ctx context.Context, saveDirty bool) error {
	var err error
	if saveDirty {
		err = m.save(ctx, true)
	}
	for _, c := range m.Resident() {
		ch := m.chunks[c]
		if saveDirty && ch.dirty {
			// the save above failed for this chunk
			m.writer.keepFailed(m.slot, ch.record())
		}
		m.park(ch)
		delete(m.chunks, c)
	}
	m.log.Debug("resident chunks cleared", zap.Bool("saved", saveDirty))
	return err
}

// Flush waits for queued background writes.
func (m *Manager) Flush() { m.writer.flush() }

// Close drains background writes. The manager is unusable afterwards.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.writer.close()
}

// Track records id as standing on t. Implements world.ChunkTracker.
func (m *Manager) Track(id ecs.EntityID, t component.Tile) {
	c := CoordOf(t)
	if ch, ok := m.chunks[c]; ok {
		ch.add(id)
		return
	}
	set := m.pending[c]
	if set == nil {
		set = make(map[ecs.EntityID]struct{})
		m.pending[c] = set
	}
	set[id] = struct{}{}
}

// Untrack removes id from the chunk containing t.
func (m *Manager) Untrack(id ecs.EntityID, t component.Tile) {
	c := CoordOf(t)
	if ch, ok := m.chunks[c]; ok {
		ch.remove(id)
		return
	}
	if set, ok := m.pending[c]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m.pending, c)
		}
	}
}

// Reindex replaces all membership, resident and pending, with positions.
// Resident chunks whose membership changes become dirty.
func (m *Manager) Reindex(positions map[ecs.EntityID]component.Tile) {
	next := make(map[Coord]map[ecs.EntityID]struct{})
	for id, t := range positions {
		c := CoordOf(t)
		set := next[c]
		if set == nil {
			set = make(map[ecs.EntityID]struct{})
			next[c] = set
		}
		set[id] = struct{}{}
	}
	for c, ch := range m.chunks {
		want := next[c]
		delete(next, c)
		if sameMembers(ch.entities, want) {
			continue
		}
		ch.entities = make(map[ecs.EntityID]struct{}, len(want))
		for id := range want {
			ch.entities[id] = struct{}{}
		}
		ch.dirty = true
	}
	m.pending = next
}

func sameMembers(a, b map[ecs.EntityID]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

// ChunkOf returns the chunk coordinate id is a member of, resident or not.
func (m *Manager) ChunkOf(id ecs.EntityID) (Coord, bool) {
	for c, ch := range m.chunks {
		if ch.Has(id) {
			return c, true
		}
	}
	for c, set := range m.pending {
		if _, ok := set[id]; ok {
			return c, true
		}
	}
	return Coord{}, false
}
