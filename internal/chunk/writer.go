package chunk

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type writeJob struct {
	key memKey
	rec *Record
}

// writer persists evicted chunks in the background. Until a record is on
// disk it stays readable through pending so a reload never sees older data.
// Failed records are kept for the next explicit save.
type writer struct {
	store  Store
	log    *zap.Logger
	onFail func(slot string, c Coord, err error)

	jobs     chan writeJob
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[memKey]*Record
	failed   map[memKey]*Record
}

func newWriter(store Store, queue int, log *zap.Logger, onFail func(string, Coord, error)) *writer {
	if queue < 1 {
		queue = 1
	}
	w := &writer{
		store:    store,
		log:      log,
		onFail:   onFail,
		jobs:     make(chan writeJob, queue),
		done:     make(chan struct{}),
		inflight: make(map[memKey]*Record),
		failed:   make(map[memKey]*Record),
	}
	go w.run()
	return w
}

func (w *writer) enqueue(slot string, rec *Record) {
	key := memKey{slot, rec.Coord}
	w.mu.Lock()
	w.inflight[key] = rec
	delete(w.failed, key)
	w.mu.Unlock()
	w.wg.Add(1)
	w.jobs <- writeJob{key: key, rec: rec}
}

func (w *writer) run() {
	defer close(w.done)
	for job := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := w.store.Save(ctx, job.key.slot, job.rec)
		cancel()

		// A record replaced by a newer enqueue or taken back by a reload is
		// superseded: its outcome no longer matters.
		w.mu.Lock()
		latest := w.inflight[job.key] == job.rec
		if latest {
			delete(w.inflight, job.key)
			if err != nil {
				w.failed[job.key] = job.rec
			}
		}
		w.mu.Unlock()

		switch {
		case err != nil && latest:
			w.log.Warn("background chunk save failed",
				zap.String("slot", job.key.slot), zap.Stringer("chunk", job.rec.Coord), zap.Error(err))
			if w.onFail != nil {
				w.onFail(job.key.slot, job.rec.Coord, err)
			}
		case err != nil:
			w.log.Debug("superseded chunk write failed",
				zap.String("slot", job.key.slot), zap.Stringer("chunk", job.rec.Coord), zap.Error(err))
		}
		w.wg.Done()
	}
}

// pending returns the newest unsaved record for a chunk: one still queued
// or one whose write failed.
func (w *writer) pending(slot string, c Coord) (*Record, bool) {
	key := memKey{slot, c}
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.inflight[key]; ok {
		return cloneRecord(rec), true
	}
	if rec, ok := w.failed[key]; ok {
		return cloneRecord(rec), true
	}
	return nil, false
}

// keepFailed stores a record whose synchronous save failed.
func (w *writer) keepFailed(slot string, rec *Record) {
	w.mu.Lock()
	w.failed[memKey{slot, rec.Coord}] = rec
	w.mu.Unlock()
}

// release hands a chunk's unsaved record back to the manager after a
// reload: a queued write still runs but its failure is no longer kept or
// reported, and any failed copy is dropped.
func (w *writer) release(slot string, c Coord) {
	key := memKey{slot, c}
	w.mu.Lock()
	delete(w.inflight, key)
	delete(w.failed, key)
	w.mu.Unlock()
}

// takeFailed removes and returns every failed record.
func (w *writer) takeFailed() map[memKey]*Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.failed
	w.failed = make(map[memKey]*Record)
	return out
}

func (w *writer) flush() { w.wg.Wait() }

func (w *writer) close() {
	w.flush()
	close(w.jobs)
	<-w.done
}
