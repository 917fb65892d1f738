package system

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// Named is implemented by systems that want to appear by name in slow-tick logs.
type Named interface {
	Name() string
}

// Runner executes systems in phase order each tick. Systems within one
// phase keep their registration order.
type Runner struct {
	systems []System
	sorted  bool
	ticks   uint64
	log     *zap.Logger
	budget  time.Duration
	slow    uint64
}

func NewRunner(log *zap.Logger) *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
		log:     log,
	}
}

// SetBudget enables the slow-tick warning: a tick whose systems take longer
// than d in total is logged with its slowest system. Zero disables it.
func (r *Runner) SetBudget(d time.Duration) { r.budget = d }

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	if r.budget <= 0 {
		for _, s := range r.systems {
			s.Update(dt)
		}
		r.ticks++
		return
	}

	var (
		total   time.Duration
		worst   time.Duration
		worstAt int
	)
	for i, s := range r.systems {
		start := time.Now()
		s.Update(dt)
		took := time.Since(start)
		total += took
		if took > worst {
			worst, worstAt = took, i
		}
	}
	r.ticks++
	if total > r.budget && len(r.systems) > 0 {
		r.slow++
		r.log.Warn("slow tick",
			zap.Uint64("tick", r.ticks),
			zap.Duration("took", total),
			zap.Duration("budget", r.budget),
			zap.String("slowest", nameOf(r.systems[worstAt])),
			zap.Stringer("phase", r.systems[worstAt].Phase()),
			zap.Duration("slowest_took", worst),
		)
	}
}

// TickPhase runs only the systems of one phase, without counting a tick.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// Ticks returns the number of full ticks executed.
func (r *Runner) Ticks() uint64 { return r.ticks }

// SlowTicks returns how many ticks exceeded the budget.
func (r *Runner) SlowTicks() uint64 { return r.slow }

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}

func nameOf(s System) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return s.Phase().String()
}
