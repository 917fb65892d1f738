package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput     Phase = iota // 0: external commands (placement, removal)
	PhasePreUpdate              // 1: dispatch last tick's events
	PhaseStream                 // 2: chunk residency
	PhaseTopology               // 3: fluid network resolution
	PhaseUpdate                 // 4: belt transport, fluid flow
	PhasePersist                // 5: autosave
	PhaseCleanup                // 6: destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseStream:
		return "stream"
	case PhaseTopology:
		return "topology"
	case PhaseUpdate:
		return "update"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every ECS system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
