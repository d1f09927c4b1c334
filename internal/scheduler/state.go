package scheduler

// State is the lifecycle position of a job's current cycle.
type State int32

// Job states. A job returns to StateIdle after every cycle, whatever its
// outcome.
const (
	StateIdle State = iota
	StateFiring
	StateResolving
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFiring:
		return "firing"
	case StateResolving:
		return "resolving"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}
