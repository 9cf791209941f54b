package run

// State is the run lifecycle. Transitions are monotonic: Pending → Running →
// one of the terminal states, and a terminal state is never left.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateFailed
}

// canTransition encodes the allowed edges of the state machine.
func canTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		// Per-call provider failures never fail a run, so Failed is only
		// reachable from Pending.
		return to == StateCompleted || to == StateStopped
	default:
		return false
	}
}
