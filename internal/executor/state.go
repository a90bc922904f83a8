package executor

import "fmt"

// State is the lifecycle state of one job.
type State int

const (
	StatePending State = iota
	StateInFlight
	StateSucceeded
	StateFailedRetryable
	StateFailedTerminal
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in-flight"
	case StateSucceeded:
		return "succeeded"
	case StateFailedRetryable:
		return "failed-retryable"
	case StateFailedTerminal:
		return "failed-terminal"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	StatePending:         {StateInFlight, StateFailedTerminal}, // canceled before dispatch
	StateInFlight:        {StateSucceeded, StateFailedRetryable, StateFailedTerminal},
	StateFailedRetryable: {StatePending, StateFailedTerminal},
	StateSucceeded:       {}, // terminal
	StateFailedTerminal:  {}, // terminal
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s State) CanTransitionTo(target State) bool {
	for _, v := range validTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the state has no outgoing transitions.
func (s State) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}
