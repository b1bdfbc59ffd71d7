package task

import (
	"fmt"
	"strings"
)

// State is a task lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateRunning       State = "running"
	StateStopRequested State = "stop_requested"
	StateFinished      State = "finished"
	StateFailed        State = "failed"
)

var allowedTransitions = map[State]map[State]struct{}{
	StateIdle: {
		StateRunning:       {},
		StateStopRequested: {},
	},
	StateRunning: {
		StateStopRequested: {},
		StateFinished:      {},
		StateFailed:        {},
	},
	StateStopRequested: {
		StateFinished: {},
		StateFailed:   {},
	},
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to State) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// IllegalTransitionError is returned for a disallowed transition.
type IllegalTransitionError struct {
	Kind   Kind
	TaskID string
	From   State
	To     State
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = "illegal transition for task lifecycle"
	}
	return fmt.Sprintf("cannot transition %s task %q from %q to %q: %s", e.Kind, e.TaskID, e.From, e.To, reason)
}

// Is enables errors.Is checks for illegal transition failures.
func (e *IllegalTransitionError) Is(target error) bool {
	_, ok := target.(*IllegalTransitionError)
	return ok
}
