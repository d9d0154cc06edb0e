package auth

import "fmt"

// State is a step of one authentication attempt.
type State int

const (
	StateIdle State = iota
	StatePrompted
	StateApproved
	StateDenied
	StateTimedOut
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrompted:
		return "prompted"
	case StateApproved:
		return "approved"
	case StateDenied:
		return "denied"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends an attempt.
func (s State) Terminal() bool {
	return s >= StateApproved
}

// Transition is delivered to observers on every state change.
type Transition struct {
	Operation string
	Variant   Variant
	From      State
	To        State
	Err       error
}

// Observer receives state transitions. It runs synchronously and must not block.
type Observer func(Transition)

type attempt struct {
	operation string
	variant   Variant
	state     State
	observers []Observer
}

func (a *attempt) transition(to State, err error) error {
	if !validTransition(a.state, to) {
		return fmt.Errorf("invalid authentication transition %s -> %s", a.state, to)
	}
	t := Transition{Operation: a.operation, Variant: a.variant, From: a.state, To: to, Err: err}
	a.state = to
	for _, o := range a.observers {
		o(t)
	}
	return nil
}

func validTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StatePrompted
	case StatePrompted:
		return to.Terminal()
	default:
		return false
	}
}

// stateFor maps a backend outcome to the terminal state it produces.
func stateFor(err error) State {
	switch {
	case err == nil:
		return StateApproved
	case isErr(err, ErrCancelled):
		return StateCancelled
	case isErr(err, ErrTimedOut):
		return StateTimedOut
	default:
		return StateDenied
	}
}
