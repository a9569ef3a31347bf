package buffer

import (
	"errors"
	"fmt"
	"slices"
)

// State is the delivery state of a capture record.
type State string

const (
	StatePending  State = "PENDING"
	StateFailed   State = "FAILED"
	StateSynced   State = "SYNCED"
	StateRejected State = "REJECTED"
)

var ErrInvalidTransition = errors.New("invalid state transition")

// transitions lists the states each state may move to. SYNCED and REJECTED
// only "move" to themselves, which is a no-op.
var transitions = map[State][]State{
	StatePending:  {StateFailed, StateSynced, StateRejected},
	StateFailed:   {StateFailed, StateSynced, StateRejected},
	StateSynced:   {StateSynced},
	StateRejected: {StateRejected},
}

func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether the record has been acknowledged and will never
// be submitted again.
func (s State) Terminal() bool {
	return s == StateSynced || s == StateRejected
}

// CanTransition reports whether a record in from may be moved to to.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Transition describes one state change applied to a record.
type Transition struct {
	LocalID string
	From    State
	To      State
}

// Observer is notified after each committed transition, including the
// PENDING insert (From is empty) but not idempotent no-ops.
type Observer func(Transition)
