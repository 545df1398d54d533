package model

import (
	"errors"
	"fmt"
)

// State is the authoritative processing status of a Project.
type State string

const (
	StateInitial       State = "initial"
	StateAnnotating    State = "annotating"
	StateAnnotated     State = "annotated"
	StateFiltering     State = "filtering"
	StateCaddWaiting   State = "cadd-waiting"
	StateCaddChecking  State = "cadd-checking"
	StateCaddError     State = "cadd-error"
	StateCaddFiltering State = "cadd-filtering"
	StateAnalyzing     State = "analyzing"
	StateDone          State = "done"
)

var ErrInvalidTransition = errors.New("invalid state transition")

// ErrStaleStage is returned for a stage whose project has left the states
// the stage starts from, typically a delayed run after a reconfiguration.
var ErrStaleStage = fmt.Errorf("%w: stage no longer applies", ErrInvalidTransition)

// Stage completions are the only way forward; the two resets are handled by
// ResetForConfig and ResetForFiles.
var transitions = map[State][]State{
	StateInitial:       {StateAnnotating},
	StateAnnotating:    {StateAnnotated},
	StateAnnotated:     {StateFiltering},
	StateFiltering:     {StateFiltering, StateAnalyzing, StateCaddWaiting},
	StateCaddWaiting:   {StateCaddChecking},
	StateCaddChecking:  {StateCaddWaiting, StateCaddError, StateCaddFiltering},
	StateCaddError:     {StateCaddChecking},
	StateCaddFiltering: {StateAnalyzing},
	StateAnalyzing:     {StateDone},
	StateDone:          {},
}

func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanAdvance reports whether a stage may move a project from s to next.
func (s State) CanAdvance(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Advance validates a stage-driven transition.
func Advance(from, to State) (State, error) {
	if !from.CanAdvance(to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// ResetForConfig is the state after a configuration change: filtering has to
// be redone but the annotated case file is still valid.
func ResetForConfig(current State) State {
	if current == StateInitial || current == StateAnnotating {
		return current
	}
	return StateAnnotated
}

// ResetForFiles is the state after the variant file set changed.
func ResetForFiles(State) State {
	return StateInitial
}

// Interrupted is the state a project resumes from when the stage that put
// it into s never finished.
func Interrupted(s State) State {
	switch s {
	case StateAnnotating:
		return StateInitial
	case StateFiltering:
		return StateAnnotated
	case StateCaddChecking:
		return StateCaddWaiting
	}
	return s
}
