// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either a first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType describes how an episode ended. Episodes may end because the
// agent reached a terminal state or because an artificial step limit
// cut the episode off. The distinction matters when bootstrapping
// value estimates: a Timeout is not a real failure.
type EndType int

const (
	// TerminalStateReached denotes that the episode ended because the
	// agent reached an environmental terminal state
	TerminalStateReached EndType = iota

	// Timeout denotes that the episode ended because a step limit was
	// reached
	Timeout

	// nilEnd denotes that the episode did not end at this timestep
	nilEnd
)

func (e EndType) String() string {
	switch e {
	case TerminalStateReached:
		return "TerminalStateReached"
	case Timeout:
		return "Timeout"
	default:
		return "nil"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType
	Reward      float64
	Discount    float64
	Observation *mat.VecDense
	Number      int
	endType     EndType
}

// New constructs a new TimeStep
func New(t StepType, r, d float64, o *mat.VecDense, n int) TimeStep {
	return TimeStep{t, r, d, o, n, nilEnd}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd sets the ending type of the TimeStep. SetEnd should only be
// called on timesteps which are the last in their episode.
func (t *TimeStep) SetEnd(e EndType) {
	t.endType = e
}

// End returns the ending type of the TimeStep
func (t *TimeStep) End() EndType {
	return t.endType
}

// TerminalEnd returns whether the TimeStep ended an episode by
// reaching a terminal state. Episodes cut off by a step limit are not
// terminal ends.
func (t *TimeStep) TerminalEnd() bool {
	return t.endType == TerminalStateReached
}

// TimeoutEnd returns whether the TimeStep ended an episode by reaching
// a step limit
func (t *TimeStep) TimeoutEnd() bool {
	return t.endType == Timeout
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}
