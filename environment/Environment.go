// Package environment outlines the interfaces and structs needed to implement
// concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goloco/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() mat.Vector
}

// Ender determines when and how episodes end. An Ender inspects the
// next timestep and, if the episode should end, adjusts the timestep
// so that its StepType is timestep.Last and its EndType describes why
// the episode ended.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Environment implements a simulated environment that an agent can
// interact with. An Environment starts ready to use; Reset() resets
// it between episodes.
type Environment interface {
	Reset() (timestep.TimeStep, error)
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)
	CurrentTimeStep() timestep.TimeStep

	// Seed reseeds any randomness used for starting states or
	// simulated dynamics
	Seed(uint64)

	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec
}
