package ppo

import (
	"fmt"

	"github.com/samuelfneumann/goloco/solver"
)

// Default PPO hyperparameters
const (
	DefaultEpsilon      float64 = 0.2
	DefaultEpochs       int     = 10
	DefaultEntropyCoeff float64 = 0.01
)

// Config describes a configuration of the PPO optimizer
type Config struct {
	// Epsilon is the clipping radius of the surrogate objective:
	// probability ratios are clipped to [1-Epsilon, 1+Epsilon]
	Epsilon float64

	// Epochs is the number of passes over the collected segment per
	// update
	Epochs int

	// MiniBatchSize is the number of transitions per gradient step.
	// The buffer capacity must be divisible by it.
	MiniBatchSize int

	// EntropyCoeff weights the entropy bonus in the policy objective
	EntropyCoeff float64

	// PolicySolver and ValueSolver update the policy and value
	// function weights respectively
	PolicySolver *solver.Solver
	ValueSolver  *solver.Solver

	// Seed seeds the minibatch shuffling
	Seed uint64
}

// NewDefaultConfig returns a Config with default hyperparameter values
// and the argument solvers
func NewDefaultConfig(miniBatchSize int, policySolver,
	valueSolver *solver.Solver) Config {
	return Config{
		Epsilon:       DefaultEpsilon,
		Epochs:        DefaultEpochs,
		MiniBatchSize: miniBatchSize,
		EntropyCoeff:  DefaultEntropyCoeff,
		PolicySolver:  policySolver,
		ValueSolver:   valueSolver,
	}
}

// Validate returns an error describing any illegal configuration
// values
func (c Config) Validate() error {
	if c.Epsilon <= 0 || c.Epsilon >= 1 {
		return fmt.Errorf("clipping radius must be in (0, 1) \n\thave(%v)",
			c.Epsilon)
	}

	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive \n\thave(%v)", c.Epochs)
	}

	if c.MiniBatchSize <= 0 {
		return fmt.Errorf("minibatch size must be positive \n\thave(%v)",
			c.MiniBatchSize)
	}

	if c.EntropyCoeff < 0 {
		return fmt.Errorf("entropy coefficient must be non-negative "+
			"\n\thave(%v)", c.EntropyCoeff)
	}

	if c.PolicySolver == nil || c.ValueSolver == nil {
		return fmt.Errorf("policy and value solvers cannot be nil")
	}

	return nil
}
