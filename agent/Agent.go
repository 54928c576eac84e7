// Package agent defines the interfaces of agents: policies which
// select actions and learners which update them
package agent

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goloco/network"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// A Closer is an agent that must be closed after it is done learning
type Closer interface {
	Agent
	Close() error
}

// Learner implements a learning algorithm that defines how weights are
// updated
type Learner interface {
	// Update performs one full learning update and returns scalar
	// metrics describing it
	Update() (map[string]float64, error)
}

// Policy represents a stochastic policy over batches of states.
// Policies select one action per row of the observation batch.
type Policy interface {
	// SelectActions samples actions for a batch of observations,
	// returning the actions along with the log probability of each
	// under the policy
	SelectActions(obs *mat.Dense) (*mat.Dense, []float64, error)

	// MeanActions returns the deterministic mode of the policy for a
	// batch of observations, used for evaluation
	MeanActions(obs *mat.Dense) (*mat.Dense, error)
}

// NNPolicy represents a policy that uses neural network function
// approximation
type NNPolicy interface {
	Policy

	// CloneWithBatch clones the policy, changing the size of
	// observation batches it accepts. The clone's weights are a
	// snapshot; they do not track later updates to the original.
	CloneWithBatch(int) (NNPolicy, error)

	// Network returns the network parameterizing the policy
	Network() network.NeuralNet
}
