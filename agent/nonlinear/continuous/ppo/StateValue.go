package ppo

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/goloco/network"
)

// StateValue approximates the state value function with a single-head
// MLP. Two copies of the network are kept: one with a batch dimension
// matching the number of environment slots, used to estimate the
// values of batched observations, and one with a batch dimension of 1,
// used to estimate the value of a single state when bootstrapping.
type StateValue struct {
	batchNet network.NeuralNet
	batchVM  G.VM
	batch    int

	singleNet network.NeuralNet
	singleVM  G.VM

	features int
}

// NewStateValue returns a new StateValue whose batched network
// predicts the values of batch observations at a time
func NewStateValue(features, batch int, hiddenSizes []int, biases []bool,
	activations []*network.Activation,
	init G.InitWFn) (*StateValue, error) {
	if features <= 0 {
		return nil, fmt.Errorf("newStateValue: features must be positive "+
			"\n\thave(%v)", features)
	}
	if batch <= 0 {
		return nil, fmt.Errorf("newStateValue: batch must be positive "+
			"\n\thave(%v)", batch)
	}

	batchNet, err := network.NewSingleHeadMLP(features, batch, G.NewGraph(),
		hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, fmt.Errorf("newStateValue: could not create batch "+
			"network: %v", err)
	}

	singleNet, err := batchNet.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("newStateValue: could not create single "+
			"state network: %v", err)
	}

	return &StateValue{
		batchNet:  batchNet,
		batchVM:   G.NewTapeMachine(batchNet.Graph()),
		batch:     batch,
		singleNet: singleNet,
		singleVM:  G.NewTapeMachine(singleNet.Graph()),
		features:  features,
	}, nil
}

// Values returns the predicted value of each row of obs
func (s *StateValue) Values(obs *mat.Dense) ([]float64, error) {
	rows, cols := obs.Dims()
	if rows != s.batch || cols != s.features {
		return nil, fmt.Errorf("values: invalid observation dims "+
			"\n\twant(%v x %v) \n\thave(%v x %v)", s.batch, s.features,
			rows, cols)
	}

	if err := s.batchNet.SetInput(obs.RawMatrix().Data); err != nil {
		return nil, fmt.Errorf("values: could not set network input: %v", err)
	}
	if err := s.batchVM.RunAll(); err != nil {
		return nil, fmt.Errorf("values: could not run network: %v", err)
	}
	defer s.batchVM.Reset()

	pred := s.batchNet.Output()[0].Data().([]float64)
	values := make([]float64, len(pred))
	copy(values, pred)
	return values, nil
}

// Value returns the predicted value of a single state
func (s *StateValue) Value(obs []float64) (float64, error) {
	if len(obs) != s.features {
		return 0, fmt.Errorf("value: invalid observation length "+
			"\n\twant(%v) \n\thave(%v)", s.features, len(obs))
	}

	if err := s.singleNet.SetInput(obs); err != nil {
		return 0, fmt.Errorf("value: could not set network input: %v", err)
	}
	if err := s.singleVM.RunAll(); err != nil {
		return 0, fmt.Errorf("value: could not run network: %v", err)
	}
	defer s.singleVM.Reset()

	return s.singleNet.Output()[0].Data().([]float64)[0], nil
}

// Set copies the weights of source into both value networks
func (s *StateValue) Set(source network.NeuralNet) error {
	if err := network.Set(s.batchNet, source); err != nil {
		return fmt.Errorf("set: could not update batch network: %v", err)
	}
	if err := network.Set(s.singleNet, source); err != nil {
		return fmt.Errorf("set: could not update single state network: %v",
			err)
	}
	return nil
}

// Network returns the batched value network
func (s *StateValue) Network() network.NeuralNet {
	return s.batchNet
}

// Close cleans up the StateValue's resources
func (s *StateValue) Close() error {
	batchErr := s.batchVM.Close()
	singleErr := s.singleVM.Close()
	if batchErr != nil {
		return batchErr
	}
	return singleErr
}
