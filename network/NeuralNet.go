// Package network implements neural networks built on Gorgonia
// computational graphs.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network on a Gorgonia computational
// graph. Networks may have more than one output layer, e.g. a TreeMLP,
// in which case Prediction() and Output() return one element per
// output layer.
type NeuralNet interface {
	// Graph returns the computational graph the network is built on
	Graph() *G.ExprGraph

	// Clone clones the network to a new computational graph
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network to a new computational graph,
	// changing the input batch size
	CloneWithBatch(int) (NeuralNet, error)

	// cloneWithInputTo clones the network to graph, using inputs as
	// the new input node(s). Multiple inputs are concatenated along
	// axis before being fed to the network.
	cloneWithInputTo(axis int, inputs []*G.Node, graph *G.ExprGraph) (NeuralNet,
		error)

	// BatchSize returns the number of rows in an input batch
	BatchSize() int

	// Features returns the number of input features per input layer
	Features() []int

	// Outputs returns the number of outputs per output layer
	Outputs() []int

	// OutputLayers returns the number of output layers
	OutputLayers() int

	// SetInput sets the value of the network's input node(s) before
	// the graph is run
	SetInput([]float64) error

	// Learnables returns the nodes which house learnable weights
	Learnables() G.Nodes

	// Model returns the learnable weights with their gradients
	Model() []G.ValueGrad

	// Output returns the value(s) of the output layer(s) after the
	// graph has been run
	Output() []G.Value

	// Prediction returns the node(s) of the computational graph which
	// store the network's prediction(s)
	Prediction() []*G.Node
}

// Set sets the weights of dest to be equal to the weights of source.
// The two networks must have the same architecture.
func Set(dest, source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: incompatible networks \n\twant(%v "+
			"learnables) \n\thave(%v learnables)", len(nodes),
			len(sourceNodes))
	}

	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}
