// Package policy implements neural network policies over continuous
// action spaces
package policy

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goloco/agent"
	"github.com/samuelfneumann/goloco/network"
	"github.com/samuelfneumann/goloco/utils/floatutils"
	"github.com/samuelfneumann/goloco/utils/op"
)

// For stability, the standard deviation of the Gaussian distribution
// should be offset from 0.
const stdOffset float64 = 1e-3

// GaussianTreeMLP implements a Gaussian policy parameterized by a
// tree MLP. The MLP has a single root network. The root network breaks
// off into two leaf networks. One predicts the mean, and the other
// the log standard deviation. See the network.TreeMLP struct for
// more details.
//
// Given a network prediction of the mean μ and standard deviation σ of
// the Gaussian policy, actions are selected by sampling from the
// standard normal ɛ ~ N(0, 1) and computing action := μ + σ * ɛ
// similar to the reparameterization trick. The log probability of each
// sampled action is computed alongside it, which an on-policy
// optimizer needs for its probability ratios.
//
// The policy's computational graph also carries nodes computing the
// log probability and entropy of an input batch of actions, so that a
// loss built on another part of the same graph can differentiate
// through them.
type GaussianTreeMLP struct {
	vm  G.VM
	net network.NeuralNet

	actions     *G.Node
	logPdfNode  *G.Node
	logPdfVal   G.Value
	entropyNode *G.Node
	entropyVal  G.Value

	meanVal   G.Value
	stddevVal G.Value

	normal     distmv.Rander
	actionDims int
	batch      int
	seed       uint64
}

// NewGaussianTreeMLP returns a new GaussianTreeMLP policy over
// observations of features dimensions and actions of actionDims
// dimensions, accepting observation batches of batch rows. The neural
// network parameterization is defined by rootHiddenSizes, rootBiases,
// rootActivations, leafHiddenSizes, leafBiases, and leafActivations;
// see the network.TreeMLP struct for details. The init parameter
// determines the weight initialization scheme and seed the seed of the
// policy's action sampler.
func NewGaussianTreeMLP(features, actionDims, batch int,
	rootHiddenSizes []int, rootBiases []bool,
	rootActivations []*network.Activation, leafHiddenSizes [][]int,
	leafBiases [][]bool, leafActivations [][]*network.Activation,
	init G.InitWFn, seed uint64) (*GaussianTreeMLP, error) {
	if len(leafHiddenSizes) != 2 {
		return nil, fmt.Errorf("newgaussiantreemlp: gaussian policy "+
			"requires 2 leaf networks \n\thave(%v)", len(leafHiddenSizes))
	}

	net, err := network.NewTreeMLP(
		features,
		batch,
		actionDims,
		G.NewGraph(),
		rootHiddenSizes,
		rootBiases,
		rootActivations,
		leafHiddenSizes,
		leafBiases,
		leafActivations,
		init,
	)
	if err != nil {
		return nil, fmt.Errorf("newgaussiantreemlp: could not construct "+
			"network: %v", err)
	}

	return fromNetwork(net, seed)
}

// fromNetwork builds the Gaussian heads of a policy on the graph of an
// existing tree MLP
func fromNetwork(net network.NeuralNet, seed uint64) (*GaussianTreeMLP,
	error) {
	if net.OutputLayers() != 2 {
		return nil, fmt.Errorf("fromnetwork: gaussian policy requires a "+
			"network with 2 output layers \n\thave(%v)", net.OutputLayers())
	}

	batch := net.BatchSize()
	actionDims := net.Outputs()[0]

	// Calculate the standard deviation and offset it for numerical
	// stability
	mean := net.Prediction()[0]
	offset := G.NewConstant(stdOffset)
	logStd := net.Prediction()[1]
	std := G.Must(G.Exp(logStd))
	std = G.Must(G.Add(offset, std))

	// Log probability and entropy of an input batch of actions
	actions := G.NewMatrix(
		net.Graph(),
		tensor.Float64,
		G.WithName("InputActions"),
		G.WithShape(batch, actionDims),
		G.WithInit(G.Zeroes()),
	)
	logPdfNode := op.GaussianLogPdf(mean, std, actions)
	entropyNode := op.GaussianEntropy(std)

	// Standard normal for action selection
	means := make([]float64, actionDims)
	stds := mat.NewDiagDense(actionDims, floatutils.Ones(actionDims))
	source := rand.NewSource(seed)
	normal, ok := distmv.NewNormal(means, stds, source)
	if !ok {
		return nil, fmt.Errorf("fromnetwork: could not create standard " +
			"normal for action selection")
	}

	pol := &GaussianTreeMLP{
		net:         net,
		actions:     actions,
		logPdfNode:  logPdfNode,
		entropyNode: entropyNode,
		normal:      normal,
		actionDims:  actionDims,
		batch:       batch,
		seed:        seed,
	}

	G.Read(pol.logPdfNode, &pol.logPdfVal)
	G.Read(pol.entropyNode, &pol.entropyVal)
	G.Read(mean, &pol.meanVal)
	G.Read(std, &pol.stddevVal)

	pol.vm = G.NewTapeMachine(net.Graph())

	return pol, nil
}

// distribution runs the policy's forward pass on a batch of
// observations, returning the mean and standard deviation of the
// policy in each observation
func (g *GaussianTreeMLP) distribution(obs *mat.Dense) ([]float64, []float64,
	error) {
	rows, _ := obs.Dims()
	if rows != g.batch {
		return nil, nil, fmt.Errorf("distribution: illegal batch size "+
			"\n\twant(%v) \n\thave(%v)", g.batch, rows)
	}

	if err := g.net.SetInput(obs.RawMatrix().Data); err != nil {
		return nil, nil, fmt.Errorf("distribution: cannot set input: %v", err)
	}

	if err := g.vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("distribution: could not run policy "+
			"VM: %v", err)
	}
	defer g.vm.Reset()

	mean := make([]float64, g.batch*g.actionDims)
	copy(mean, g.meanVal.Data().([]float64))
	stddev := make([]float64, g.batch*g.actionDims)
	copy(stddev, g.stddevVal.Data().([]float64))

	return mean, stddev, nil
}

// SelectActions samples one action per row of obs along with its log
// probability under the policy
func (g *GaussianTreeMLP) SelectActions(obs *mat.Dense) (*mat.Dense,
	[]float64, error) {
	mean, stddev, err := g.distribution(obs)
	if err != nil {
		return nil, nil, fmt.Errorf("selectactions: %v", err)
	}

	actions := mat.NewDense(g.batch, g.actionDims, nil)
	logProbs := make([]float64, g.batch)
	for i := 0; i < g.batch; i++ {
		eps := g.normal.Rand(nil)
		for j := 0; j < g.actionDims; j++ {
			idx := i*g.actionDims + j
			a := mean[idx] + stddev[idx]*eps[j]
			actions.Set(i, j, a)
			logProbs[i] += gaussianLogPdf(a, mean[idx], stddev[idx])
		}
	}

	return actions, logProbs, nil
}

// MeanActions returns the mean of the policy in each row of obs
func (g *GaussianTreeMLP) MeanActions(obs *mat.Dense) (*mat.Dense, error) {
	mean, _, err := g.distribution(obs)
	if err != nil {
		return nil, fmt.Errorf("meanactions: %v", err)
	}

	return mat.NewDense(g.batch, g.actionDims, mean), nil
}

// LogPdfOf sets the state and action inputs of the policy's
// computational graph to the argument states and actions (s and a
// respectively) so that when a VM of the policy's graph is run, the
// log probability of actions a taken in states s will be computed and
// stored in the policy's log PDF node, which is returned.
//
// The log PDF node is not evaluated here: it is generally needed
// inside loss functions, which run it with their own VM so that
// gradients flow back through the policy network.
func (g *GaussianTreeMLP) LogPdfOf(s, a []float64) (*G.Node, error) {
	if err := g.net.SetInput(s); err != nil {
		return nil, fmt.Errorf("logpdfof: could not set states: %v", err)
	}

	actionsTensor := tensor.NewDense(tensor.Float64,
		[]int{g.batch, g.actionDims},
		tensor.WithBacking(a),
	)
	if err := G.Let(g.actions, actionsTensor); err != nil {
		return nil, fmt.Errorf("logpdfof: could not set actions: %v", err)
	}

	return g.logPdfNode, nil
}

// LogPdfNode returns the node that will hold the log probability of
// input actions when the computational graph is run
func (g *GaussianTreeMLP) LogPdfNode() *G.Node {
	return g.logPdfNode
}

// Entropy returns the node that will hold the per-sample policy
// entropy when the computational graph is run
func (g *GaussianTreeMLP) Entropy() *G.Node {
	return g.entropyNode
}

// CloneWithBatch clones the policy, changing the size of observation
// batches it accepts. The clone's weights are a snapshot of the
// current weights.
func (g *GaussianTreeMLP) CloneWithBatch(batch int) (agent.NNPolicy, error) {
	cloned, err := g.net.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone "+
			"network: %v", err)
	}

	return fromNetwork(cloned, g.seed)
}

// Network returns the network parameterizing the policy
func (g *GaussianTreeMLP) Network() network.NeuralNet {
	return g.net
}

// BatchSize returns the size of observation batches the policy accepts
func (g *GaussianTreeMLP) BatchSize() int {
	return g.batch
}

// ActionDims returns the number of action dimensions
func (g *GaussianTreeMLP) ActionDims() int {
	return g.actionDims
}

// Close releases the policy's virtual machine
func (g *GaussianTreeMLP) Close() error {
	return g.vm.Close()
}

// gaussianLogPdf computes the log probability density of x under a
// univariate Gaussian
func gaussianLogPdf(x, mean, stddev float64) float64 {
	diff := (x - mean) / stddev
	return -0.5*diff*diff - math.Log(stddev) - 0.5*math.Log(2*math.Pi)
}
