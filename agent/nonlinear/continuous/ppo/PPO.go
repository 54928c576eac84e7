// Package ppo implements the Proximal Policy Optimization algorithm
// for continuous action spaces with Gaussian policies.
package ppo

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goloco/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/goloco/buffer/rollout"
	"github.com/samuelfneumann/goloco/network"
	"github.com/samuelfneumann/goloco/utils/op"
)

// minAdvStd is the smallest advantage standard deviation for which
// per-minibatch advantage normalization is performed. Below this, the
// minibatch is used unnormalized.
const minAdvStd float64 = 1e-8

// PPO updates a Gaussian policy and a state value function from
// segments of experience using the clipped surrogate objective.
//
// The behaviour policy and value function hold the weights used for
// action selection and bootstrapping while a segment is collected.
// Separate training copies accumulate the gradient steps of an update,
// and their weights are copied back into the behaviour networks only
// once all epochs have completed, so that collection never sees
// half-updated weights.
type PPO struct {
	buffer *rollout.Buffer

	behaviour   *policy.GaussianTreeMLP
	trainPolicy *policy.GaussianTreeMLP
	oldLogProb  *G.Node
	advantages  *G.Node
	policyLoss  G.Value
	entropy     G.Value
	policyVM    G.VM

	stateValue *StateValue
	trainValue network.NeuralNet
	targets    *G.Node
	valueLoss  G.Value
	valueVM    G.VM

	config   Config
	features int
	rng      *rand.Rand
}

// New returns a new PPO that improves the argument behaviour policy
// and state value function from segments stored in buffer
func New(behaviour *policy.GaussianTreeMLP, stateValue *StateValue,
	buffer *rollout.Buffer, config Config) (*PPO, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid configuration: %v", err)
	}

	if buffer.Capacity()%config.MiniBatchSize != 0 {
		return nil, fmt.Errorf("new: minibatch size must divide the "+
			"buffer capacity \n\tcapacity(%v) \n\tminibatch(%v)",
			buffer.Capacity(), config.MiniBatchSize)
	}

	cloned, err := behaviour.CloneWithBatch(config.MiniBatchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create training policy: %v",
			err)
	}
	trainPolicy := cloned.(*policy.GaussianTreeMLP)

	trainValue, err := stateValue.Network().CloneWithBatch(
		config.MiniBatchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create training value "+
			"network: %v", err)
	}

	p := &PPO{
		buffer:      buffer,
		behaviour:   behaviour,
		trainPolicy: trainPolicy,
		stateValue:  stateValue,
		trainValue:  trainValue,
		config:      config,
		features:    behaviour.Network().Features()[0],
		rng:         rand.New(rand.NewSource(config.Seed)),
	}

	if err := p.buildPolicyLoss(); err != nil {
		return nil, fmt.Errorf("new: could not build policy objective: %v",
			err)
	}
	if err := p.buildValueLoss(); err != nil {
		return nil, fmt.Errorf("new: could not build value objective: %v",
			err)
	}

	return p, nil
}

// buildPolicyLoss adds the clipped surrogate objective to the training
// policy's computational graph
func (p *PPO) buildPolicyLoss() error {
	graph := p.trainPolicy.Network().Graph()
	m := p.config.MiniBatchSize

	p.oldLogProb = G.NewVector(
		graph,
		tensor.Float64,
		G.WithName("OldLogProb"),
		G.WithShape(m),
		G.WithInit(G.Zeroes()),
	)
	p.advantages = G.NewVector(
		graph,
		tensor.Float64,
		G.WithName("Advantages"),
		G.WithShape(m),
		G.WithInit(G.Zeroes()),
	)

	ratio := G.Must(G.Exp(G.Must(G.Sub(p.trainPolicy.LogPdfNode(),
		p.oldLogProb))))

	surrogate, err := clippedSurrogate(ratio, p.advantages, p.config.Epsilon)
	if err != nil {
		return fmt.Errorf("buildpolicyloss: %v", err)
	}

	entropy := G.Must(G.Mean(p.trainPolicy.Entropy()))
	entropyBonus := G.Must(G.Mul(G.NewConstant(p.config.EntropyCoeff),
		entropy))

	loss := G.Must(G.Neg(G.Must(G.Mean(surrogate))))
	loss = G.Must(G.Sub(loss, entropyBonus))

	G.Read(loss, &p.policyLoss)
	G.Read(entropy, &p.entropy)

	learnables := p.trainPolicy.Network().Learnables()
	if _, err := G.Grad(loss, learnables...); err != nil {
		return fmt.Errorf("buildpolicyloss: could not compute gradient: %v",
			err)
	}

	p.policyVM = G.NewTapeMachine(graph, G.BindDualValues(learnables...))
	return nil
}

// buildValueLoss adds the mean squared error objective to the training
// value network's computational graph
func (p *PPO) buildValueLoss() error {
	graph := p.trainValue.Graph()
	m := p.config.MiniBatchSize

	p.targets = G.NewVector(
		graph,
		tensor.Float64,
		G.WithName("ValueTargets"),
		G.WithShape(m),
		G.WithInit(G.Zeroes()),
	)

	pred := G.Must(G.Ravel(p.trainValue.Prediction()[0]))
	loss := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(pred, p.targets))))))

	G.Read(loss, &p.valueLoss)

	learnables := p.trainValue.Learnables()
	if _, err := G.Grad(loss, learnables...); err != nil {
		return fmt.Errorf("buildvalueloss: could not compute gradient: %v",
			err)
	}

	p.valueVM = G.NewTapeMachine(graph, G.BindDualValues(learnables...))
	return nil
}

// Update runs the configured number of epochs of minibatch gradient
// steps on the buffered segment, then copies the trained weights into
// the behaviour policy and value function. The buffer must be full.
//
// The returned metrics hold the policy loss, value loss and policy
// entropy averaged over all gradient steps of the update.
func (p *PPO) Update() (map[string]float64, error) {
	batch, err := p.buffer.Get()
	if err != nil {
		return nil, fmt.Errorf("update: could not get segment: %v", err)
	}

	n := len(batch.Adv)
	m := p.config.MiniBatchSize

	var policyLoss, valueLoss, entropy float64
	steps := 0

	for epoch := 0; epoch < p.config.Epochs; epoch++ {
		perm := p.rng.Perm(n)
		for start := 0; start < n; start += m {
			idxs := perm[start : start+m]

			obs, act, adv, ret, logp := p.gather(batch, idxs)
			normalizeAdvantages(adv)

			pLoss, ent, err := p.policyStep(obs, act, adv, logp)
			if err != nil {
				return nil, fmt.Errorf("update: %v", err)
			}

			vLoss, err := p.valueStep(obs, ret)
			if err != nil {
				return nil, fmt.Errorf("update: %v", err)
			}

			policyLoss += pLoss
			valueLoss += vLoss
			entropy += ent
			steps++
		}
	}

	// Hand the trained weights to the behaviour networks atomically,
	// after all epochs have run
	err = network.Set(p.behaviour.Network(), p.trainPolicy.Network())
	if err != nil {
		return nil, fmt.Errorf("update: could not update behaviour "+
			"policy: %v", err)
	}
	if err := p.stateValue.Set(p.trainValue); err != nil {
		return nil, fmt.Errorf("update: could not update behaviour value "+
			"function: %v", err)
	}

	return map[string]float64{
		"policy_loss": policyLoss / float64(steps),
		"value_loss":  valueLoss / float64(steps),
		"entropy":     entropy / float64(steps),
	}, nil
}

// gather copies the transitions at idxs out of batch into contiguous
// minibatch slices
func (p *PPO) gather(batch *rollout.Batch, idxs []int) (obs, act, adv,
	ret, logp []float64) {
	m := len(idxs)
	obs = make([]float64, m*p.features)
	act = make([]float64, m*p.behaviour.ActionDims())
	adv = make([]float64, m)
	ret = make([]float64, m)
	logp = make([]float64, m)

	actionDims := p.behaviour.ActionDims()
	for i, idx := range idxs {
		copy(obs[i*p.features:(i+1)*p.features],
			batch.Obs[idx*p.features:(idx+1)*p.features])
		copy(act[i*actionDims:(i+1)*actionDims],
			batch.Act[idx*actionDims:(idx+1)*actionDims])
		adv[i] = batch.Adv[idx]
		ret[i] = batch.Ret[idx]
		logp[i] = batch.LogProb[idx]
	}
	return obs, act, adv, ret, logp
}

// policyStep runs a single gradient step on the clipped surrogate
// objective, returning the loss and policy entropy at the step
func (p *PPO) policyStep(obs, act, adv, logp []float64) (float64, float64,
	error) {
	if _, err := p.trainPolicy.LogPdfOf(obs, act); err != nil {
		return 0, 0, fmt.Errorf("policystep: could not set inputs: %v", err)
	}

	logpTensor := tensor.NewDense(tensor.Float64, []int{len(logp)},
		tensor.WithBacking(logp))
	if err := G.Let(p.oldLogProb, logpTensor); err != nil {
		return 0, 0, fmt.Errorf("policystep: could not set old log "+
			"probabilities: %v", err)
	}

	advTensor := tensor.NewDense(tensor.Float64, []int{len(adv)},
		tensor.WithBacking(adv))
	if err := G.Let(p.advantages, advTensor); err != nil {
		return 0, 0, fmt.Errorf("policystep: could not set advantages: %v",
			err)
	}

	if err := p.policyVM.RunAll(); err != nil {
		return 0, 0, fmt.Errorf("policystep: could not run objective: %v",
			err)
	}
	defer p.policyVM.Reset()

	err := p.config.PolicySolver.Step(p.trainPolicy.Network().Model())
	if err != nil {
		return 0, 0, fmt.Errorf("policystep: could not step solver: %v", err)
	}

	return p.policyLoss.Data().(float64), p.entropy.Data().(float64), nil
}

// valueStep runs a single gradient step on the value function's mean
// squared error against the rewards-to-go targets
func (p *PPO) valueStep(obs, ret []float64) (float64, error) {
	if err := p.trainValue.SetInput(obs); err != nil {
		return 0, fmt.Errorf("valuestep: could not set observations: %v",
			err)
	}

	retTensor := tensor.NewDense(tensor.Float64, []int{len(ret)},
		tensor.WithBacking(ret))
	if err := G.Let(p.targets, retTensor); err != nil {
		return 0, fmt.Errorf("valuestep: could not set targets: %v", err)
	}

	if err := p.valueVM.RunAll(); err != nil {
		return 0, fmt.Errorf("valuestep: could not run objective: %v", err)
	}
	defer p.valueVM.Reset()

	if err := p.config.ValueSolver.Step(p.trainValue.Model()); err != nil {
		return 0, fmt.Errorf("valuestep: could not step solver: %v", err)
	}

	return p.valueLoss.Data().(float64), nil
}

// Policy returns the behaviour policy improved by the PPO
func (p *PPO) Policy() *policy.GaussianTreeMLP {
	return p.behaviour
}

// StateValue returns the state value function improved by the PPO
func (p *PPO) StateValue() *StateValue {
	return p.stateValue
}

// Close cleans up the PPO's resources
func (p *PPO) Close() error {
	policyErr := p.policyVM.Close()
	valueErr := p.valueVM.Close()
	if policyErr != nil {
		return policyErr
	}
	return valueErr
}

// normalizeAdvantages normalizes adv in place to mean 0 and standard
// deviation 1. When the standard deviation is below minAdvStd, adv is
// left unnormalized rather than dividing by a vanishing denominator.
func normalizeAdvantages(adv []float64) {
	mean := stat.Mean(adv, nil)
	std := stat.StdDev(adv, nil)
	if std < minAdvStd {
		return
	}

	for i := range adv {
		adv[i] = (adv[i] - mean) / std
	}
}

// clippedSurrogate adds the per-transition surrogate objective to
// ratio's graph: the elementwise minimum of the probability ratio
// times the advantage and the ratio clipped to [1-epsilon, 1+epsilon]
// times the advantage
func clippedSurrogate(ratio, advantages *G.Node,
	epsilon float64) (*G.Node, error) {
	clipped, err := op.Clip(ratio, 1-epsilon, 1+epsilon)
	if err != nil {
		return nil, fmt.Errorf("clippedsurrogate: could not clip ratio: %v",
			err)
	}

	return op.Min(
		G.Must(G.HadamardProd(ratio, advantages)),
		G.Must(G.HadamardProd(clipped, advantages)),
	)
}
