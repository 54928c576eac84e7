package collector

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goloco/agent"
	"github.com/samuelfneumann/goloco/environment/vecenv"
	"github.com/samuelfneumann/goloco/network"
)

// MinEvalEnvs is the minimum number of evaluation environment
// instances. Requests for fewer are raised to this value so that
// evaluation returns are never a single-episode estimate per batch
// step.
const MinEvalEnvs int = 2

// EvalEnvCount returns the number of evaluation environment instances
// to construct for a requested count
func EvalEnvCount(requested int) int {
	if requested < MinEvalEnvs {
		return MinEvalEnvs
	}
	return requested
}

// Evaluator measures policy quality on a held-out vectorized
// environment. Evaluation uses the mode of the action distribution
// rather than sampling, and observations are normalized with a frozen
// snapshot of the training statistics, so evaluating never perturbs
// training state.
//
// The Evaluator keeps its own clone of the policy, sized to the
// evaluation environment's slot count, and syncs the clone's weights
// from the source policy at the start of each evaluation.
type Evaluator struct {
	envs     *vecenv.VecEnv
	source   agent.NNPolicy
	sampler  agent.NNPolicy
	episodes int
}

// NewEvaluator returns a new Evaluator which runs a fixed number of
// complete episodes of pol per call to Evaluate. The environment envs should
// have been constructed in evaluation mode so that its normalizer
// statistics stay fixed.
func NewEvaluator(envs *vecenv.VecEnv, pol agent.NNPolicy,
	episodes int) (*Evaluator, error) {
	if envs == nil || pol == nil {
		return nil, fmt.Errorf("newevaluator: evaluator requires an " +
			"environment and policy")
	}

	if episodes <= 0 {
		return nil, fmt.Errorf("newevaluator: episodes must be positive "+
			"\n\thave(%v)", episodes)
	}

	sampler, err := pol.CloneWithBatch(envs.Len())
	if err != nil {
		return nil, fmt.Errorf("newevaluator: could not clone policy: %v",
			err)
	}

	return &Evaluator{
		envs:     envs,
		source:   pol,
		sampler:  sampler,
		episodes: episodes,
	}, nil
}

// Evaluate runs the configured number of episodes with mean actions,
// normalizing observations with a frozen copy of norm. It returns the
// undiscounted return and length of each completed episode.
func (e *Evaluator) Evaluate(norm *vecenv.Normalizer) ([]float64, []int,
	error) {
	err := network.Set(e.sampler.Network(), e.source.Network())
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate: could not sync policy "+
			"weights: %v", err)
	}

	e.envs.SetNormalizer(norm.Copy())
	if err := e.envs.Reset(); err != nil {
		return nil, nil, fmt.Errorf("evaluate: could not reset "+
			"environments: %v", err)
	}

	returns := make([]float64, 0, e.episodes)
	lengths := make([]int, 0, e.episodes)
	runningReturn := make([]float64, e.envs.Len())
	runningLength := make([]int, e.envs.Len())

	for len(returns) < e.episodes {
		var obs mat.Dense
		obs.CloneFrom(e.envs.Observations())

		actions, err := e.sampler.MeanActions(&obs)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate: could not select "+
				"actions: %v", err)
		}

		steps, err := e.envs.Step(actions)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate: could not step "+
				"environments: %v", err)
		}

		for i, step := range steps {
			runningReturn[i] += step.Reward
			runningLength[i]++

			if !step.Last() {
				continue
			}

			if len(returns) < e.episodes {
				returns = append(returns, runningReturn[i])
				lengths = append(lengths, runningLength[i])
			}
			runningReturn[i] = 0
			runningLength[i] = 0
		}
	}

	return returns, lengths, nil
}
