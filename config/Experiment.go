package config

import (
	"fmt"
	"path/filepath"

	"github.com/samuelfneumann/goloco/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/goloco/agent/nonlinear/continuous/ppo"
	"github.com/samuelfneumann/goloco/buffer/rollout"
	"github.com/samuelfneumann/goloco/collector"
	"github.com/samuelfneumann/goloco/environment"
	"github.com/samuelfneumann/goloco/environment/locomotion"
	"github.com/samuelfneumann/goloco/environment/locomotion/planar"
	"github.com/samuelfneumann/goloco/environment/vecenv"
	"github.com/samuelfneumann/goloco/experiment"
	"github.com/samuelfneumann/goloco/experiment/checkpointer"
	"github.com/samuelfneumann/goloco/network"
)

// PlanarQuadruped is the name of the built-in Box2D quadruped
// environment
const PlanarQuadruped string = "PlanarQuadruped"

// evalSeedOffset separates evaluation environment seeds from training
// seeds so the two never share episodes
const evalSeedOffset uint64 = 10000

// MakeWorld constructs a World for a named environment
type MakeWorld func(c EnvConfig, seed uint64) (locomotion.World, error)

// worldRegistry maps environment names to World constructors
var worldRegistry map[string]MakeWorld = map[string]MakeWorld{
	PlanarQuadruped: newPlanarQuadruped,
}

// RegisterEnv registers a World constructor under name, making it
// available through the env_name configuration key
func RegisterEnv(name string, f MakeWorld) {
	worldRegistry[name] = f
}

// activations maps activation names to constructors
var activations map[string]func() *network.Activation = map[string]func() *network.Activation{
	"tanh":     network.TanH,
	"relu":     network.ReLU,
	"identity": network.Identity,
}

func newPlanarQuadruped(c EnvConfig, seed uint64) (locomotion.World,
	error) {
	return planar.NewQuadruped(c.GoalX, c.NumSubgoals, seed)
}

// newEnv constructs a single environment slot: a World wired to a
// GoalTask and the standard sensor suite
func (c Config) newEnv(seed uint64) (environment.Environment, error) {
	world, err := worldRegistry[c.EnvName](c.Env, seed)
	if err != nil {
		return nil, fmt.Errorf("newenv: could not create world: %v", err)
	}

	task, err := locomotion.NewGoalTask(c.Env.Task)
	if err != nil {
		return nil, fmt.Errorf("newenv: could not create task: %v", err)
	}

	lastAction, err := locomotion.NewLastActionSensor(world.ActionDims())
	if err != nil {
		return nil, fmt.Errorf("newenv: could not create sensor: %v", err)
	}
	sensors := []locomotion.Sensor{
		lastAction,
		locomotion.NewGoalSensor(),
		locomotion.NewBaseStateSensor(),
		locomotion.NewFootForceSensor(),
	}

	env, _, err := locomotion.New(world, task, sensors,
		c.Env.MaxEpisodeSteps, c.Env.Discount)
	if err != nil {
		return nil, fmt.Errorf("newenv: could not create environment: %v",
			err)
	}

	return env, nil
}

// newVecEnv constructs count environment slots seeded consecutively
// from seed
func (c Config) newVecEnv(count int, seed uint64,
	training bool) (*vecenv.VecEnv, error) {
	envs := make([]environment.Environment, count)
	for i := range envs {
		env, err := c.newEnv(seed + uint64(i))
		if err != nil {
			return nil, fmt.Errorf("newvecenv: slot %v: %v", i, err)
		}
		envs[i] = env
	}

	norm, err := vecenv.NewNormalizer(envs[0].ObservationSpec().Shape.Len())
	if err != nil {
		return nil, fmt.Errorf("newvecenv: %v", err)
	}

	return vecenv.New(envs, norm, training)
}

// CreateExperiment builds the complete experiment the Config
// describes: environments, policy, value function, buffer, collector,
// optimizer, evaluator, and checkpointing
func (c Config) CreateExperiment() (*experiment.Experiment, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("createexperiment: %v", err)
	}

	seed := c.GeneralSetting.Seed

	trainEnvs, err := c.newVecEnv(c.Env.EnvNums, seed, true)
	if err != nil {
		return nil, fmt.Errorf("createexperiment: could not create "+
			"training environments: %v", err)
	}

	evalCount := collector.EvalEnvCount(c.Env.EvalEnvNums)
	evalEnvs, err := c.newVecEnv(evalCount, seed+evalSeedOffset, false)
	if err != nil {
		return nil, fmt.Errorf("createexperiment: could not create "+
			"evaluation environments: %v", err)
	}

	features := trainEnvs.ObsDims()
	actionDims := trainEnvs.ActionDims()
	activation := activations[c.Net.Activation]

	// The mean and log-std leaves share a single architecture
	leafSizes := len(c.Net.LeafHiddenSizes)
	pol, err := policy.NewGaussianTreeMLP(
		features,
		actionDims,
		c.Env.EnvNums,
		c.Net.RootHiddenSizes,
		boolsOf(len(c.Net.RootHiddenSizes), true),
		activationsOf(len(c.Net.RootHiddenSizes), activation),
		[][]int{c.Net.LeafHiddenSizes, c.Net.LeafHiddenSizes},
		[][]bool{boolsOf(leafSizes, true), boolsOf(leafSizes, true)},
		[][]*network.Activation{
			activationsOf(leafSizes, activation),
			activationsOf(leafSizes, activation),
		},
		c.Net.Init.InitWFn(),
		c.Policy.Seed,
	)
	if err != nil {
		return nil, fmt.Errorf("createexperiment: could not create "+
			"policy: %v", err)
	}

	stateValue, err := ppo.NewStateValue(
		features,
		c.Env.EnvNums,
		c.Net.ValueHiddenSizes,
		boolsOf(len(c.Net.ValueHiddenSizes), true),
		activationsOf(len(c.Net.ValueHiddenSizes), activation),
		c.Net.Init.InitWFn(),
	)
	if err != nil {
		return nil, fmt.Errorf("createexperiment: could not create value "+
			"function: %v", err)
	}

	buf, err := rollout.New(
		features,
		actionDims,
		c.Env.EnvNums,
		c.ReplayBuffer.SegmentLength,
		c.ReplayBuffer.Lambda,
		c.Env.Discount,
		c.ReplayBuffer.TimeLimitFilter,
	)
	if err != nil {
		return nil, fmt.Errorf("createexperiment: could not create "+
			"buffer: %v", err)
	}

	col, err := collector.New(trainEnvs, buf, pol, stateValue)
	if err != nil {
		return nil, fmt.Errorf("createexperiment: could not create "+
			"collector: %v", err)
	}

	learner, err := ppo.New(pol, stateValue, buf, c.ppoConfig())
	if err != nil {
		return nil, fmt.Errorf("createexperiment: could not create "+
			"optimizer: %v", err)
	}

	evaluator, err := collector.NewEvaluator(evalEnvs, pol,
		c.Collector.EvalEpisodes)
	if err != nil {
		return nil, fmt.Errorf("createexperiment: could not create "+
			"evaluator: %v", err)
	}

	var checkpointers []checkpointer.Checkpointer
	if c.GeneralSetting.SaveInterval > 0 {
		serializable, ok := pol.Network().(checkpointer.Serializable)
		if !ok {
			return nil, fmt.Errorf("createexperiment: policy network is " +
				"not serializable")
		}

		nStep, err := checkpointer.NewNStep(
			c.GeneralSetting.SaveInterval,
			serializable,
			checkpointer.FilenameEnumerator(0,
				filepath.Join(c.GeneralSetting.DataDir, "policy"), ".bin"),
		)
		if err != nil {
			return nil, fmt.Errorf("createexperiment: could not create "+
				"checkpointer: %v", err)
		}
		checkpointers = append(checkpointers, nStep)
	}

	return experiment.New(
		col,
		learner,
		evaluator,
		c.GeneralSetting.EvalInterval,
		c.GeneralSetting.Iterations,
		c.GeneralSetting.DataDir,
		checkpointers...,
	)
}

// boolsOf returns a slice of n copies of value
func boolsOf(n int, value bool) []bool {
	b := make([]bool, n)
	for i := range b {
		b[i] = value
	}
	return b
}

// activationsOf returns a slice of n activations constructed by f
func activationsOf(n int, f func() *network.Activation) []*network.Activation {
	acts := make([]*network.Activation, n)
	for i := range acts {
		acts[i] = f()
	}
	return acts
}
