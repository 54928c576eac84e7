// Package config builds complete experiments from nested JSON
// configuration files
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/samuelfneumann/goloco/agent/nonlinear/continuous/ppo"
	"github.com/samuelfneumann/goloco/environment/locomotion"
	"github.com/samuelfneumann/goloco/initwfn"
	"github.com/samuelfneumann/goloco/solver"
)

// Config is the top-level experiment configuration. Fields mirror the
// top-level keys of the JSON file.
//
// The encoder key is recognized so that configuration files written
// for systems with vision encoders parse cleanly, but nothing consumes
// it.
type Config struct {
	EnvName        string           `json:"env_name"`
	Env            EnvConfig        `json:"env"`
	ReplayBuffer   BufferConfig     `json:"replay_buffer"`
	Net            NetConfig        `json:"net"`
	Encoder        json.RawMessage  `json:"encoder"`
	Policy         PolicyConfig     `json:"policy"`
	Collector      CollectorConfig  `json:"collector"`
	PPO            PPOConfig        `json:"ppo"`
	GeneralSetting GeneralConfig    `json:"general_setting"`
}

// EnvConfig configures the training and evaluation environments
type EnvConfig struct {
	EnvNums         int     `json:"env_nums"`
	EvalEnvNums     int     `json:"eval_env_nums"`
	MaxEpisodeSteps int     `json:"max_episode_steps"`
	Discount        float64 `json:"discount"`
	GoalX           float64 `json:"goal_x"`
	NumSubgoals     int     `json:"num_subgoals"`

	Task locomotion.GoalTaskConfig `json:"task"`
}

// BufferConfig configures the rollout buffer
type BufferConfig struct {
	SegmentLength   int     `json:"segment_length"`
	Lambda          float64 `json:"lambda"`
	TimeLimitFilter bool    `json:"time_limit_filter"`
}

// NetConfig configures the policy and value networks
type NetConfig struct {
	RootHiddenSizes  []int `json:"root_hidden_sizes"`
	LeafHiddenSizes  []int `json:"leaf_hidden_sizes"`
	ValueHiddenSizes []int `json:"value_hidden_sizes"`

	Activation string          `json:"activation"`
	Init       *initwfn.InitWFn `json:"init"`
}

// PolicyConfig configures the Gaussian policy
type PolicyConfig struct {
	Seed uint64 `json:"seed"`
}

// CollectorConfig configures evaluation
type CollectorConfig struct {
	EvalEpisodes int `json:"eval_episodes"`
}

// PPOConfig configures the PPO optimizer
type PPOConfig struct {
	Epsilon       float64 `json:"epsilon"`
	Epochs        int     `json:"epochs"`
	MiniBatchSize int     `json:"mini_batch_size"`
	EntropyCoeff  float64 `json:"entropy_coeff"`

	PolicySolver *solver.Solver `json:"policy_solver"`
	ValueSolver  *solver.Solver `json:"value_solver"`
}

// GeneralConfig configures the outer experiment loop
type GeneralConfig struct {
	Iterations   int    `json:"iterations"`
	EvalInterval int    `json:"eval_interval"`
	SaveInterval int    `json:"save_interval"`
	DataDir      string `json:"data_dir"`
	Seed         uint64 `json:"seed"`
}

// Default returns a Config with default values for the planar
// quadruped environment. Loading a file overrides only the keys the
// file sets.
func Default() (Config, error) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return Config{}, fmt.Errorf("default: could not create weight "+
			"initializer: %v", err)
	}

	policySolver, err := solver.NewDefaultAdam(3e-4, 1)
	if err != nil {
		return Config{}, fmt.Errorf("default: could not create policy "+
			"solver: %v", err)
	}

	valueSolver, err := solver.NewDefaultAdam(1e-3, 1)
	if err != nil {
		return Config{}, fmt.Errorf("default: could not create value "+
			"solver: %v", err)
	}

	return Config{
		EnvName: PlanarQuadruped,
		Env: EnvConfig{
			EnvNums:         4,
			EvalEnvNums:     2,
			MaxEpisodeSteps: 1000,
			Discount:        0.99,
			GoalX:           10.0,
			NumSubgoals:     3,
			Task:            locomotion.NewGoalTaskConfig(),
		},
		ReplayBuffer: BufferConfig{
			SegmentLength:   256,
			Lambda:          0.95,
			TimeLimitFilter: true,
		},
		Net: NetConfig{
			RootHiddenSizes:  []int{64, 64},
			LeafHiddenSizes:  []int{},
			ValueHiddenSizes: []int{64, 64},
			Activation:       "tanh",
			Init:             init,
		},
		Policy: PolicyConfig{
			Seed: 192382,
		},
		Collector: CollectorConfig{
			EvalEpisodes: 10,
		},
		PPO: PPOConfig{
			Epsilon:       0.2,
			Epochs:        10,
			MiniBatchSize: 64,
			EntropyCoeff:  0.01,
			PolicySolver:  policySolver,
			ValueSolver:   valueSolver,
		},
		GeneralSetting: GeneralConfig{
			Iterations:   500,
			EvalInterval: 10,
			SaveInterval: 50,
			DataDir:      ".",
			Seed:         192382,
		},
	}, nil
}

// Load reads a Config from a JSON file, with defaults for any keys
// the file does not set
func Load(filename string) (Config, error) {
	c, err := Default()
	if err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("load: could not read configuration "+
			"file: %v", err)
	}

	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("load: could not parse configuration "+
			"file: %v", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}

	return c, nil
}

// Validate returns an error describing any illegal configuration
// values
func (c Config) Validate() error {
	if _, ok := worldRegistry[c.EnvName]; !ok {
		return fmt.Errorf("validate: no such environment %v", c.EnvName)
	}

	if c.Env.EnvNums <= 0 {
		return fmt.Errorf("validate: env_nums must be positive \n\thave(%v)",
			c.Env.EnvNums)
	}

	if c.Env.MaxEpisodeSteps <= 0 {
		return fmt.Errorf("validate: max_episode_steps must be positive "+
			"\n\thave(%v)", c.Env.MaxEpisodeSteps)
	}

	if c.Env.Discount < 0 || c.Env.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1] "+
			"\n\thave(%v)", c.Env.Discount)
	}

	if err := c.Env.Task.Validate(); err != nil {
		return fmt.Errorf("validate: invalid task: %v", err)
	}

	if c.ReplayBuffer.SegmentLength <= 0 {
		return fmt.Errorf("validate: segment_length must be positive "+
			"\n\thave(%v)", c.ReplayBuffer.SegmentLength)
	}

	if c.ReplayBuffer.Lambda < 0 || c.ReplayBuffer.Lambda > 1 {
		return fmt.Errorf("validate: lambda must be in [0, 1] "+
			"\n\thave(%v)", c.ReplayBuffer.Lambda)
	}

	if _, ok := activations[c.Net.Activation]; !ok {
		return fmt.Errorf("validate: no such activation %v",
			c.Net.Activation)
	}

	if c.Net.Init == nil {
		return fmt.Errorf("validate: net.init cannot be nil")
	}

	if c.Collector.EvalEpisodes <= 0 {
		return fmt.Errorf("validate: eval_episodes must be positive "+
			"\n\thave(%v)", c.Collector.EvalEpisodes)
	}

	if c.GeneralSetting.Iterations <= 0 {
		return fmt.Errorf("validate: iterations must be positive "+
			"\n\thave(%v)", c.GeneralSetting.Iterations)
	}

	if c.GeneralSetting.SaveInterval < 0 {
		return fmt.Errorf("validate: save_interval cannot be negative "+
			"\n\thave(%v)", c.GeneralSetting.SaveInterval)
	}

	return c.ppoConfig().Validate()
}

// ppoConfig returns the PPO optimizer configuration described by the
// Config
func (c Config) ppoConfig() ppo.Config {
	return ppo.Config{
		Epsilon:       c.PPO.Epsilon,
		Epochs:        c.PPO.Epochs,
		MiniBatchSize: c.PPO.MiniBatchSize,
		EntropyCoeff:  c.PPO.EntropyCoeff,
		PolicySolver:  c.PPO.PolicySolver,
		ValueSolver:   c.PPO.ValueSolver,
		Seed:          c.GeneralSetting.Seed,
	}
}
