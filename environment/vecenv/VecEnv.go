// Package vecenv implements a vectorized environment: a batch of
// independent environment slots advanced in lockstep. Each step, every
// slot is stepped by its own goroutine and a barrier waits for the
// slowest slot before results are visible. Slots whose episodes end
// are reset automatically before the next step.
package vecenv

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goloco/environment"
	"github.com/samuelfneumann/goloco/timestep"
)

// VecEnv advances N independent environment slots in lockstep. When a
// VecEnv is in training mode, every raw observation it sees is folded
// into its observation Normalizer; evaluation VecEnvs should instead
// be handed a frozen copy of the training statistics through
// SetNormalizer, which they only read.
type VecEnv struct {
	envs       []environment.Environment
	normalizer *Normalizer
	training   bool

	obsDims    int
	actionDims int

	// currentObs holds the normalized observation each slot will act
	// on next, one row per slot
	currentObs *mat.Dense
}

// New returns a new VecEnv over envs. All slots must share observation
// and action specifications.
func New(envs []environment.Environment, normalizer *Normalizer,
	training bool) (*VecEnv, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("new: vectorized environment requires at " +
			"least one slot")
	}
	if normalizer == nil {
		return nil, fmt.Errorf("new: normalizer cannot be nil")
	}

	obsDims := envs[0].ObservationSpec().Shape.Len()
	actionDims := envs[0].ActionSpec().Shape.Len()
	for i, env := range envs {
		if env.ObservationSpec().Shape.Len() != obsDims {
			return nil, fmt.Errorf("new: slot %v observation shape "+
				"\n\twant(%v) \n\thave(%v)", i, obsDims,
				env.ObservationSpec().Shape.Len())
		}
		if env.ActionSpec().Shape.Len() != actionDims {
			return nil, fmt.Errorf("new: slot %v action shape \n\twant(%v) "+
				"\n\thave(%v)", i, actionDims, env.ActionSpec().Shape.Len())
		}
	}

	v := &VecEnv{
		envs:       envs,
		normalizer: normalizer,
		training:   training,
		obsDims:    obsDims,
		actionDims: actionDims,
		currentObs: mat.NewDense(len(envs), obsDims, nil),
	}

	if err := v.Reset(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return v, nil
}

// Len returns the number of environment slots
func (v *VecEnv) Len() int {
	return len(v.envs)
}

// ObsDims returns the number of observation dimensions per slot
func (v *VecEnv) ObsDims() int {
	return v.obsDims
}

// ActionDims returns the number of action dimensions per slot
func (v *VecEnv) ActionDims() int {
	return v.actionDims
}

// Normalizer returns the observation normalizer of the VecEnv
func (v *VecEnv) Normalizer() *Normalizer {
	return v.normalizer
}

// SetNormalizer replaces the observation normalizer. Evaluation
// VecEnvs use this to adopt a frozen copy of the training statistics
// at evaluation start.
func (v *VecEnv) SetNormalizer(n *Normalizer) {
	v.normalizer = n
}

// Observations returns the normalized observation each slot will act
// on next, one row per slot
func (v *VecEnv) Observations() *mat.Dense {
	return v.currentObs
}

// Seed reseeds slot i with seed + i
func (v *VecEnv) Seed(seed uint64) {
	for i, env := range v.envs {
		env.Seed(seed + uint64(i))
	}
}

// Reset resets every slot and repopulates the observation batch
func (v *VecEnv) Reset() error {
	for i, env := range v.envs {
		step, err := env.Reset()
		if err != nil {
			return fmt.Errorf("reset: could not reset slot %v: %v", i, err)
		}

		obs, err := v.normalizeObs(step.Observation)
		if err != nil {
			return fmt.Errorf("reset: slot %v: %v", i, err)
		}
		v.currentObs.SetRow(i, obs.RawVector().Data)
	}
	return nil
}

// Step advances every slot by one control step, row i of actions going
// to slot i. All slots complete the step before Step returns. The
// returned timesteps carry the stepped episode's (normalized)
// observations and end types; slots whose episodes ended have already
// been reset, and Observations() reflects their new episodes.
func (v *VecEnv) Step(actions *mat.Dense) ([]timestep.TimeStep, error) {
	rows, cols := actions.Dims()
	if rows != len(v.envs) || cols != v.actionDims {
		return nil, fmt.Errorf("step: illegal action batch shape "+
			"\n\twant(%v x %v) \n\thave(%v x %v)", len(v.envs), v.actionDims,
			rows, cols)
	}

	steps := make([]timestep.TimeStep, len(v.envs))
	errs := make([]error, len(v.envs))

	var wg sync.WaitGroup
	for i := range v.envs {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			steps[slot], errs[slot] = v.stepSlot(slot, actions)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("step: slot %v: %v", i, err)
		}
	}

	return steps, nil
}

// stepSlot advances a single slot, auto-resetting it if its episode
// ended
func (v *VecEnv) stepSlot(slot int, actions *mat.Dense) (timestep.TimeStep,
	error) {
	action := mat.NewVecDense(v.actionDims, nil)
	for j := 0; j < v.actionDims; j++ {
		action.SetVec(j, actions.At(slot, j))
	}

	step, last, err := v.envs[slot].Step(action)
	if err != nil {
		return timestep.TimeStep{}, err
	}

	obs, err := v.normalizeObs(step.Observation)
	if err != nil {
		return timestep.TimeStep{}, err
	}
	step.Observation = obs

	if !last {
		v.currentObs.SetRow(slot, obs.RawVector().Data)
		return step, nil
	}

	// Episode over: start the slot's next episode now so the next
	// Observations() call sees its first observation
	first, err := v.envs[slot].Reset()
	if err != nil {
		return timestep.TimeStep{}, err
	}

	firstObs, err := v.normalizeObs(first.Observation)
	if err != nil {
		return timestep.TimeStep{}, err
	}
	v.currentObs.SetRow(slot, firstObs.RawVector().Data)

	return step, nil
}

// normalizeObs folds obs into the running statistics when training and
// returns the normalized observation
func (v *VecEnv) normalizeObs(obs *mat.VecDense) (*mat.VecDense, error) {
	if v.training {
		if err := v.normalizer.Update(obs); err != nil {
			return nil, err
		}
	}
	return v.normalizer.Normalize(obs)
}
