// Package collector gathers segments of on-policy experience from
// vectorized environments and measures policy quality on held-out
// evaluation environments.
package collector

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goloco/buffer/rollout"
	"github.com/samuelfneumann/goloco/environment/vecenv"
	"github.com/samuelfneumann/goloco/timestep"
)

// ActionSampler selects actions for batches of observations, one row
// per environment slot
type ActionSampler interface {
	// SelectActions returns a stochastically sampled action for each
	// observation row, along with the log probability of each sampled
	// action
	SelectActions(obs *mat.Dense) (*mat.Dense, []float64, error)

	// MeanActions returns the mode of the action distribution for
	// each observation row
	MeanActions(obs *mat.Dense) (*mat.Dense, error)
}

// ValueEstimator estimates the value of states under the current
// policy
type ValueEstimator interface {
	// Values returns the estimated value of each observation row
	Values(obs *mat.Dense) ([]float64, error)

	// Value returns the estimated value of a single observation
	Value(obs []float64) (float64, error)
}

// OnPolicy collects fixed-length segments of experience from a
// vectorized environment into a rollout buffer. Each call to
// CollectSegment fills the buffer exactly once, finishing every
// trajectory path with the bootstrap value its ending calls for.
type OnPolicy struct {
	envs    *vecenv.VecEnv
	buffer  *rollout.Buffer
	sampler ActionSampler
	valuer  ValueEstimator
}

// New returns a new OnPolicy collector. The sampler's batch size must
// match the number of environment slots.
func New(envs *vecenv.VecEnv, buffer *rollout.Buffer, sampler ActionSampler,
	valuer ValueEstimator) (*OnPolicy, error) {
	if envs == nil || buffer == nil || sampler == nil || valuer == nil {
		return nil, fmt.Errorf("new: collector requires an environment, " +
			"buffer, sampler, and value estimator")
	}

	if envs.Len() != buffer.Slots() {
		return nil, fmt.Errorf("new: environment and buffer must have the "+
			"same number of slots \n\tenvironment(%v) \n\tbuffer(%v)",
			envs.Len(), buffer.Slots())
	}

	return &OnPolicy{
		envs:    envs,
		buffer:  buffer,
		sampler: sampler,
		valuer:  valuer,
	}, nil
}

// CollectSegment steps every slot through one segment of experience,
// storing each transition in the buffer. When CollectSegment returns
// without error, the buffer is full and every path is finished, so the
// segment is ready for an optimizer to consume.
func (c *OnPolicy) CollectSegment() error {
	ended := make([]bool, c.buffer.Slots())

	for t := 0; t < c.buffer.SegmentLength(); t++ {
		// Snapshot the observations before stepping: slots that finish
		// their episodes overwrite the shared observation batch with
		// their next episode's first observation
		var obs mat.Dense
		obs.CloneFrom(c.envs.Observations())

		actions, logProbs, err := c.sampler.SelectActions(&obs)
		if err != nil {
			return fmt.Errorf("collectsegment: could not select actions: %v",
				err)
		}

		values, err := c.valuer.Values(&obs)
		if err != nil {
			return fmt.Errorf("collectsegment: could not estimate "+
				"values: %v", err)
		}

		steps, err := c.envs.Step(actions)
		if err != nil {
			return fmt.Errorf("collectsegment: could not step "+
				"environments: %v", err)
		}

		for i, step := range steps {
			err := c.buffer.Store(
				i,
				mat.Row(nil, i, &obs),
				mat.Row(nil, i, actions),
				step.Reward,
				values[i],
				logProbs[i],
				step.Last(),
			)
			if err != nil {
				return fmt.Errorf("collectsegment: could not store "+
					"transition: %v", err)
			}
			ended[i] = step.Last()

			if step.Last() {
				lastVal, err := c.bootstrapValue(&step)
				if err != nil {
					return fmt.Errorf("collectsegment: %v", err)
				}
				if err := c.buffer.FinishPath(i, lastVal); err != nil {
					return fmt.Errorf("collectsegment: could not finish "+
						"path: %v", err)
				}
			}
		}
	}

	// Paths cut off by the segment boundary bootstrap from the state
	// the slot would act on next
	next := c.envs.Observations()
	for i := 0; i < c.buffer.Slots(); i++ {
		if ended[i] {
			continue
		}

		lastVal, err := c.valuer.Value(mat.Row(nil, i, next))
		if err != nil {
			return fmt.Errorf("collectsegment: could not bootstrap cut "+
				"path: %v", err)
		}
		if err := c.buffer.FinishPath(i, lastVal); err != nil {
			return fmt.Errorf("collectsegment: could not finish cut "+
				"path: %v", err)
		}
	}

	return nil
}

// bootstrapValue returns the value to bootstrap from for an episode
// that ended at step. Terminal states have no future return. Episodes
// cut off by a step limit bootstrap from the value of their last state
// when the buffer's time-limit filter is on, since the cutoff is an
// artifact of the limit rather than a property of the state.
func (c *OnPolicy) bootstrapValue(step *timestep.TimeStep) (float64, error) {
	if step.TerminalEnd() {
		return 0, nil
	}

	if !c.buffer.TimeLimitFilter() {
		return 0, nil
	}

	val, err := c.valuer.Value(step.Observation.RawVector().Data)
	if err != nil {
		return 0, fmt.Errorf("bootstrapvalue: could not estimate value "+
			"of timed-out state: %v", err)
	}
	return val, nil
}

// Buffer returns the rollout buffer the collector fills
func (c *OnPolicy) Buffer() *rollout.Buffer {
	return c.buffer
}

// Envs returns the vectorized environment the collector steps
func (c *OnPolicy) Envs() *vecenv.VecEnv {
	return c.envs
}
