package locomotion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goloco/environment"
	"github.com/samuelfneumann/goloco/timestep"
)

// Action bounds of locomotion environments
const (
	MinAction float64 = -1.0
	MaxAction float64 = 1.0
)

// Env composes a World, a GoalTask, and a set of Sensors into an
// environment.Environment. Each Step applies the action to the world,
// updates the task, composes the reward, and concatenates the sensor
// outputs into the observation vector. Episodes end either when the
// task's termination predicate fires (a terminal state) or when the
// step limit cuts the episode off (a timeout).
type Env struct {
	world   World
	task    *GoalTask
	sensors []Sensor
	ender   environment.Ender

	discount float64
	obsDims  int
	prevStep timestep.TimeStep
}

// New returns a new locomotion environment along with its first
// timestep. The cutoff parameter bounds the episode length in control
// steps.
func New(world World, task *GoalTask, sensors []Sensor, cutoff int,
	discount float64) (*Env, timestep.TimeStep, error) {
	if discount < 0 || discount > 1 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: discount must be "+
			"in [0, 1] \n\thave(%v)", discount)
	}

	if cutoff <= 0 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: episode cutoff "+
			"must be positive \n\thave(%v)", cutoff)
	}

	if len(sensors) == 0 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: environment " +
			"requires at least one sensor")
	}

	obsDims := 0
	for _, sensor := range sensors {
		obsDims += sensor.Shape()
	}

	env := &Env{
		world:    world,
		task:     task,
		sensors:  sensors,
		ender:    environment.NewStepLimit(cutoff),
		discount: discount,
		obsDims:  obsDims,
	}

	step, err := env.Reset()
	if err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: could not reset "+
			"environment: %v", err)
	}

	return env, step, nil
}

// Reset resets the environment for a new episode and returns the
// starting timestep
func (e *Env) Reset() (timestep.TimeStep, error) {
	if err := e.world.Reset(); err != nil {
		return timestep.TimeStep{}, fmt.Errorf("reset: could not reset "+
			"world: %v", err)
	}

	e.task.Reset(e.world)
	for _, sensor := range e.sensors {
		sensor.OnReset(e.world)
	}

	obs, err := e.observe()
	if err != nil {
		return timestep.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	step := timestep.New(timestep.First, 0, e.discount, obs, 0)
	e.prevStep = step

	return step, nil
}

// Step applies action to the world for one control step and returns
// the resulting timestep along with whether the episode has ended
func (e *Env) Step(action *mat.VecDense) (timestep.TimeStep, bool, error) {
	if action.Len() != e.world.ActionDims() {
		return timestep.TimeStep{}, true, fmt.Errorf("step: illegal action "+
			"shape \n\twant(%v) \n\thave(%v)", e.world.ActionDims(),
			action.Len())
	}

	if err := e.world.Step(action); err != nil {
		return timestep.TimeStep{}, true, fmt.Errorf("step: could not step "+
			"world: %v", err)
	}

	e.task.Update(e.world)
	reward := e.task.Reward(e.world)

	obs, err := e.observe()
	if err != nil {
		return timestep.TimeStep{}, true, fmt.Errorf("step: %v", err)
	}

	t := timestep.New(timestep.Mid, reward, e.discount, obs,
		e.prevStep.Number+1)

	if e.task.Done(e.world) {
		t.StepType = timestep.Last
		t.SetEnd(timestep.TerminalStateReached)
	} else {
		e.ender.End(&t)
	}

	e.prevStep = t
	return t, t.Last(), nil
}

// observe concatenates the outputs of every sensor into a single
// observation vector
func (e *Env) observe() (*mat.VecDense, error) {
	obs := make([]float64, 0, e.obsDims)
	for _, sensor := range e.sensors {
		values, err := sensor.Observation(e.world)
		if err != nil {
			return nil, fmt.Errorf("observe: %v", err)
		}
		if len(values) != sensor.Shape() {
			return nil, fmt.Errorf("observe: %v sensor produced an illegal "+
				"shape \n\twant(%v) \n\thave(%v)", sensor.Name(),
				sensor.Shape(), len(values))
		}
		obs = append(obs, values...)
	}

	return mat.NewVecDense(e.obsDims, obs), nil
}

// CurrentTimeStep returns the timestep of the last Step or Reset
func (e *Env) CurrentTimeStep() timestep.TimeStep {
	return e.prevStep
}

// Seed reseeds the randomness of the underlying world
func (e *Env) Seed(seed uint64) {
	e.world.Seed(seed)
}

// ObservationSpec returns the observation specification of the
// environment
func (e *Env) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(e.obsDims, nil)

	lowerBound := mat.NewVecDense(e.obsDims, nil)
	upperBound := mat.NewVecDense(e.obsDims, nil)
	for i := 0; i < e.obsDims; i++ {
		lowerBound.SetVec(i, math.Inf(-1))
		upperBound.SetVec(i, math.Inf(1))
	}

	return environment.NewSpec(shape, environment.Observation, lowerBound,
		upperBound, environment.Continuous)
}

// ActionSpec returns the action specification of the environment
func (e *Env) ActionSpec() environment.Spec {
	dims := e.world.ActionDims()
	shape := mat.NewVecDense(dims, nil)

	lowerBound := mat.NewVecDense(dims, nil)
	upperBound := mat.NewVecDense(dims, nil)
	for i := 0; i < dims; i++ {
		lowerBound.SetVec(i, MinAction)
		upperBound.SetVec(i, MaxAction)
	}

	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}

// DiscountSpec returns the discount specification of the environment
func (e *Env) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{e.discount})

	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}
