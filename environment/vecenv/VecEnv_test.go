package vecenv

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goloco/environment"
	"github.com/samuelfneumann/goloco/timestep"
)

// countingEnv is a minimal Environment whose observations encode which
// episode each slot is in. Episodes last a fixed number of steps and
// end with a configurable end type.
type countingEnv struct {
	obsDims    int
	actionDims int
	horizon    int
	endType    timestep.EndType
	base       float64

	stepNum  int
	episodes int
	seed     uint64
	current  timestep.TimeStep
}

func newCountingEnv(base float64, horizon int,
	endType timestep.EndType) *countingEnv {
	return &countingEnv{
		obsDims:    2,
		actionDims: 3,
		horizon:    horizon,
		endType:    endType,
		base:       base,
	}
}

// observation returns the current observation, base + episode number
// in every dimension
func (c *countingEnv) observation() *mat.VecDense {
	obs := mat.NewVecDense(c.obsDims, nil)
	for i := 0; i < c.obsDims; i++ {
		obs.SetVec(i, c.base+float64(c.episodes))
	}
	return obs
}

func (c *countingEnv) Reset() (timestep.TimeStep, error) {
	c.stepNum = 0
	c.episodes++
	c.current = timestep.New(timestep.First, 0, 1, c.observation(), 0)
	return c.current, nil
}

func (c *countingEnv) Step(action *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	c.stepNum++
	step := timestep.New(timestep.Mid, 1, 1, c.observation(), c.stepNum)
	if c.stepNum >= c.horizon {
		step.StepType = timestep.Last
		step.SetEnd(c.endType)
	}
	c.current = step
	return step, step.Last(), nil
}

func (c *countingEnv) CurrentTimeStep() timestep.TimeStep { return c.current }
func (c *countingEnv) Seed(seed uint64)                   { c.seed = seed }

func (c *countingEnv) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(c.obsDims, nil)
	return environment.NewSpec(shape, environment.Observation, shape, shape,
		environment.Continuous)
}

func (c *countingEnv) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(c.actionDims, nil)
	return environment.NewSpec(shape, environment.Action, shape, shape,
		environment.Continuous)
}

func (c *countingEnv) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	return environment.NewSpec(shape, environment.Discount, shape, shape,
		environment.Continuous)
}

// newEvalVecEnv returns a VecEnv over the given slots that never
// updates its normalizer, so observations pass through unchanged
func newEvalVecEnv(t *testing.T,
	envs []environment.Environment) *VecEnv {
	t.Helper()

	norm, err := NewNormalizer(envs[0].ObservationSpec().Shape.Len())
	if err != nil {
		t.Fatal(err)
	}
	v, err := New(envs, norm, false)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func zeroActions(v *VecEnv) *mat.Dense {
	return mat.NewDense(v.Len(), v.ActionDims(), nil)
}

// Slots whose episodes end are reset before the next Observations()
// call, which then holds the first observation of the next episode.
// The returned timestep still carries the ended episode's observation
// and end type.
func TestVecEnvAutoReset(t *testing.T) {
	envs := []environment.Environment{
		newCountingEnv(10, 2, timestep.Timeout),
		newCountingEnv(20, 2, timestep.Timeout),
	}
	v := newEvalVecEnv(t, envs)

	wantRows := []float64{11, 21}
	for i, want := range wantRows {
		if v.Observations().At(i, 0) != want {
			t.Errorf("first episode observation for slot %v \n\twant(%v) "+
				"\n\thave(%v)", i, want, v.Observations().At(i, 0))
		}
	}

	steps, err := v.Step(zeroActions(v))
	if err != nil {
		t.Fatal(err)
	}
	for i, step := range steps {
		if !step.Mid() {
			t.Errorf("slot %v expected a middle step \n\thave(%v)", i,
				step.StepType)
		}
	}

	steps, err = v.Step(zeroActions(v))
	if err != nil {
		t.Fatal(err)
	}
	for i, step := range steps {
		if !step.Last() {
			t.Errorf("slot %v expected a last step \n\thave(%v)", i,
				step.StepType)
		}
		if !step.TimeoutEnd() {
			t.Errorf("slot %v expected a timeout end \n\thave(%v)", i,
				step.End())
		}

		// The returned timestep belongs to the ended episode
		if step.Observation.AtVec(0) != wantRows[i] {
			t.Errorf("terminal observation for slot %v \n\twant(%v) "+
				"\n\thave(%v)", i, wantRows[i], step.Observation.AtVec(0))
		}
	}

	// Observations() already holds the second episodes' first
	// observations
	for i, want := range []float64{12, 22} {
		if v.Observations().At(i, 0) != want {
			t.Errorf("observation after auto-reset for slot %v \n\twant(%v) "+
				"\n\thave(%v)", i, want, v.Observations().At(i, 0))
		}
	}
}

func TestVecEnvTerminalEndPropagation(t *testing.T) {
	envs := []environment.Environment{
		newCountingEnv(0, 1, timestep.TerminalStateReached),
	}
	v := newEvalVecEnv(t, envs)

	steps, err := v.Step(zeroActions(v))
	if err != nil {
		t.Fatal(err)
	}
	if !steps[0].TerminalEnd() {
		t.Errorf("expected a terminal end \n\thave(%v)", steps[0].End())
	}
	if steps[0].TimeoutEnd() {
		t.Error("terminal end reported as a timeout")
	}
}

func TestVecEnvSeed(t *testing.T) {
	envs := []environment.Environment{
		newCountingEnv(0, 5, timestep.Timeout),
		newCountingEnv(0, 5, timestep.Timeout),
		newCountingEnv(0, 5, timestep.Timeout),
	}
	v := newEvalVecEnv(t, envs)

	v.Seed(100)
	for i, env := range envs {
		want := uint64(100 + i)
		if env.(*countingEnv).seed != want {
			t.Errorf("seed for slot %v \n\twant(%v) \n\thave(%v)", i, want,
				env.(*countingEnv).seed)
		}
	}
}

func TestVecEnvActionShape(t *testing.T) {
	envs := []environment.Environment{
		newCountingEnv(0, 5, timestep.Timeout),
		newCountingEnv(0, 5, timestep.Timeout),
	}
	v := newEvalVecEnv(t, envs)

	if _, err := v.Step(mat.NewDense(1, v.ActionDims(), nil)); err == nil {
		t.Error("expected error for an action batch with too few rows")
	}
	if _, err := v.Step(mat.NewDense(v.Len(), v.ActionDims()+1,
		nil)); err == nil {
		t.Error("expected error for actions with too many dimensions")
	}
}

// Training VecEnvs fold every raw observation into their normalizer;
// evaluation VecEnvs only read theirs
func TestVecEnvNormalizerUpdates(t *testing.T) {
	newEnvs := func() []environment.Environment {
		return []environment.Environment{
			newCountingEnv(0, 5, timestep.Timeout),
			newCountingEnv(0, 5, timestep.Timeout),
		}
	}

	trainNorm, err := NewNormalizer(2)
	if err != nil {
		t.Fatal(err)
	}
	train, err := New(newEnvs(), trainNorm, true)
	if err != nil {
		t.Fatal(err)
	}

	// Construction resets every slot, folding one observation per slot
	if trainNorm.Count() != 2 {
		t.Errorf("count after construction \n\twant(%v) \n\thave(%v)", 2,
			trainNorm.Count())
	}

	if _, err := train.Step(zeroActions(train)); err != nil {
		t.Fatal(err)
	}
	if trainNorm.Count() != 4 {
		t.Errorf("count after one step \n\twant(%v) \n\thave(%v)", 4,
			trainNorm.Count())
	}

	evalNorm, err := NewNormalizer(2)
	if err != nil {
		t.Fatal(err)
	}
	eval, err := New(newEnvs(), evalNorm, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eval.Step(zeroActions(eval)); err != nil {
		t.Fatal(err)
	}
	if evalNorm.Count() != 0 {
		t.Errorf("evaluation normalizer updated \n\twant(%v) \n\thave(%v)",
			0, evalNorm.Count())
	}
}
