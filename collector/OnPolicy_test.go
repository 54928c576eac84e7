package collector

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goloco/buffer/rollout"
	"github.com/samuelfneumann/goloco/environment"
	"github.com/samuelfneumann/goloco/environment/vecenv"
	"github.com/samuelfneumann/goloco/timestep"
)

const (
	stubObsDims    int = 2
	stubActionDims int = 2
)

// flatEnv is a minimal Environment with constant observations, zero
// rewards, and episodes that time out after a fixed horizon
type flatEnv struct {
	horizon int
	stepNum int
	current timestep.TimeStep
}

func (f *flatEnv) observation() *mat.VecDense {
	return mat.NewVecDense(stubObsDims, nil)
}

func (f *flatEnv) Reset() (timestep.TimeStep, error) {
	f.stepNum = 0
	f.current = timestep.New(timestep.First, 0, 1, f.observation(), 0)
	return f.current, nil
}

func (f *flatEnv) Step(action *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	f.stepNum++
	step := timestep.New(timestep.Mid, 0, 1, f.observation(), f.stepNum)
	if f.stepNum >= f.horizon {
		step.StepType = timestep.Last
		step.SetEnd(timestep.Timeout)
	}
	f.current = step
	return step, step.Last(), nil
}

func (f *flatEnv) CurrentTimeStep() timestep.TimeStep { return f.current }
func (f *flatEnv) Seed(uint64)                        {}

func (f *flatEnv) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(stubObsDims, nil)
	return environment.NewSpec(shape, environment.Observation, shape, shape,
		environment.Continuous)
}

func (f *flatEnv) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(stubActionDims, nil)
	return environment.NewSpec(shape, environment.Action, shape, shape,
		environment.Continuous)
}

func (f *flatEnv) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	return environment.NewSpec(shape, environment.Discount, shape, shape,
		environment.Continuous)
}

// zeroSampler deterministically selects the zero action
type zeroSampler struct{}

func (z zeroSampler) SelectActions(obs *mat.Dense) (*mat.Dense, []float64,
	error) {
	rows, _ := obs.Dims()
	return mat.NewDense(rows, stubActionDims, nil), make([]float64, rows), nil
}

func (z zeroSampler) MeanActions(obs *mat.Dense) (*mat.Dense, error) {
	rows, _ := obs.Dims()
	return mat.NewDense(rows, stubActionDims, nil), nil
}

// constantValuer estimates the same value for every state
type constantValuer struct {
	value float64
}

func (c constantValuer) Values(obs *mat.Dense) ([]float64, error) {
	rows, _ := obs.Dims()
	values := make([]float64, rows)
	for i := range values {
		values[i] = c.value
	}
	return values, nil
}

func (c constantValuer) Value(obs []float64) (float64, error) {
	return c.value, nil
}

// newFlatCollector returns an OnPolicy collector over slots copies of
// a flatEnv with the given horizon, filling a buffer of the given
// segment length with gamma = lambda = 1
func newFlatCollector(t *testing.T, slots, horizon, segment int,
	timeLimitFilter bool, value float64) *OnPolicy {
	t.Helper()

	envs := make([]environment.Environment, slots)
	for i := range envs {
		envs[i] = &flatEnv{horizon: horizon}
	}

	norm, err := vecenv.NewNormalizer(stubObsDims)
	if err != nil {
		t.Fatal(err)
	}
	vec, err := vecenv.New(envs, norm, false)
	if err != nil {
		t.Fatal(err)
	}

	buffer, err := rollout.New(stubObsDims, stubActionDims, slots, segment,
		1, 1, timeLimitFilter)
	if err != nil {
		t.Fatal(err)
	}

	c, err := New(vec, buffer, zeroSampler{}, constantValuer{value})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// With one-step episodes, collecting a segment of T steps from N slots
// must produce exactly N x T transitions, every one of them marked as
// an episode end
func TestCollectSegmentEntryCount(t *testing.T) {
	slots, segment := 3, 4
	c := newFlatCollector(t, slots, 1, segment, false, 0)

	if err := c.CollectSegment(); err != nil {
		t.Fatal(err)
	}
	if !c.Buffer().Full() {
		t.Error("buffer not full after collecting a segment")
	}

	batch, err := c.Buffer().Get()
	if err != nil {
		t.Fatal(err)
	}

	want := slots * segment
	if len(batch.Adv) != want {
		t.Errorf("transition count \n\twant(%v) \n\thave(%v)", want,
			len(batch.Adv))
	}
	if len(batch.Obs) != want*stubObsDims {
		t.Errorf("observation count \n\twant(%v) \n\thave(%v)",
			want*stubObsDims, len(batch.Obs))
	}
	if len(batch.Act) != want*stubActionDims {
		t.Errorf("action count \n\twant(%v) \n\thave(%v)",
			want*stubActionDims, len(batch.Act))
	}

	for i, end := range batch.Ends {
		if !end {
			t.Errorf("transition %v of a one-step episode not marked as an "+
				"end", i)
		}
	}
}

// Episodes longer than the segment are cut at the boundary: no
// transition is an episode end, but every path is still finished so
// the segment is consumable
func TestCollectSegmentCutPaths(t *testing.T) {
	c := newFlatCollector(t, 2, 10, 3, false, 0)

	if err := c.CollectSegment(); err != nil {
		t.Fatal(err)
	}

	batch, err := c.Buffer().Get()
	if err != nil {
		t.Fatal(err)
	}

	for i, end := range batch.Ends {
		if end {
			t.Errorf("transition %v marked as an end in a cut path", i)
		}
	}
}

// With zero rewards, gamma = lambda = 1, and a constant value
// estimate, the advantage of a timed-out one-step episode exposes
// which bootstrap value finished the path: the value of the final
// state when the time-limit filter is on, zero when it is off
func TestCollectSegmentTimeoutBootstrap(t *testing.T) {
	value := 3.0

	filtered := newFlatCollector(t, 1, 1, 2, true, value)
	if err := filtered.CollectSegment(); err != nil {
		t.Fatal(err)
	}
	batch, err := filtered.Buffer().Get()
	if err != nil {
		t.Fatal(err)
	}
	for i := range batch.Adv {
		if math.Abs(batch.Adv[i]) > 1e-12 {
			t.Errorf("filtered advantage %v \n\twant(%v) \n\thave(%v)", i,
				0.0, batch.Adv[i])
		}
		if math.Abs(batch.Ret[i]-value) > 1e-12 {
			t.Errorf("filtered return %v \n\twant(%v) \n\thave(%v)", i,
				value, batch.Ret[i])
		}
	}

	unfiltered := newFlatCollector(t, 1, 1, 2, false, value)
	if err := unfiltered.CollectSegment(); err != nil {
		t.Fatal(err)
	}
	batch, err = unfiltered.Buffer().Get()
	if err != nil {
		t.Fatal(err)
	}
	for i := range batch.Adv {
		if math.Abs(batch.Adv[i]+value) > 1e-12 {
			t.Errorf("unfiltered advantage %v \n\twant(%v) \n\thave(%v)", i,
				-value, batch.Adv[i])
		}
		if math.Abs(batch.Ret[i]) > 1e-12 {
			t.Errorf("unfiltered return %v \n\twant(%v) \n\thave(%v)", i,
				0.0, batch.Ret[i])
		}
	}
}

func TestNewSlotMismatch(t *testing.T) {
	envs := []environment.Environment{
		&flatEnv{horizon: 1},
		&flatEnv{horizon: 1},
	}
	norm, err := vecenv.NewNormalizer(stubObsDims)
	if err != nil {
		t.Fatal(err)
	}
	vec, err := vecenv.New(envs, norm, false)
	if err != nil {
		t.Fatal(err)
	}

	buffer, err := rollout.New(stubObsDims, stubActionDims, 3, 4, 1, 1,
		false)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := New(vec, buffer, zeroSampler{},
		constantValuer{}); err == nil {
		t.Error("expected error for mismatched slot counts")
	}
}

func TestEvalEnvCount(t *testing.T) {
	cases := []struct{ requested, want int }{
		{0, MinEvalEnvs},
		{1, MinEvalEnvs},
		{2, 2},
		{4, 4},
	}

	for _, test := range cases {
		if have := EvalEnvCount(test.requested); have != test.want {
			t.Errorf("evaluation environment count for request %v "+
				"\n\twant(%v) \n\thave(%v)", test.requested, test.want, have)
		}
	}
}
