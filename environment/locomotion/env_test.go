package locomotion

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func newTestEnv(t *testing.T, w World, cutoff int) *Env {
	t.Helper()

	task, err := NewGoalTask(NewGoalTaskConfig())
	if err != nil {
		t.Fatal(err)
	}

	lastAction, err := NewLastActionSensor(w.ActionDims())
	if err != nil {
		t.Fatal(err)
	}
	sensors := []Sensor{
		lastAction,
		NewGoalSensor(),
		NewBaseStateSensor(),
		NewFootForceSensor(),
	}

	env, _, err := New(w, task, sensors, cutoff, 0.99)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

// TestEnvObservationShape checks that observations concatenate every
// sensor's output
func TestEnvObservationShape(t *testing.T) {
	w := newStubWorld()
	env := newTestEnv(t, w, 10)

	wantDims := w.ActionDims() + 6 + 7 + NumFeet*ForceAxes
	step, err := env.Reset()
	if err != nil {
		t.Fatal(err)
	}

	if step.Observation.Len() != wantDims {
		t.Errorf("observation shape \n\twant(%v) \n\thave(%v)", wantDims,
			step.Observation.Len())
	}
	if !step.First() {
		t.Errorf("reset step type \n\twant(First) \n\thave(%v)",
			step.StepType)
	}
	if env.ObservationSpec().Shape.Len() != wantDims {
		t.Errorf("observation spec shape \n\twant(%v) \n\thave(%v)",
			wantDims, env.ObservationSpec().Shape.Len())
	}
}

// TestEnvTimeoutEnd checks that the step limit cuts episodes off with
// a Timeout end, not a terminal one
func TestEnvTimeoutEnd(t *testing.T) {
	w := newStubWorld()
	cutoff := 3
	env := newTestEnv(t, w, cutoff)

	action := mat.NewVecDense(w.ActionDims(), nil)
	for i := 1; i < cutoff; i++ {
		step, last, err := env.Step(action)
		if err != nil {
			t.Fatal(err)
		}
		if last || !step.Mid() {
			t.Fatalf("step %v should be Mid \n\thave(%v)", i, step.StepType)
		}
	}

	step, last, err := env.Step(action)
	if err != nil {
		t.Fatal(err)
	}
	if !last || !step.Last() {
		t.Fatal("episode should end at the step limit")
	}
	if !step.TimeoutEnd() {
		t.Errorf("end type \n\twant(Timeout) \n\thave(%v)", step.End())
	}
	if step.TerminalEnd() {
		t.Error("step limit cutoff must not be a terminal end")
	}
}

// TestEnvTerminalEnd checks that task termination ends the episode
// with a terminal end type
func TestEnvTerminalEnd(t *testing.T) {
	w := newStubWorld()
	env := newTestEnv(t, w, 100)

	// Knock the robot below the fall threshold
	w.pos = mat.NewVecDense(3, []float64{0, 0, 0.1})

	step, last, err := env.Step(mat.NewVecDense(w.ActionDims(), nil))
	if err != nil {
		t.Fatal(err)
	}
	if !last || !step.Last() {
		t.Fatal("episode should end when the task is done")
	}
	if !step.TerminalEnd() {
		t.Errorf("end type \n\twant(TerminalStateReached) \n\thave(%v)",
			step.End())
	}
}
