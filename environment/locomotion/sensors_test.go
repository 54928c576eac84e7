package locomotion

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// TestSensorShapes checks that every sensor produces exactly its
// declared number of values
func TestSensorShapes(t *testing.T) {
	w := newStubWorld()

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

	for _, sensor := range sensors {
		sensor.OnReset(w)

		obs, err := sensor.Observation(w)
		if err != nil {
			t.Errorf("%v: %v", sensor.Name(), err)
			continue
		}
		if len(obs) != sensor.Shape() {
			t.Errorf("%v: observation shape \n\twant(%v) \n\thave(%v)",
				sensor.Name(), sensor.Shape(), len(obs))
		}
	}
}

// TestFootForceSensorShape checks that the force sensor declares 4
// feet x 3 axes and rejects worlds producing anything else
func TestFootForceSensorShape(t *testing.T) {
	sensor := NewFootForceSensor()
	if sensor.Shape() != 12 {
		t.Fatalf("declared shape \n\twant(12) \n\thave(%v)", sensor.Shape())
	}

	w := newStubWorld()
	sensor.OnReset(w)

	obs, err := sensor.Observation(w)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 12 {
		t.Errorf("produced shape \n\twant(12) \n\thave(%v)", len(obs))
	}

	// A world producing a mismatched layout is an error, not a reshape
	w.footForces = make([]float64, 24)
	if _, err := sensor.Observation(w); err == nil {
		t.Error("expected error for mismatched contact force shape")
	}
}

// TestSensorPullBeforeReset checks that pulling any sensor before
// OnReset is an error
func TestSensorPullBeforeReset(t *testing.T) {
	w := newStubWorld()

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

	for _, sensor := range sensors {
		if _, err := sensor.Observation(w); err == nil {
			t.Errorf("%v: expected error when pulled before OnReset",
				sensor.Name())
		}
	}
}

// TestLastActionSensorEcho checks that the sensor echoes the applied
// action and rejects mismatched action dimensions
func TestLastActionSensorEcho(t *testing.T) {
	w := newStubWorld()
	sensor, err := NewLastActionSensor(w.ActionDims())
	if err != nil {
		t.Fatal(err)
	}
	sensor.OnReset(w)

	action := mat.NewVecDense(4, []float64{0.1, -0.2, 0.3, -0.4})
	if err := w.Step(action); err != nil {
		t.Fatal(err)
	}

	obs, err := sensor.Observation(w)
	if err != nil {
		t.Fatal(err)
	}
	for i := range obs {
		if obs[i] != action.AtVec(i) {
			t.Errorf("echoed action component %v \n\twant(%v) \n\thave(%v)",
				i, action.AtVec(i), obs[i])
		}
	}

	w.action = mat.NewVecDense(2, nil)
	if _, err := sensor.Observation(w); err == nil {
		t.Error("expected error for mismatched action shape")
	}
}
