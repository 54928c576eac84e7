package locomotion

import (
	"fmt"
)

// Sensor produces a fixed-shape observation vector derived from
// simulator state. The output shape is declared at construction and
// every Observation call returns exactly Shape() values. OnReset must
// be called once per episode before the first Observation pull;
// pulling before OnReset is an error. Observation never mutates world
// or task state.
type Sensor interface {
	// Name returns a human-readable identifier for the sensor
	Name() string

	// Shape returns the number of values the sensor produces
	Shape() int

	// OnReset prepares the sensor for a new episode on w
	OnReset(w World)

	// Observation reads the sensor's values from w
	Observation(w World) ([]float64, error)
}

// LastActionSensor echoes the action applied on the most recent
// control step
type LastActionSensor struct {
	dims  int
	bound bool
}

// NewLastActionSensor returns a Sensor echoing actions of dims
// dimensions
func NewLastActionSensor(dims int) (*LastActionSensor, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("newlastactionsensor: action dimensions "+
			"must be positive \n\thave(%v)", dims)
	}
	return &LastActionSensor{dims: dims}, nil
}

// Name returns the name of the sensor
func (l *LastActionSensor) Name() string { return "LastAction" }

// Shape returns the number of values the sensor produces
func (l *LastActionSensor) Shape() int { return l.dims }

// OnReset prepares the sensor for a new episode on w
func (l *LastActionSensor) OnReset(w World) {
	l.bound = true
}

// Observation returns the last action applied to w
func (l *LastActionSensor) Observation(w World) ([]float64, error) {
	if !l.bound {
		return nil, fmt.Errorf("observation: %v sensor pulled before "+
			"OnReset", l.Name())
	}

	action := w.LastAction()
	if action.Len() != l.dims {
		return nil, fmt.Errorf("observation: illegal action shape "+
			"\n\twant(%v) \n\thave(%v)", l.dims, action.Len())
	}

	obs := make([]float64, l.dims)
	for i := 0; i < l.dims; i++ {
		obs[i] = action.AtVec(i)
	}
	return obs, nil
}

// GoalSensor produces the goal position concatenated with the current
// base position
type GoalSensor struct {
	bound bool
}

// NewGoalSensor returns a new GoalSensor
func NewGoalSensor() *GoalSensor {
	return &GoalSensor{}
}

// Name returns the name of the sensor
func (g *GoalSensor) Name() string { return "GoalPos" }

// Shape returns the number of values the sensor produces
func (g *GoalSensor) Shape() int { return 6 }

// OnReset prepares the sensor for a new episode on w
func (g *GoalSensor) OnReset(w World) {
	g.bound = true
}

// Observation returns the goal position followed by the base position
func (g *GoalSensor) Observation(w World) ([]float64, error) {
	if !g.bound {
		return nil, fmt.Errorf("observation: %v sensor pulled before "+
			"OnReset", g.Name())
	}

	goal := w.Goal()
	pos := w.BasePosition()

	obs := make([]float64, 0, g.Shape())
	for i := 0; i < 3; i++ {
		obs = append(obs, goal.AtVec(i))
	}
	for i := 0; i < 3; i++ {
		obs = append(obs, pos.AtVec(i))
	}
	return obs, nil
}

// BaseStateSensor produces the base orientation quaternion followed
// by the base linear velocity
type BaseStateSensor struct {
	bound bool
}

// NewBaseStateSensor returns a new BaseStateSensor
func NewBaseStateSensor() *BaseStateSensor {
	return &BaseStateSensor{}
}

// Name returns the name of the sensor
func (b *BaseStateSensor) Name() string { return "BaseState" }

// Shape returns the number of values the sensor produces
func (b *BaseStateSensor) Shape() int { return 7 }

// OnReset prepares the sensor for a new episode on w
func (b *BaseStateSensor) OnReset(w World) {
	b.bound = true
}

// Observation returns the base orientation and linear velocity
func (b *BaseStateSensor) Observation(w World) ([]float64, error) {
	if !b.bound {
		return nil, fmt.Errorf("observation: %v sensor pulled before "+
			"OnReset", b.Name())
	}

	orient := w.BaseOrientation()
	vel := w.BaseVelocity()

	obs := make([]float64, 0, b.Shape())
	for i := 0; i < orient.Len(); i++ {
		obs = append(obs, orient.AtVec(i))
	}
	for i := 0; i < vel.Len(); i++ {
		obs = append(obs, vel.AtVec(i))
	}
	return obs, nil
}

// FootForceSensor produces the contact force on each foot, laid out
// foot-major as NumFeet x ForceAxes values
type FootForceSensor struct {
	bound bool
}

// NewFootForceSensor returns a new FootForceSensor
func NewFootForceSensor() *FootForceSensor {
	return &FootForceSensor{}
}

// Name returns the name of the sensor
func (f *FootForceSensor) Name() string { return "FootForce" }

// Shape returns the number of values the sensor produces
func (f *FootForceSensor) Shape() int { return NumFeet * ForceAxes }

// OnReset prepares the sensor for a new episode on w
func (f *FootForceSensor) OnReset(w World) {
	f.bound = true
}

// Observation returns the per-foot contact forces. The world must
// produce exactly the declared shape; a mismatch is an error, never a
// silent reshape.
func (f *FootForceSensor) Observation(w World) ([]float64, error) {
	if !f.bound {
		return nil, fmt.Errorf("observation: %v sensor pulled before "+
			"OnReset", f.Name())
	}

	forces := w.FootContactForces()
	if len(forces) != f.Shape() {
		return nil, fmt.Errorf("observation: illegal contact force shape "+
			"\n\twant(%v) \n\thave(%v)", f.Shape(), len(forces))
	}

	obs := make([]float64, f.Shape())
	copy(obs, forces)
	return obs, nil
}
