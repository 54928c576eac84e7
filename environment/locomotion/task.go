package locomotion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// SubgoalRadius is the distance within which a subgoal counts as
	// reached
	SubgoalRadius float64 = 1.0

	// SubgoalBonus is the one-time reward for reaching a subgoal
	SubgoalBonus float64 = 5.0

	// UprightThreshold is the lowest legal value of the body-frame up
	// axis projected onto the world up axis. Below it, the robot has
	// rolled or pitched too far and the episode ends.
	UprightThreshold float64 = 0.6

	// ZConstrainUpper is the greatest legal base height when height
	// constraining is enabled
	ZConstrainUpper float64 = 0.8

	// StuckSpeed is the horizontal speed below which an illegal
	// contact counts as the robot being stuck
	StuckSpeed float64 = 0.05
)

// GoalTaskConfig describes a configuration of a GoalTask. All fields
// are fixed at task construction and never mutated during an episode.
type GoalTaskConfig struct {
	// GoalCoeff weights the per-second progress toward the goal
	GoalCoeff float64

	// ForwardCoeff weights the forward-velocity shaping term
	ForwardCoeff float64

	// TargetVelocity is the horizontal speed at which the forward
	// shaping term is maximized
	TargetVelocity float64

	// ZPenalty weights the squared vertical speed penalty inside the
	// forward shaping term
	ZPenalty float64

	// EnergyWeight weights the squared motor torque penalty. It
	// should be non-positive.
	EnergyWeight float64

	// OrientationPenalty weights the squared deviation of the base
	// orientation from InitOrientation
	OrientationPenalty float64

	// InitOrientation is the reference orientation quaternion
	// (x, y, z, w). If nil, the identity orientation is used.
	InitOrientation []float64

	// AliveReward is a constant bonus added on every non-terminal step
	AliveReward float64

	// FallReward is added once when the episode terminates. It should
	// be non-positive.
	FallReward float64

	// FallThreshold is the base height below which the robot has
	// fallen
	FallThreshold float64

	// ZConstrain also terminates the episode when the base height
	// exceeds ZConstrainUpper
	ZConstrain bool

	// CheckContact terminates the episode when an illegal contact
	// coincides with near-zero horizontal speed
	CheckContact bool

	// Subgoals enables the one-time subgoal bonuses
	Subgoals bool
}

// NewGoalTaskConfig returns a GoalTaskConfig with default coefficient
// values
func NewGoalTaskConfig() GoalTaskConfig {
	return GoalTaskConfig{
		GoalCoeff:          10.0,
		ForwardCoeff:       1.0,
		TargetVelocity:     0.15,
		ZPenalty:           1.0,
		EnergyWeight:       -0.005,
		OrientationPenalty: 0.0,
		InitOrientation:    []float64{0.0, 0.0, 0.0, 1.0},
		AliveReward:        0.1,
		FallReward:         0.0,
		FallThreshold:      0.3,
		ZConstrain:         false,
		CheckContact:       false,
		Subgoals:           true,
	}
}

// Validate returns an error describing any illegal configuration
// values
func (c GoalTaskConfig) Validate() error {
	if c.TargetVelocity <= 0 {
		return fmt.Errorf("target velocity must be positive \n\thave(%v)",
			c.TargetVelocity)
	}

	if c.EnergyWeight > 0 {
		return fmt.Errorf("energy weight must be non-positive \n\thave(%v)",
			c.EnergyWeight)
	}

	if c.FallReward > 0 {
		return fmt.Errorf("fall reward must be non-positive \n\thave(%v)",
			c.FallReward)
	}

	if c.FallThreshold <= 0 {
		return fmt.Errorf("fall threshold must be positive \n\thave(%v)",
			c.FallThreshold)
	}

	if c.ZConstrain && c.FallThreshold >= ZConstrainUpper {
		return fmt.Errorf("fall threshold must be below %v when height "+
			"constraining \n\thave(%v)", ZConstrainUpper, c.FallThreshold)
	}

	if c.InitOrientation != nil && len(c.InitOrientation) != 4 {
		return fmt.Errorf("reference orientation must be a quaternion "+
			"\n\twant(4 components) \n\thave(%v)", len(c.InitOrientation))
	}

	return nil
}

// GoalTask computes the reward signal and episode termination for
// goal-directed locomotion. The task is ACTIVE after Reset and becomes
// DONE when the robot falls, tilts past the upright threshold, or
// becomes stuck against an obstacle; DONE is terminal for the episode.
//
// A GoalTask holds no reference to any World. Every method takes the
// World it should read as an explicit argument, so the task can be
// exercised against a stub simulator.
type GoalTask struct {
	config GoalTaskConfig

	lastBasePos    *mat.VecDense
	currentBasePos *mat.VecDense
}

// NewGoalTask returns a new GoalTask
func NewGoalTask(config GoalTaskConfig) (*GoalTask, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newgoaltask: %v", err)
	}

	if config.InitOrientation == nil {
		config.InitOrientation = []float64{0.0, 0.0, 0.0, 1.0}
	}

	return &GoalTask{config: config}, nil
}

// Config returns the configuration of the task
func (g *GoalTask) Config() GoalTaskConfig {
	return g.config
}

// Reset prepares the task for a new episode on w. The current base
// position becomes the baseline for progress rewards, and the
// per-episode subgoal bookkeeping is cleared. Episode state and
// subgoal state always reset together.
func (g *GoalTask) Reset(w World) {
	pos := w.BasePosition()
	g.lastBasePos = mat.VecDenseCopyOf(pos)
	g.currentBasePos = mat.VecDenseCopyOf(pos)
	w.ResetSubgoals()
}

// Update records the robot's movement over the last control step.
// Update must be called exactly once per control step, before Reward
// or Done are evaluated for that step.
func (g *GoalTask) Update(w World) {
	g.lastBasePos = g.currentBasePos
	g.currentBasePos = mat.VecDenseCopyOf(w.BasePosition())
}

// Done returns whether the episode should terminate. Done is a pure
// predicate over the current simulator state.
func (g *GoalTask) Done(w World) bool {
	pos := w.BasePosition()
	height := pos.AtVec(2)

	if height < g.config.FallThreshold {
		return true
	}
	if g.config.ZConstrain && height > ZConstrainUpper {
		return true
	}

	// Projection of the body-frame up axis onto the world up axis,
	// the bottom-right rotation matrix entry of the quaternion
	orient := w.BaseOrientation()
	qx, qy := orient.AtVec(0), orient.AtVec(1)
	upright := 1.0 - 2.0*(qx*qx+qy*qy)
	if upright < UprightThreshold {
		return true
	}

	if g.config.CheckContact && w.IllegalContact() {
		vel := w.BaseVelocity()
		speed := math.Hypot(vel.AtVec(0), vel.AtVec(1))
		if speed <= StuckSpeed {
			return true
		}
	}

	return false
}

// Reward returns the reward for the last control step. The reward
// composes goal progress, forward-velocity shaping, an energy penalty,
// an orientation penalty, a constant alive bonus, one-time subgoal
// bonuses, and the terminal fall reward when the episode ends on this
// step. Per-second quantities divide position deltas by the elapsed
// real time of one control step.
func (g *GoalTask) Reward(w World) float64 {
	dt := w.TimeStep() * float64(w.ActionRepeat())

	goal := w.Goal()
	lastDist := dist(g.lastBasePos, goal)
	currentDist := dist(g.currentBasePos, goal)
	reward := g.config.GoalCoeff * (lastDist - currentDist) / dt

	// Speeds come from the recorded position delta, not the simulator's
	// instantaneous velocity
	speed := math.Hypot(g.currentBasePos.AtVec(0)-g.lastBasePos.AtVec(0),
		g.currentBasePos.AtVec(1)-g.lastBasePos.AtVec(1)) / dt
	zSpeed := (g.currentBasePos.AtVec(2) - g.lastBasePos.AtVec(2)) / dt
	reward += g.forwardReward(speed, zSpeed)

	torques := w.MotorTorques()
	reward += g.config.EnergyWeight * floats.Dot(torques, torques) *
		w.TimeStep()

	orient := w.BaseOrientation()
	var orientErr float64
	for i := 0; i < orient.Len(); i++ {
		diff := g.config.InitOrientation[i] - orient.AtVec(i)
		orientErr += diff * diff
	}
	reward -= g.config.OrientationPenalty * orientErr

	reward += g.config.AliveReward

	if g.config.Subgoals {
		reward += g.subgoalBonus(w)
	}

	if g.Done(w) {
		reward += g.config.FallReward
	}

	return reward
}

// forwardReward computes the velocity shaping term, a quadratic
// maximized exactly at the target velocity and strictly decreasing as
// the speed moves away from it in either direction
func (g *GoalTask) forwardReward(speed, zSpeed float64) float64 {
	target := g.config.TargetVelocity

	return g.config.ForwardCoeff * (target*target -
		(speed-target)*(speed-target) - g.config.ZPenalty*zSpeed*zSpeed)
}

// subgoalBonus awards SubgoalBonus for each subgoal the robot is
// within SubgoalRadius of for the first time this episode. Once
// reached, a subgoal stays reached until the next episode.
func (g *GoalTask) subgoalBonus(w World) float64 {
	var bonus float64
	for i, subgoal := range w.Subgoals() {
		if w.SubgoalReached(i) {
			continue
		}
		if dist(g.currentBasePos, subgoal) <= SubgoalRadius {
			w.ReachSubgoal(i)
			bonus += SubgoalBonus
		}
	}
	return bonus
}

// dist returns the Euclidean distance between two positions, height
// included
func dist(a, b mat.Vector) float64 {
	var sum float64
	for i := 0; i < a.Len(); i++ {
		d := a.AtVec(i) - b.AtVec(i)
		sum += d * d
	}
	return math.Sqrt(sum)
}
