// Package locomotion implements goal-directed legged locomotion
// environments: the simulator contract, the goal-reaching task which
// computes rewards and episode termination, and the sensors which
// produce fixed-shape observation vectors from simulator state.
package locomotion

import (
	"gonum.org/v1/gonum/mat"
)

// Feet per robot and force axes per foot
const (
	NumFeet   int = 4
	ForceAxes int = 3
)

// World implements a physics simulation of a legged robot in a world
// containing a goal position and, optionally, a number of subgoal
// positions. A World owns all per-episode simulator state: robot pose,
// contacts, motor torques, the last applied action, and the
// achieved-flags of its subgoals. Implementations advance the physics
// by ActionRepeat() sub-steps of TimeStep() seconds per call to Step().
//
// Positions, orientations, and velocities are expressed in a
// right-handed frame where the first two components span the ground
// plane and the third is height.
type World interface {
	// Step applies action to the robot's motors and advances the
	// simulation by one control step
	Step(action *mat.VecDense) error

	// Reset returns the robot to its initial pose and clears all
	// per-episode state, including subgoal achieved-flags
	Reset() error

	// Seed reseeds the randomness used for starting states
	Seed(uint64)

	// BasePosition returns the robot base position (x, y, height)
	BasePosition() *mat.VecDense

	// BaseOrientation returns the robot base orientation as a
	// quaternion (x, y, z, w)
	BaseOrientation() *mat.VecDense

	// BaseVelocity returns the linear velocity of the robot base
	BaseVelocity() *mat.VecDense

	// MotorTorques returns the torque most recently applied by each
	// motor
	MotorTorques() []float64

	// FootContactForces returns the contact force on each foot, laid
	// out foot-major as NumFeet x ForceAxes values
	FootContactForces() []float64

	// IllegalContact returns whether a body part other than a foot is
	// currently in contact with the ground
	IllegalContact() bool

	// LastAction returns the action applied on the most recent Step
	LastAction() *mat.VecDense

	// Goal returns the goal position the robot should walk to
	Goal() *mat.VecDense

	// Subgoals returns the subgoal positions in the world
	Subgoals() []*mat.VecDense

	// SubgoalReached returns whether subgoal i has been reached this
	// episode
	SubgoalReached(i int) bool

	// ReachSubgoal marks subgoal i as reached for the rest of the
	// episode
	ReachSubgoal(i int)

	// ResetSubgoals clears the achieved-flag of every subgoal
	ResetSubgoals()

	// TimeStep returns the simulation time step in seconds
	TimeStep() float64

	// ActionRepeat returns the number of simulation sub-steps taken
	// per control step
	ActionRepeat() int

	// ActionDims returns the number of action dimensions the robot's
	// motors accept
	ActionDims() int
}
