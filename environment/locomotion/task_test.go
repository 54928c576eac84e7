package locomotion

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// stubWorld is a minimal World with settable state for exercising
// tasks and sensors without a physics simulator
type stubWorld struct {
	pos        *mat.VecDense
	orient     *mat.VecDense
	vel        *mat.VecDense
	torques    []float64
	footForces []float64
	illegal    bool
	action     *mat.VecDense
	goal       *mat.VecDense
	subgoals   []*mat.VecDense
	reached    []bool
}

func newStubWorld() *stubWorld {
	return &stubWorld{
		pos:        mat.NewVecDense(3, []float64{0, 0, 0.55}),
		orient:     mat.NewVecDense(4, []float64{0, 0, 0, 1}),
		vel:        mat.NewVecDense(3, nil),
		torques:    make([]float64, 4),
		footForces: make([]float64, NumFeet*ForceAxes),
		action:     mat.NewVecDense(4, nil),
		goal:       mat.NewVecDense(3, []float64{10, 0, 0.55}),
	}
}

func (s *stubWorld) Step(action *mat.VecDense) error {
	s.action = mat.VecDenseCopyOf(action)
	return nil
}

func (s *stubWorld) Reset() error {
	s.ResetSubgoals()
	return nil
}

func (s *stubWorld) Seed(uint64)                     {}
func (s *stubWorld) BasePosition() *mat.VecDense     { return s.pos }
func (s *stubWorld) BaseOrientation() *mat.VecDense  { return s.orient }
func (s *stubWorld) BaseVelocity() *mat.VecDense     { return s.vel }
func (s *stubWorld) MotorTorques() []float64         { return s.torques }
func (s *stubWorld) FootContactForces() []float64    { return s.footForces }
func (s *stubWorld) IllegalContact() bool            { return s.illegal }
func (s *stubWorld) LastAction() *mat.VecDense       { return s.action }
func (s *stubWorld) Goal() *mat.VecDense             { return s.goal }
func (s *stubWorld) Subgoals() []*mat.VecDense       { return s.subgoals }
func (s *stubWorld) SubgoalReached(i int) bool       { return s.reached[i] }
func (s *stubWorld) ReachSubgoal(i int)              { s.reached[i] = true }
func (s *stubWorld) TimeStep() float64               { return 0.01 }
func (s *stubWorld) ActionRepeat() int               { return 10 }
func (s *stubWorld) ActionDims() int                 { return 4 }

func (s *stubWorld) ResetSubgoals() {
	for i := range s.reached {
		s.reached[i] = false
	}
}

// TestGoalTaskRewardOnStub checks that a full reset-update-reward
// cycle runs cleanly on a stub world and produces a finite reward
func TestGoalTaskRewardOnStub(t *testing.T) {
	task, err := NewGoalTask(NewGoalTaskConfig())
	if err != nil {
		t.Fatal(err)
	}

	w := newStubWorld()
	task.Reset(w)

	w.pos = mat.NewVecDense(3, []float64{0.05, 0, 0.55})
	w.vel = mat.NewVecDense(3, []float64{0.05, 0, 0})
	w.torques = []float64{1, -1, 0.5, -0.5}
	task.Update(w)

	if task.Done(w) {
		t.Error("standing robot should not be done")
	}

	reward := task.Reward(w)
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		t.Errorf("reward is not finite: %v", reward)
	}
}

// TestGoalTaskForwardReward checks that the velocity shaping term is
// maximized exactly at the target velocity and strictly lower for
// both under- and overshoot
func TestGoalTaskForwardReward(t *testing.T) {
	// Zero every other reward term so differences isolate the
	// velocity shaping
	conf := NewGoalTaskConfig()
	conf.GoalCoeff = 0
	conf.EnergyWeight = 0
	conf.AliveReward = 0
	conf.Subgoals = false

	task, err := NewGoalTask(conf)
	if err != nil {
		t.Fatal(err)
	}

	// The shaping term must follow the base position delta. The stub's
	// instantaneous velocity stays zero throughout so that reading it
	// instead would score every speed as zero.
	w := newStubWorld()
	dt := w.TimeStep() * float64(w.ActionRepeat())
	rewardAt := func(speed float64) float64 {
		w.pos = mat.NewVecDense(3, []float64{0, 0, 0.55})
		task.Reset(w)
		w.pos = mat.NewVecDense(3, []float64{speed * dt, 0, 0.55})
		task.Update(w)
		return task.Reward(w)
	}

	delta := 0.05
	atTarget := rewardAt(conf.TargetVelocity)
	below := rewardAt(conf.TargetVelocity - delta)
	above := rewardAt(conf.TargetVelocity + delta)

	want := conf.ForwardCoeff * conf.TargetVelocity * conf.TargetVelocity
	if math.Abs(atTarget-want) > 1e-12 {
		t.Errorf("reward for moving at the target velocity \n\twant(%v) "+
			"\n\thave(%v)", want, atTarget)
	}

	if atTarget <= below {
		t.Errorf("reward at target velocity not above undershoot "+
			"\n\ttarget(%v) \n\tundershoot(%v)", atTarget, below)
	}
	if atTarget <= above {
		t.Errorf("reward at target velocity not above overshoot "+
			"\n\ttarget(%v) \n\tovershoot(%v)", atTarget, above)
	}
}

// TestGoalTaskSubgoalBonusOncePerEpisode checks that each subgoal pays
// out at most once per episode and pays again after a reset
func TestGoalTaskSubgoalBonusOncePerEpisode(t *testing.T) {
	conf := NewGoalTaskConfig()
	conf.GoalCoeff = 0
	conf.ForwardCoeff = 0
	conf.EnergyWeight = 0
	conf.AliveReward = 0

	task, err := NewGoalTask(conf)
	if err != nil {
		t.Fatal(err)
	}

	w := newStubWorld()
	w.subgoals = []*mat.VecDense{
		mat.NewVecDense(3, []float64{0.5, 0, 0.55}),
	}
	w.reached = []bool{false}

	task.Reset(w)
	task.Update(w)

	first := task.Reward(w)
	if first != SubgoalBonus {
		t.Errorf("first reward within subgoal radius \n\twant(%v) "+
			"\n\thave(%v)", SubgoalBonus, first)
	}

	// Still within radius: no second payout
	task.Update(w)
	if second := task.Reward(w); second != 0 {
		t.Errorf("repeated subgoal bonus \n\twant(0) \n\thave(%v)", second)
	}

	// A new episode pays again
	task.Reset(w)
	task.Update(w)
	if again := task.Reward(w); again != SubgoalBonus {
		t.Errorf("subgoal bonus after reset \n\twant(%v) \n\thave(%v)",
			SubgoalBonus, again)
	}
}

// TestGoalTaskSubgoalDistanceUsesHeight checks that subgoal distances
// are full three-dimensional distances: a subgoal within the radius in
// the ground plane but lifted out of range vertically pays nothing
func TestGoalTaskSubgoalDistanceUsesHeight(t *testing.T) {
	conf := NewGoalTaskConfig()
	conf.GoalCoeff = 0
	conf.ForwardCoeff = 0
	conf.EnergyWeight = 0
	conf.AliveReward = 0

	task, err := NewGoalTask(conf)
	if err != nil {
		t.Fatal(err)
	}

	// Planar distance 0.8, full distance sqrt(0.8^2 + 0.8^2) > 1
	w := newStubWorld()
	w.subgoals = []*mat.VecDense{
		mat.NewVecDense(3, []float64{0.8, 0, 0.55 + 0.8}),
	}
	w.reached = []bool{false}

	task.Reset(w)
	task.Update(w)
	if bonus := task.Reward(w); bonus != 0 {
		t.Errorf("subgoal out of three-dimensional range paid out "+
			"\n\twant(0) \n\thave(%v)", bonus)
	}
}

// TestGoalTaskDone checks each termination predicate in isolation
func TestGoalTaskDone(t *testing.T) {
	conf := NewGoalTaskConfig()
	conf.CheckContact = true

	task, err := NewGoalTask(conf)
	if err != nil {
		t.Fatal(err)
	}

	w := newStubWorld()
	task.Reset(w)
	if task.Done(w) {
		t.Error("nominal state should not be done")
	}

	// Fallen below the height threshold
	w = newStubWorld()
	w.pos = mat.NewVecDense(3, []float64{0, 0, conf.FallThreshold / 2})
	if !task.Done(w) {
		t.Error("fallen robot should be done")
	}

	// Tilted past the upright threshold: pitch 90 degrees about y
	w = newStubWorld()
	half := math.Sqrt(2) / 2
	w.orient = mat.NewVecDense(4, []float64{0, half, 0, half})
	if !task.Done(w) {
		t.Error("tilted robot should be done")
	}

	// Illegal contact while stuck
	w = newStubWorld()
	w.illegal = true
	w.vel = mat.NewVecDense(3, []float64{StuckSpeed / 2, 0, 0})
	if !task.Done(w) {
		t.Error("stuck robot in illegal contact should be done")
	}

	// Illegal contact while still moving is not terminal
	w.vel = mat.NewVecDense(3, []float64{10 * StuckSpeed, 0, 0})
	if task.Done(w) {
		t.Error("moving robot in illegal contact should not be done")
	}
}
