// Package planar implements a two-dimensional legged robot simulated
// with Box2D. The robot satisfies the locomotion.World contract by
// embedding the planar world into three dimensions: the first
// component spans the direction of travel, the second (lateral)
// component is always zero, and the third is height. The planar pitch
// angle maps to a quaternion rotation about the lateral axis.
package planar

import (
	"fmt"
	"image/color"
	"math"

	"github.com/ByteArena/box2d"
	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/goloco/environment"
	"github.com/samuelfneumann/goloco/environment/locomotion"
	"github.com/samuelfneumann/goloco/utils/floatutils"
)

const (
	XGravity float64 = 0.0
	YGravity float64 = -10.0

	// SimTimeStep is the simulation time step in seconds and
	// ActionRepeat the number of sub-steps per control step
	SimTimeStep  float64 = 0.01
	ActionRepeat int     = 10

	VelocityIterations int = 8
	PositionIterations int = 3

	// Chassis geometry (half extents) and mass properties
	ChassisHalfW   float64 = 0.5
	ChassisHalfH   float64 = 0.125
	ChassisDensity float64 = 2.0

	// Leg geometry
	LegHalfW   float64 = 0.05
	LegHalfH   float64 = 0.2
	LegDensity float64 = 1.0
	LegAnchorX float64 = 0.35

	// Motor limits
	MaxMotorSpeed  float64 = 3.0
	MaxMotorTorque float64 = 80.0
	LegLowerAngle  float64 = -0.8
	LegUpperAngle  float64 = 0.8

	// GroundHalfLength is the half length of the ground strip
	GroundHalfLength float64 = 200.0

	// Starting pose bounds
	MinStartX      float64 = -0.1
	MaxStartX      float64 = 0.1
	MinStartHeight float64 = 0.5
	MaxStartHeight float64 = 0.6

	// Rendering
	ViewportW float64 = 600
	ViewportH float64 = 400
	Scale     float64 = 60.0
)

// Quadruped implements locomotion.World as a planar four-legged robot
// walking along a flat ground strip toward a goal position. Legs are
// attached to the chassis with motorized revolute joints; the foot of
// each leg is its free end.
type Quadruped struct {
	world  box2d.B2World
	ground *box2d.B2Body

	chassis *box2d.B2Body
	legs    []*box2d.B2Body
	joints  []*box2d.B2RevoluteJoint

	footImpulses    []float64 // foot-major, locomotion.ForceAxes per foot
	chassisContacts contactCounter

	lastAction *mat.VecDense
	torques    []float64

	goal           *mat.VecDense
	subgoals       []*mat.VecDense
	subgoalReached []bool

	starter environment.UniformStarter
	seed    uint64

	groundShade  color.Color
	chassisShade color.Color
	legShade     color.Color
}

// NewQuadruped returns a new planar quadruped world. The goal is
// placed at x = goalX at standing height, with numSubgoals subgoals
// spaced evenly between the start and the goal.
func NewQuadruped(goalX float64, numSubgoals int,
	seed uint64) (*Quadruped, error) {
	if goalX <= 0 {
		return nil, fmt.Errorf("newquadruped: goal must lie ahead of the "+
			"start \n\thave(goal x = %v)", goalX)
	}
	if numSubgoals < 0 {
		return nil, fmt.Errorf("newquadruped: illegal subgoal count "+
			"\n\thave(%v)", numSubgoals)
	}

	standingHeight := (MinStartHeight + MaxStartHeight) / 2
	q := &Quadruped{
		goal: mat.NewVecDense(3, []float64{goalX, 0, standingHeight}),
		seed: seed,
		starter: environment.NewUniformStarter([]r1.Interval{
			{Min: MinStartX, Max: MaxStartX},
			{Min: MinStartHeight, Max: MaxStartHeight},
		}, seed),
		groundShade:  color.RGBA{R: 255, G: 255, B: 255, A: 255},
		chassisShade: color.RGBA{R: 128, G: 102, B: 230, A: 255},
		legShade:     color.RGBA{R: 77, G: 77, B: 128, A: 255},
	}

	q.subgoals = make([]*mat.VecDense, numSubgoals)
	q.subgoalReached = make([]bool, numSubgoals)
	for i := 0; i < numSubgoals; i++ {
		x := goalX * float64(i+1) / float64(numSubgoals+1)
		q.subgoals[i] = mat.NewVecDense(3, []float64{x, 0, standingHeight})
	}

	if err := q.Reset(); err != nil {
		return nil, fmt.Errorf("newquadruped: %v", err)
	}

	return q, nil
}

// contactCounter tracks how many live contacts involve a body. A body
// may touch the ground at several points at once, so a single boolean
// would clear as soon as any one of the contacts ends.
type contactCounter struct {
	n int
}

func (c *contactCounter) begin() { c.n++ }

func (c *contactCounter) end() {
	if c.n > 0 {
		c.n--
	}
}

func (c *contactCounter) touching() bool { return c.n > 0 }

func (c *contactCounter) reset() { c.n = 0 }

// contactDetector tracks whether the chassis touches the ground and
// the contact impulses on each foot
type contactDetector struct {
	q *Quadruped
}

func (c *contactDetector) bodies(contact box2d.B2ContactInterface) (*box2d.B2Body,
	*box2d.B2Body) {
	return contact.GetFixtureA().GetBody(), contact.GetFixtureB().GetBody()
}

// legIndex returns which leg takes part in the contact, or -1
func (c *contactDetector) legIndex(contact box2d.B2ContactInterface) int {
	a, b := c.bodies(contact)
	for i, leg := range c.q.legs {
		if leg == a || leg == b {
			return i
		}
	}
	return -1
}

func (c *contactDetector) BeginContact(contact box2d.B2ContactInterface) {
	a, b := c.bodies(contact)
	if c.q.chassis == a || c.q.chassis == b {
		c.q.chassisContacts.begin()
	}
}

func (c *contactDetector) EndContact(contact box2d.B2ContactInterface) {
	a, b := c.bodies(contact)
	if c.q.chassis == a || c.q.chassis == b {
		c.q.chassisContacts.end()
	}
}

func (c *contactDetector) PreSolve(contact box2d.B2ContactInterface,
	oldManifold box2d.B2Manifold) {
}

func (c *contactDetector) PostSolve(contact box2d.B2ContactInterface,
	impulse *box2d.B2ContactImpulse) {
	i := c.legIndex(contact)
	if i < 0 {
		return
	}

	manifold := contact.GetManifold()
	for j := 0; j < manifold.PointCount; j++ {
		c.q.footImpulses[i*locomotion.ForceAxes] += impulse.TangentImpulses[j]
		c.q.footImpulses[i*locomotion.ForceAxes+2] += impulse.NormalImpulses[j]
	}
}

// destroy removes all bodies from the Box2D world
func (q *Quadruped) destroy() {
	if q.ground == nil {
		return
	}

	q.world.SetContactListener(nil)
	q.world.DestroyBody(q.ground)
	q.ground = nil

	q.world.DestroyBody(q.chassis)
	q.chassis = nil

	for _, leg := range q.legs {
		q.world.DestroyBody(leg)
	}
	q.legs = nil
	q.joints = nil
}

// Reset returns the robot to its starting pose and clears all
// per-episode state
func (q *Quadruped) Reset() error {
	q.destroy()
	q.world = box2d.MakeB2World(box2d.B2Vec2{X: XGravity, Y: YGravity})
	q.world.SetContactListener(&contactDetector{q})

	start := q.starter.Start()
	initialX := start.AtVec(0)
	initialY := start.AtVec(1)

	// Ground
	groundDef := box2d.NewB2BodyDef()
	groundDef.Type = box2d.B2BodyType.B2_staticBody
	q.ground = q.world.CreateBody(groundDef)

	groundShape := box2d.NewB2EdgeShape()
	groundShape.Set(box2d.MakeB2Vec2(-GroundHalfLength, 0),
		box2d.MakeB2Vec2(GroundHalfLength, 0))

	groundFix := box2d.MakeB2FixtureDef()
	groundFix.Shape = groundShape
	groundFix.Friction = 0.9
	q.ground.CreateFixtureFromDef(&groundFix)

	// Chassis
	chassisDef := box2d.NewB2BodyDef()
	chassisDef.Type = box2d.B2BodyType.B2_dynamicBody
	chassisDef.Position = box2d.MakeB2Vec2(initialX, initialY)
	q.chassis = q.world.CreateBody(chassisDef)

	chassisShape := box2d.NewB2PolygonShape()
	chassisShape.SetAsBox(ChassisHalfW, ChassisHalfH)

	chassisFix := box2d.MakeB2FixtureDef()
	chassisFix.Shape = chassisShape
	chassisFix.Density = ChassisDensity
	chassisFix.Friction = 0.5
	q.chassis.CreateFixtureFromDef(&chassisFix)

	// Legs with motorized hips
	q.legs = make([]*box2d.B2Body, 0, locomotion.NumFeet)
	q.joints = make([]*box2d.B2RevoluteJoint, 0, locomotion.NumFeet)
	anchors := []float64{-LegAnchorX, -LegAnchorX, LegAnchorX, LegAnchorX}
	for i := 0; i < locomotion.NumFeet; i++ {
		legDef := box2d.NewB2BodyDef()
		legDef.Type = box2d.B2BodyType.B2_dynamicBody
		legDef.Position = box2d.MakeB2Vec2(initialX+anchors[i],
			initialY-ChassisHalfH-LegHalfH)
		leg := q.world.CreateBody(legDef)
		q.legs = append(q.legs, leg)

		legShape := box2d.NewB2PolygonShape()
		legShape.SetAsBox(LegHalfW, LegHalfH)

		legFix := box2d.MakeB2FixtureDef()
		legFix.Shape = legShape
		legFix.Density = LegDensity
		legFix.Friction = 0.9
		leg.CreateFixtureFromDef(&legFix)

		rjd := box2d.MakeB2RevoluteJointDef()
		rjd.BodyA = q.chassis
		rjd.BodyB = leg
		rjd.LocalAnchorA = box2d.MakeB2Vec2(anchors[i], -ChassisHalfH)
		rjd.LocalAnchorB = box2d.MakeB2Vec2(0, LegHalfH)
		rjd.EnableMotor = true
		rjd.EnableLimit = true
		rjd.MaxMotorTorque = MaxMotorTorque
		rjd.MotorSpeed = 0.0
		rjd.LowerAngle = LegLowerAngle
		rjd.UpperAngle = LegUpperAngle
		rjd.CollideConnected = false

		joint := q.world.CreateJoint(&rjd).(*box2d.B2RevoluteJoint)
		q.joints = append(q.joints, joint)
	}

	q.footImpulses = make([]float64,
		locomotion.NumFeet*locomotion.ForceAxes)
	q.chassisContacts.reset()
	q.lastAction = mat.NewVecDense(locomotion.NumFeet, nil)
	q.torques = make([]float64, locomotion.NumFeet)
	q.ResetSubgoals()

	return nil
}

// Step applies action as motor speed targets and advances the
// simulation by one control step
func (q *Quadruped) Step(action *mat.VecDense) error {
	if action.Len() != q.ActionDims() {
		return fmt.Errorf("step: illegal action shape \n\twant(%v) "+
			"\n\thave(%v)", q.ActionDims(), action.Len())
	}

	for i, joint := range q.joints {
		a := floatutils.Clip(action.AtVec(i), locomotion.MinAction,
			locomotion.MaxAction)
		joint.SetMotorSpeed(a * MaxMotorSpeed)
	}

	for i := range q.footImpulses {
		q.footImpulses[i] = 0
	}

	for i := 0; i < ActionRepeat; i++ {
		q.world.Step(SimTimeStep, VelocityIterations, PositionIterations)
	}

	invDt := 1.0 / (SimTimeStep * float64(ActionRepeat))
	for i, joint := range q.joints {
		q.torques[i] = joint.GetMotorTorque(1.0 / SimTimeStep)
	}
	for i := range q.footImpulses {
		q.footImpulses[i] *= invDt
	}

	q.lastAction = mat.VecDenseCopyOf(action)
	return nil
}

// Seed reseeds the starting pose distribution
func (q *Quadruped) Seed(seed uint64) {
	q.seed = seed
	q.starter = environment.NewUniformStarter([]r1.Interval{
		{Min: MinStartX, Max: MaxStartX},
		{Min: MinStartHeight, Max: MaxStartHeight},
	}, seed)
}

// BasePosition returns the chassis position embedded into three
// dimensions
func (q *Quadruped) BasePosition() *mat.VecDense {
	pos := q.chassis.GetPosition()
	return mat.NewVecDense(3, []float64{pos.X, 0, pos.Y})
}

// BaseOrientation returns the chassis pitch as a quaternion about the
// lateral axis
func (q *Quadruped) BaseOrientation() *mat.VecDense {
	angle := q.chassis.GetAngle()
	return mat.NewVecDense(4, []float64{
		0,
		math.Sin(angle / 2),
		0,
		math.Cos(angle / 2),
	})
}

// BaseVelocity returns the chassis linear velocity embedded into three
// dimensions
func (q *Quadruped) BaseVelocity() *mat.VecDense {
	vel := q.chassis.GetLinearVelocity()
	return mat.NewVecDense(3, []float64{vel.X, 0, vel.Y})
}

// MotorTorques returns the torque applied by each hip motor over the
// last control step
func (q *Quadruped) MotorTorques() []float64 {
	torques := make([]float64, len(q.torques))
	copy(torques, q.torques)
	return torques
}

// FootContactForces returns the average contact force on each foot
// over the last control step, laid out foot-major
func (q *Quadruped) FootContactForces() []float64 {
	forces := make([]float64, len(q.footImpulses))
	copy(forces, q.footImpulses)
	return forces
}

// IllegalContact returns whether the chassis is in contact with the
// ground
func (q *Quadruped) IllegalContact() bool {
	return q.chassisContacts.touching()
}

// LastAction returns the action applied on the most recent Step
func (q *Quadruped) LastAction() *mat.VecDense {
	return q.lastAction
}

// Goal returns the goal position
func (q *Quadruped) Goal() *mat.VecDense {
	return q.goal
}

// Subgoals returns the subgoal positions
func (q *Quadruped) Subgoals() []*mat.VecDense {
	return q.subgoals
}

// SubgoalReached returns whether subgoal i has been reached this
// episode
func (q *Quadruped) SubgoalReached(i int) bool {
	return q.subgoalReached[i]
}

// ReachSubgoal marks subgoal i as reached for the rest of the episode
func (q *Quadruped) ReachSubgoal(i int) {
	q.subgoalReached[i] = true
}

// ResetSubgoals clears the achieved-flag of every subgoal
func (q *Quadruped) ResetSubgoals() {
	for i := range q.subgoalReached {
		q.subgoalReached[i] = false
	}
}

// TimeStep returns the simulation time step in seconds
func (q *Quadruped) TimeStep() float64 {
	return SimTimeStep
}

// ActionRepeat returns the number of simulation sub-steps per control
// step
func (q *Quadruped) ActionRepeat() int {
	return ActionRepeat
}

// ActionDims returns the number of motors
func (q *Quadruped) ActionDims() int {
	return locomotion.NumFeet
}

// worldToPixelCoord converts world coordinates to pixel coordinates,
// keeping the chassis centred horizontally
func (q *Quadruped) worldToPixelCoord(x, y float64) (float64, float64) {
	centre := q.chassis.GetPosition().X
	pixelX := ViewportW/2 + Scale*(x-centre)
	pixelY := ViewportH - Scale*(y+1.0)
	return pixelX, pixelY
}

// drawBody renders every polygon fixture of a body
func (q *Quadruped) drawBody(dc *gg.Context, body *box2d.B2Body,
	shade color.Color) {
	fix := body.GetFixtureList()
	for fix != nil {
		shape, ok := fix.M_shape.(*box2d.B2PolygonShape)
		if !ok {
			fix = fix.M_next
			continue
		}

		dc.ClearPath()
		for i := 0; i < shape.M_count; i++ {
			vertex := box2d.B2TransformVec2Mul(body.M_xf, shape.M_vertices[i])
			px, py := q.worldToPixelCoord(vertex.X, vertex.Y)
			dc.LineTo(px, py)
		}
		first := box2d.B2TransformVec2Mul(body.M_xf, shape.M_vertices[0])
		px, py := q.worldToPixelCoord(first.X, first.Y)
		dc.LineTo(px, py)

		dc.SetColor(shade)
		dc.Fill()
		fix = fix.M_next
	}
}

// Render draws the current world state and saves it as a PNG frame
func (q *Quadruped) Render(frame int) error {
	dc := gg.NewContext(int(ViewportW), int(ViewportH))
	dc.SetColor(color.RGBA{R: 30, G: 30, B: 30, A: 255})
	dc.Clear()

	// Ground line
	gx1, gy1 := q.worldToPixelCoord(-GroundHalfLength, 0)
	gx2, gy2 := q.worldToPixelCoord(GroundHalfLength, 0)
	dc.SetColor(q.groundShade)
	dc.SetLineWidth(3.0)
	dc.DrawLine(gx1, gy1, gx2, gy2)
	dc.Stroke()

	// Goal and subgoal markers
	dc.SetColor(color.RGBA{R: 255, G: 166, B: 0, A: 255})
	gx, gy := q.worldToPixelCoord(q.goal.AtVec(0), q.goal.AtVec(2))
	dc.DrawCircle(gx, gy, 5.0)
	dc.Fill()
	for i, subgoal := range q.subgoals {
		sx, sy := q.worldToPixelCoord(subgoal.AtVec(0), subgoal.AtVec(2))
		if q.subgoalReached[i] {
			dc.SetColor(color.RGBA{R: 0, G: 200, B: 0, A: 255})
		} else {
			dc.SetColor(color.RGBA{R: 200, G: 200, B: 0, A: 255})
		}
		dc.DrawCircle(sx, sy, 3.0)
		dc.Fill()
	}

	for _, leg := range q.legs {
		q.drawBody(dc, leg, q.legShade)
	}
	q.drawBody(dc, q.chassis, q.chassisShade)

	return dc.SavePNG(fmt.Sprintf("./Quadruped%v.png", frame))
}
