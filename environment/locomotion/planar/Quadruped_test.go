package planar

import (
	"testing"

	"github.com/samuelfneumann/goloco/environment/locomotion"
	"gonum.org/v1/gonum/mat"
)

// TestContactCounterSimultaneousContacts checks that a body touching
// the ground at two points stays marked as touching until both
// contacts end.
func TestContactCounterSimultaneousContacts(t *testing.T) {
	var c contactCounter

	if c.touching() {
		t.Error("contactcounter: touching before any contact began")
	}

	c.begin()
	c.begin()
	c.end()
	if !c.touching() {
		t.Error("contactcounter: not touching with one of two " +
			"contacts still live")
	}

	c.end()
	if c.touching() {
		t.Error("contactcounter: touching after all contacts ended")
	}

	// Unmatched end calls must not wrap into a touching state
	c.end()
	if c.touching() {
		t.Error("contactcounter: touching after unmatched end")
	}

	c.begin()
	c.reset()
	if c.touching() {
		t.Error("contactcounter: touching after reset")
	}
}

// TestQuadrupedStep checks the simulator runs a control step and
// reports contact forces with the expected layout.
func TestQuadrupedStep(t *testing.T) {
	q, err := NewQuadruped(10, 3, 42)
	if err != nil {
		t.Fatalf("quadrupedstep: could not create world: %v", err)
	}

	if q.ActionDims() != locomotion.NumFeet {
		t.Errorf("quadrupedstep: illegal action dims \n\twant(%v) "+
			"\n\thave(%v)", locomotion.NumFeet, q.ActionDims())
	}

	action := mat.NewVecDense(q.ActionDims(), nil)
	for i := 0; i < 5; i++ {
		if err := q.Step(action); err != nil {
			t.Fatalf("quadrupedstep: could not step: %v", err)
		}
	}

	forces := q.FootContactForces()
	if len(forces) != locomotion.NumFeet*locomotion.ForceAxes {
		t.Errorf("quadrupedstep: illegal force layout \n\twant(%v) "+
			"\n\thave(%v)", locomotion.NumFeet*locomotion.ForceAxes,
			len(forces))
	}

	if q.BasePosition().Len() != 3 {
		t.Errorf("quadrupedstep: illegal position dims \n\twant(%v) "+
			"\n\thave(%v)", 3, q.BasePosition().Len())
	}
}
