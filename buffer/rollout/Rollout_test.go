package rollout

import (
	"math"
	"testing"
)

// TestBufferCapacityRejection checks that writing slots x segment + 1
// transitions deterministically rejects the overflow write
func TestBufferCapacityRejection(t *testing.T) {
	slots, segment := 2, 2
	b, err := New(3, 2, slots, segment, 0.95, 0.99, true)
	if err != nil {
		t.Fatal(err)
	}

	obs := []float64{1, 2, 3}
	act := []float64{0.5, -0.5}
	for i := 0; i < slots*segment; i++ {
		slot := i % slots
		if err := b.Store(slot, obs, act, 0, 0, 0, false); err != nil {
			t.Fatalf("write %v: %v", i, err)
		}
	}

	if !b.Full() {
		t.Fatal("buffer should be full after slots x segment writes")
	}

	if err := b.Store(0, obs, act, 0, 0, 0, false); err == nil {
		t.Error("expected overflow write to be rejected")
	}
}

// TestBufferShapeMismatch checks that mismatched observation and
// action shapes are write-time errors
func TestBufferShapeMismatch(t *testing.T) {
	b, err := New(3, 2, 1, 4, 0.95, 0.99, true)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Store(0, []float64{1, 2}, []float64{0, 0}, 0, 0, 0,
		false); err == nil {
		t.Error("expected error for illegal observation shape")
	}

	if err := b.Store(0, []float64{1, 2, 3}, []float64{0}, 0, 0, 0,
		false); err == nil {
		t.Error("expected error for illegal action shape")
	}

	if err := b.Store(2, []float64{1, 2, 3}, []float64{0, 0}, 0, 0, 0,
		false); err == nil {
		t.Error("expected error for nonexistent slot")
	}
}

// TestBufferGAE checks the advantage and rewards-to-go computation on
// a hand-computed path
func TestBufferGAE(t *testing.T) {
	gamma, lambda := 0.5, 0.5
	b, err := New(1, 1, 1, 3, lambda, gamma, true)
	if err != nil {
		t.Fatal(err)
	}

	rews := []float64{1, 2, 3}
	vals := []float64{0.5, 1.0, 1.5}
	lastVal := 2.0
	for i := range rews {
		err := b.Store(0, []float64{0}, []float64{0}, rews[i], vals[i], 0,
			i == len(rews)-1)
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := b.FinishPath(0, lastVal); err != nil {
		t.Fatal(err)
	}

	batch, err := b.Get()
	if err != nil {
		t.Fatal(err)
	}

	// deltas: d[t] = r[t] + gamma*v[t+1] - v[t] with v[3] = lastVal,
	// advantages the (gamma*lambda)-discounted cumulative sums of d
	wantAdv := []float64{1.59375, 2.375, 2.5}
	wantRet := []float64{3, 4, 4}

	const tol = 1e-12
	for i := range wantAdv {
		if math.Abs(batch.Adv[i]-wantAdv[i]) > tol {
			t.Errorf("advantage %v \n\twant(%v) \n\thave(%v)", i, wantAdv[i],
				batch.Adv[i])
		}
		if math.Abs(batch.Ret[i]-wantRet[i]) > tol {
			t.Errorf("return %v \n\twant(%v) \n\thave(%v)", i, wantRet[i],
				batch.Ret[i])
		}
	}
}

// TestBufferGet checks Get's preconditions and the on-policy reset
// after a consume
func TestBufferGet(t *testing.T) {
	b, err := New(2, 1, 2, 2, 0.95, 0.99, false)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.Get(); err == nil {
		t.Error("expected error sampling an empty buffer")
	}

	obs := []float64{1, 2}
	act := []float64{0}
	for slot := 0; slot < 2; slot++ {
		for i := 0; i < 2; i++ {
			err := b.Store(slot, obs, act, 1, 0.5, -0.7, i == 1)
			if err != nil {
				t.Fatal(err)
			}
		}
	}

	// Full but with open paths
	if _, err := b.Get(); err == nil {
		t.Error("expected error sampling with unfinished paths")
	}

	for slot := 0; slot < 2; slot++ {
		if err := b.FinishPath(slot, 0); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := b.Get()
	if err != nil {
		t.Fatal(err)
	}

	if len(batch.Adv) != b.Capacity() {
		t.Errorf("batch size \n\twant(%v) \n\thave(%v)", b.Capacity(),
			len(batch.Adv))
	}
	if len(batch.Obs) != b.Capacity()*2 {
		t.Errorf("flattened observations \n\twant(%v) \n\thave(%v)",
			b.Capacity()*2, len(batch.Obs))
	}
	for i, end := range batch.Ends {
		wantEnd := i%2 == 1
		if end != wantEnd {
			t.Errorf("end flag %v \n\twant(%v) \n\thave(%v)", i, wantEnd, end)
		}
	}

	// On-policy: a consumed segment is discarded and the buffer
	// accepts new writes
	if b.Full() {
		t.Error("buffer should be empty after Get")
	}
	if err := b.Store(0, obs, act, 0, 0, 0, false); err != nil {
		t.Errorf("store after Get: %v", err)
	}
}

// TestBufferFinishPathEmpty checks that finishing an empty path is an
// error
func TestBufferFinishPathEmpty(t *testing.T) {
	b, err := New(1, 1, 1, 2, 0.95, 0.99, true)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.FinishPath(0, 0); err == nil {
		t.Error("expected error finishing an empty path")
	}
}
