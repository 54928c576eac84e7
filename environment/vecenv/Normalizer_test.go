package vecenv

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

const normalizerTolerance float64 = 1e-12

func TestNewNormalizerIllegalDims(t *testing.T) {
	if _, err := NewNormalizer(0); err == nil {
		t.Error("expected error for non-positive observation dimensions")
	}
}

// With fewer than two observations folded in, observations pass
// through unchanged
func TestNormalizerPassThrough(t *testing.T) {
	norm, err := NewNormalizer(2)
	if err != nil {
		t.Fatal(err)
	}

	obs := mat.NewVecDense(2, []float64{3.5, -1.25})
	out, err := norm.Normalize(obs)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if out.AtVec(i) != obs.AtVec(i) {
			t.Errorf("observation changed before any update \n\twant(%v) "+
				"\n\thave(%v)", obs.AtVec(i), out.AtVec(i))
		}
	}

	// A single update is still not enough for a sample variance
	if err := norm.Update(obs); err != nil {
		t.Fatal(err)
	}
	out, err = norm.Normalize(obs)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if out.AtVec(i) != obs.AtVec(i) {
			t.Errorf("observation changed after a single update \n\twant(%v) "+
				"\n\thave(%v)", obs.AtVec(i), out.AtVec(i))
		}
	}
}

func TestNormalizerStatistics(t *testing.T) {
	norm, err := NewNormalizer(2)
	if err != nil {
		t.Fatal(err)
	}

	updates := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	for _, u := range updates {
		if err := norm.Update(mat.NewVecDense(2, u)); err != nil {
			t.Fatal(err)
		}
	}

	if norm.Count() != 3 {
		t.Errorf("count \n\twant(%v) \n\thave(%v)", 3, norm.Count())
	}

	// Per dimension the samples are {1, 3, 5} and {2, 4, 6}: mean
	// (3, 4), sample standard deviation 2
	out, err := norm.Normalize(mat.NewVecDense(2, []float64{5, 6}))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if math.Abs(out.AtVec(i)-1.0) > normalizerTolerance {
			t.Errorf("normalized value in dimension %v \n\twant(%v) "+
				"\n\thave(%v)", i, 1.0, out.AtVec(i))
		}
	}
}

// A copy is a frozen snapshot: later updates to the original leave it
// untouched
func TestNormalizerCopyFrozen(t *testing.T) {
	norm, err := NewNormalizer(1)
	if err != nil {
		t.Fatal(err)
	}

	for _, v := range []float64{1, 3} {
		if err := norm.Update(mat.NewVecDense(1, []float64{v})); err != nil {
			t.Fatal(err)
		}
	}

	frozen := norm.Copy()

	for _, v := range []float64{100, 200, 300} {
		if err := norm.Update(mat.NewVecDense(1, []float64{v})); err != nil {
			t.Fatal(err)
		}
	}

	if frozen.Count() != 2 {
		t.Errorf("copy count after updating original \n\twant(%v) "+
			"\n\thave(%v)", 2, frozen.Count())
	}

	// Samples {1, 3}: mean 2, sample standard deviation sqrt(2)
	out, err := frozen.Normalize(mat.NewVecDense(1, []float64{3}))
	if err != nil {
		t.Fatal(err)
	}
	want := 1.0 / math.Sqrt(2.0)
	if math.Abs(out.AtVec(0)-want) > normalizerTolerance {
		t.Errorf("copy normalization after updating original \n\twant(%v) "+
			"\n\thave(%v)", want, out.AtVec(0))
	}
}

func TestNormalizerShapeErrors(t *testing.T) {
	norm, err := NewNormalizer(3)
	if err != nil {
		t.Fatal(err)
	}

	wrong := mat.NewVecDense(2, nil)
	if err := norm.Update(wrong); err == nil {
		t.Error("expected error updating with a 2-dimensional observation")
	}
	if _, err := norm.Normalize(wrong); err == nil {
		t.Error("expected error normalizing a 2-dimensional observation")
	}
}
