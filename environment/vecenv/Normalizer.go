package vecenv

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// minStdDev bounds the standard deviation used for normalization away
// from zero
const minStdDev float64 = 1e-8

// Normalizer tracks running mean and variance statistics of
// observation vectors and normalizes observations to zero mean and
// unit variance. Statistics are updated with Welford's online
// algorithm. A Normalizer is safe for concurrent use.
type Normalizer struct {
	mu    sync.Mutex
	dims  int
	count float64
	mean  []float64
	m2    []float64
}

// NewNormalizer returns a new Normalizer for observations of dims
// dimensions
func NewNormalizer(dims int) (*Normalizer, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("newnormalizer: observation dimensions "+
			"must be positive \n\thave(%v)", dims)
	}

	return &Normalizer{
		dims: dims,
		mean: make([]float64, dims),
		m2:   make([]float64, dims),
	}, nil
}

// Update folds obs into the running statistics
func (n *Normalizer) Update(obs mat.Vector) error {
	if obs.Len() != n.dims {
		return fmt.Errorf("update: illegal observation shape \n\twant(%v) "+
			"\n\thave(%v)", n.dims, obs.Len())
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.count++
	for i := 0; i < n.dims; i++ {
		delta := obs.AtVec(i) - n.mean[i]
		n.mean[i] += delta / n.count
		delta2 := obs.AtVec(i) - n.mean[i]
		n.m2[i] += delta * delta2
	}

	return nil
}

// Normalize returns a copy of obs shifted and scaled by the running
// statistics. Before any Update, observations pass through unchanged.
func (n *Normalizer) Normalize(obs mat.Vector) (*mat.VecDense, error) {
	if obs.Len() != n.dims {
		return nil, fmt.Errorf("normalize: illegal observation shape "+
			"\n\twant(%v) \n\thave(%v)", n.dims, obs.Len())
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	normalized := mat.NewVecDense(n.dims, nil)
	if n.count < 2 {
		for i := 0; i < n.dims; i++ {
			normalized.SetVec(i, obs.AtVec(i))
		}
		return normalized, nil
	}

	for i := 0; i < n.dims; i++ {
		variance := n.m2[i] / (n.count - 1)
		stdDev := math.Sqrt(variance)
		if stdDev < minStdDev {
			stdDev = minStdDev
		}
		normalized.SetVec(i, (obs.AtVec(i)-n.mean[i])/stdDev)
	}

	return normalized, nil
}

// Count returns the number of observations folded into the statistics
func (n *Normalizer) Count() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// Copy returns a snapshot of the Normalizer. Updates to the original
// after the copy do not affect the snapshot, so a copy handed to an
// evaluation environment stays frozen for the whole evaluation.
func (n *Normalizer) Copy() *Normalizer {
	n.mu.Lock()
	defer n.mu.Unlock()

	mean := make([]float64, n.dims)
	m2 := make([]float64, n.dims)
	copy(mean, n.mean)
	copy(m2, n.m2)

	return &Normalizer{
		dims:  n.dims,
		count: n.count,
		mean:  mean,
		m2:    m2,
	}
}
