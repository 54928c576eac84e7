package tracker

import "gonum.org/v1/gonum/stat"

// Return tracks the mean undiscounted episodic return of each
// evaluation in an experiment
type Return struct {
	*Scalar
}

// NewReturn returns a new Return Tracker which saves its data to
// filename
func NewReturn(filename string) *Return {
	return &Return{NewScalar(filename)}
}

// TrackEpisodes tracks the mean return over the episodes of a single
// evaluation. Evaluations with no completed episodes are ignored.
func (r *Return) TrackEpisodes(returns []float64) {
	if len(returns) == 0 {
		return
	}
	r.Track(stat.Mean(returns, nil))
}
