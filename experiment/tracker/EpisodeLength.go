package tracker

// EpisodeLength tracks the mean episode length of each evaluation in
// an experiment
type EpisodeLength struct {
	*Scalar
}

// NewEpisodeLength returns a new EpisodeLength Tracker which saves its
// data to filename
func NewEpisodeLength(filename string) *EpisodeLength {
	return &EpisodeLength{NewScalar(filename)}
}

// TrackEpisodes tracks the mean length over the episodes of a single
// evaluation. Evaluations with no completed episodes are ignored.
func (e *EpisodeLength) TrackEpisodes(lengths []int) {
	if len(lengths) == 0 {
		return
	}

	total := 0
	for _, length := range lengths {
		total += length
	}
	e.Track(float64(total) / float64(len(lengths)))
}
