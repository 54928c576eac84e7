// Package experiment implements functionality for running an
// experiment
package experiment

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/samuelfneumann/goloco/agent"
	"github.com/samuelfneumann/goloco/collector"
	"github.com/samuelfneumann/goloco/experiment/checkpointer"
	"github.com/samuelfneumann/goloco/experiment/tracker"
	"github.com/samuelfneumann/goloco/utils/progressbar"
)

// progressBarWidth is the character width of the terminal progress bar
const progressBarWidth int = 50

// Experiment runs the iterated collect-update training loop. Each
// iteration first fills the collector's rollout buffer with a segment
// of experience, then runs the learner's update on it. Every
// evalInterval iterations the policy is evaluated on held-out
// environments; the resulting returns and episode lengths, along with
// the learner's per-iteration metrics, are cached by Trackers and
// saved to disk when the experiment finishes.
type Experiment struct {
	collector *collector.OnPolicy
	learner   agent.Learner

	evaluator    *collector.Evaluator
	evalInterval int

	iterations    int
	checkpointers []checkpointer.Checkpointer

	dataDir        string
	returns        *tracker.Return
	episodeLengths *tracker.EpisodeLength
	metrics        map[string]*tracker.Scalar

	bar *progressbar.ManualProgressBar
}

// New returns a new Experiment which runs iterations iterations of
// collecting and updating, evaluating every evalInterval iterations.
// An evalInterval of 0 disables evaluation. Tracked data is saved
// under dataDir.
func New(c *collector.OnPolicy, learner agent.Learner,
	eval *collector.Evaluator, evalInterval, iterations int,
	dataDir string,
	checkpointers ...checkpointer.Checkpointer) (*Experiment, error) {
	if c == nil || learner == nil {
		return nil, fmt.Errorf("new: experiment requires a collector and " +
			"learner")
	}

	if iterations <= 0 {
		return nil, fmt.Errorf("new: iterations must be positive "+
			"\n\thave(%v)", iterations)
	}

	if evalInterval < 0 {
		return nil, fmt.Errorf("new: evaluation interval cannot be "+
			"negative \n\thave(%v)", evalInterval)
	}

	if evalInterval > 0 && eval == nil {
		return nil, fmt.Errorf("new: evaluation interval %v set without "+
			"an evaluator", evalInterval)
	}

	return &Experiment{
		collector:    c,
		learner:      learner,
		evaluator:    eval,
		evalInterval: evalInterval,
		iterations:   iterations,

		checkpointers: checkpointers,

		dataDir: dataDir,
		returns: tracker.NewReturn(filepath.Join(dataDir,
			"return.bin")),
		episodeLengths: tracker.NewEpisodeLength(filepath.Join(dataDir,
			"episode_length.bin")),
		metrics: make(map[string]*tracker.Scalar),

		bar: progressbar.NewManualProgressBar(progressBarWidth, iterations),
	}, nil
}

// Run runs the experiment for all iterations
func (e *Experiment) Run() error {
	for i := 1; i <= e.iterations; i++ {
		if err := e.runIteration(i); err != nil {
			return fmt.Errorf("run: iteration %v: %v", i, err)
		}

		e.bar.Increment()
		e.bar.Display()
	}

	return nil
}

// runIteration runs a single collect-update iteration, evaluating and
// checkpointing if the iteration falls on the respective intervals
func (e *Experiment) runIteration(i int) error {
	if err := e.collector.CollectSegment(); err != nil {
		return fmt.Errorf("could not collect segment: %v", err)
	}

	metrics, err := e.learner.Update()
	if err != nil {
		return fmt.Errorf("could not update: %v", err)
	}
	e.trackMetrics(metrics)

	if e.evalInterval > 0 && i%e.evalInterval == 0 {
		norm := e.collector.Envs().Normalizer()
		returns, lengths, err := e.evaluator.Evaluate(norm)
		if err != nil {
			return fmt.Errorf("could not evaluate: %v", err)
		}
		e.returns.TrackEpisodes(returns)
		e.episodeLengths.TrackEpisodes(lengths)
	}

	for _, c := range e.checkpointers {
		if err := c.Checkpoint(i); err != nil {
			return fmt.Errorf("could not checkpoint: %v", err)
		}
	}

	return nil
}

// trackMetrics appends the learner's metrics to their scalar series,
// creating a series the first time a metric name is seen
func (e *Experiment) trackMetrics(metrics map[string]float64) {
	for name, value := range metrics {
		s, ok := e.metrics[name]
		if !ok {
			s = tracker.NewScalar(filepath.Join(e.dataDir, name+".bin"))
			e.metrics[name] = s
		}
		s.Track(value)
	}
}

// Save saves all data tracked during the experiment to disk
func (e *Experiment) Save() error {
	if err := e.returns.Save(); err != nil {
		return fmt.Errorf("save: could not save returns: %v", err)
	}
	if err := e.episodeLengths.Save(); err != nil {
		return fmt.Errorf("save: could not save episode lengths: %v", err)
	}

	// Save metric series in a deterministic order
	names := make([]string, 0, len(e.metrics))
	for name := range e.metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := e.metrics[name].Save(); err != nil {
			return fmt.Errorf("save: could not save %v: %v", name, err)
		}
	}

	return nil
}
