package ppo

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goloco/solver"
)

const surrogateTolerance float64 = 1e-12

// TestClippedSurrogate evaluates the surrogate objective used by the
// policy loss graph on forced probability ratios. A ratio of 5.0 with
// a positive advantage must saturate at (1+epsilon) times the
// advantage; the same ratio with a negative advantage keeps the
// unclipped term, so bad actions are penalized without bound; ratios
// inside the clipping range pass through untouched.
func TestClippedSurrogate(t *testing.T) {
	epsilon := 0.2
	ratios := []float64{5.0, 5.0, 1.1, 0.9}
	advantages := []float64{2.0, -2.0, 1.5, -1.5}
	want := []float64{
		(1 + epsilon) * 2.0,
		5.0 * -2.0,
		1.1 * 1.5,
		0.9 * -1.5,
	}

	graph := G.NewGraph()
	ratio := G.NewVector(
		graph,
		tensor.Float64,
		G.WithName("ratio"),
		G.WithShape(len(ratios)),
		G.WithInit(G.Zeroes()),
	)
	adv := G.NewVector(
		graph,
		tensor.Float64,
		G.WithName("advantages"),
		G.WithShape(len(advantages)),
		G.WithInit(G.Zeroes()),
	)

	surrogate, err := clippedSurrogate(ratio, adv, epsilon)
	if err != nil {
		t.Fatal(err)
	}

	var out G.Value
	G.Read(surrogate, &out)

	vm := G.NewTapeMachine(graph)
	defer vm.Close()

	err = G.Let(ratio, tensor.NewDense(tensor.Float64, []int{len(ratios)},
		tensor.WithBacking(ratios)))
	if err != nil {
		t.Fatal(err)
	}
	err = G.Let(adv, tensor.NewDense(tensor.Float64, []int{len(advantages)},
		tensor.WithBacking(advantages)))
	if err != nil {
		t.Fatal(err)
	}

	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	have := out.Data().([]float64)
	if len(have) != len(want) {
		t.Fatalf("surrogate length \n\twant(%v) \n\thave(%v)", len(want),
			len(have))
	}
	for i := range want {
		if math.Abs(have[i]-want[i]) > surrogateTolerance {
			t.Errorf("surrogate for ratio %v and advantage %v \n\twant(%v) "+
				"\n\thave(%v)", ratios[i], advantages[i], want[i], have[i])
		}
	}
}

func TestNormalizeAdvantages(t *testing.T) {
	adv := []float64{1, 2, 3, 4, 5}
	normalizeAdvantages(adv)

	mean := 0.0
	for _, a := range adv {
		mean += a
	}
	mean /= float64(len(adv))
	if math.Abs(mean) > 1e-10 {
		t.Errorf("normalized advantage mean \n\twant(%v) \n\thave(%v)", 0.0,
			mean)
	}

	variance := 0.0
	for _, a := range adv {
		variance += (a - mean) * (a - mean)
	}
	variance /= float64(len(adv) - 1)
	if math.Abs(math.Sqrt(variance)-1.0) > 1e-10 {
		t.Errorf("normalized advantage standard deviation \n\twant(%v) "+
			"\n\thave(%v)", 1.0, math.Sqrt(variance))
	}
}

// A constant advantage batch has no scale to normalize by. It must
// come through unchanged instead of being divided by a vanishing
// standard deviation.
func TestNormalizeAdvantagesZeroVariance(t *testing.T) {
	adv := []float64{0.5, 0.5, 0.5, 0.5}
	normalizeAdvantages(adv)

	for i, a := range adv {
		if a != 0.5 {
			t.Errorf("constant advantage %v changed \n\twant(%v) "+
				"\n\thave(%v)", i, 0.5, a)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	policySolver, err := solver.NewDefaultAdam(3e-4, 64)
	if err != nil {
		t.Fatal(err)
	}
	valueSolver, err := solver.NewDefaultAdam(1e-3, 64)
	if err != nil {
		t.Fatal(err)
	}

	valid := NewDefaultConfig(64, policySolver, valueSolver)
	if err := valid.Validate(); err != nil {
		t.Errorf("default configuration rejected: %v", err)
	}

	cases := []struct {
		name   string
		adjust func(*Config)
	}{
		{"epsilon zero", func(c *Config) { c.Epsilon = 0 }},
		{"epsilon one", func(c *Config) { c.Epsilon = 1 }},
		{"no epochs", func(c *Config) { c.Epochs = 0 }},
		{"no minibatch", func(c *Config) { c.MiniBatchSize = 0 }},
		{"negative entropy", func(c *Config) { c.EntropyCoeff = -0.01 }},
		{"nil policy solver", func(c *Config) { c.PolicySolver = nil }},
		{"nil value solver", func(c *Config) { c.ValueSolver = nil }},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			config := NewDefaultConfig(64, policySolver, valueSolver)
			test.adjust(&config)
			if err := config.Validate(); err == nil {
				t.Error("expected a configuration error")
			}
		})
	}
}
