package experiment

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"

	"github.com/vecrl/vecrl/a2c"
	"github.com/vecrl/vecrl/environment"
	"github.com/vecrl/vecrl/environment/bandit"
	"github.com/vecrl/vecrl/network"
	"github.com/vecrl/vecrl/policy"
	"github.com/vecrl/vecrl/spec"
	"github.com/vecrl/vecrl/storage"
)

func newBanditExperiment(t *testing.T, iterations int) *Online {
	t.Helper()

	const (
		numProcesses = 2
		numSteps     = 4
		numArms      = 2
		episodeSteps = 3
	)

	envs := make([]environment.Environment, numProcesses)
	for i := range envs {
		env, err := bandit.NewOneHot(numArms, episodeSteps, 42+uint64(i))
		if err != nil {
			t.Fatalf("could not create bandit: %v", err)
		}
		envs[i] = env
	}
	vecEnv, err := environment.NewVectorized(envs)
	if err != nil {
		t.Fatalf("could not create vectorized environment: %v", err)
	}

	p, err := policy.NewCategoricalMLP(
		vecEnv.ObservationSpec(),
		vecEnv.ActionSpec(),
		numSteps,
		numProcesses,
		0,
		[]int{},
		[]bool{},
		[]*network.Activation{},
		G.Zeroes(),
		42,
	)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}

	updater, err := a2c.New(p, a2c.Config{
		ValueLossCoef: 0.5,
		EntropyCoef:   0.01,
		LearningRate:  0.01,
		Epsilon:       1e-8,
		Alpha:         0.99,
		MaxGradNorm:   0.5,
	})
	if err != nil {
		t.Fatalf("could not create updater: %v", err)
	}

	rollouts, err := storage.New(numSteps, numProcesses, []int{numArms},
		spec.NewDiscrete(numArms), 0)
	if err != nil {
		t.Fatalf("could not create storage: %v", err)
	}

	exp, err := NewOnline(vecEnv, p, updater, rollouts, iterations, true,
		0.99, 0.95)
	if err != nil {
		t.Fatalf("could not create experiment: %v", err)
	}
	return exp
}

func TestNewOnlineValidatesArguments(t *testing.T) {
	exp := newBanditExperiment(t, 1)
	if _, err := NewOnline(exp.env, exp.policy, exp.updater, exp.rollouts,
		0, false, 0.9, 0.9); err == nil {
		t.Error("expected error for non-positive iterations")
	}

	mismatched, err := storage.New(exp.rollouts.NumSteps(),
		exp.rollouts.NumProcesses()+1, []int{exp.rollouts.ObsDim()},
		spec.NewDiscrete(2), 0)
	if err != nil {
		t.Fatalf("could not create storage: %v", err)
	}
	if _, err := NewOnline(exp.env, exp.policy, exp.updater, mismatched,
		1, false, 0.9, 0.9); err == nil {
		t.Error("expected error for mismatched process counts")
	}
}

func TestOnlineRunRecordsDiagnostics(t *testing.T) {
	const iterations = 5
	exp := newBanditExperiment(t, iterations)

	if err := exp.Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	diagnostics := exp.Diagnostics()
	if len(diagnostics) != iterations {
		t.Fatalf("wrong number of diagnostic records "+
			"\n\twant(%d)\n\thave(%d)", iterations, len(diagnostics))
	}
	for i, record := range diagnostics {
		for _, key := range []string{a2c.ValueLossKey, a2c.ActionLossKey,
			a2c.EntropyKey} {
			value, ok := record[key]
			if !ok {
				t.Fatalf("update %d missing diagnostic %q", i, key)
			}
			if math.IsNaN(value) || math.IsInf(value, 0) {
				t.Errorf("diagnostic %q of update %d not finite "+
					"\n\thave(%v)", key, i, value)
			}
		}
	}
}
