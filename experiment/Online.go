package experiment

import (
	"fmt"

	"github.com/vecrl/vecrl/a2c"
	"github.com/vecrl/vecrl/environment"
	"github.com/vecrl/vecrl/policy"
	"github.com/vecrl/vecrl/storage"
)

// Online is an Experiment that trains a policy on-policy: it
// alternates between collecting a fixed-length rollout window from the
// vectorized environment and performing one update on it.
type Online struct {
	env      *environment.Vectorized
	policy   policy.Policy
	updater  *a2c.A2C
	rollouts *storage.RolloutStorage

	iterations int
	useGAE     bool
	gamma      float64
	tau        float64

	diagnostics []map[string]float64
}

// NewOnline creates and returns a new online experiment that performs
// iterations updates, each on a freshly collected rollout window.
// gamma discounts future rewards; tau smooths the advantage estimates
// and is only used when useGAE is true.
func NewOnline(env *environment.Vectorized, p policy.Policy,
	updater *a2c.A2C, rollouts *storage.RolloutStorage, iterations int,
	useGAE bool, gamma, tau float64) (*Online, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("newonline: iterations must be positive "+
			"\n\thave(%d)", iterations)
	}
	if env.NumProcesses() != rollouts.NumProcesses() {
		return nil, fmt.Errorf("newonline: environment and rollout "+
			"process counts differ \n\twant(%d)\n\thave(%d)",
			rollouts.NumProcesses(), env.NumProcesses())
	}
	if env.ObservationSpec().Dims() != rollouts.ObsDim() {
		return nil, fmt.Errorf("newonline: environment and rollout "+
			"observation widths differ \n\twant(%d)\n\thave(%d)",
			rollouts.ObsDim(), env.ObservationSpec().Dims())
	}

	return &Online{
		env:        env,
		policy:     p,
		updater:    updater,
		rollouts:   rollouts,
		iterations: iterations,
		useGAE:     useGAE,
		gamma:      gamma,
		tau:        tau,
	}, nil
}

// Run runs the entire experiment for all updates
func (o *Online) Run() error {
	numProcesses := o.rollouts.NumProcesses()

	obs, err := o.env.Reset()
	if err != nil {
		return fmt.Errorf("run: could not reset environments: %v", err)
	}
	if err := o.rollouts.SetFirstObservation(obs); err != nil {
		return fmt.Errorf("run: %v", err)
	}

	hidden := make([]float64, numProcesses*o.rollouts.HiddenSize())
	masks := make([]float64, numProcesses)
	for i := range masks {
		masks[i] = 1.0
	}

	for i := 0; i < o.iterations; i++ {
		for step := 0; step < o.rollouts.NumSteps(); step++ {
			values, actions, logProbs, nextHidden, err := o.policy.Act(obs,
				hidden, masks)
			if err != nil {
				return fmt.Errorf("run: could not select actions: %v", err)
			}

			var rewards []float64
			obs, rewards, masks, err = o.env.Step(actions)
			if err != nil {
				return fmt.Errorf("run: could not step environments: %v",
					err)
			}

			err = o.rollouts.Insert(obs, nextHidden, actions, logProbs,
				values, rewards, masks)
			if err != nil {
				return fmt.Errorf("run: %v", err)
			}
			hidden = nextHidden
		}

		nextValue, err := o.policy.GetValues(obs, hidden, masks)
		if err != nil {
			return fmt.Errorf("run: could not bootstrap returns: %v", err)
		}
		err = o.rollouts.ComputeReturns(nextValue, o.useGAE, o.gamma, o.tau)
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}

		diagnostics, err := o.updater.Update(o.rollouts)
		if err != nil {
			return fmt.Errorf("run: update %d failed: %v", i, err)
		}
		o.diagnostics = append(o.diagnostics, diagnostics)

		o.rollouts.AfterUpdate()
	}
	return nil
}

// Diagnostics returns one map per completed update, in order
func (o *Online) Diagnostics() []map[string]float64 {
	return o.diagnostics
}
