// Package bandit implements stationary bandit environments for testing
// and demonstrating policy gradient training
package bandit

import (
	"fmt"

	"github.com/vecrl/vecrl/environment"
	"github.com/vecrl/vecrl/spec"
	"github.com/vecrl/vecrl/timestep"
	"github.com/vecrl/vecrl/utils/floatutils"
)

// OneHot implements a contextual bandit. Each episode a rewarded arm
// is drawn uniformly at random, and the observation is the one-hot
// encoding of that arm. Pulling the rewarded arm yields a reward of 1
// and any other arm a reward of 0. Episodes end after a fixed number
// of pulls.
type OneHot struct {
	numArms int
	starter environment.Starter
	ender   environment.Ender

	obs   []float64
	armed int
	steps int
}

// NewOneHot creates and returns a new OneHot bandit with numArms arms
// and episodes of episodeSteps pulls, ready to use
func NewOneHot(numArms, episodeSteps int, seed uint64) (*OneHot, error) {
	if numArms < 2 {
		return nil, fmt.Errorf("newonehot: need at least 2 arms "+
			"\n\thave(%d)", numArms)
	}
	if episodeSteps <= 0 {
		return nil, fmt.Errorf("newonehot: episodeSteps must be positive "+
			"\n\thave(%d)", episodeSteps)
	}

	b := &OneHot{
		numArms: numArms,
		starter: environment.NewCategoricalStarter(numArms, seed),
		ender:   environment.NewStepLimit(episodeSteps),
	}
	if _, err := b.Reset(); err != nil {
		return nil, fmt.Errorf("newonehot: %v", err)
	}
	return b, nil
}

// Reset draws a new rewarded arm and starts a new episode
func (b *OneHot) Reset() (timestep.TimeStep, error) {
	b.obs = b.starter.Start()
	b.armed = floatutils.ArgMax(b.obs...)[0]
	b.steps = 0

	return timestep.New(append([]float64{}, b.obs...), 0, false, 0), nil
}

// Step pulls the arm selected by action
func (b *OneHot) Step(action []float64) (timestep.TimeStep, error) {
	if len(action) != 1 {
		return timestep.TimeStep{}, fmt.Errorf("step: illegal action "+
			"length \n\twant(1)\n\thave(%d)", len(action))
	}
	arm := int(action[0])
	if float64(arm) != action[0] || arm < 0 || arm >= b.numArms {
		return timestep.TimeStep{}, fmt.Errorf("step: illegal arm %v for "+
			"%d-armed bandit", action[0], b.numArms)
	}

	reward := 0.0
	if arm == b.armed {
		reward = 1.0
	}

	b.steps++
	step := timestep.New(append([]float64{}, b.obs...), reward, false,
		b.steps)
	b.ender.End(&step)

	return step, nil
}

// ObservationSpec returns the layout of the one-hot context vector
func (b *OneHot) ObservationSpec() spec.Space {
	return spec.NewContinuous(b.numArms)
}

// ActionSpec returns the layout of the arm selection
func (b *OneHot) ActionSpec() spec.Space {
	return spec.NewDiscrete(b.numArms)
}
