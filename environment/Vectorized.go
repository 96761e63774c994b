package environment

import (
	"fmt"

	"github.com/vecrl/vecrl/spec"
)

// Vectorized steps a set of environment instances in lockstep,
// exchanging flat, row-major batches of observations, rewards, and
// masks with the caller. When an instance finishes its episode it is
// reset immediately: the returned batch holds the first observation of
// the new episode together with a mask of 0 for that process.
type Vectorized struct {
	envs    []Environment
	obsDim  int
	actsDim int

	obsSpec    spec.Space
	actionSpec spec.Space
}

// NewVectorized creates and returns a new Vectorized over the given
// environment instances, which must all share the same observation and
// action spaces.
func NewVectorized(envs []Environment) (*Vectorized, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("newvectorized: need at least one " +
			"environment")
	}

	obsSpec := envs[0].ObservationSpec()
	actionSpec := envs[0].ActionSpec()
	for i, env := range envs[1:] {
		if !sameSpace(env.ObservationSpec(), obsSpec) {
			return nil, fmt.Errorf("newvectorized: environment %d has a "+
				"different observation space", i+1)
		}
		if !sameSpace(env.ActionSpec(), actionSpec) {
			return nil, fmt.Errorf("newvectorized: environment %d has a "+
				"different action space", i+1)
		}
	}

	return &Vectorized{
		envs:       envs,
		obsDim:     obsSpec.Dims(),
		actsDim:    actionSpec.Dims(),
		obsSpec:    obsSpec,
		actionSpec: actionSpec,
	}, nil
}

// Reset resets every environment instance and returns the batch of
// first observations
func (v *Vectorized) Reset() ([]float64, error) {
	obs := make([]float64, 0, len(v.envs)*v.obsDim)
	for i, env := range v.envs {
		step, err := env.Reset()
		if err != nil {
			return nil, fmt.Errorf("reset: environment %d: %v", i, err)
		}
		obs = append(obs, step.Observation...)
	}
	return obs, nil
}

// Step takes one action in every environment instance simultaneously,
// returning the batched next observations, rewards, and episode
// continuation masks. Finished instances are reset in place.
func (v *Vectorized) Step(actions []float64) (obs, rewards,
	masks []float64, err error) {
	P := len(v.envs)
	if len(actions) != P*v.actsDim {
		return nil, nil, nil, fmt.Errorf("step: illegal action batch "+
			"length \n\twant(%d)\n\thave(%d)", P*v.actsDim, len(actions))
	}

	obs = make([]float64, 0, P*v.obsDim)
	rewards = make([]float64, P)
	masks = make([]float64, P)
	for i, env := range v.envs {
		step, err := env.Step(actions[i*v.actsDim : (i+1)*v.actsDim])
		if err != nil {
			return nil, nil, nil, fmt.Errorf("step: environment %d: %v",
				i, err)
		}
		rewards[i] = step.Reward
		masks[i] = step.Mask()

		if step.Done {
			step, err = env.Reset()
			if err != nil {
				return nil, nil, nil, fmt.Errorf("step: could not reset "+
					"environment %d: %v", i, err)
			}
		}
		obs = append(obs, step.Observation...)
	}
	return obs, rewards, masks, nil
}

// NumProcesses returns the number of environment instances stepped in
// lockstep
func (v *Vectorized) NumProcesses() int {
	return len(v.envs)
}

// ObservationSpec returns the observation space shared by all instances
func (v *Vectorized) ObservationSpec() spec.Space {
	return v.obsSpec
}

// ActionSpec returns the action space shared by all instances
func (v *Vectorized) ActionSpec() spec.Space {
	return v.actionSpec
}

func sameSpace(a, b spec.Space) bool {
	if a.Kind != b.Kind || len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}
