// Package timestep implements timesteps of the agent-environment
// interaction
package timestep

import "fmt"

// TimeStep packages together a single timestep of a single environment
// instance: the observation produced by the step, the reward for the
// transition into it, and whether it ended the episode.
type TimeStep struct {
	Observation []float64
	Reward      float64
	Done        bool
	Number      int // Step index within the current episode
}

func New(obs []float64, reward float64, done bool, number int) TimeStep {
	return TimeStep{obs, reward, done, number}
}

// Mask returns the episode continuation mask of the step: 0 if the
// step ended the episode and 1 otherwise.
func (t TimeStep) Mask() float64 {
	if t.Done {
		return 0.0
	}
	return 1.0
}

func (t TimeStep) String() string {
	str := "TimeStep | Reward: %.2f  |  Done: %v  |  Step Number: %v"
	return fmt.Sprintf(str, t.Reward, t.Done, t.Number)
}
