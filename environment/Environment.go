// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"github.com/vecrl/vecrl/spec"
	"github.com/vecrl/vecrl/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() []float64
}

// Ender decides when an episode ends for reasons beyond the
// environment's own dynamics, such as a step limit
type Ender interface {
	End(t *timestep.TimeStep) bool
}

// Environment implements a single simulated environment instance. An
// Environment starts ready to use; Reset recycles it between episodes.
type Environment interface {
	Reset() (timestep.TimeStep, error)
	Step(action []float64) (timestep.TimeStep, error)
	ObservationSpec() spec.Space
	ActionSpec() spec.Space
}
