package environment

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// CategoricalStarter returns one-hot starting observations with the
// hot index sampled uniformly from (0, 1, 2, ... N-1)
type CategoricalStarter struct {
	features int
	seed     uint64
	rand     distuv.Categorical
}

// NewCategoricalStarter returns a new CategoricalStarter over
// observations of the given number of features
func NewCategoricalStarter(features int, seed uint64) CategoricalStarter {
	source := rand.NewSource(seed)

	// Weights of the uniform categorical distribution
	weights := make([]float64, features)
	for i := range weights {
		weights[i] = 1.0 / float64(features)
	}

	return CategoricalStarter{features, seed, distuv.NewCategorical(weights,
		source)}
}

// Start returns a starting observation
func (c CategoricalStarter) Start() []float64 {
	start := make([]float64, c.features)
	start[int(c.rand.Rand())] = 1.0
	return start
}
