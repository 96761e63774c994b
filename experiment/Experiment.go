// Package experiment implements training loops that tie policies,
// rollout buffers, update algorithms, and vectorized environments
// together
package experiment

// Experiment runs a policy against an environment and records the
// diagnostics of every update it performs
type Experiment interface {
	Run() error

	// Diagnostics returns one map per completed update, in order
	Diagnostics() []map[string]float64
}
