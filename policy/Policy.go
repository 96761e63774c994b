// Package policy implements actor-critic policies over vectorized
// environments using Gorgonia
package policy

import (
	G "gorgonia.org/gorgonia"
)

// Policy is an actor-critic network operating on batches of
// per-process observations. Observation, hidden state, mask, and
// action batches are flat, row-major []float64 slices.
//
// Act, GetValues, and GetProbs are inference-only: they run on graphs
// with no bound dual values, so no gradient state is ever recorded or
// retained by them, no matter how they exit.
//
// EvaluateActions is the differentiable entry point used by the update
// step. It returns numeric snapshots of the value estimates, the log
// probabilities of the given actions, and the batch-averaged entropy,
// and it primes the training graph with the same inputs so that a loss
// built on ValueNode, LogProbNode, and EntropyNode can be run
// immediately afterwards.
//
// Recurrent hidden states are opaque to feed-forward policies: they
// are accepted and passed through unchanged.
type Policy interface {
	Act(obs, hiddenStates, masks []float64) (values, actions,
		logProbs, nextHiddenStates []float64, err error)
	GetValues(obs, hiddenStates, masks []float64) ([]float64, error)
	GetProbs(obs, hiddenStates, masks []float64) ([]float64, error)
	EvaluateActions(obs, hiddenStates, masks, actions []float64) (values,
		logProbs []float64, entropy float64, err error)

	// Training graph surface. The graph stays fixed for the lifetime
	// of the policy; only its input values change between updates.
	Graph() *G.ExprGraph
	ValueNode() *G.Node   // Value estimates, one per evaluated sample
	LogProbNode() *G.Node // Action log probabilities, one per sample
	EntropyNode() *G.Node // Scalar batch-averaged entropy

	// Learnables returns the trainable parameters of the policy;
	// Model returns them together with their gradients for a solver.
	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Sync propagates the training weights to the inference networks.
	// Must be called after every solver step.
	Sync() error

	EvalBatchSize() int
	HiddenSize() int
}
