// Package a2c implements the synchronous advantage actor-critic
// algorithm over rollouts gathered from vectorized environments
package a2c

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/vecrl/vecrl/policy"
	"github.com/vecrl/vecrl/solver"
	"github.com/vecrl/vecrl/storage"
)

// Keys of the diagnostic map returned by Update
const (
	ValueLossKey  string = "Value loss"
	ActionLossKey string = "Action loss"
	EntropyKey    string = "Entropy"
)

// Config implements the hyperparameters of the A2C update
type Config struct {
	// Loss coefficients. The total loss is
	// valueLoss*ValueLossCoef + actionLoss - entropy*EntropyCoef
	ValueLossCoef float64
	EntropyCoef   float64

	// RMSProp hyperparameters
	LearningRate float64
	Epsilon      float64
	Alpha        float64 // Smoothing factor of the squared-gradient average

	// Threshold for clipping the global L2 norm of the gradient.
	// Clipping is disabled when non-positive.
	MaxGradNorm float64
}

// Validate ensures the Config is valid
func (c Config) Validate() error {
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive \n\thave(%v)",
			c.LearningRate)
	}
	if c.Alpha < 0 || c.Alpha >= 1 {
		return fmt.Errorf("smoothing factor must be in [0, 1) "+
			"\n\thave(%v)", c.Alpha)
	}
	if c.ValueLossCoef < 0 {
		return fmt.Errorf("value loss coefficient cannot be negative "+
			"\n\thave(%v)", c.ValueLossCoef)
	}
	if c.EntropyCoef < 0 {
		return fmt.Errorf("entropy coefficient cannot be negative "+
			"\n\thave(%v)", c.EntropyCoef)
	}
	return nil
}

// A2C implements the synchronous advantage actor-critic update. The
// loss is built once on the policy's training graph; each call to
// Update feeds a new rollout through the graph, takes a single RMSProp
// step, and syncs the inference networks.
//
// The advantages multiplying the log probabilities in the policy loss
// are fed into the graph as numeric values, so the policy gradient
// never flows into the value head. The value loss differentiates the
// value head directly against the bootstrapped returns.
type A2C struct {
	policy policy.Policy
	config Config

	solver *solver.Solver
	vm     G.VM

	returns    *G.Node
	advantages *G.Node

	valueLossVal  G.Value
	actionLossVal G.Value
	entropyVal    G.Value
}

// New creates and returns a new A2C updater for the given policy
func New(p policy.Policy, c Config) (*A2C, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("a2c: %v", err)
	}

	g := p.Graph()
	batch := p.EvalBatchSize()

	returns := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(batch),
		G.WithInit(G.Zeroes()),
		G.WithName("returns"),
	)
	advantages := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(batch),
		G.WithInit(G.Zeroes()),
		G.WithName("advantages"),
	)

	// Critic loss on the bootstrapped returns
	valueDiff := G.Must(G.Sub(returns, p.ValueNode()))
	valueLoss := G.Must(G.Mean(G.Must(G.Square(valueDiff))))

	// Policy gradient loss with numeric advantages
	weighted := G.Must(G.HadamardProd(advantages, p.LogProbNode()))
	actionLoss := G.Must(G.Neg(G.Must(G.Mean(weighted))))

	loss := G.Must(G.Mul(valueLoss, G.NewConstant(c.ValueLossCoef)))
	loss = G.Must(G.Add(loss, actionLoss))
	entropyBonus := G.Must(G.Mul(p.EntropyNode(),
		G.NewConstant(c.EntropyCoef)))
	loss = G.Must(G.Sub(loss, entropyBonus))

	a := &A2C{
		policy:     p,
		config:     c,
		returns:    returns,
		advantages: advantages,
	}
	G.Read(valueLoss, &a.valueLossVal)
	G.Read(actionLoss, &a.actionLossVal)
	G.Read(p.EntropyNode(), &a.entropyVal)

	if _, err := G.Grad(loss, p.Learnables()...); err != nil {
		return nil, fmt.Errorf("a2c: could not compute gradient: %v", err)
	}

	slv, err := solver.NewRMSProp(c.LearningRate, c.Epsilon, c.Alpha)
	if err != nil {
		return nil, fmt.Errorf("a2c: %v", err)
	}

	a.solver = slv
	a.vm = G.NewTapeMachine(g, G.BindDualValues(p.Learnables()...))
	return a, nil
}

// Update performs one A2C step on the rollout held in s. The rollout's
// returns must have been computed before calling Update. The returned
// map holds the value loss, the action loss, and the entropy of the
// updated batch.
func (a *A2C) Update(s *storage.RolloutStorage) (map[string]float64,
	error) {
	batch := s.NumSteps() * s.NumProcesses()
	if batch != a.policy.EvalBatchSize() {
		return nil, fmt.Errorf("update: rollout batch size does not "+
			"match policy \n\twant(%d)\n\thave(%d)",
			a.policy.EvalBatchSize(), batch)
	}

	// The first numSteps slots of the rollout form the update batch
	obs := s.Observations()[:batch*s.ObsDim()]
	masks := s.Masks()[:batch]
	hiddenStates := s.HiddenStates()[:s.NumProcesses()*s.HiddenSize()]
	actions := s.Actions()

	values, _, _, err := a.policy.EvaluateActions(obs, hiddenStates,
		masks, actions)
	if err != nil {
		return nil, fmt.Errorf("update: could not evaluate actions: %v",
			err)
	}

	returns := append([]float64{}, s.Returns()[:batch]...)
	advantages := make([]float64, batch)
	floats.SubTo(advantages, returns, values)

	retTensor := tensor.NewDense(tensor.Float64, []int{batch},
		tensor.WithBacking(returns))
	advTensor := tensor.NewDense(tensor.Float64, []int{batch},
		tensor.WithBacking(advantages))
	if err := G.Let(a.returns, retTensor); err != nil {
		return nil, fmt.Errorf("update: could not set returns: %v", err)
	}
	if err := G.Let(a.advantages, advTensor); err != nil {
		return nil, fmt.Errorf("update: could not set advantages: %v", err)
	}

	defer a.vm.Reset()
	if err := a.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("update: could not run training graph: %v",
			err)
	}

	if a.config.MaxGradNorm > 0 {
		if err := clipGradNorm(a.policy.Model(),
			a.config.MaxGradNorm); err != nil {
			return nil, fmt.Errorf("update: could not clip gradient: %v",
				err)
		}
	}

	if err := a.solver.Step(a.policy.Model()); err != nil {
		return nil, fmt.Errorf("update: could not step solver: %v", err)
	}
	if err := a.policy.Sync(); err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}

	return map[string]float64{
		ValueLossKey:  a.valueLossVal.Data().(float64),
		ActionLossKey: a.actionLossVal.Data().(float64),
		EntropyKey:    a.entropyVal.Data().(float64),
	}, nil
}

// clipGradNorm rescales the gradients in model in place so that their
// global L2 norm does not exceed maxNorm
func clipGradNorm(model []G.ValueGrad, maxNorm float64) error {
	grads := make([][]float64, 0, len(model))
	total := 0.0
	for _, m := range model {
		grad, err := m.Grad()
		if err != nil {
			return fmt.Errorf("clipgradnorm: could not get gradient: %v",
				err)
		}
		data, ok := grad.Data().([]float64)
		if !ok {
			return fmt.Errorf("clipgradnorm: expected []float64 "+
				"gradient \n\thave(%T)", grad.Data())
		}
		grads = append(grads, data)
		total += floats.Dot(data, data)
	}

	norm := math.Sqrt(total)
	if norm <= maxNorm {
		return nil
	}
	scale := maxNorm / norm
	for _, data := range grads {
		floats.Scale(scale, data)
	}
	return nil
}
