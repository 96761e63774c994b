package policy

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/vecrl/vecrl/network"
	"github.com/vecrl/vecrl/spec"
	"github.com/vecrl/vecrl/utils/floatutils"
)

// CategoricalMLP implements an actor-critic policy over a discrete
// action space. A single feed-forward network with numActions + 1
// output heads predicts the logit of every action together with the
// state value; action probabilities are computed from the logits
// through the softmax function.
//
// Three copies of the network live on separate computational graphs,
// all sharing the same weights: a step network with batch size equal
// to the number of parallel processes, used by Act, GetValues, and
// GetProbs while interacting with environments; an evaluation network
// with the full update batch size, used for the gradient-free forward
// pass of EvaluateActions; and a training network of the same batch
// size that hosts the differentiable loss built by the update
// algorithm. Sync copies the training weights back into the inference
// networks after every solver step.
type CategoricalMLP struct {
	trainNet network.NeuralNet
	stepNet  network.NeuralNet
	evalNet  network.NeuralNet

	stepVM G.VM
	evalVM G.VM

	trainHead *categoricalHead
	evalHead  *categoricalHead

	numActions int
	features   int
	hiddenSize int
	stepBatch  int
	evalBatch  int

	source rand.Source
}

// NewCategoricalMLP creates and returns a new CategoricalMLP policy
// for the given observation and action spaces. The step network
// operates on batches of numProcesses observations; the evaluation and
// training networks operate on batches of numSteps*numProcesses
// observations. hiddenSize is the width of the opaque recurrent state
// threaded through Act unchanged.
//
// The network body is determined by hiddenSizes, biases, and
// activations in the same way as network.NewMultiHeadMLP, with a final
// linear layer of numActions + 1 output heads always added.
func NewCategoricalMLP(obsSpace, actionSpace spec.Space, numSteps,
	numProcesses, hiddenSize int, hiddenSizes []int, biases []bool,
	activations []*network.Activation, init G.InitWFn,
	seed uint64) (*CategoricalMLP, error) {
	if err := obsSpace.Validate(); err != nil {
		return nil, fmt.Errorf("newcategoricalmlp: invalid observation "+
			"space: %v", err)
	}
	if err := actionSpace.Validate(); err != nil {
		return nil, fmt.Errorf("newcategoricalmlp: invalid action "+
			"space: %v", err)
	}
	if actionSpace.Kind != spec.Discrete {
		return nil, fmt.Errorf("newcategoricalmlp: softmax policy cannot "+
			"be used with %v actions", actionSpace.Kind)
	}
	numActions := actionSpace.Shape[0]
	if numActions < 2 {
		return nil, fmt.Errorf("newcategoricalmlp: discrete action "+
			"space needs at least 2 actions \n\thave(%d)", numActions)
	}
	if numSteps <= 0 || numProcesses <= 0 {
		return nil, fmt.Errorf("newcategoricalmlp: numSteps and "+
			"numProcesses must be positive \n\thave(%d, %d)", numSteps,
			numProcesses)
	}
	if hiddenSize < 0 {
		return nil, fmt.Errorf("newcategoricalmlp: hiddenSize cannot "+
			"be negative \n\thave(%d)", hiddenSize)
	}

	features := obsSpace.Dims()
	evalBatch := numSteps * numProcesses

	trainNet, err := network.NewMultiHeadMLP(features, evalBatch,
		numActions+1, G.NewGraph(), hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, fmt.Errorf("newcategoricalmlp: could not create "+
			"training network: %v", err)
	}
	trainHead, err := newCategoricalHead(trainNet, numActions)
	if err != nil {
		return nil, fmt.Errorf("newcategoricalmlp: %v", err)
	}

	stepNet, err := trainNet.CloneWithBatch(numProcesses)
	if err != nil {
		return nil, fmt.Errorf("newcategoricalmlp: could not create "+
			"step network: %v", err)
	}

	evalNet, err := trainNet.CloneWithBatch(evalBatch)
	if err != nil {
		return nil, fmt.Errorf("newcategoricalmlp: could not create "+
			"evaluation network: %v", err)
	}
	evalHead, err := newCategoricalHead(evalNet, numActions)
	if err != nil {
		return nil, fmt.Errorf("newcategoricalmlp: %v", err)
	}

	return &CategoricalMLP{
		trainNet: trainNet,
		stepNet:  stepNet,
		evalNet:  evalNet,

		stepVM: G.NewTapeMachine(stepNet.Graph()),
		evalVM: G.NewTapeMachine(evalNet.Graph()),

		trainHead: trainHead,
		evalHead:  evalHead,

		numActions: numActions,
		features:   features,
		hiddenSize: hiddenSize,
		stepBatch:  numProcesses,
		evalBatch:  evalBatch,

		source: rand.NewSource(seed),
	}, nil
}

// Act samples one action per process for a batch of observations,
// returning the value estimate, the sampled action, and the log
// probability of the sampled action for every process, together with
// the next recurrent state. No gradient state is recorded.
func (c *CategoricalMLP) Act(obs, hiddenStates, masks []float64) (values,
	actions, logProbs, nextHiddenStates []float64, err error) {
	out, err := c.stepForward(obs, hiddenStates, masks)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("act: %v", err)
	}

	width := c.numActions + 1
	values = make([]float64, c.stepBatch)
	actions = make([]float64, c.stepBatch)
	logProbs = make([]float64, c.stepBatch)
	for i := 0; i < c.stepBatch; i++ {
		logits := out[i*width : i*width+c.numActions]
		values[i] = out[i*width+c.numActions]

		dist := distuv.NewCategorical(floatutils.Softmax(logits), c.source)
		action := int(dist.Rand())

		actions[i] = float64(action)
		logProbs[i] = logits[action] - floatutils.LogSumExp(logits...)
	}

	// Feed-forward policy: the recurrent state passes through unchanged
	nextHiddenStates = append([]float64{}, hiddenStates...)
	return values, actions, logProbs, nextHiddenStates, nil
}

// GetValues returns the value estimate of every observation in a
// step-sized batch. No gradient state is recorded.
func (c *CategoricalMLP) GetValues(obs, hiddenStates,
	masks []float64) ([]float64, error) {
	out, err := c.stepForward(obs, hiddenStates, masks)
	if err != nil {
		return nil, fmt.Errorf("getvalues: %v", err)
	}

	width := c.numActions + 1
	values := make([]float64, c.stepBatch)
	for i := 0; i < c.stepBatch; i++ {
		values[i] = out[i*width+c.numActions]
	}
	return values, nil
}

// GetProbs returns the action probabilities of every observation in a
// step-sized batch as a flat (batch x numActions) slice. No gradient
// state is recorded.
func (c *CategoricalMLP) GetProbs(obs, hiddenStates,
	masks []float64) ([]float64, error) {
	out, err := c.stepForward(obs, hiddenStates, masks)
	if err != nil {
		return nil, fmt.Errorf("getprobs: %v", err)
	}

	width := c.numActions + 1
	probs := make([]float64, 0, c.stepBatch*c.numActions)
	for i := 0; i < c.stepBatch; i++ {
		logits := out[i*width : i*width+c.numActions]
		probs = append(probs, floatutils.Softmax(logits)...)
	}
	return probs, nil
}

// EvaluateActions evaluates the given actions under the current
// weights over a full update batch. It returns numeric snapshots of
// the value estimates, the log probabilities of the given actions, and
// the batch-averaged entropy, none of which carry gradients, and
// primes the training graph with the same inputs.
func (c *CategoricalMLP) EvaluateActions(obs, hiddenStates, masks,
	actions []float64) (values, logProbs []float64, entropy float64,
	err error) {
	if len(obs) != c.evalBatch*c.features {
		return nil, nil, 0, fmt.Errorf("evaluateactions: illegal obs "+
			"length \n\twant(%d)\n\thave(%d)", c.evalBatch*c.features,
			len(obs))
	}
	if len(masks) != c.evalBatch {
		return nil, nil, 0, fmt.Errorf("evaluateactions: illegal mask "+
			"length \n\twant(%d)\n\thave(%d)", c.evalBatch, len(masks))
	}
	if c.hiddenSize > 0 && len(hiddenStates)%c.hiddenSize != 0 {
		return nil, nil, 0, fmt.Errorf("evaluateactions: illegal hidden "+
			"state length %d for hidden size %d", len(hiddenStates),
			c.hiddenSize)
	}

	oneHot, err := c.oneHotActions(actions)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("evaluateactions: %v", err)
	}
	oneHotTensor := tensor.NewDense(
		tensor.Float64,
		[]int{c.evalBatch, c.numActions},
		tensor.WithBacking(oneHot),
	)

	// Gradient-free forward pass on the evaluation network
	if err := c.evalNet.SetInput(obs); err != nil {
		return nil, nil, 0, fmt.Errorf("evaluateactions: %v", err)
	}
	if err := G.Let(c.evalHead.actionIndices, oneHotTensor); err != nil {
		return nil, nil, 0, fmt.Errorf("evaluateactions: %v", err)
	}
	defer c.evalVM.Reset()
	if err := c.evalVM.RunAll(); err != nil {
		return nil, nil, 0, fmt.Errorf("evaluateactions: could not "+
			"evaluate network: %v", err)
	}

	values = append([]float64{}, c.evalHead.valueVal.Data().([]float64)...)
	logProbs = append([]float64{},
		c.evalHead.logProbVal.Data().([]float64)...)
	entropy = c.evalHead.entropyVal.Data().(float64)

	// Prime the training graph with the same batch so a loss built on
	// ValueNode, LogProbNode, and EntropyNode can run immediately
	if err := c.trainNet.SetInput(obs); err != nil {
		return nil, nil, 0, fmt.Errorf("evaluateactions: %v", err)
	}
	if err := G.Let(c.trainHead.actionIndices, oneHotTensor); err != nil {
		return nil, nil, 0, fmt.Errorf("evaluateactions: %v", err)
	}

	return values, logProbs, entropy, nil
}

// Graph returns the training graph on which the loss is built
func (c *CategoricalMLP) Graph() *G.ExprGraph {
	return c.trainNet.Graph()
}

// ValueNode returns the training graph's value estimates
func (c *CategoricalMLP) ValueNode() *G.Node {
	return c.trainHead.value
}

// LogProbNode returns the training graph's log probabilities of the
// actions given to EvaluateActions
func (c *CategoricalMLP) LogProbNode() *G.Node {
	return c.trainHead.logProb
}

// EntropyNode returns the training graph's batch-averaged entropy
func (c *CategoricalMLP) EntropyNode() *G.Node {
	return c.trainHead.entropy
}

// Learnables returns the trainable parameters of the policy
func (c *CategoricalMLP) Learnables() G.Nodes {
	return c.trainNet.Learnables()
}

// Model returns the trainable parameters with their gradients
func (c *CategoricalMLP) Model() []G.ValueGrad {
	return c.trainNet.Model()
}

// Sync copies the training weights into the step and evaluation
// networks. Must be called after every solver step.
func (c *CategoricalMLP) Sync() error {
	if err := network.Set(c.stepNet, c.trainNet); err != nil {
		return fmt.Errorf("sync: could not set step network: %v", err)
	}
	if err := network.Set(c.evalNet, c.trainNet); err != nil {
		return fmt.Errorf("sync: could not set evaluation network: %v",
			err)
	}
	return nil
}

// EvalBatchSize returns the batch size of EvaluateActions and of the
// training graph
func (c *CategoricalMLP) EvalBatchSize() int {
	return c.evalBatch
}

// HiddenSize returns the width of the opaque recurrent state
func (c *CategoricalMLP) HiddenSize() int {
	return c.hiddenSize
}

// NumActions returns the number of available actions
func (c *CategoricalMLP) NumActions() int {
	return c.numActions
}

// stepForward runs the step network on a batch of numProcesses
// observations and returns a copy of the raw network output. The step
// network's graph has no gradient nodes, so nothing is retained after
// the deferred reset regardless of how the run exits.
func (c *CategoricalMLP) stepForward(obs, hiddenStates,
	masks []float64) ([]float64, error) {
	if len(obs) != c.stepBatch*c.features {
		return nil, fmt.Errorf("illegal obs length \n\twant(%d)"+
			"\n\thave(%d)", c.stepBatch*c.features, len(obs))
	}
	if len(hiddenStates) != c.stepBatch*c.hiddenSize {
		return nil, fmt.Errorf("illegal hidden state length "+
			"\n\twant(%d)\n\thave(%d)", c.stepBatch*c.hiddenSize,
			len(hiddenStates))
	}
	if len(masks) != c.stepBatch {
		return nil, fmt.Errorf("illegal mask length \n\twant(%d)"+
			"\n\thave(%d)", c.stepBatch, len(masks))
	}

	if err := c.stepNet.SetInput(obs); err != nil {
		return nil, err
	}
	defer c.stepVM.Reset()
	if err := c.stepVM.RunAll(); err != nil {
		return nil, fmt.Errorf("could not run forward pass: %v", err)
	}

	out := c.stepNet.Output().Data().([]float64)
	return append([]float64{}, out...), nil
}

// oneHotActions expands a batch of action indices into one-hot rows
func (c *CategoricalMLP) oneHotActions(actions []float64) ([]float64,
	error) {
	if len(actions) != c.evalBatch {
		return nil, fmt.Errorf("illegal action length \n\twant(%d)"+
			"\n\thave(%d)", c.evalBatch, len(actions))
	}

	oneHot := make([]float64, c.evalBatch*c.numActions)
	for i, action := range actions {
		a := int(action)
		if float64(a) != action || a < 0 || a >= c.numActions {
			return nil, fmt.Errorf("illegal action %v for %d-action "+
				"space", action, c.numActions)
		}
		oneHot[i*c.numActions+a] = 1.0
	}
	return oneHot, nil
}
