package policy

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/vecrl/vecrl/network"
)

// categoricalHead adds the categorical actor-critic head to a
// network's computational graph: the split of the prediction into
// action logits and a value column, the log probability of externally
// supplied actions, and the batch-averaged entropy of the action
// distribution.
type categoricalHead struct {
	actionIndices *G.Node // One-hot rows of the actions to evaluate

	value   *G.Node // (batch) value estimates
	logProb *G.Node // (batch) log probabilities of the indexed actions
	entropy *G.Node // Scalar batch-averaged entropy

	valueVal   G.Value
	logProbVal G.Value
	entropyVal G.Value
	probsVal   G.Value
}

// newCategoricalHead builds a categoricalHead on net's graph. The
// network must predict numActions + 1 outputs per sample: the logits
// of each action followed by the state value.
func newCategoricalHead(net network.NeuralNet,
	numActions int) (*categoricalHead, error) {
	if net.Outputs() != numActions+1 {
		return nil, fmt.Errorf("newcategoricalhead: network must "+
			"predict one output per action plus a value \n\twant(%d)"+
			"\n\thave(%d)", numActions+1, net.Outputs())
	}

	g := net.Graph()
	batch := net.BatchSize()
	pred := net.Prediction()

	// Split the prediction into logits and the value column with
	// constant selector products, keeping both halves dense
	logits := G.Must(G.Mul(pred, logitsSelector(numActions)))
	value := G.Must(G.Mul(pred, valueSelector(numActions)))

	lse := logSumExp(logits)

	// Log probability of the actions supplied through actionIndices
	actionIndices := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, numActions),
		G.WithInit(G.Zeroes()),
		G.WithName("actionIndices"),
	)
	indexed := G.Must(G.HadamardProd(actionIndices, logits))
	indexed = G.Must(G.Sum(indexed, 1))
	logProb := G.Must(G.Sub(indexed, lse))

	// Entropy of the action distribution, averaged over the batch
	logProbs := G.Must(G.BroadcastSub(logits, lse, nil, []byte{1}))
	probs := G.Must(G.Exp(logProbs))
	entropyRows := G.Must(G.Sum(G.Must(G.HadamardProd(probs, logProbs)), 1))
	entropy := G.Must(G.Neg(G.Must(G.Mean(entropyRows))))

	head := &categoricalHead{
		actionIndices: actionIndices,
		value:         value,
		logProb:       logProb,
		entropy:       entropy,
	}
	G.Read(value, &head.valueVal)
	G.Read(logProb, &head.logProbVal)
	G.Read(entropy, &head.entropyVal)
	G.Read(probs, &head.probsVal)

	return head, nil
}

// logSumExp computes the log of the summed exponentials of the logits
// along the action dimension in a numerically stable way, returning
// one entry per batch row.
func logSumExp(logits *G.Node) *G.Node {
	max := G.Must(G.Max(logits, 1))

	exponent := G.Must(G.BroadcastSub(logits, max, nil, []byte{1}))
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, 1))
	log := G.Must(G.Log(sum))

	return G.Must(G.Add(max, log))
}

// logitsSelector returns a constant (numActions+1, numActions) matrix
// that picks the logit columns out of the network prediction
func logitsSelector(numActions int) *G.Node {
	backing := make([]float64, (numActions+1)*numActions)
	for i := 0; i < numActions; i++ {
		backing[i*numActions+i] = 1.0
	}
	selector := tensor.NewDense(
		tensor.Float64,
		[]int{numActions + 1, numActions},
		tensor.WithBacking(backing),
	)
	return G.NewConstant(selector, G.WithName("logitsSelector"))
}

// valueSelector returns a constant (numActions+1) vector that picks
// the value column out of the network prediction
func valueSelector(numActions int) *G.Node {
	backing := make([]float64, numActions+1)
	backing[numActions] = 1.0
	selector := tensor.NewDense(
		tensor.Float64,
		[]int{numActions + 1},
		tensor.WithBacking(backing),
	)
	return G.NewConstant(selector, G.WithName("valueSelector"))
}
