// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"
)

// Max calculates and returns the maximum float64 in a list
func Max(floats ...float64) float64 {
	max := floats[0]
	for _, val := range floats {
		if val > max {
			max = val
		}
	}
	return max
}

// ArgMax returns the indices of the maximum values in a slice of
// float64. More than one index is returned when the maximum is tied.
func ArgMax(values ...float64) []int {
	max, indices := values[0], []int{0}

	for i, value := range values[1:] {
		if value > max {
			max = value
			indices = []int{i + 1}
		} else if value == max {
			indices = append(indices, i+1)
		}
	}
	return indices
}

// LogSumExp computes the log of the summed exponentials of values in
// a numerically stable way
func LogSumExp(values ...float64) float64 {
	max := Max(values...)

	var sum float64
	for _, value := range values {
		sum += math.Exp(value - max)
	}
	return max + math.Log(sum)
}

// Softmax returns the softmax distribution over a slice of logits
func Softmax(logits []float64) []float64 {
	lse := LogSumExp(logits...)

	probs := make([]float64, len(logits))
	for i, logit := range logits {
		probs[i] = math.Exp(logit - lse)
	}
	return probs
}
