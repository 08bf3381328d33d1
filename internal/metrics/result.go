package metrics

import "errors"

// ErrNoResults is returned when reducing an empty set of step results.
var ErrNoResults = errors.New("metrics: no results to reduce")

// Result is the validation outcome of one batch or, once reduced, one epoch.
type Result struct {
	Loss float64
	Acc  float64
}

// Mean reduces per-batch results by the arithmetic mean of losses and
// accuracies. Every batch weighs the same regardless of its size.
func Mean(results []Result) (Result, error) {
	if len(results) == 0 {
		return Result{}, ErrNoResults
	}
	var sum Result
	for _, r := range results {
		sum.Loss += r.Loss
		sum.Acc += r.Acc
	}
	n := float64(len(results))
	return Result{Loss: sum.Loss / n, Acc: sum.Acc / n}, nil
}

// History is the ordered sequence of epoch results.
type History []Result

// Losses returns the loss column.
func (h History) Losses() []float64 {
	out := make([]float64, len(h))
	for i, r := range h {
		out[i] = r.Loss
	}
	return out
}

// Accuracies returns the accuracy column.
func (h History) Accuracies() []float64 {
	out := make([]float64, len(h))
	for i, r := range h {
		out[i] = r.Acc
	}
	return out
}

// Last returns the final entry, or false for an empty history.
func (h History) Last() (Result, bool) {
	if len(h) == 0 {
		return Result{}, false
	}
	return h[len(h)-1], true
}
