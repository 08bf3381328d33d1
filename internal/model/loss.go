package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CrossEntropy returns the mean softmax cross-entropy of logits [n, classes]
// against labels, and its gradient with respect to the logits.
func CrossEntropy(logits *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	n, classes := logits.Dims()
	if n != len(labels) {
		return 0, nil, fmt.Errorf("cross entropy: %d rows but %d labels", n, len(labels))
	}
	if n == 0 {
		return 0, nil, ErrEmptyBatch
	}
	grad := mat.NewDense(n, classes, nil)
	inv := 1 / float64(n)
	total := 0.0
	for i, label := range labels {
		if label < 0 || label >= classes {
			return 0, nil, fmt.Errorf("cross entropy: label %d out of range [0, %d)", label, classes)
		}
		row := logits.RawRowView(i)
		lse := floats.LogSumExp(row)
		total += lse - row[label]

		g := grad.RawRowView(i)
		for c, z := range row {
			g[c] = math.Exp(z-lse) * inv
		}
		g[label] -= inv
	}
	return total * inv, grad, nil
}

// Accuracy returns the fraction of rows whose arg-max equals the label.
// Ties resolve to the lowest class index.
func Accuracy(logits *mat.Dense, labels []int) (float64, error) {
	n, _ := logits.Dims()
	if n != len(labels) {
		return 0, fmt.Errorf("accuracy: %d rows but %d labels", n, len(labels))
	}
	if n == 0 {
		return 0, ErrEmptyBatch
	}
	correct := 0
	for i, label := range labels {
		if floats.MaxIdx(logits.RawRowView(i)) == label {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}
