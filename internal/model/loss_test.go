package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestAccuracyKnownLogits(t *testing.T) {
	logits := mat.NewDense(4, 3, []float64{
		2.0, 0.1, 0.3,
		0.2, 1.5, 0.1,
		0.1, 0.2, 0.9,
		1.0, 0.0, 0.5,
	})
	acc, err := Accuracy(logits, []int{0, 1, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, 0.75, acc)
}

func TestAccuracyTiesPickLowestIndex(t *testing.T) {
	logits := mat.NewDense(1, 3, []float64{0.5, 0.5, 0.1})
	acc, err := Accuracy(logits, []int{0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)
}

func TestAccuracyEmptyBatch(t *testing.T) {
	_, err := Accuracy(&mat.Dense{}, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestAccuracyLengthMismatch(t *testing.T) {
	_, err := Accuracy(mat.NewDense(2, 3, nil), []int{1})
	assert.Error(t, err)
}

func TestAccuracyWithinUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(16)
		data := make([]float64, n*10)
		for i := range data {
			data[i] = rng.NormFloat64()
		}
		labels := make([]int, n)
		for i := range labels {
			labels[i] = rng.Intn(10)
		}
		acc, err := Accuracy(mat.NewDense(n, 10, data), labels)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, acc, 0.0)
		assert.LessOrEqual(t, acc, 1.0)
	}
}

func TestCrossEntropyUniformLogits(t *testing.T) {
	loss, grad, err := CrossEntropy(mat.NewDense(2, 10, nil), []int{3, 7})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(10), loss, 1e-12)

	// softmax is 0.1 everywhere, mean over 2 rows
	assert.InDelta(t, 0.05, grad.At(0, 0), 1e-12)
	assert.InDelta(t, (0.1-1)/2, grad.At(0, 3), 1e-12)
	assert.InDelta(t, (0.1-1)/2, grad.At(1, 7), 1e-12)
}

func TestCrossEntropyLargeLogitsStayFinite(t *testing.T) {
	loss, _, err := CrossEntropy(mat.NewDense(1, 2, []float64{1000, -1000}), []int{1})
	require.NoError(t, err)
	assert.InDelta(t, 2000, loss, 1e-9)
}

func TestCrossEntropyRejectsBadLabels(t *testing.T) {
	_, _, err := CrossEntropy(mat.NewDense(1, 3, nil), []int{3})
	assert.Error(t, err)

	_, _, err = CrossEntropy(&mat.Dense{}, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}
