package model

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrEmptyBatch is returned when a reduction is asked for zero samples.
var ErrEmptyBatch = errors.New("model: empty batch")

// Batch represents a minibatch of flattened images and their labels.
// Row i of Inputs belongs to Labels[i].
type Batch struct {
	Inputs *mat.Dense
	Labels []int
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int {
	return len(b.Labels)
}

// Model defines the training functionality required by the loop.
type Model interface {
	Forward(x *mat.Dense) *mat.Dense
	TrainingStep(batch Batch) (float64, error)
	ValidationStep(batch Batch) (loss, acc float64, err error)
	Parameters() []*Param
}

// Param is a named trainable tensor with its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}
