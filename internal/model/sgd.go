package model

import "gonum.org/v1/gonum/floats"

// SGD is plain stochastic gradient descent: w -= lr * grad.
type SGD struct {
	LR float64
}

// Step applies one update to every parameter using its accumulated gradient.
func (o SGD) Step(params []*Param) {
	for _, p := range params {
		floats.AddScaled(p.Value.RawMatrix().Data, -o.LR, p.Grad.RawMatrix().Data)
	}
}

// ZeroGrad clears accumulated gradients.
func (o SGD) ZeroGrad(params []*Param) {
	for _, p := range params {
		p.Grad.Zero()
	}
}
