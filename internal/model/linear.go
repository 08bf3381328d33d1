package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linear is a fully connected layer computing y = x·Wᵀ + b.
// Weight has shape [out, in], bias has shape [1, out].
type Linear struct {
	in, out int
	weight  *Param
	bias    *Param
}

// NewLinear builds a layer with weights and biases drawn from U(-1/√in, 1/√in).
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		in:     in,
		out:    out,
		weight: newParam(name+".weight", out, in),
		bias:   newParam(name+".bias", 1, out),
	}
	bound := 1 / math.Sqrt(float64(in))
	fill := func(p *Param) {
		raw := p.Value.RawMatrix().Data
		for i := range raw {
			raw[i] = (rng.Float64()*2 - 1) * bound
		}
	}
	fill(l.weight)
	fill(l.bias)
	return l
}

// Forward maps x [n, in] to [n, out].
func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	n, c := x.Dims()
	if c != l.in {
		panic(fmt.Sprintf("%s: expected %d input features, got %d", l.weight.Name, l.in, c))
	}
	out := mat.NewDense(n, l.out, nil)
	out.Mul(x, l.weight.Value.T())
	b := l.bias.Value.RawRowView(0)
	for i := 0; i < n; i++ {
		floats.Add(out.RawRowView(i), b)
	}
	return out
}

// backward accumulates parameter gradients for the input x that produced
// the upstream gradient dout, and returns the gradient w.r.t. x.
func (l *Linear) backward(x, dout *mat.Dense) *mat.Dense {
	var dw mat.Dense
	dw.Mul(dout.T(), x)
	l.weight.Grad.Add(l.weight.Grad, &dw)

	db := l.bias.Grad.RawRowView(0)
	n, _ := dout.Dims()
	for i := 0; i < n; i++ {
		floats.Add(db, dout.RawRowView(i))
	}

	dx := mat.NewDense(n, l.in, nil)
	dx.Mul(dout, l.weight.Value)
	return dx
}

func (l *Linear) params() []*Param {
	return []*Param{l.weight, l.bias}
}

func relu(z *mat.Dense) *mat.Dense {
	var a mat.Dense
	a.Apply(func(_, _ int, v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	}, z)
	return &a
}

// reluBackward masks the upstream gradient where the pre-activation was not positive.
func reluBackward(z, dout *mat.Dense) *mat.Dense {
	var dz mat.Dense
	dz.Apply(func(i, j int, v float64) float64 {
		if z.At(i, j) > 0 {
			return v
		}
		return 0
	}, dout)
	return &dz
}
