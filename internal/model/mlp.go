package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MLP is a three layer perceptron: linear→ReLU→linear→ReLU→linear.
type MLP struct {
	inputSize  int
	hiddenSize int
	numClasses int
	linear1    *Linear
	linear2    *Linear
	linear3    *Linear
}

// NewMLP constructs the model with seeded random initialization.
// Two models built with the same arguments are identical.
func NewMLP(inputSize, hiddenSize, numClasses int, seed int64) *MLP {
	rng := rand.New(rand.NewSource(seed))
	return &MLP{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		numClasses: numClasses,
		linear1:    NewLinear("linear1", inputSize, hiddenSize, rng),
		linear2:    NewLinear("linear2", hiddenSize, hiddenSize, rng),
		linear3:    NewLinear("linear3", hiddenSize, numClasses, rng),
	}
}

// Arch describes the layer stack, e.g. "Linear(1024, 128)+Linear(128,128)+Linear(128,10)".
func (m *MLP) Arch() string {
	return fmt.Sprintf("Linear(%d, %d)+Linear(%d,%d)+Linear(%d,%d)",
		m.inputSize, m.hiddenSize, m.hiddenSize, m.hiddenSize, m.hiddenSize, m.numClasses)
}

// Forward returns raw class scores for a batch of flattened inputs.
func (m *MLP) Forward(x *mat.Dense) *mat.Dense {
	out := relu(m.linear1.Forward(x))
	out = relu(m.linear2.Forward(out))
	return m.linear3.Forward(out)
}

// TrainingStep computes the batch loss and accumulates gradients into
// every parameter. Parameters are not updated.
func (m *MLP) TrainingStep(batch Batch) (float64, error) {
	z1 := m.linear1.Forward(batch.Inputs)
	a1 := relu(z1)
	z2 := m.linear2.Forward(a1)
	a2 := relu(z2)
	logits := m.linear3.Forward(a2)

	loss, dlogits, err := CrossEntropy(logits, batch.Labels)
	if err != nil {
		return 0, err
	}

	da2 := m.linear3.backward(a2, dlogits)
	da1 := m.linear2.backward(a1, reluBackward(z2, da2))
	m.linear1.backward(batch.Inputs, reluBackward(z1, da1))
	return loss, nil
}

// ValidationStep scores a batch without touching gradients.
func (m *MLP) ValidationStep(batch Batch) (loss, acc float64, err error) {
	logits := m.Forward(batch.Inputs)
	loss, _, err = CrossEntropy(logits, batch.Labels)
	if err != nil {
		return 0, 0, err
	}
	acc, err = Accuracy(logits, batch.Labels)
	if err != nil {
		return 0, 0, err
	}
	return loss, acc, nil
}

// Parameters returns the trainable parameters in layer order.
func (m *MLP) Parameters() []*Param {
	var out []*Param
	for _, l := range []*Linear{m.linear1, m.linear2, m.linear3} {
		out = append(out, l.params()...)
	}
	return out
}

// StateDict returns a copy of every parameter keyed by name.
func (m *MLP) StateDict() map[string]*mat.Dense {
	sd := make(map[string]*mat.Dense)
	for _, p := range m.Parameters() {
		sd[p.Name] = mat.DenseCopyOf(p.Value)
	}
	return sd
}

// LoadStateDict copies values from sd into the model. Every parameter must
// be present with a matching shape; extra entries are rejected.
func (m *MLP) LoadStateDict(sd map[string]*mat.Dense) error {
	params := m.Parameters()
	if len(sd) != len(params) {
		return fmt.Errorf("load state dict: got %d tensors, model has %d", len(sd), len(params))
	}
	for _, p := range params {
		src, ok := sd[p.Name]
		if !ok {
			return fmt.Errorf("load state dict: missing %s", p.Name)
		}
		wr, wc := p.Value.Dims()
		sr, sc := src.Dims()
		if wr != sr || wc != sc {
			return fmt.Errorf("load state dict: %s shape [%d %d], want [%d %d]", p.Name, sr, sc, wr, wc)
		}
	}
	for _, p := range params {
		p.Value.Copy(sd[p.Name])
	}
	return nil
}
