package dataset

import (
	"fmt"
	"math/rand"
)

// Sample is one flattened grayscale image with its class label.
type Sample struct {
	Key    string
	Pixels []float64
	Label  int
}

// Set is an in-memory partition of samples. Images are never mutated once loaded.
type Set struct {
	Images [][]float64
	Labels []int
}

// Len returns the number of samples.
func (s *Set) Len() int {
	return len(s.Labels)
}

// Append adds a sample to the set.
func (s *Set) Append(sample Sample) {
	s.Images = append(s.Images, sample.Pixels)
	s.Labels = append(s.Labels, sample.Label)
}

// Subset returns the samples at the given indices, in that order.
func (s *Set) Subset(indices []int) *Set {
	out := &Set{
		Images: make([][]float64, len(indices)),
		Labels: make([]int, len(indices)),
	}
	for i, idx := range indices {
		out.Images[i] = s.Images[idx]
		out.Labels[i] = s.Labels[idx]
	}
	return out
}

// Width returns the flattened feature count, or 0 for an empty set.
func (s *Set) Width() int {
	if len(s.Images) == 0 {
		return 0
	}
	return len(s.Images[0])
}

func (s *Set) validate() error {
	if len(s.Images) != len(s.Labels) {
		return fmt.Errorf("dataset: %d images but %d labels", len(s.Images), len(s.Labels))
	}
	width := s.Width()
	for i, img := range s.Images {
		if len(img) != width {
			return fmt.Errorf("dataset: sample %d has %d features, want %d", i, len(img), width)
		}
	}
	return nil
}

// RandomSplit partitions s into non-overlapping subsets of the given sizes
// using a seeded permutation. The sizes must add up to s.Len().
func RandomSplit(s *Set, sizes []int, seed int64) ([]*Set, error) {
	total := 0
	for _, n := range sizes {
		if n < 0 {
			return nil, fmt.Errorf("dataset: negative split size %d", n)
		}
		total += n
	}
	if total != s.Len() {
		return nil, fmt.Errorf("dataset: split sizes sum to %d, set has %d samples", total, s.Len())
	}
	perm := rand.New(rand.NewSource(seed)).Perm(s.Len())
	out := make([]*Set, 0, len(sizes))
	offset := 0
	for _, n := range sizes {
		out = append(out, s.Subset(perm[offset:offset+n]))
		offset += n
	}
	return out, nil
}
