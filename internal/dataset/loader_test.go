package dataset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectFirstColumn(t *testing.T, l *Loader) ([]float64, []int) {
	t.Helper()
	it := l.Iter(context.Background())
	defer it.Close()
	var firsts []float64
	var sizes []int
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		sizes = append(sizes, b.Len())
		for i := 0; i < b.Len(); i++ {
			firsts = append(firsts, b.Inputs.At(i, 0))
		}
	}
	require.NoError(t, it.Err())
	return firsts, sizes
}

func TestLoaderBatchSizesAndOrder(t *testing.T) {
	l, err := NewLoader(makeSet(10, 3), LoaderOptions{BatchSize: 4, NumWorkers: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())

	firsts, sizes := collectFirstColumn(t, l)
	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, firsts)
}

func TestLoaderOrderIndependentOfWorkers(t *testing.T) {
	set := makeSet(97, 2)
	one, err := NewLoader(set, LoaderOptions{BatchSize: 8, Shuffle: true, NumWorkers: 1, Seed: 5})
	require.NoError(t, err)
	many, err := NewLoader(set, LoaderOptions{BatchSize: 8, Shuffle: true, NumWorkers: 6, Seed: 5})
	require.NoError(t, err)

	for pass := 0; pass < 2; pass++ {
		a, _ := collectFirstColumn(t, one)
		b, _ := collectFirstColumn(t, many)
		assert.Equal(t, a, b, "pass %d", pass)
		assert.Len(t, a, 97)
	}
}

func TestLoaderShuffleChangesBetweenPasses(t *testing.T) {
	l, err := NewLoader(makeSet(64, 1), LoaderOptions{BatchSize: 16, Shuffle: true, Seed: 1})
	require.NoError(t, err)
	first, _ := collectFirstColumn(t, l)
	second, _ := collectFirstColumn(t, l)
	assert.NotEqual(t, first, second)
	assert.ElementsMatch(t, first, second)
}

func TestLoaderCloseEarly(t *testing.T) {
	l, err := NewLoader(makeSet(100, 2), LoaderOptions{BatchSize: 1, NumWorkers: 4})
	require.NoError(t, err)
	it := l.Iter(context.Background())
	_, ok := it.Next()
	require.True(t, ok)
	it.Close()
	it.Close()
}

func TestLoaderCancelledContext(t *testing.T) {
	l, err := NewLoader(makeSet(100, 2), LoaderOptions{BatchSize: 1, NumWorkers: 2})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	it := l.Iter(ctx)
	defer it.Close()
	for {
		if _, ok := it.Next(); !ok {
			break
		}
	}
	assert.ErrorIs(t, it.Err(), context.Canceled)
}

func TestNewLoaderValidation(t *testing.T) {
	_, err := NewLoader(&Set{}, LoaderOptions{BatchSize: 1})
	assert.Error(t, err)

	_, err = NewLoader(makeSet(3, 2), LoaderOptions{BatchSize: 0})
	assert.Error(t, err)

	ragged := makeSet(2, 2)
	ragged.Images[1] = []float64{1}
	_, err = NewLoader(ragged, LoaderOptions{BatchSize: 1})
	assert.Error(t, err)
}
