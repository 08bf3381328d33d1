package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(64, 20*time.Millisecond, 10*time.Millisecond, 1.2)
	w.Record(64, 10*time.Millisecond, 20*time.Millisecond, 0.8)

	snap := w.Snapshot()
	assert.InDelta(t, 2133.3333, snap.ImagesPerSec, 1)
	assert.InDelta(t, 15.0, snap.AvgDataMS, 1e-9)
	assert.InDelta(t, 1.0, snap.AvgLoss, 1e-12)
	assert.Equal(t, 0.8, snap.LastLoss)
	assert.Equal(t, Window{}, w, "window was not reset")
}

func TestMean(t *testing.T) {
	got, err := Mean([]Result{{Loss: 1, Acc: 0.5}, {Loss: 3, Acc: 1}})
	require.NoError(t, err)
	assert.Equal(t, Result{Loss: 2, Acc: 0.75}, got)

	_, err = Mean(nil)
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestHistoryColumns(t *testing.T) {
	h := History{{Loss: 2.3, Acc: 0.1}, {Loss: 1.9, Acc: 0.3}}
	assert.Equal(t, []float64{2.3, 1.9}, h.Losses())
	assert.Equal(t, []float64{0.1, 0.3}, h.Accuracies())

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, 0.3, last.Acc)

	_, ok = History{}.Last()
	assert.False(t, ok)
}
