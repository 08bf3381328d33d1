package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"gonum.org/v1/gonum/mat"
)

func sampleState() map[string]*mat.Dense {
	return map[string]*mat.Dense{
		"linear1.weight": mat.NewDense(2, 3, []float64{0.1, -0.2, 0.3, 1e-300, -4.5, 6}),
		"linear1.bias":   mat.NewDense(1, 2, []float64{0, -0.125}),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.ckpt")
	want := sampleState()
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for name, w := range want {
		require.Contains(t, got, name)
		assert.True(t, mat.Equal(w, got[name]), name)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	a, err := Marshal(sampleState())
	require.NoError(t, err)
	b, err := Marshal(sampleState())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.ckpt")
	require.NoError(t, os.WriteFile(path, []byte("stale contents that are longer than needed"), 0o644))
	require.NoError(t, Save(path, sampleState()))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestUnmarshalRejectsTruncatedData(t *testing.T) {
	data, err := Marshal(sampleState())
	require.NoError(t, err)

	_, err = Unmarshal(data[:len(data)-3])
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestUnmarshalRejectsShapeMismatch(t *testing.T) {
	data := []byte{}
	data = append(data, 0x0a) // field 1, bytes
	inner := []byte{
		0x0a, 0x01, 'w', // name "w"
		0x10, 0x02, // rows 2
		0x18, 0x02, // cols 2
		0x22, 0x08, 0, 0, 0, 0, 0, 0, 0xf0, 0x3f, // one double (1.0)
	}
	data = append(data, byte(len(inner)))
	data = append(data, inner...)

	_, err := Unmarshal(data)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ckpt"))
	assert.Error(t, err)
}

func TestUnmarshalRejectsOversizedShape(t *testing.T) {
	var inner []byte
	inner = protowire.AppendTag(inner, fieldName, protowire.BytesType)
	inner = protowire.AppendString(inner, "w")
	inner = protowire.AppendTag(inner, fieldRows, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 1<<63)
	inner = protowire.AppendTag(inner, fieldCols, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 2)

	var data []byte
	data = protowire.AppendTag(data, fieldTensor, protowire.BytesType)
	data = protowire.AppendBytes(data, inner)

	assert.NotPanics(t, func() {
		_, err := Unmarshal(data)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}
