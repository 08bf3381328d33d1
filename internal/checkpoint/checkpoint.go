// Package checkpoint persists named parameter matrices.
//
// The file is a protobuf wire-format message:
//
//	message Checkpoint { repeated Tensor tensors = 1; }
//	message Tensor {
//	  string name = 1;
//	  uint64 rows = 2;
//	  uint64 cols = 3;
//	  repeated double data = 4 [packed = true];
//	}
//
// Tensors are written in name order so that equal inputs produce equal files.
package checkpoint

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
	"gonum.org/v1/gonum/mat"
)

// ErrMalformed indicates the checkpoint bytes could not be decoded.
var ErrMalformed = errors.New("checkpoint: malformed data")

const (
	fieldTensor = 1

	fieldName = 1
	fieldRows = 2
	fieldCols = 3
	fieldData = 4
)

// Save writes the state dict to path, replacing any existing file.
func Save(path string, state map[string]*mat.Dense) error {
	data, err := Marshal(state)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Load reads a state dict previously written by Save.
func Load(path string) (map[string]*mat.Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return Unmarshal(data)
}

// Marshal encodes the state dict.
func Marshal(state map[string]*mat.Dense) ([]byte, error) {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []byte
	for _, name := range names {
		if name == "" {
			return nil, errors.New("checkpoint: empty tensor name")
		}
		out = protowire.AppendTag(out, fieldTensor, protowire.BytesType)
		out = protowire.AppendBytes(out, marshalTensor(name, state[name]))
	}
	return out, nil
}

func marshalTensor(name string, m *mat.Dense) []byte {
	rows, cols := m.Dims()
	var b []byte
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, name)
	b = protowire.AppendTag(b, fieldRows, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rows))
	b = protowire.AppendTag(b, fieldCols, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(cols))

	packed := make([]byte, 0, rows*cols*8)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			packed = protowire.AppendFixed64(packed, math.Float64bits(m.At(i, j)))
		}
	}
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)
	return b
}

// Unmarshal decodes bytes produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) (map[string]*mat.Dense, error) {
	state := make(map[string]*mat.Dense)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if num != fieldTensor || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		msg, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		name, m, err := unmarshalTensor(msg)
		if err != nil {
			return nil, err
		}
		if _, dup := state[name]; dup {
			return nil, fmt.Errorf("%w: duplicate tensor %q", ErrMalformed, name)
		}
		state[name] = m
	}
	return state, nil
}

func unmarshalTensor(b []byte) (string, *mat.Dense, error) {
	var (
		name       string
		rows, cols uint64
		data       []float64
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldName && typ == protowire.BytesType:
			name, n = protowire.ConsumeString(b)
		case num == fieldRows && typ == protowire.VarintType:
			rows, n = protowire.ConsumeVarint(b)
		case num == fieldCols && typ == protowire.VarintType:
			cols, n = protowire.ConsumeVarint(b)
		case num == fieldData && typ == protowire.BytesType:
			var packed []byte
			packed, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				if len(packed)%8 != 0 {
					return "", nil, fmt.Errorf("%w: packed data length %d", ErrMalformed, len(packed))
				}
				for len(packed) > 0 {
					v, m := protowire.ConsumeFixed64(packed)
					data = append(data, math.Float64frombits(v))
					packed = packed[m:]
				}
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
	}

	if name == "" {
		return "", nil, fmt.Errorf("%w: tensor without name", ErrMalformed)
	}
	if rows == 0 || cols == 0 {
		return "", nil, fmt.Errorf("%w: tensor %s has shape [%d %d]", ErrMalformed, name, rows, cols)
	}
	if rows > math.MaxInt32 || cols > math.MaxInt32 {
		return "", nil, fmt.Errorf("%w: tensor %s shape [%d %d] too large", ErrMalformed, name, rows, cols)
	}
	if uint64(len(data)) != rows*cols {
		return "", nil, fmt.Errorf("%w: tensor %s has %d values for shape [%d %d]", ErrMalformed, name, len(data), rows, cols)
	}
	return name, mat.NewDense(int(rows), int(cols), data), nil
}
