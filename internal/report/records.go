// Package report writes the run artifacts: the hyperparameter record, the
// metrics record and the validation history plot.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// HyperParams is the hyperparameter record written at the end of a run.
type HyperParams struct {
	Arch      string  `json:"arch"`
	LR1       float64 `json:"lr1"`
	LR2       float64 `json:"lr2"`
	NumEpochs int     `json:"num_epochs"`
	BatchSize int     `json:"batch_size"`
}

// Metrics is the final evaluation record.
type Metrics struct {
	ValAcc   float64 `json:"val_acc"`
	ValLoss  float64 `json:"val_loss"`
	TestAcc  float64 `json:"test_acc"`
	TestLoss float64 `json:"test_loss"`
}

// Validate checks that every value is finite and accuracies lie in [0, 1].
func (m Metrics) Validate() error {
	for name, v := range map[string]float64{
		"val_acc": m.ValAcc, "val_loss": m.ValLoss, "test_acc": m.TestAcc, "test_loss": m.TestLoss,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("metrics: %s is not finite", name)
		}
	}
	if m.ValAcc < 0 || m.ValAcc > 1 || m.TestAcc < 0 || m.TestAcc > 1 {
		return errors.New("metrics: accuracy outside [0, 1]")
	}
	if m.ValLoss < 0 || m.TestLoss < 0 {
		return errors.New("metrics: negative loss")
	}
	return nil
}

// WriteHyperParams writes the record to path, replacing any existing file.
func WriteHyperParams(path string, hp HyperParams) error {
	return writeJSON(path, hp)
}

// WriteMetrics validates and writes the record to path, replacing any existing file.
func WriteMetrics(path string, m Metrics) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return writeJSON(path, m)
}

// ReadHyperParams decodes a record written by WriteHyperParams.
func ReadHyperParams(path string) (HyperParams, error) {
	var hp HyperParams
	err := readJSON(path, &hp)
	return hp, err
}

// ReadMetrics decodes and validates a record written by WriteMetrics.
func ReadMetrics(path string) (Metrics, error) {
	var m Metrics
	if err := readJSON(path, &m); err != nil {
		return Metrics{}, err
	}
	if err := m.Validate(); err != nil {
		return Metrics{}, err
	}
	return m, nil
}

// DecodeMetrics strictly decodes a metrics record from r.
func DecodeMetrics(r io.Reader) (Metrics, error) {
	var m Metrics
	if err := decodeStrict(r, &m); err != nil {
		return Metrics{}, err
	}
	if err := m.Validate(); err != nil {
		return Metrics{}, err
	}
	return m, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := decodeStrict(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// decodeStrict rejects unknown fields and trailing data after the object.
func decodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after object")
	}
	return nil
}
