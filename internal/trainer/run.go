package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"cifarnet/internal/checkpoint"
	"cifarnet/internal/config"
	"cifarnet/internal/dataset"
	"cifarnet/internal/metrics"
	"cifarnet/internal/model"
	"cifarnet/internal/report"
)

const numClasses = dataset.CIFARClasses

// RunConfig captures everything a training run needs. Sets are already
// split; paths are written as given.
type RunConfig struct {
	Train *dataset.Set
	Val   *dataset.Set
	Test  *dataset.Set

	BatchSize     int
	EvalBatchSize int
	TestBatchSize int
	NumWorkers    int
	HiddenSize    int
	LogEvery      int
	Seed          int64
	Schedule      []config.Phase

	CheckpointPath  string
	HyperParamsPath string
	MetricsPath     string
	PlotPath        string
}

// Summary reports the outcome of a run.
type Summary struct {
	// History is the baseline evaluation followed by one entry per epoch.
	History  metrics.History
	Test     metrics.Result
	Reloaded metrics.Result
	Params   report.HyperParams
	Metrics  report.Metrics
}

// Run trains a fresh model through every schedule phase, scores it on the
// test set, checkpoints it, verifies the checkpoint by reloading it, and
// writes the hyperparameter and metrics records.
func Run(ctx context.Context, cfg RunConfig) (*Summary, error) {
	if cfg.Train == nil || cfg.Val == nil || cfg.Test == nil {
		return nil, errors.New("trainer: train, val and test sets are required")
	}
	if cfg.HiddenSize <= 0 {
		return nil, errors.New("trainer: hidden size must be > 0")
	}

	train, err := dataset.NewLoader(cfg.Train, dataset.LoaderOptions{
		BatchSize:  cfg.BatchSize,
		Shuffle:    true,
		NumWorkers: cfg.NumWorkers,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("train loader: %w", err)
	}
	val, err := dataset.NewLoader(cfg.Val, dataset.LoaderOptions{
		BatchSize:  cfg.EvalBatchSize,
		NumWorkers: cfg.NumWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("val loader: %w", err)
	}
	test, err := dataset.NewLoader(cfg.Test, dataset.LoaderOptions{
		BatchSize:  cfg.TestBatchSize,
		NumWorkers: cfg.NumWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("test loader: %w", err)
	}

	inputSize := cfg.Train.Width()
	mdl := model.NewMLP(inputSize, cfg.HiddenSize, numClasses, cfg.Seed)
	log.Printf("model=%s train=%d val=%d test=%d", mdl.Arch(), train.Samples(), val.Samples(), test.Samples())

	baseline, err := Evaluate(ctx, mdl, val)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	log.Printf("baseline val_loss=%.4f val_acc=%.4f", baseline.Loss, baseline.Acc)
	history := metrics.History{baseline}

	for i, phase := range cfg.Schedule {
		log.Printf("phase=%d epochs=%d lr=%g", i+1, phase.Epochs, phase.LR)
		h, err := Fit(ctx, phase.Epochs, phase.LR, mdl, train, val, cfg.LogEvery)
		history = append(history, h...)
		if err != nil {
			return nil, fmt.Errorf("phase %d: %w", i+1, err)
		}
	}

	testResult, err := Evaluate(ctx, mdl, test)
	if err != nil {
		return nil, fmt.Errorf("test: %w", err)
	}
	log.Printf("test_loss=%.4f test_acc=%.4f", testResult.Loss, testResult.Acc)

	if err := checkpoint.Save(cfg.CheckpointPath, mdl.StateDict()); err != nil {
		return nil, err
	}
	reloaded, err := reloadAndEvaluate(ctx, cfg, inputSize, test)
	if err != nil {
		return nil, err
	}
	if !sameResult(reloaded, testResult) {
		return nil, fmt.Errorf("checkpoint %s: reloaded model scores %+v, trained model %+v",
			cfg.CheckpointPath, reloaded, testResult)
	}
	log.Printf("checkpoint=%s reloaded test_loss=%.4f test_acc=%.4f", cfg.CheckpointPath, reloaded.Loss, reloaded.Acc)

	summary := &Summary{
		History:  history,
		Test:     testResult,
		Reloaded: reloaded,
		Params:   hyperParams(mdl.Arch(), cfg),
	}
	last, _ := history.Last()
	summary.Metrics = report.Metrics{
		ValAcc:   last.Acc,
		ValLoss:  last.Loss,
		TestAcc:  testResult.Acc,
		TestLoss: testResult.Loss,
	}

	if err := report.WriteHyperParams(cfg.HyperParamsPath, summary.Params); err != nil {
		return nil, err
	}
	if err := report.WriteMetrics(cfg.MetricsPath, summary.Metrics); err != nil {
		return nil, err
	}
	if cfg.PlotPath != "" {
		if err := report.PlotHistory(cfg.PlotPath, history); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

func reloadAndEvaluate(ctx context.Context, cfg RunConfig, inputSize int, test *dataset.Loader) (metrics.Result, error) {
	state, err := checkpoint.Load(cfg.CheckpointPath)
	if err != nil {
		return metrics.Result{}, err
	}
	fresh := model.NewMLP(inputSize, cfg.HiddenSize, numClasses, cfg.Seed+1)
	if err := fresh.LoadStateDict(state); err != nil {
		return metrics.Result{}, err
	}
	return Evaluate(ctx, fresh, test)
}

func hyperParams(arch string, cfg RunConfig) report.HyperParams {
	hp := report.HyperParams{Arch: arch, BatchSize: cfg.BatchSize}
	hp.NumEpochs = config.TotalEpochs(cfg.Schedule)
	for i, phase := range cfg.Schedule {
		switch i {
		case 0:
			hp.LR1 = phase.LR
		case 1:
			hp.LR2 = phase.LR
		}
	}
	return hp
}

func sameResult(a, b metrics.Result) bool {
	const tol = 1e-9
	return math.Abs(a.Loss-b.Loss) <= tol && math.Abs(a.Acc-b.Acc) <= tol
}
