package trainer

import (
	"context"
	"fmt"
	"log"
	"time"

	"cifarnet/internal/dataset"
	"cifarnet/internal/metrics"
	"cifarnet/internal/model"
)

// Fit trains mdl for the given number of epochs at a fixed learning rate,
// evaluating on val after every epoch. It returns one result per epoch.
// With zero epochs the parameters are left untouched.
func Fit(ctx context.Context, epochs int, lr float64, mdl model.Model, train, val *dataset.Loader, logEvery int) (metrics.History, error) {
	if logEvery <= 0 {
		logEvery = 200
	}
	opt := model.SGD{LR: lr}
	history := make(metrics.History, 0, epochs)
	for epoch := 0; epoch < epochs; epoch++ {
		if err := trainEpoch(ctx, epoch, mdl, opt, train, logEvery); err != nil {
			return history, err
		}
		result, err := Evaluate(ctx, mdl, val)
		if err != nil {
			return history, err
		}
		log.Printf("epoch=%d val_loss=%.4f val_acc=%.4f", epoch, result.Loss, result.Acc)
		history = append(history, result)
	}
	return history, nil
}

func trainEpoch(ctx context.Context, epoch int, mdl model.Model, opt model.SGD, train *dataset.Loader, logEvery int) error {
	it := train.Iter(ctx)
	defer it.Close()

	params := mdl.Parameters()
	var window metrics.Window
	step := 0
	for {
		startData := time.Now()
		batch, ok := it.Next()
		if !ok {
			break
		}
		dataTime := time.Since(startData)

		startCompute := time.Now()
		loss, err := mdl.TrainingStep(batch)
		if err != nil {
			return fmt.Errorf("epoch %d step %d: %w", epoch, step, err)
		}
		opt.Step(params)
		opt.ZeroGrad(params)
		computeTime := time.Since(startCompute)

		window.Record(batch.Len(), dataTime, computeTime, loss)
		step++

		if step%logEvery == 0 {
			snap := window.Snapshot()
			log.Printf("epoch=%d step=%d/%d images_per_sec=%.1f data_ms=%.2f compute_ms=%.2f loss=%.4f last_loss=%.4f",
				epoch,
				step,
				train.Len(),
				snap.ImagesPerSec,
				snap.AvgDataMS,
				snap.AvgComputeMS,
				snap.AvgLoss,
				snap.LastLoss,
			)
		}
	}
	return it.Err()
}

// Evaluate scores mdl on every batch of loader without updating it and
// reduces the per-batch results by their mean.
func Evaluate(ctx context.Context, mdl model.Model, loader *dataset.Loader) (metrics.Result, error) {
	it := loader.Iter(ctx)
	defer it.Close()

	var steps []metrics.Result
	for {
		batch, ok := it.Next()
		if !ok {
			break
		}
		loss, acc, err := mdl.ValidationStep(batch)
		if err != nil {
			return metrics.Result{}, fmt.Errorf("evaluate batch %d: %w", len(steps), err)
		}
		steps = append(steps, metrics.Result{Loss: loss, Acc: acc})
	}
	if err := it.Err(); err != nil {
		return metrics.Result{}, err
	}
	return metrics.Mean(steps)
}
