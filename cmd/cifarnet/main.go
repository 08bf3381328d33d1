package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/klauspost/cpuid/v2"

	"cifarnet/internal/config"
	"cifarnet/internal/dataset"
	"cifarnet/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	dataDir := flag.String("data-dir", "", "Override dataset directory")
	format := flag.String("format", "", "Override dataset format (cifar10, webdataset)")
	outDir := flag.String("out-dir", "", "Override output directory")
	batchSize := flag.Int("batch-size", 0, "Training batch size")
	numWorkers := flag.Int("num-workers", 0, "Number of batch prefetch workers")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Log every N training steps")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(config.Overrides{
		DataDir:    *dataDir,
		Format:     *format,
		OutDir:     *outDir,
		BatchSize:  *batchSize,
		NumWorkers: *numWorkers,
		Seed:       *seed,
		LogEvery:   *logEvery,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logDevice()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	full, test, err := loadPartitions(ctx, cfg)
	if err != nil {
		log.Fatalf("load dataset: %v", err)
	}
	if full.Len() <= cfg.ValSize {
		log.Fatalf("val_size %d leaves no training samples (dataset has %d)", cfg.ValSize, full.Len())
	}
	parts, err := dataset.RandomSplit(full, []int{full.Len() - cfg.ValSize, cfg.ValSize}, cfg.Seed)
	if err != nil {
		log.Fatalf("split dataset: %v", err)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}
	out := func(name string) string {
		if name == "" {
			return ""
		}
		return filepath.Join(cfg.OutDir, name)
	}

	runCfg := trainer.RunConfig{
		Train:           parts[0],
		Val:             parts[1],
		Test:            test,
		BatchSize:       cfg.BatchSize,
		EvalBatchSize:   cfg.EvalBatchSize,
		TestBatchSize:   cfg.TestBatchSize,
		NumWorkers:      cfg.NumWorkers,
		HiddenSize:      cfg.HiddenSize,
		LogEvery:        cfg.LogEvery,
		Seed:            cfg.Seed,
		Schedule:        cfg.Schedule,
		CheckpointPath:  out(cfg.Checkpoint),
		HyperParamsPath: out(cfg.HyperParams),
		MetricsPath:     out(cfg.Metrics),
		PlotPath:        out(cfg.Plot),
	}

	summary, err := trainer.Run(ctx, runCfg)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("done val_acc=%.4f val_loss=%.4f test_acc=%.4f test_loss=%.4f",
		summary.Metrics.ValAcc, summary.Metrics.ValLoss, summary.Metrics.TestAcc, summary.Metrics.TestLoss)
}

func loadPartitions(ctx context.Context, cfg *config.Config) (train, test *dataset.Set, err error) {
	switch cfg.Format {
	case config.FormatCIFAR10:
		if train, err = dataset.LoadCIFAR10(cfg.DataDir, true); err != nil {
			return nil, nil, err
		}
		if test, err = dataset.LoadCIFAR10(cfg.DataDir, false); err != nil {
			return nil, nil, err
		}
	case config.FormatWebDataset:
		side, classes := dataset.CIFARSide, dataset.CIFARClasses
		if train, err = dataset.LoadShards(ctx, filepath.Join(cfg.DataDir, "train"), side, classes); err != nil {
			return nil, nil, err
		}
		if test, err = dataset.LoadShards(ctx, filepath.Join(cfg.DataDir, "test"), side, classes); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("unsupported format %q", cfg.Format)
	}
	log.Printf("format=%s dir=%s train=%d test=%d", cfg.Format, cfg.DataDir, train.Len(), test.Len())
	return train, test, nil
}

// logDevice reports the compute device. All numerics run on the CPU.
func logDevice() {
	log.Printf("device=cpu brand=%q cores=%d logical=%d avx2=%t fma3=%t gomaxprocs=%d",
		cpuid.CPU.BrandName,
		cpuid.CPU.PhysicalCores,
		cpuid.CPU.LogicalCores,
		cpuid.CPU.Supports(cpuid.AVX2),
		cpuid.CPU.Supports(cpuid.FMA3),
		runtime.GOMAXPROCS(0),
	)
}
