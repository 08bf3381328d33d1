package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"cifarnet/internal/model"
)

// LoaderOptions configures batching and prefetching.
type LoaderOptions struct {
	BatchSize  int
	Shuffle    bool
	NumWorkers int
	Seed       int64
}

// Loader serves a Set as fixed-size batches. The last batch of a pass may be
// shorter. A shuffling Loader draws a fresh permutation for every pass.
type Loader struct {
	set  *Set
	opts LoaderOptions
	rng  *rand.Rand
}

// NewLoader validates set and returns a Loader over it.
func NewLoader(set *Set, opts LoaderOptions) (*Loader, error) {
	if set == nil || set.Len() == 0 {
		return nil, errors.New("loader: empty dataset")
	}
	if err := set.validate(); err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("loader: batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	return &Loader{
		set:  set,
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// Len returns the number of batches in one pass.
func (l *Loader) Len() int {
	return (l.set.Len() + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Samples returns the number of samples in one pass.
func (l *Loader) Samples() int {
	return l.set.Len()
}

// Iter starts one pass over the data. Batches are assembled by a pool of
// NumWorkers goroutines and delivered in order. Iter must not be called
// concurrently with itself.
func (l *Loader) Iter(parent context.Context) *Iterator {
	order := make([]int, l.set.Len())
	if l.opts.Shuffle {
		order = l.rng.Perm(len(order))
	} else {
		for i := range order {
			order[i] = i
		}
	}

	ctx, cancel := context.WithCancel(parent)
	total := l.Len()
	jobs := make(chan batchJob, l.opts.NumWorkers)
	results := make(chan builtBatch, l.opts.NumWorkers*2)
	out := make(chan model.Batch, l.opts.NumWorkers)
	done := make(chan struct{})

	go produceJobs(ctx, jobs, order, l.opts.BatchSize)

	var wg sync.WaitGroup
	for i := 0; i < l.opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, l.set, jobs, results)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(done)
		defer close(out)
		runAggregator(ctx, results, out, total)
	}()

	return &Iterator{ctx: ctx, cancel: cancel, out: out, done: done, total: total}
}

// Iterator yields the batches of one pass.
type Iterator struct {
	ctx     context.Context
	cancel  context.CancelFunc
	out     <-chan model.Batch
	done    <-chan struct{}
	total   int
	yielded int
}

// Next returns the next batch. It reports false once the pass is exhausted
// or the context was cancelled; check Err to tell the two apart.
func (it *Iterator) Next() (model.Batch, bool) {
	b, ok := <-it.out
	if !ok {
		return model.Batch{}, false
	}
	it.yielded++
	return b, true
}

// Err returns the context error if the pass ended before every batch was delivered.
func (it *Iterator) Err() error {
	if it.yielded < it.total {
		if err := it.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the prefetch goroutines. It is safe to call more than once.
func (it *Iterator) Close() {
	it.cancel()
	<-it.done
}

type batchJob struct {
	id      int
	indices []int
}

type builtBatch struct {
	id    int
	batch model.Batch
}

func produceJobs(ctx context.Context, jobs chan<- batchJob, order []int, batchSize int) {
	defer close(jobs)
	for id, start := 0, 0; start < len(order); id, start = id+1, start+batchSize {
		end := start + batchSize
		if end > len(order) {
			end = len(order)
		}
		select {
		case <-ctx.Done():
			return
		case jobs <- batchJob{id: id, indices: order[start:end]}:
		}
	}
}

func worker(ctx context.Context, set *Set, jobs <-chan batchJob, results chan<- builtBatch) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			built := builtBatch{id: job.id, batch: assemble(set, job.indices)}
			select {
			case <-ctx.Done():
				return
			case results <- built:
			}
		}
	}
}

func assemble(set *Set, indices []int) model.Batch {
	inputs := mat.NewDense(len(indices), set.Width(), nil)
	labels := make([]int, len(indices))
	for i, idx := range indices {
		inputs.SetRow(i, set.Images[idx])
		labels[i] = set.Labels[idx]
	}
	return model.Batch{Inputs: inputs, Labels: labels}
}

// runAggregator re-orders built batches by id so delivery order does not
// depend on worker scheduling.
func runAggregator(ctx context.Context, results <-chan builtBatch, out chan<- model.Batch, total int) {
	pending := make(map[int]model.Batch)
	next := 0
	for next < total {
		batch, ok := pending[next]
		if !ok {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-results:
				if !ok {
					return
				}
				pending[r.id] = r.batch
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case out <- batch:
		}
		delete(pending, next)
		next++
	}
}
