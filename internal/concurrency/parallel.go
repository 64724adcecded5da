package concurrency

import (
	"context"
	"sync"
)

// ParallelOptions configures the worker pools in this package.
type ParallelOptions struct {
	// MaxWorkers bounds the number of goroutines running work at once. Zero
	// means 10.
	MaxWorkers int
}

func (o ParallelOptions) workers(items int) int {
	n := o.MaxWorkers
	if n <= 0 {
		n = 10
	}
	if items > 0 && n > items {
		n = items
	}
	return n
}

type indexed[R any] struct {
	index  int
	result R
	err    error
}

// ProcessParallel runs itemFunc over items with bounded parallelism and returns
// results in input order. Items not started before ctx is done are reported
// with ctx.Err().
func ProcessParallel[T any, R any](
	ctx context.Context,
	items []T,
	opts ParallelOptions,
	itemFunc func(ctx context.Context, index int, item T) (R, error),
) ([]R, []error) {
	if len(items) == 0 {
		return []R{}, nil
	}

	jobs := make(chan int, len(items))
	results := make(chan indexed[R], len(items))

	var wg sync.WaitGroup
	for w := 0; w < opts.workers(len(items)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					results <- indexed[R]{index: i, err: err}
					continue
				}
				r, err := itemFunc(ctx, i, items[i])
				results <- indexed[R]{index: i, result: r, err: err}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]R, len(items))
	var errs []error
	for res := range results {
		if res.err != nil {
			errs = append(errs, res.err)
		}
		out[res.index] = res.result
	}
	return out, errs
}

// ForEach runs itemFunc over items for side effects only.
func ForEach[T any](
	ctx context.Context,
	items []T,
	opts ParallelOptions,
	itemFunc func(ctx context.Context, index int, item T) error,
) []error {
	_, errs := ProcessParallel(ctx, items, opts, func(ctx context.Context, i int, item T) (struct{}, error) {
		return struct{}{}, itemFunc(ctx, i, item)
	})
	return errs
}

// Pool runs submitted tasks on at most MaxWorkers goroutines. Unlike ForEach,
// the caller controls submission, so it can pace or stop submitting.
type Pool struct {
	ctx  context.Context
	sem  chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func NewPool(ctx context.Context, opts ParallelOptions) *Pool {
	return &Pool{ctx: ctx, sem: make(chan struct{}, opts.workers(0))}
}

// Go blocks until a worker slot is free, then runs fn on it. It returns
// ctx.Err() without running fn when the pool's context is done.
func (p *Pool) Go(fn func(ctx context.Context) error) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.sem <- struct{}{}:
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		if err := fn(p.ctx); err != nil {
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		}
	}()
	return nil
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() []error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs
}
