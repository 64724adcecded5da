package loaders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"catalog-sync/internal/concurrency"
)

// pager fans page fetches out over a bounded pool. With concurrent set each
// worker also processes its own page; otherwise pages are processed one at a
// time on the calling goroutine, in page order.
type pager struct {
	workers    int
	concurrent bool
	throttle   *rate.Limiter
}

func newPager(workers int, concurrent bool, delay time.Duration) pager {
	p := pager{workers: workers, concurrent: concurrent}
	if delay > 0 {
		// Burst of one: the first page goes out immediately, then one per delay.
		p.throttle = rate.NewLimiter(rate.Every(delay), 1)
	}
	return p
}

func (p pager) wait(ctx context.Context) error {
	if p.throttle == nil {
		return ctx.Err()
	}
	return p.throttle.Wait(ctx)
}

// pageRange returns first..last inclusive.
func pageRange(first, last int) []int {
	if last < first {
		return nil
	}
	out := make([]int, 0, last-first+1)
	for i := first; i <= last; i++ {
		out = append(out, i)
	}
	return out
}

// walkPages fetches and processes every page in pages. In concurrent mode
// every failure is collected; in serial mode the first failure stops the walk.
func walkPages[P any](
	ctx context.Context,
	p pager,
	pages []int,
	fetch func(ctx context.Context, page int) (P, error),
	process func(ctx context.Context, page int, data P) error,
) error {
	if len(pages) == 0 {
		return nil
	}
	if p.concurrent {
		return walkConcurrent(ctx, p, pages, fetch, process)
	}
	return walkSerial(ctx, p, pages, fetch, process)
}

func walkConcurrent[P any](
	ctx context.Context,
	p pager,
	pages []int,
	fetch func(ctx context.Context, page int) (P, error),
	process func(ctx context.Context, page int, data P) error,
) error {
	pool := concurrency.NewPool(ctx, concurrency.ParallelOptions{MaxWorkers: p.workers})

	var submitErr error
	for _, page := range pages {
		if err := p.wait(ctx); err != nil {
			submitErr = err
			break
		}
		err := pool.Go(func(ctx context.Context) error {
			data, err := fetch(ctx, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			return process(ctx, page, data)
		})
		if err != nil {
			submitErr = err
			break
		}
	}

	errs := pool.Wait()
	if submitErr != nil {
		errs = append(errs, submitErr)
	}
	return errors.Join(errs...)
}

type fetched[P any] struct {
	data P
	err  error
}

func walkSerial[P any](
	ctx context.Context,
	p pager,
	pages []int,
	fetch func(ctx context.Context, page int) (P, error),
	process func(ctx context.Context, page int, data P) error,
) error {
	ctx, cancel := context.WithCancel(ctx)
	pool := concurrency.NewPool(ctx, concurrency.ParallelOptions{MaxWorkers: p.workers})

	// One buffered slot per page so fetchers never block on a slow consumer.
	slots := make([]chan fetched[P], len(pages))
	for i := range slots {
		slots[i] = make(chan fetched[P], 1)
	}

	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i, page := range pages {
			err := p.wait(ctx)
			if err == nil {
				err = pool.Go(func(ctx context.Context) error {
					data, err := fetch(ctx, page)
					slots[i] <- fetched[P]{data: data, err: err}
					return nil
				})
			}
			if err != nil {
				for _, slot := range slots[i:] {
					slot <- fetched[P]{err: err}
				}
				return
			}
		}
	}()
	defer func() {
		cancel()
		<-submitted
		pool.Wait()
	}()

	for i, page := range pages {
		res := <-slots[i]
		if res.err != nil {
			return fmt.Errorf("page %d: %w", page, res.err)
		}
		if err := process(ctx, page, res.data); err != nil {
			return err
		}
	}
	return nil
}
