package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type FailurePolicy int

const (
	// FailurePolicyContinue records per-item errors and keeps processing the rest.
	FailurePolicyContinue FailurePolicy = iota
	FailurePolicyFailFast
)

type Options struct {
	Workers int

	// ItemTimeout bounds a single item. Set to <=0 to disable.
	ItemTimeout time.Duration

	// RateLimitRPS is a global limit on item starts across all workers. Set to <=0 to disable.
	RateLimitRPS float64

	FailurePolicy FailurePolicy
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Input  In
	Output Out
	Err    error
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	return o
}

// ProcessAll runs fn over all items and returns results in input order.
//
// Each item is owned by exactly one worker; fn must not share mutable state
// between items.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	fn func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, fn, nil, opts)
}

// ProcessAllWithCallback is ProcessAll with a hook invoked as each item
// completes, in completion order, from a single goroutine. A callback error
// stops the run.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	fn func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	out := make([]Result[In, Out], len(items))

	type job struct {
		idx int
		in  In
	}
	type completion struct {
		idx int
		res Result[In, Out]
	}

	jobs := make(chan job)
	done := make(chan completion, opts.Workers)

	var wg sync.WaitGroup

	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	workerFn := func() {
		defer wg.Done()
		for j := range jobs {
			if runCtx.Err() != nil {
				return
			}
			res := processOne(runCtx, j.in, fn, limiter, opts.ItemTimeout)
			select {
			case done <- completion{idx: j.idx, res: res}:
			case <-runCtx.Done():
				return
			}
			if res.Err != nil && opts.FailurePolicy == FailurePolicyFailFast {
				fail(res.Err)
				return
			}
		}
	}

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go workerFn()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{idx: i, in: item}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	for item := range done {
		out[item.idx] = item.res
		if onResult != nil {
			if err := onResult(item.res); err != nil {
				fail(err)
			}
		}
	}

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func processOne[In any, Out any](
	ctx context.Context,
	item In,
	fn func(context.Context, In) (Out, error),
	limiter *rate.Limiter,
	timeout time.Duration,
) Result[In, Out] {
	res := Result[In, Out]{Input: item}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
	}

	itemCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res.Output, res.Err = fn(itemCtx, item)
	return res
}
