package fetch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of concurrent work the combinators in this file operate
// over (spec.md §4.11).
type Task[T any] func(ctx context.Context) (T, error)

// All waits for every task, resolving with a slice preserving input order.
// It returns the first error encountered; other tasks still run to
// completion but their results are discarded (spec.md §4.11's `all`).
func All[T any](ctx context.Context, tasks []Task[T]) ([]T, error) {
	results := make([]T, len(tasks))
	var g errgroup.Group
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			v, err := t(ctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// raceResult is the winner of Race/Any: its value/error.
type raceResult[T any] struct {
	value T
	err   error
}

// Race resolves or rejects with whichever task settles first.
func Race[T any](ctx context.Context, tasks []Task[T]) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan raceResult[T], len(tasks))
	for _, t := range tasks {
		t := t
		go func() {
			v, err := t(ctx)
			select {
			case ch <- raceResult[T]{value: v, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	result := <-ch
	return result.value, result.err
}

// Any resolves with the first success; if every task fails it rejects with
// a slice of all failure reasons.
func Any[T any](ctx context.Context, tasks []Task[T]) (T, []error, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		idx int
		raceResult[T]
	}
	ch := make(chan outcome, len(tasks))
	for i, t := range tasks {
		i, t := i, t
		go func() {
			v, err := t(ctx)
			ch <- outcome{idx: i, raceResult: raceResult[T]{value: v, err: err}}
		}()
	}

	errs := make([]error, len(tasks))
	received := 0
	for received < len(tasks) {
		o := <-ch
		received++
		if o.err == nil {
			return o.value, nil, nil
		}
		errs[o.idx] = o.err
	}

	var zero T
	return zero, errs, errAllFailed
}

var errAllFailed = &Error{Kind: KindTransport, Message: "all tasks failed"}

// Sequence runs factories one after another; each factory sees the results
// accumulated so far.
func Sequence[T any](ctx context.Context, factories []func(ctx context.Context, prior []T) (T, error)) ([]T, error) {
	results := make([]T, 0, len(factories))
	for _, f := range factories {
		v, err := f(ctx, results)
		if err != nil {
			return results, err
		}
		results = append(results, v)
	}
	return results, nil
}

// Map runs fn over items with at most concurrency tasks in flight, preserving
// input order in the results (spec.md §4.11's `map`). concurrency <= 0
// defaults to 5.
func Map[IN any, OUT any](ctx context.Context, items []IN, concurrency int, fn func(ctx context.Context, item IN, index int) (OUT, error)) ([]OUT, error) {
	if concurrency <= 0 {
		concurrency = 5
	}
	results := make([]OUT, len(items))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)

	for i, item := range items {
		i, item := i, item
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			v, err := fn(gctx, item, i)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
