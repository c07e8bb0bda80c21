// Package parallel runs per-element work as a structured group of goroutines.
//
// Results are stored by input index, so output order matches input order no
// matter which goroutine finishes first. The first failure cancels the group's
// context and is returned; partial results are discarded.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every element of in concurrently.
func Map[In, Out any](ctx context.Context, in []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	if len(in) == 0 {
		return nil, nil
	}

	out := make([]Out, len(in))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range in {
		g.Go(func() error {
			res, err := fn(gctx, v)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// FlatMap is like Map but concatenates the per-element slices in input order.
func FlatMap[In, Out any](ctx context.Context, in []In, fn func(context.Context, In) ([]Out, error)) ([]Out, error) {
	nested, err := Map(ctx, in, fn)
	if err != nil {
		return nil, err
	}

	var total int
	for _, n := range nested {
		total += len(n)
	}
	flat := make([]Out, 0, total)
	for _, n := range nested {
		flat = append(flat, n...)
	}
	return flat, nil
}

// Each runs fn for every element concurrently.
func Each[In any](ctx context.Context, in []In, fn func(context.Context, In) error) error {
	_, err := Map(ctx, in, func(ctx context.Context, v In) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}
