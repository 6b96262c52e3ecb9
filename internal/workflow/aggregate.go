package workflow

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// AggregateOptions configures Aggregate. Produce starts the work for one chunk
// (e.g. requests synthesis) and Fetch turns its output into the chunk result.
type AggregateOptions[P, T any] struct {
	// Prefix names the steps: <prefix>.<index>.produce and <prefix>.<index>.fetch.
	Prefix      string
	Chunks      []string
	Concurrency int
	Produce     func(ctx context.Context, index int, chunk string) (P, error)
	Fetch       func(ctx context.Context, index int, produced P) (T, error)
	StepOptions []StepOption
	// FetchOptions are appended to StepOptions for fetch steps only.
	FetchOptions []StepOption
}

// Aggregate runs the produce and fetch steps for every chunk, at most
// Concurrency chunks at a time, and returns the results in chunk order.
// The first chunk that fails permanently fails the whole aggregate.
func Aggregate[P, T any](ctx context.Context, job *Job, opts AggregateOptions[P, T]) ([]T, error) {
	if opts.Produce == nil || opts.Fetch == nil {
		return nil, Permanent(errors.New("aggregate requires produce and fetch funcs"))
	}
	if opts.Prefix == "" {
		opts.Prefix = "chunk"
	}

	fetchOpts := append(append([]StepOption(nil), opts.StepOptions...), opts.FetchOptions...)
	out := make([]T, len(opts.Chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.Concurrency))

	for i, chunk := range opts.Chunks {
		g.Go(func() error {
			produced, err := Step(gctx, job, stepName(opts.Prefix, i, "produce"), func(ctx context.Context) (P, error) {
				return opts.Produce(ctx, i, chunk)
			}, opts.StepOptions...)
			if err != nil {
				return err
			}
			result, err := Step(gctx, job, stepName(opts.Prefix, i, "fetch"), func(ctx context.Context) (T, error) {
				return opts.Fetch(ctx, i, produced)
			}, fetchOpts...)
			if err != nil {
				return err
			}
			out[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
