// Package engine provides small generic combinators over single-input,
// single-output functions, used where a pipeline stage benefits from a
// reusable retry wrapper instead of a hand-rolled loop. Adapted from the
// teacher's generic functional-pipeline package: the composition
// combinators built for chaining heterogeneous agent/workflow steps
// (Chain/Parallel/FanOut/Map/Reduce) have no user in this domain, since
// the pipeline's stages are a fixed sequence already expressed directly in
// pkg/pipeline; only the retry wrapper survives, now driving
// pkg/extractor's per-document read.
package engine

import (
	"context"
	"fmt"
)

// Link is a single step: an input produces an output or an error.
type Link[I, O any] func(ctx context.Context, input I) (O, error)

// Retry wraps link, retrying up to maxAttempts times before giving up.
func Retry[I, O any](link Link[I, O], maxAttempts int) Link[I, O] {
	return func(ctx context.Context, input I) (O, error) {
		var lastErr error
		var zero O

		for attempt := 0; attempt < maxAttempts; attempt++ {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			default:
			}

			output, err := link(ctx, input)
			if err == nil {
				return output, nil
			}
			lastErr = err
		}

		return zero, fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
	}
}
