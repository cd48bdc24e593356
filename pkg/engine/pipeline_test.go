package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plattargus/detalhar/pkg/engine"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	link := engine.Link[string, string](func(ctx context.Context, input string) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("transient")
		}
		return "ok:" + input, nil
	})

	out, err := engine.Retry(link, 3)(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "ok:doc-1", out)
	assert.Equal(t, 2, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	link := engine.Link[string, string](func(ctx context.Context, input string) (string, error) {
		attempts++
		return "", errors.New("permanent")
	})

	_, err := engine.Retry(link, 2)(context.Background(), "doc-1")
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	link := engine.Link[string, string](func(ctx context.Context, input string) (string, error) {
		attempts++
		return "", errors.New("should not run")
	})

	_, err := engine.Retry(link, 5)(ctx, "doc-1")
	require.Error(t, err)
	assert.Equal(t, 0, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}
