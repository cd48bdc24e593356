package extractor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiterCapsConcurrency(t *testing.T) {
	lim := localLimiter(make(chan struct{}, 2))

	var inFlight, maxSeen int32
	bump := func(delta int32) {
		cur := atomic.AddInt32(&inFlight, delta)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if cur <= m {
				return
			}
			if atomic.CompareAndSwapInt32(&maxSeen, m, cur) {
				return
			}
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lim.acquire(context.Background())
			require.NoError(t, err)
			bump(1)
			time.Sleep(20 * time.Millisecond)
			bump(-1)
			release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(maxSeen), 2)
}

func TestLocalLimiterAcquireRespectsContextCancellation(t *testing.T) {
	lim := localLimiter(make(chan struct{}, 1))

	release, err := lim.acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = lim.acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
