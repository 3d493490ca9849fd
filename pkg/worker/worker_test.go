package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil/pkg/metrics"
)

func TestPoolRunsBatches(t *testing.T) {
	var calls int64
	p := NewPool("test", 1, 5*time.Millisecond, func(ctx context.Context) (int, error) {
		atomic.AddInt64(&calls, 1)
		return 1, nil
	})

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) >= 3
	}, time.Second, time.Millisecond)
	p.Stop()
}

func TestPoolKeepsTickingAfterBatchError(t *testing.T) {
	var calls int64
	p := NewPool("test", 1, 5*time.Millisecond, func(ctx context.Context) (int, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return 0, errors.New("transient database error")
		}
		return 1, nil
	})

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) >= 2
	}, time.Second, time.Millisecond)
	p.Stop()
}

func TestPoolStopIsIdempotent(t *testing.T) {
	p := NewPool("test", 2, 5*time.Millisecond, func(ctx context.Context) (int, error) {
		return 0, nil
	})
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}

func TestPoolStopsNewBatches(t *testing.T) {
	var calls int64
	p := NewPool("test", 1, 5*time.Millisecond, func(ctx context.Context) (int, error) {
		atomic.AddInt64(&calls, 1)
		return 0, nil
	})
	p.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	p.Stop()

	after := atomic.LoadInt64(&calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&calls), "no batches after Stop returns")
}

func TestPoolStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int64
	p := NewPool("test", 1, 5*time.Millisecond, func(ctx context.Context) (int, error) {
		atomic.AddInt64(&calls, 1)
		return 0, nil
	})
	p.Start(ctx)
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) >= 1
	}, time.Second, time.Millisecond)

	cancel()
	// Stop returns promptly because the workers already exited.
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
}

// Each pool keeps its readiness entry current from batch outcomes.
func TestPoolReportsComponentHealth(t *testing.T) {
	failing := NewPool("failing-pool", 1, 5*time.Millisecond, func(ctx context.Context) (int, error) {
		return 0, errors.New("claim query failed")
	})
	failing.Start(context.Background())
	require.Eventually(t, func() bool {
		return metrics.GetHealth().Components["failing-pool"] == "unhealthy: claim query failed"
	}, time.Second, time.Millisecond)
	failing.Stop()

	healthy := NewPool("healthy-pool", 1, 5*time.Millisecond, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	healthy.Start(context.Background())
	require.Eventually(t, func() bool {
		return metrics.GetHealth().Components["healthy-pool"] == "healthy"
	}, time.Second, time.Millisecond)
	healthy.Stop()
}

func TestNewPoolFloorsWorkerCount(t *testing.T) {
	p := NewPool("test", 0, time.Minute, func(ctx context.Context) (int, error) { return 0, nil })
	assert.Equal(t, 1, p.workers)
}
