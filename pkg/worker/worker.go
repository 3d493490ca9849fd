package worker

import (
	"context"
	"sync"
	"time"

	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/metrics"
)

// BatchFunc performs one batch and returns the number of items
// processed. An error aborts only that batch; the worker keeps ticking.
type BatchFunc func(ctx context.Context) (int, error)

// Pool runs n identical workers, each invoking the batch function once
// per interval. Batch disjointness across workers comes from the
// storage layer's skip-locked claims, not from coordination here.
type Pool struct {
	name     string
	workers  int
	interval time.Duration
	fn       BatchFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPool creates a worker pool
func NewPool(name string, workers int, interval time.Duration, fn BatchFunc) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		name:     name,
		workers:  workers,
		interval: interval,
		fn:       fn,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the workers. The pool registers itself with the
// health checker; batch outcomes keep its entry current.
func (p *Pool) Start(ctx context.Context) {
	log.WithComponent(p.name).Info().
		Int("workers", p.workers).
		Dur("interval", p.interval).
		Msg("starting worker pool")
	metrics.RegisterComponent(p.name, true, "")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop signals the workers and waits for in-flight batches to finish.
// A batch in progress completes and commits; no new ticks are taken.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	log.WithComponent(p.name).Info().Msg("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	logger := log.WithComponent(p.name).With().Int("worker", id).Logger()
	for {
		select {
		case <-ticker.C:
			n, err := p.fn(ctx)
			if err != nil {
				// The batch's transaction already rolled back; the next
				// tick re-selects whatever is still pending.
				logger.Error().Err(err).Msg("batch failed")
				metrics.UpdateComponent(p.name, false, err.Error())
				continue
			}
			metrics.UpdateComponent(p.name, true, "")
			if n > 0 {
				logger.Debug().Int("processed", n).Msg("batch completed")
			}
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
