package collector

import (
	"context"
	"time"

	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/metrics"
	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/task"
	"github.com/vigilhq/vigil/pkg/types"
)

// DueCollector flips Healthy and Pending tasks whose cron occurrence has
// arrived to Due, recording which occurrence fired and scheduling the
// next one.
type DueCollector struct {
	store storage.Store
}

// NewDueCollector creates a due-task collector
func NewDueCollector(store storage.Store) *DueCollector {
	return &DueCollector{store: store}
}

// Collect runs one sweep and returns the number of tasks transitioned.
// Re-running with the same now after a successful commit is a no-op:
// transitioned tasks are no longer Healthy or Pending.
func (c *DueCollector) Collect(ctx context.Context, now time.Time, limit int) (int, error) {
	return runBatch(ctx, "due-tasks", c.store, func(tx storage.Tx) (int, error) {
		tasks, err := tx.Tasks().ClaimDue(ctx, now, limit)
		if err != nil {
			return 0, err
		}
		for _, t := range tasks {
			if err := c.transition(ctx, tx, t, now); err != nil {
				return 0, err
			}
		}
		return len(tasks), nil
	})
}

func (c *DueCollector) transition(ctx context.Context, tx storage.Tx, t *types.Task, now time.Time) error {
	next, err := task.Advance(t.Status, task.InputBecameDue)
	if err != nil {
		return err
	}

	// The occurrence that fired becomes last_due_at; the late and absent
	// sweeps measure their windows from it. The status change is dated to
	// the occurrence, not to the sweep tick.
	dueAt := *t.NextDueAt
	t.LastDueAt = &dueAt
	task.ApplyStatus(t, next, dueAt)

	nextDue, err := task.NextDue(t, now)
	if err != nil {
		return err
	}
	t.NextDueAt = nextDue

	if err := tx.Tasks().Update(ctx, t); err != nil {
		return err
	}
	log.WithTaskID(t.ID).Debug().
		Time("was_due_at", dueAt).
		Msg("task switched to due")
	return nil
}

// runBatch wraps one collector sweep in a transaction and records the
// shared batch metrics.
func runBatch(ctx context.Context, component string, store storage.Store, fn func(tx storage.Tx) (int, error)) (int, error) {
	timer := metrics.NewTimer()
	processed := 0

	err := store.WithTx(ctx, func(tx storage.Tx) error {
		n, err := fn(tx)
		processed = n
		return err
	})

	timer.ObserveDuration(metrics.BatchDuration.WithLabelValues(component))
	if err != nil {
		metrics.BatchesTotal.WithLabelValues(component, "error").Inc()
		return 0, err
	}
	metrics.BatchesTotal.WithLabelValues(component, "ok").Inc()
	metrics.BatchItemsProcessed.WithLabelValues(component).Add(float64(processed))
	return processed, nil
}
