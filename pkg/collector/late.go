package collector

import (
	"context"
	"time"

	"github.com/vigilhq/vigil/pkg/incident"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/task"
	"github.com/vigilhq/vigil/pkg/types"
)

// LateCollector flips Due tasks past their start window to Late and
// opens the lateness incident with a chronologically correct timeline:
// TaskSwitchedToDue back-dated to the missed occurrence, Creation and
// TaskSwitchedToLate at sweep time.
type LateCollector struct {
	store        storage.Store
	materializer *incident.Materializer
}

// NewLateCollector creates a late-task collector
func NewLateCollector(store storage.Store, materializer *incident.Materializer) *LateCollector {
	return &LateCollector{store: store, materializer: materializer}
}

// Collect runs one sweep and returns the number of tasks transitioned.
func (c *LateCollector) Collect(ctx context.Context, now time.Time, limit int) (int, error) {
	return runBatch(ctx, "late-tasks", c.store, func(tx storage.Tx) (int, error) {
		tasks, err := tx.Tasks().ClaimLate(ctx, now, limit)
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

func (c *LateCollector) transition(ctx context.Context, tx storage.Tx, t *types.Task, now time.Time) error {
	next, err := task.Advance(t.Status, task.InputBecameLate)
	if err != nil {
		return err
	}
	task.ApplyStatus(t, next, now)
	if err := tx.Tasks().Update(ctx, t); err != nil {
		return err
	}

	dueAt := *t.LastDueAt
	open, err := tx.Incidents().FindOpenBySource(ctx, t.OrganizationID, types.IncidentSourceTask, t.ID)
	if err != nil {
		return err
	}

	if open == nil {
		// Lateness notifications default to disabled; the incident itself
		// is still materialized.
		inc, err := c.materializer.Create(ctx, tx, incident.CreateParams{
			OrganizationID: t.OrganizationID,
			CreatedAt:      now,
			Status:         types.IncidentStatusOngoing,
			Priority:       types.IncidentPriorityWarning,
			SourceType:     types.IncidentSourceTask,
			SourceID:       t.ID,
			Cause: types.IncidentCause{
				ScheduledTask: &types.ScheduledTaskCause{
					TaskID:        t.ID,
					TaskWasDueAt:  dueAt,
					TaskRanLateAt: &now,
				},
			},
		})
		if err != nil {
			return err
		}
		open = inc
	} else {
		open.Cause.ScheduledTask.TaskRanLateAt = &now
		if err := c.materializer.UpdateCause(ctx, tx, open); err != nil {
			return err
		}
	}

	if err := c.materializer.AppendEvent(ctx, tx, open, types.EventTaskSwitchedToDue, dueAt, nil); err != nil {
		return err
	}
	if err := c.materializer.AppendEvent(ctx, tx, open, types.EventTaskSwitchedToLate, now, nil); err != nil {
		return err
	}

	log.WithTaskID(t.ID).Info().
		Time("was_due_at", dueAt).
		Msg("task switched to late")
	return nil
}
