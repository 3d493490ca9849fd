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

// AbsentCollector flips Late tasks past their lateness window to Absent
// and records the escalation on the open lateness incident. When the
// incident was resolved out of band it synthesizes a fresh one with the
// earlier timeline events back-dated.
type AbsentCollector struct {
	store        storage.Store
	materializer *incident.Materializer
}

// NewAbsentCollector creates an absent-task collector
func NewAbsentCollector(store storage.Store, materializer *incident.Materializer) *AbsentCollector {
	return &AbsentCollector{store: store, materializer: materializer}
}

// Collect runs one sweep and returns the number of tasks transitioned.
func (c *AbsentCollector) Collect(ctx context.Context, now time.Time, limit int) (int, error) {
	return runBatch(ctx, "absent-tasks", c.store, func(tx storage.Tx) (int, error) {
		tasks, err := tx.Tasks().ClaimAbsent(ctx, now, limit)
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

func (c *AbsentCollector) transition(ctx context.Context, tx storage.Tx, t *types.Task, now time.Time) error {
	next, err := task.Advance(t.Status, task.InputBecameAbsent)
	if err != nil {
		return err
	}
	task.ApplyStatus(t, next, now)

	// The occurrence is definitively missed; schedule the next one.
	nextDue, err := task.NextDue(t, now)
	if err != nil {
		return err
	}
	t.NextDueAt = nextDue
	if err := tx.Tasks().Update(ctx, t); err != nil {
		return err
	}

	open, err := tx.Incidents().FindOpenBySource(ctx, t.OrganizationID, types.IncidentSourceTask, t.ID)
	if err != nil {
		return err
	}
	if open == nil {
		open, err = c.synthesizeIncident(ctx, tx, t, now)
		if err != nil {
			return err
		}
	} else {
		open.Cause.ScheduledTask.TaskSwitchedToAbsentAt = &now
		if err := c.materializer.UpdateCause(ctx, tx, open); err != nil {
			return err
		}
	}

	if err := c.materializer.AppendEvent(ctx, tx, open, types.EventTaskSwitchedToAbsent, now, nil); err != nil {
		return err
	}

	log.WithTaskID(t.ID).Info().Msg("task switched to absent")
	return nil
}

// synthesizeIncident rebuilds the lateness incident a user resolved
// before the absence escalation, back-dating the due and late events so
// the timeline reads chronologically.
func (c *AbsentCollector) synthesizeIncident(ctx context.Context, tx storage.Tx, t *types.Task, now time.Time) (*types.Incident, error) {
	dueAt := *t.LastDueAt
	lateAt := dueAt.Add(t.StartWindow)

	inc, err := c.materializer.Create(ctx, tx, incident.CreateParams{
		OrganizationID: t.OrganizationID,
		CreatedAt:      lateAt,
		Status:         types.IncidentStatusOngoing,
		Priority:       types.IncidentPriorityWarning,
		SourceType:     types.IncidentSourceTask,
		SourceID:       t.ID,
		Cause: types.IncidentCause{
			ScheduledTask: &types.ScheduledTaskCause{
				TaskID:                 t.ID,
				TaskWasDueAt:           dueAt,
				TaskRanLateAt:          &lateAt,
				TaskSwitchedToAbsentAt: &now,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	if err := c.materializer.AppendEvent(ctx, tx, inc, types.EventTaskSwitchedToDue, dueAt, nil); err != nil {
		return nil, err
	}
	if err := c.materializer.AppendEvent(ctx, tx, inc, types.EventTaskSwitchedToLate, lateAt, nil); err != nil {
		return nil, err
	}
	return inc, nil
}
