package collector

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil/pkg/events"
	"github.com/vigilhq/vigil/pkg/incident"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/task"
	"github.com/vigilhq/vigil/pkg/types"
)

// DeadRunCollector finds Running task runs whose last heartbeat has
// aged past their task's heartbeat timeout, kills them, flips the
// parent task to Failing, and opens a run-sourced incident.
type DeadRunCollector struct {
	store        storage.Store
	materializer *incident.Materializer
	broker       *events.Broker
}

// NewDeadRunCollector creates a dead-run collector
func NewDeadRunCollector(store storage.Store, materializer *incident.Materializer, broker *events.Broker) *DeadRunCollector {
	return &DeadRunCollector{store: store, materializer: materializer, broker: broker}
}

// Collect runs one sweep and returns the number of runs transitioned.
func (c *DeadRunCollector) Collect(ctx context.Context, now time.Time, limit int) (int, error) {
	return runBatch(ctx, "dead-task-runs", c.store, func(tx storage.Tx) (int, error) {
		runs, err := tx.TaskRuns().ClaimDead(ctx, now, limit)
		if err != nil {
			return 0, err
		}
		for _, run := range runs {
			if err := c.transition(ctx, tx, run, now); err != nil {
				return 0, err
			}
		}
		return len(runs), nil
	})
}

func (c *DeadRunCollector) transition(ctx context.Context, tx storage.Tx, run *types.TaskRun, now time.Time) error {
	t, err := tx.Tasks().GetForUpdate(ctx, run.OrganizationID, run.TaskID)
	if err != nil {
		return err
	}
	next, err := task.Advance(t.Status, task.InputRunDied)
	if err != nil {
		return err
	}

	lastHeartbeat := *run.LastHeartbeatAt
	run.Status = types.TaskRunStatusDead
	run.UpdatedAt = now
	run.CompletedAt = &now
	if err := tx.TaskRuns().Update(ctx, run); err != nil {
		return err
	}

	task.ApplyStatus(t, next, now)
	if err := tx.Tasks().Update(ctx, t); err != nil {
		return err
	}

	if err := c.openIncident(ctx, tx, t, run, lastHeartbeat, now); err != nil {
		return err
	}

	if c.broker != nil {
		c.broker.Publish(&events.Event{
			ID:   uuid.New().String(),
			Type: events.EventTaskRunDead,
			Metadata: map[string]string{
				"organization_id": run.OrganizationID.String(),
				"task_id":         run.TaskID,
				"task_run_id":     run.ID.String(),
			},
		})
	}
	log.WithTaskID(run.TaskID).Warn().
		Str("task_run_id", run.ID.String()).
		Time("last_heartbeat_at", lastHeartbeat).
		Msg("task run is dead")
	return nil
}

func (c *DeadRunCollector) openIncident(ctx context.Context, tx storage.Tx, t *types.Task, run *types.TaskRun, lastHeartbeat, now time.Time) error {
	// A run that was also late may already carry a Task-sourced incident;
	// the TaskRun source keeps this one distinct. Re-check before creating.
	open, err := tx.Incidents().FindOpenBySource(ctx, t.OrganizationID, types.IncidentSourceTaskRun, run.ID.String())
	if err != nil {
		return err
	}
	if open != nil {
		return nil
	}

	var notification *incident.NotificationOpts
	if t.EmailNotificationEnabled || t.PushNotificationEnabled || t.SMSNotificationEnabled {
		notification = &incident.NotificationOpts{
			Type:                 types.NotificationIncidentCreation,
			DueAt:                now,
			SourceName:           t.ID,
			SendEmail:            t.EmailNotificationEnabled,
			SendPushNotification: t.PushNotificationEnabled,
			SendSMS:              t.SMSNotificationEnabled,
		}
	}

	inc, err := c.materializer.Create(ctx, tx, incident.CreateParams{
		OrganizationID: t.OrganizationID,
		CreatedAt:      now,
		Status:         types.IncidentStatusOngoing,
		Priority:       types.IncidentPriorityMajor,
		SourceType:     types.IncidentSourceTaskRun,
		SourceID:       run.ID.String(),
		Cause: types.IncidentCause{
			TaskRun: &types.TaskRunCause{
				TaskID:            t.ID,
				TaskRunID:         run.ID,
				TaskRunStartedAt:  run.StartedAt,
				TaskRunFinishedAt: &now,
				TaskRunStatus:     types.TaskRunStatusDead,
			},
		},
		Notification: notification,
	})
	if err != nil {
		return err
	}

	if err := c.materializer.AppendEvent(ctx, tx, inc, types.EventTaskRunStarted, run.StartedAt, nil); err != nil {
		return err
	}
	if err := c.materializer.AppendEvent(ctx, tx, inc, types.EventTaskRunReceivedLastHeartbeat, lastHeartbeat, nil); err != nil {
		return err
	}
	return c.materializer.AppendEvent(ctx, tx, inc, types.EventTaskRunIsDead, now, nil)
}
