package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vigilhq/vigil/pkg/auth"
	"github.com/vigilhq/vigil/pkg/events"
	"github.com/vigilhq/vigil/pkg/incident"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/types"
)

var validate = validator.New()

// Coordinator applies externally reported task transitions: create,
// start, heartbeat, finish. Each operation is one transaction over the
// task+run aggregate; permission bits are checked before any state is
// touched.
type Coordinator struct {
	store        storage.Store
	materializer *incident.Materializer
	broker       *events.Broker
}

// NewCoordinator creates a task lifecycle coordinator
func NewCoordinator(store storage.Store, materializer *incident.Materializer, broker *events.Broker) *Coordinator {
	return &Coordinator{store: store, materializer: materializer, broker: broker}
}

// CreateTaskCommand describes a new task. The id is the stable
// user-supplied identity: non-empty, no whitespace.
type CreateTaskCommand struct {
	ID               string  `validate:"required"`
	CronSchedule     *string `validate:"omitempty,min=1"`
	StartWindow      time.Duration
	LatenessWindow   time.Duration
	HeartbeatTimeout time.Duration `validate:"min=1s"`

	EmailNotificationEnabled bool
	PushNotificationEnabled  bool
	SMSNotificationEnabled   bool

	Metadata map[string]string
}

// StartOptions modifies StartTask behavior.
type StartOptions struct {
	// NewTask creates the task first when it does not exist yet, within
	// the same transaction as the start.
	NewTask *CreateTaskCommand
	// AbortPreviousRunning aborts a still-running previous run instead of
	// failing with ErrTaskAlreadyStarted.
	AbortPreviousRunning bool
}

// FinishStatus is the verdict reported by a runner on finish.
type FinishStatus int

const (
	FinishSuccess FinishStatus = iota
	FinishAborted
	FinishFailure
)

// FinishCommand carries the runner's finish report.
type FinishCommand struct {
	Status       FinishStatus
	ExitCode     *int32
	ErrorMessage *string
}

// CreateTask validates and stores a new task with a computed first due
// time.
func (c *Coordinator) CreateTask(ctx context.Context, authCtx auth.Context, cmd CreateTaskCommand) (*types.Task, error) {
	if err := authCtx.Require(auth.PermTaskWrite); err != nil {
		return nil, err
	}

	var created *types.Task
	err := c.store.WithTx(ctx, func(tx storage.Tx) error {
		t, err := c.createTask(ctx, tx, authCtx.OrganizationID, cmd, time.Now().UTC())
		created = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Coordinator) createTask(ctx context.Context, tx storage.Tx, orgID uuid.UUID, cmd CreateTaskCommand, now time.Time) (*types.Task, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, types.NewValidationError("task", "%v", err)
	}
	if strings.ContainsAny(cmd.ID, " \t\r\n") {
		return nil, types.NewValidationError("task_id", "must not contain whitespace")
	}
	t := &types.Task{
		OrganizationID:           orgID,
		ID:                       cmd.ID,
		CreatedAt:                now,
		CronSchedule:             cmd.CronSchedule,
		StartWindow:              cmd.StartWindow,
		LatenessWindow:           cmd.LatenessWindow,
		HeartbeatTimeout:         cmd.HeartbeatTimeout,
		EmailNotificationEnabled: cmd.EmailNotificationEnabled,
		PushNotificationEnabled:  cmd.PushNotificationEnabled,
		SMSNotificationEnabled:   cmd.SMSNotificationEnabled,
		Metadata:                 cmd.Metadata,
		Status:                   types.TaskStatusHealthy,
		PreviousStatus:           types.TaskStatusHealthy,
	}
	nextDue, err := NextDue(t, now)
	if err != nil {
		return nil, err
	}
	t.NextDueAt = nextDue

	if err := tx.Tasks().Create(ctx, t); err != nil {
		return nil, err
	}
	log.WithTaskID(t.ID).Info().Str("organization_id", orgID.String()).Msg("task created")
	return t, nil
}

// StartTask records that a runner began executing the task. A previous
// Late or Absent status resolves the open lateness incident.
func (c *Coordinator) StartTask(ctx context.Context, authCtx auth.Context, taskID string, opts StartOptions) (*types.TaskRun, error) {
	if err := authCtx.Require(auth.PermTaskReport); err != nil {
		return nil, err
	}
	orgID := authCtx.OrganizationID
	now := time.Now().UTC()

	var started *types.TaskRun
	err := c.store.WithTx(ctx, func(tx storage.Tx) error {
		agg, err := LoadAggregate(ctx, tx, orgID, taskID)
		if errors.Is(err, types.ErrNotFound) && opts.NewTask != nil {
			cmd := *opts.NewTask
			cmd.ID = taskID
			t, cerr := c.createTask(ctx, tx, orgID, cmd, now)
			if cerr != nil {
				return cerr
			}
			agg = &Aggregate{Task: t}
		} else if err != nil {
			return err
		}

		previous := agg.Task.Status
		next, err := Advance(previous, InputStarted)
		if errors.Is(err, types.ErrTaskAlreadyStarted) && opts.AbortPreviousRunning {
			if aerr := c.abortRun(ctx, tx, agg.Run, now); aerr != nil {
				return aerr
			}
			agg.Run = nil
			next = types.TaskStatusRunning
		} else if err != nil {
			return err
		}

		if previous == types.TaskStatusLate || previous == types.TaskStatusAbsent {
			if err := c.resolveLatenessIncident(ctx, tx, agg.Task, now); err != nil {
				return err
			}
		}

		run := &types.TaskRun{
			OrganizationID:  orgID,
			ID:              uuid.New(),
			TaskID:          taskID,
			Status:          types.TaskRunStatusRunning,
			StartedAt:       now,
			UpdatedAt:       now,
			LastHeartbeatAt: &now,
		}
		if err := tx.TaskRuns().Create(ctx, run); err != nil {
			return err
		}

		ApplyStatus(agg.Task, next, now)
		if err := tx.Tasks().Update(ctx, agg.Task); err != nil {
			return err
		}
		started = run
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.publish(events.EventTaskRunStarted, orgID, taskID, started.ID)
	return started, nil
}

// ReceiveHeartbeat refreshes the run's liveness timestamp. A heartbeat
// against a task that is not Running tells the runner it was aborted.
func (c *Coordinator) ReceiveHeartbeat(ctx context.Context, authCtx auth.Context, taskID string) error {
	if err := authCtx.Require(auth.PermTaskReport); err != nil {
		return err
	}
	now := time.Now().UTC()

	return c.store.WithTx(ctx, func(tx storage.Tx) error {
		agg, err := LoadAggregate(ctx, tx, authCtx.OrganizationID, taskID)
		if err != nil {
			return err
		}
		if agg.Task.Status != types.TaskStatusRunning {
			return types.ErrTaskNotRunning
		}
		agg.Run.LastHeartbeatAt = &now
		agg.Run.UpdatedAt = now
		return tx.TaskRuns().Update(ctx, agg.Run)
	})
}

// FinishTask records the runner's verdict. A failure flips the task to
// Failing and opens a run-sourced incident.
func (c *Coordinator) FinishTask(ctx context.Context, authCtx auth.Context, taskID string, cmd FinishCommand) error {
	if err := authCtx.Require(auth.PermTaskReport); err != nil {
		return err
	}
	orgID := authCtx.OrganizationID
	now := time.Now().UTC()

	var finished *types.TaskRun
	err := c.store.WithTx(ctx, func(tx storage.Tx) error {
		agg, err := LoadAggregate(ctx, tx, orgID, taskID)
		if err != nil {
			return err
		}

		input := InputFinishedOK
		if cmd.Status == FinishFailure {
			input = InputFinishedFailed
		}
		next, err := Advance(agg.Task.Status, input)
		if err != nil {
			return err
		}

		run := agg.Run
		run.UpdatedAt = now
		run.CompletedAt = &now
		run.ExitCode = cmd.ExitCode
		run.ErrorMessage = cmd.ErrorMessage

		switch cmd.Status {
		case FinishSuccess:
			if cmd.ExitCode != nil && *cmd.ExitCode > 0 {
				return types.NewValidationError("exit_code", "successful finish cannot carry a positive exit code")
			}
			run.Status = types.TaskRunStatusFinished
		case FinishAborted:
			run.Status = types.TaskRunStatusAborted
		case FinishFailure:
			if cmd.ExitCode != nil && *cmd.ExitCode <= 0 {
				return types.NewValidationError("exit_code", "failed finish cannot carry a non-positive exit code")
			}
			run.Status = types.TaskRunStatusFailed
		}
		if err := tx.TaskRuns().Update(ctx, run); err != nil {
			return err
		}

		ApplyStatus(agg.Task, next, now)
		if err := tx.Tasks().Update(ctx, agg.Task); err != nil {
			return err
		}

		if cmd.Status == FinishFailure {
			if err := c.openRunIncident(ctx, tx, agg.Task, run, now); err != nil {
				return err
			}
		}
		finished = run
		return nil
	})
	if err != nil {
		return err
	}

	c.publish(events.EventTaskRunFinished, orgID, taskID, finished.ID)
	return nil
}

func (c *Coordinator) abortRun(ctx context.Context, tx storage.Tx, run *types.TaskRun, now time.Time) error {
	run.Status = types.TaskRunStatusAborted
	run.UpdatedAt = now
	run.CompletedAt = &now
	return tx.TaskRuns().Update(ctx, run)
}

// resolveLatenessIncident closes the open Task-sourced incident, first
// recording that the task finally started.
func (c *Coordinator) resolveLatenessIncident(ctx context.Context, tx storage.Tx, t *types.Task, now time.Time) error {
	open, err := tx.Incidents().FindOpenBySource(ctx, t.OrganizationID, types.IncidentSourceTask, t.ID)
	if err != nil || open == nil {
		return err
	}
	if err := c.materializer.AppendEvent(ctx, tx, open, types.EventTaskSwitchedToRunning, now, nil); err != nil {
		return err
	}
	return c.materializer.Resolve(ctx, tx, open, now)
}

// openRunIncident opens the Ongoing incident for a failed run, with the
// run's start back-dated on the timeline.
func (c *Coordinator) openRunIncident(ctx context.Context, tx storage.Tx, t *types.Task, run *types.TaskRun, now time.Time) error {
	open, err := tx.Incidents().FindOpenBySource(ctx, t.OrganizationID, types.IncidentSourceTaskRun, run.ID.String())
	if err != nil {
		return err
	}
	if open != nil {
		return nil
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
				TaskRunFinishedAt: run.CompletedAt,
				TaskRunStatus:     run.Status,
			},
		},
		Notification: notificationOptsForTask(t, now),
	})
	if err != nil {
		return err
	}
	if err := c.materializer.AppendEvent(ctx, tx, inc, types.EventTaskRunStarted, run.StartedAt, nil); err != nil {
		return err
	}
	return c.materializer.AppendEvent(ctx, tx, inc, types.EventTaskRunFailed, now, nil)
}

func notificationOptsForTask(t *types.Task, now time.Time) *incident.NotificationOpts {
	if !t.EmailNotificationEnabled && !t.PushNotificationEnabled && !t.SMSNotificationEnabled {
		return nil
	}
	return &incident.NotificationOpts{
		Type:                 types.NotificationIncidentCreation,
		DueAt:                now,
		SourceName:           t.ID,
		SendEmail:            t.EmailNotificationEnabled,
		SendPushNotification: t.PushNotificationEnabled,
		SendSMS:              t.SMSNotificationEnabled,
	}
}

func (c *Coordinator) publish(eventType events.EventType, orgID uuid.UUID, taskID string, runID uuid.UUID) {
	if c.broker == nil {
		return
	}
	c.broker.Publish(&events.Event{
		ID:   uuid.New().String(),
		Type: eventType,
		Metadata: map[string]string{
			"organization_id": orgID.String(),
			"task_id":         taskID,
			"task_run_id":     runID.String(),
		},
	})
}
