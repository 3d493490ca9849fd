package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil/pkg/auth"
	"github.com/vigilhq/vigil/pkg/incident"
	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/types"
)

type coordinatorFixture struct {
	store storage.Store
	coord *Coordinator
	org   uuid.UUID
	auth  auth.Context
}

func newCoordinatorFixture() *coordinatorFixture {
	store := storage.NewMemory()
	org := uuid.New()
	return &coordinatorFixture{
		store: store,
		coord: NewCoordinator(store, incident.NewMaterializer(nil), nil),
		org:   org,
		auth:  auth.Internal(org),
	}
}

func backupCommand() CreateTaskCommand {
	return CreateTaskCommand{
		ID:               "nightly-backup",
		HeartbeatTimeout: time.Minute,
	}
}

func (f *coordinatorFixture) getTask(t *testing.T, id string) *types.Task {
	t.Helper()
	var got *types.Task
	err := f.store.WithTx(context.Background(), func(tx storage.Tx) error {
		var err error
		got, err = tx.Tasks().Get(context.Background(), f.org, id)
		return err
	})
	require.NoError(t, err)
	return got
}

func (f *coordinatorFixture) getRunning(t *testing.T, taskID string) *types.TaskRun {
	t.Helper()
	var run *types.TaskRun
	err := f.store.WithTx(context.Background(), func(tx storage.Tx) error {
		var err error
		run, err = tx.TaskRuns().GetRunning(context.Background(), f.org, taskID)
		return err
	})
	require.NoError(t, err)
	return run
}

func TestCreateTaskRequiresWritePermission(t *testing.T) {
	f := newCoordinatorFixture()
	reporter := auth.Context{OrganizationID: f.org, Permissions: auth.PermTaskReport}

	_, err := f.coord.CreateTask(context.Background(), reporter, backupCommand())
	assert.ErrorIs(t, err, types.ErrPermissionDenied)
}

func TestCreateTaskRejectsWhitespaceID(t *testing.T) {
	f := newCoordinatorFixture()
	cmd := backupCommand()
	cmd.ID = "nightly backup"

	_, err := f.coord.CreateTask(context.Background(), f.auth, cmd)
	assert.True(t, types.IsValidation(err))
}

func TestCreateTaskRejectsBadCron(t *testing.T) {
	f := newCoordinatorFixture()
	cmd := backupCommand()
	cmd.CronSchedule = strPtr("every day at noon")

	_, err := f.coord.CreateTask(context.Background(), f.auth, cmd)
	assert.True(t, types.IsValidation(err))
}

func TestCreateTaskRejectsMissingHeartbeatTimeout(t *testing.T) {
	f := newCoordinatorFixture()
	cmd := backupCommand()
	cmd.HeartbeatTimeout = 0

	_, err := f.coord.CreateTask(context.Background(), f.auth, cmd)
	assert.True(t, types.IsValidation(err))
}

func TestCreateTaskComputesFirstDue(t *testing.T) {
	f := newCoordinatorFixture()
	cmd := backupCommand()
	cmd.CronSchedule = strPtr("0 * * * *")

	created, err := f.coord.CreateTask(context.Background(), f.auth, cmd)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusHealthy, created.Status)
	require.NotNil(t, created.NextDueAt)
	assert.True(t, created.NextDueAt.After(created.CreatedAt))
}

func TestCreateTaskWithoutScheduleHasNoDueTime(t *testing.T) {
	f := newCoordinatorFixture()

	created, err := f.coord.CreateTask(context.Background(), f.auth, backupCommand())
	require.NoError(t, err)
	assert.Nil(t, created.NextDueAt)
}

func TestStartUnknownTaskFails(t *testing.T) {
	f := newCoordinatorFixture()

	_, err := f.coord.StartTask(context.Background(), f.auth, "no-such-task", StartOptions{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStartCreatesTaskOnDemand(t *testing.T) {
	f := newCoordinatorFixture()
	cmd := backupCommand()

	run, err := f.coord.StartTask(context.Background(), f.auth, "nightly-backup", StartOptions{NewTask: &cmd})
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, types.TaskRunStatusRunning, run.Status)

	task := f.getTask(t, "nightly-backup")
	assert.Equal(t, types.TaskStatusRunning, task.Status)
	require.NotNil(t, f.getRunning(t, "nightly-backup"))
}

func TestStartTwiceConflicts(t *testing.T) {
	f := newCoordinatorFixture()
	_, err := f.coord.CreateTask(context.Background(), f.auth, backupCommand())
	require.NoError(t, err)

	_, err = f.coord.StartTask(context.Background(), f.auth, "nightly-backup", StartOptions{})
	require.NoError(t, err)

	_, err = f.coord.StartTask(context.Background(), f.auth, "nightly-backup", StartOptions{})
	assert.ErrorIs(t, err, types.ErrTaskAlreadyStarted)
}

func TestStartAbortsPreviousRun(t *testing.T) {
	f := newCoordinatorFixture()
	_, err := f.coord.CreateTask(context.Background(), f.auth, backupCommand())
	require.NoError(t, err)

	first, err := f.coord.StartTask(context.Background(), f.auth, "nightly-backup", StartOptions{})
	require.NoError(t, err)

	second, err := f.coord.StartTask(context.Background(), f.auth, "nightly-backup", StartOptions{AbortPreviousRunning: true})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// Only the new run is Running.
	current := f.getRunning(t, "nightly-backup")
	require.NotNil(t, current)
	assert.Equal(t, second.ID, current.ID)
}

func TestStartLateTaskResolvesLatenessIncident(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	m := incident.NewMaterializer(nil)

	cmd := backupCommand()
	cmd.CronSchedule = strPtr("30 10 * * *")
	cmd.StartWindow = 10 * time.Minute
	created, err := f.coord.CreateTask(ctx, f.auth, cmd)
	require.NoError(t, err)

	// The task went Due and then Late; the late sweep opened an incident.
	dueAt := time.Now().UTC().Add(-20 * time.Minute)
	lateAt := dueAt.Add(10 * time.Minute)
	var inc *types.Incident
	err = f.store.WithTx(ctx, func(tx storage.Tx) error {
		created.LastDueAt = &dueAt
		ApplyStatus(created, types.TaskStatusDue, dueAt)
		ApplyStatus(created, types.TaskStatusLate, lateAt)
		if err := tx.Tasks().Update(ctx, created); err != nil {
			return err
		}
		inc, err = m.Create(ctx, tx, incident.CreateParams{
			OrganizationID: f.org,
			CreatedAt:      lateAt,
			Status:         types.IncidentStatusOngoing,
			Priority:       types.IncidentPriorityWarning,
			SourceType:     types.IncidentSourceTask,
			SourceID:       created.ID,
			Cause: types.IncidentCause{
				ScheduledTask: &types.ScheduledTaskCause{
					TaskID:        created.ID,
					TaskWasDueAt:  dueAt,
					TaskRanLateAt: &lateAt,
				},
			},
		})
		return err
	})
	require.NoError(t, err)

	_, err = f.coord.StartTask(ctx, f.auth, created.ID, StartOptions{})
	require.NoError(t, err)

	err = f.store.WithTx(ctx, func(tx storage.Tx) error {
		open, err := tx.Incidents().FindOpenBySource(ctx, f.org, types.IncidentSourceTask, created.ID)
		require.NoError(t, err)
		assert.Nil(t, open, "lateness incident must be resolved by the start")

		resolved, err := tx.Incidents().Get(ctx, f.org, inc.ID)
		require.NoError(t, err)
		assert.Equal(t, types.IncidentStatusResolved, resolved.Status)

		events, err := tx.Events().ListByIncident(ctx, f.org, inc.ID)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, types.EventCreation, events[0].EventType)
		assert.Equal(t, types.EventTaskSwitchedToRunning, events[1].EventType)
		assert.Equal(t, types.EventResolution, events[2].EventType)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusRunning, f.getTask(t, created.ID).Status)
}

func TestHeartbeatRequiresRunningTask(t *testing.T) {
	f := newCoordinatorFixture()
	_, err := f.coord.CreateTask(context.Background(), f.auth, backupCommand())
	require.NoError(t, err)

	err = f.coord.ReceiveHeartbeat(context.Background(), f.auth, "nightly-backup")
	assert.ErrorIs(t, err, types.ErrTaskNotRunning)
}

func TestHeartbeatRefreshesRun(t *testing.T) {
	f := newCoordinatorFixture()
	_, err := f.coord.CreateTask(context.Background(), f.auth, backupCommand())
	require.NoError(t, err)

	started, err := f.coord.StartTask(context.Background(), f.auth, "nightly-backup", StartOptions{})
	require.NoError(t, err)

	require.NoError(t, f.coord.ReceiveHeartbeat(context.Background(), f.auth, "nightly-backup"))

	run := f.getRunning(t, "nightly-backup")
	require.NotNil(t, run.LastHeartbeatAt)
	assert.False(t, run.LastHeartbeatAt.Before(started.StartedAt))
}

func TestFinishSuccess(t *testing.T) {
	f := newCoordinatorFixture()
	_, err := f.coord.CreateTask(context.Background(), f.auth, backupCommand())
	require.NoError(t, err)
	_, err = f.coord.StartTask(context.Background(), f.auth, "nightly-backup", StartOptions{})
	require.NoError(t, err)

	exitCode := int32(0)
	err = f.coord.FinishTask(context.Background(), f.auth, "nightly-backup", FinishCommand{
		Status:   FinishSuccess,
		ExitCode: &exitCode,
	})
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusHealthy, f.getTask(t, "nightly-backup").Status)
	assert.Nil(t, f.getRunning(t, "nightly-backup"))
}

func TestFinishSuccessRejectsPositiveExitCode(t *testing.T) {
	f := newCoordinatorFixture()
	_, err := f.coord.CreateTask(context.Background(), f.auth, backupCommand())
	require.NoError(t, err)
	_, err = f.coord.StartTask(context.Background(), f.auth, "nightly-backup", StartOptions{})
	require.NoError(t, err)

	exitCode := int32(2)
	err = f.coord.FinishTask(context.Background(), f.auth, "nightly-backup", FinishCommand{
		Status:   FinishSuccess,
		ExitCode: &exitCode,
	})
	assert.True(t, types.IsValidation(err))

	// The rejected finish must not leak partial state.
	assert.Equal(t, types.TaskStatusRunning, f.getTask(t, "nightly-backup").Status)
	assert.NotNil(t, f.getRunning(t, "nightly-backup"))
}

func TestFinishFailureRejectsNonPositiveExitCode(t *testing.T) {
	f := newCoordinatorFixture()
	_, err := f.coord.CreateTask(context.Background(), f.auth, backupCommand())
	require.NoError(t, err)
	_, err = f.coord.StartTask(context.Background(), f.auth, "nightly-backup", StartOptions{})
	require.NoError(t, err)

	exitCode := int32(0)
	err = f.coord.FinishTask(context.Background(), f.auth, "nightly-backup", FinishCommand{
		Status:   FinishFailure,
		ExitCode: &exitCode,
	})
	assert.True(t, types.IsValidation(err))
}

func TestFinishFailureOpensRunIncident(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	cmd := backupCommand()
	cmd.EmailNotificationEnabled = true
	_, err := f.coord.CreateTask(ctx, f.auth, cmd)
	require.NoError(t, err)

	started, err := f.coord.StartTask(ctx, f.auth, "nightly-backup", StartOptions{})
	require.NoError(t, err)

	exitCode := int32(2)
	msg := "disk full"
	err = f.coord.FinishTask(ctx, f.auth, "nightly-backup", FinishCommand{
		Status:       FinishFailure,
		ExitCode:     &exitCode,
		ErrorMessage: &msg,
	})
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusFailing, f.getTask(t, "nightly-backup").Status)

	err = f.store.WithTx(ctx, func(tx storage.Tx) error {
		open, err := tx.Incidents().FindOpenBySource(ctx, f.org, types.IncidentSourceTaskRun, started.ID.String())
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, types.IncidentStatusOngoing, open.Status)
		assert.Equal(t, types.IncidentPriorityMajor, open.Priority)
		require.NotNil(t, open.Cause.TaskRun)
		assert.Equal(t, types.TaskRunStatusFailed, open.Cause.TaskRun.TaskRunStatus)

		// The run's start is back-dated, so it leads the timeline.
		events, err := tx.Events().ListByIncident(ctx, f.org, open.ID)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, types.EventTaskRunStarted, events[0].EventType)
		assert.Equal(t, started.StartedAt, events[0].CreatedAt)
		assert.Equal(t, types.EventCreation, events[1].EventType)
		assert.Equal(t, types.EventTaskRunFailed, events[2].EventType)

		pending, err := tx.Notifications().ClaimDue(ctx, time.Now().UTC().Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.True(t, pending[0].SendEmail)
		assert.False(t, pending[0].SendSMS)
		return nil
	})
	require.NoError(t, err)
}

func TestFinishAborted(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture()
	_, err := f.coord.CreateTask(ctx, f.auth, backupCommand())
	require.NoError(t, err)
	started, err := f.coord.StartTask(ctx, f.auth, "nightly-backup", StartOptions{})
	require.NoError(t, err)

	err = f.coord.FinishTask(ctx, f.auth, "nightly-backup", FinishCommand{Status: FinishAborted})
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusHealthy, f.getTask(t, "nightly-backup").Status)

	err = f.store.WithTx(ctx, func(tx storage.Tx) error {
		open, err := tx.Incidents().FindOpenBySource(ctx, f.org, types.IncidentSourceTaskRun, started.ID.String())
		require.NoError(t, err)
		assert.Nil(t, open, "aborted finish must not open an incident")
		return nil
	})
	require.NoError(t, err)
}

func TestFinishWhenNotRunning(t *testing.T) {
	f := newCoordinatorFixture()
	_, err := f.coord.CreateTask(context.Background(), f.auth, backupCommand())
	require.NoError(t, err)

	err = f.coord.FinishTask(context.Background(), f.auth, "nightly-backup", FinishCommand{Status: FinishSuccess})
	assert.ErrorIs(t, err, types.ErrTaskNotRunning)
}
