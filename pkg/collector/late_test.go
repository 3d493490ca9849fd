package collector

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil/pkg/incident"
	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/types"
)

func findOpenTaskIncident(t *testing.T, store storage.Store, orgID uuid.UUID, taskID string) *types.Incident {
	t.Helper()
	var inc *types.Incident
	err := store.WithTx(context.Background(), func(tx storage.Tx) error {
		var err error
		inc, err = tx.Incidents().FindOpenBySource(context.Background(), orgID, types.IncidentSourceTask, taskID)
		return err
	})
	require.NoError(t, err)
	return inc
}

func listEvents(t *testing.T, store storage.Store, orgID, incidentID uuid.UUID) []*types.IncidentEvent {
	t.Helper()
	var events []*types.IncidentEvent
	err := store.WithTx(context.Background(), func(tx storage.Tx) error {
		var err error
		events, err = tx.Events().ListByIncident(context.Background(), orgID, incidentID)
		return err
	})
	require.NoError(t, err)
	return events
}

// A daily 10:30 task with a 20 minute start window went Due at 10:30 and
// never started. The 10:50 sweep flips it Late and materializes the
// incident with the due transition back-dated on the timeline.
func TestLateSweepOpensIncidentWithBackdatedTimeline(t *testing.T) {
	store := storage.NewMemory()
	orgID := uuid.New()
	dueAt := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	now := time.Date(2025, 3, 1, 10, 50, 0, 0, time.UTC)

	task := dailyTask(orgID, "report", types.TaskStatusDue)
	task.LastDueAt = &dueAt
	seedTask(t, store, task)

	n, err := NewLateCollector(store, incident.NewMaterializer(nil)).Collect(context.Background(), now, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, types.TaskStatusLate, getTask(t, store, orgID, "report").Status)

	inc := findOpenTaskIncident(t, store, orgID, "report")
	require.NotNil(t, inc)
	assert.Equal(t, types.IncidentStatusOngoing, inc.Status)
	assert.Equal(t, types.IncidentPriorityWarning, inc.Priority)
	require.NotNil(t, inc.Cause.ScheduledTask)
	assert.Equal(t, dueAt, inc.Cause.ScheduledTask.TaskWasDueAt)
	require.NotNil(t, inc.Cause.ScheduledTask.TaskRanLateAt)
	assert.Equal(t, now, *inc.Cause.ScheduledTask.TaskRanLateAt)

	events := listEvents(t, store, orgID, inc.ID)
	require.Len(t, events, 3)
	assert.Equal(t, types.EventTaskSwitchedToDue, events[0].EventType)
	assert.Equal(t, dueAt, events[0].CreatedAt)
	assert.Equal(t, types.EventCreation, events[1].EventType)
	assert.Equal(t, now, events[1].CreatedAt)
	assert.Equal(t, types.EventTaskSwitchedToLate, events[2].EventType)
	assert.Equal(t, now, events[2].CreatedAt)

	// Lateness incidents notify nobody by default.
	err = store.WithTx(context.Background(), func(tx storage.Tx) error {
		pending, err := tx.Notifications().ClaimDue(context.Background(), now.Add(24*time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
		return nil
	})
	require.NoError(t, err)
}

func TestLateSweepReusesOpenIncident(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := incident.NewMaterializer(nil)
	orgID := uuid.New()
	dueAt := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	now := time.Date(2025, 3, 1, 10, 50, 0, 0, time.UTC)

	task := dailyTask(orgID, "report", types.TaskStatusDue)
	task.LastDueAt = &dueAt
	seedTask(t, store, task)

	var existing *types.Incident
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		existing, err = m.Create(ctx, tx, incident.CreateParams{
			OrganizationID: orgID,
			CreatedAt:      dueAt,
			Status:         types.IncidentStatusOngoing,
			Priority:       types.IncidentPriorityWarning,
			SourceType:     types.IncidentSourceTask,
			SourceID:       "report",
			Cause: types.IncidentCause{
				ScheduledTask: &types.ScheduledTaskCause{TaskID: "report", TaskWasDueAt: dueAt},
			},
		})
		return err
	})
	require.NoError(t, err)

	n, err := NewLateCollector(store, m).Collect(ctx, now, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inc := findOpenTaskIncident(t, store, orgID, "report")
	require.NotNil(t, inc)
	assert.Equal(t, existing.ID, inc.ID, "an open incident must be reused, not duplicated")
	require.NotNil(t, inc.Cause.ScheduledTask.TaskRanLateAt)
	assert.Equal(t, now, *inc.Cause.ScheduledTask.TaskRanLateAt)

	events := listEvents(t, store, orgID, inc.ID)
	require.Len(t, events, 3)
	assert.Equal(t, types.EventTaskSwitchedToLate, events[2].EventType)
}

func TestLateSweepWaitsForStartWindow(t *testing.T) {
	store := storage.NewMemory()
	orgID := uuid.New()
	dueAt := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	task := dailyTask(orgID, "report", types.TaskStatusDue)
	task.LastDueAt = &dueAt
	seedTask(t, store, task)

	// 10:45 is still inside the 20 minute start window.
	n, err := NewLateCollector(store, incident.NewMaterializer(nil)).
		Collect(context.Background(), dueAt.Add(15*time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
