package incident

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/types"
)

func monitorCause() types.IncidentCause {
	return types.IncidentCause{
		HTTPMonitor: &types.HTTPMonitorCause{
			LastPing: types.PingSignature{ErrorKind: types.PingErrorTimeout},
		},
	}
}

func createParams(orgID uuid.UUID, status types.IncidentStatus, at time.Time) CreateParams {
	return CreateParams{
		OrganizationID: orgID,
		CreatedAt:      at,
		Status:         status,
		Priority:       types.IncidentPriorityCritical,
		SourceType:     types.IncidentSourceHTTPMonitor,
		SourceID:       uuid.New().String(),
		Cause:          monitorCause(),
		Notification: &NotificationOpts{
			Type:       types.NotificationIncidentCreation,
			DueAt:      at,
			SourceName: "https://example.com",
			SendEmail:  true,
		},
	}
}

func TestCreateOngoingSchedulesNotification(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewMaterializer(nil)
	orgID := uuid.New()
	now := time.Now().UTC()

	var inc *types.Incident
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		inc, err = m.Create(ctx, tx, createParams(orgID, types.IncidentStatusOngoing, now))
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, inc)
	assert.Equal(t, types.IncidentStatusOngoing, inc.Status)

	err = store.WithTx(ctx, func(tx storage.Tx) error {
		events, err := tx.Events().ListByIncident(ctx, orgID, inc.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, types.EventCreation, events[0].EventType)
		assert.Equal(t, now, events[0].CreatedAt)

		pending, err := tx.Notifications().ClaimDue(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, types.NotificationIncidentCreation, pending[0].Type)
		assert.Equal(t, inc.ID, pending[0].IncidentID)
		assert.True(t, pending[0].SendEmail)
		assert.False(t, pending[0].SendSMS)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateSuspectedSchedulesNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewMaterializer(nil)
	orgID := uuid.New()
	now := time.Now().UTC()

	var inc *types.Incident
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		inc, err = m.Create(ctx, tx, createParams(orgID, types.IncidentStatusToBeConfirmed, now))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, types.IncidentStatusToBeConfirmed, inc.Status)

	err = store.WithTx(ctx, func(tx storage.Tx) error {
		pending, err := tx.Notifications().ClaimDue(ctx, now.Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
		return nil
	})
	require.NoError(t, err)
}

func TestConfirmPromotesAndSchedules(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewMaterializer(nil)
	orgID := uuid.New()
	now := time.Now().UTC()

	var inc *types.Incident
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		inc, err = m.Create(ctx, tx, createParams(orgID, types.IncidentStatusToBeConfirmed, now))
		if err != nil {
			return err
		}
		return m.Confirm(ctx, tx, inc, now.Add(time.Minute), &NotificationOpts{
			Type:      types.NotificationIncidentConfirmation,
			DueAt:     now.Add(time.Minute),
			SendEmail: true,
		})
	})
	require.NoError(t, err)
	assert.Equal(t, types.IncidentStatusOngoing, inc.Status)

	err = store.WithTx(ctx, func(tx storage.Tx) error {
		events, err := tx.Events().ListByIncident(ctx, orgID, inc.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, types.EventCreation, events[0].EventType)
		assert.Equal(t, types.EventConfirmation, events[1].EventType)

		pending, err := tx.Notifications().ClaimDue(ctx, now.Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, types.NotificationIncidentConfirmation, pending[0].Type)
		return nil
	})
	require.NoError(t, err)
}

func TestConfirmOngoingIsNoop(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewMaterializer(nil)
	orgID := uuid.New()
	now := time.Now().UTC()

	err := store.WithTx(ctx, func(tx storage.Tx) error {
		inc, err := m.Create(ctx, tx, createParams(orgID, types.IncidentStatusOngoing, now))
		if err != nil {
			return err
		}
		if err := m.Confirm(ctx, tx, inc, now, &NotificationOpts{SendEmail: true}); err != nil {
			return err
		}
		events, err := tx.Events().ListByIncident(ctx, orgID, inc.ID)
		require.NoError(t, err)
		assert.Len(t, events, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestResolveCancelsPendingNotification(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewMaterializer(nil)
	orgID := uuid.New()
	now := time.Now().UTC()

	var inc *types.Incident
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		inc, err = m.Create(ctx, tx, createParams(orgID, types.IncidentStatusOngoing, now))
		if err != nil {
			return err
		}
		return m.Resolve(ctx, tx, inc, now.Add(time.Minute))
	})
	require.NoError(t, err)
	assert.Equal(t, types.IncidentStatusResolved, inc.Status)
	require.NotNil(t, inc.ResolvedAt)

	err = store.WithTx(ctx, func(tx storage.Tx) error {
		pending, err := tx.Notifications().ClaimDue(ctx, now.Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, pending, "resolution must cancel pending notifications")

		events, err := tx.Events().ListByIncident(ctx, orgID, inc.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, types.EventResolution, events[1].EventType)
		return nil
	})
	require.NoError(t, err)
}

func TestResolveResolvedFails(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewMaterializer(nil)
	now := time.Now().UTC()

	err := store.WithTx(ctx, func(tx storage.Tx) error {
		inc, err := m.Create(ctx, tx, createParams(uuid.New(), types.IncidentStatusOngoing, now))
		if err != nil {
			return err
		}
		if err := m.Resolve(ctx, tx, inc, now); err != nil {
			return err
		}
		err = m.Resolve(ctx, tx, inc, now)
		assert.ErrorIs(t, err, types.ErrIncidentNotResolvable)
		return nil
	})
	require.NoError(t, err)
}

func TestAcknowledgeCancelsPendingNotification(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewMaterializer(nil)
	orgID := uuid.New()
	now := time.Now().UTC()

	err := store.WithTx(ctx, func(tx storage.Tx) error {
		inc, err := m.Create(ctx, tx, createParams(orgID, types.IncidentStatusOngoing, now))
		if err != nil {
			return err
		}
		return m.Acknowledge(ctx, tx, inc, uuid.New(), now.Add(time.Minute))
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx storage.Tx) error {
		pending, err := tx.Notifications().ClaimDue(ctx, now.Add(24*time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, pending, "an acknowledged incident must have no pending notifications")
		return nil
	})
	require.NoError(t, err)
}

func TestAcknowledgeIsIdempotentPerUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewMaterializer(nil)
	orgID := uuid.New()
	userID := uuid.New()
	now := time.Now().UTC()

	var inc *types.Incident
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		inc, err = m.Create(ctx, tx, createParams(orgID, types.IncidentStatusOngoing, now))
		if err != nil {
			return err
		}
		if err := m.Acknowledge(ctx, tx, inc, userID, now); err != nil {
			return err
		}
		return m.Acknowledge(ctx, tx, inc, userID, now.Add(time.Second))
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{userID}, inc.AcknowledgedBy)

	err = store.WithTx(ctx, func(tx storage.Tx) error {
		events, err := tx.Events().ListByIncident(ctx, orgID, inc.ID)
		require.NoError(t, err)

		acks := 0
		for _, ev := range events {
			if ev.EventType == types.EventAcknowledged {
				acks++
				require.NotNil(t, ev.Payload)
				require.NotNil(t, ev.Payload.AcknowledgedBy)
				assert.Equal(t, userID, *ev.Payload.AcknowledgedBy)
			}
		}
		assert.Equal(t, 1, acks)
		return nil
	})
	require.NoError(t, err)
}

func TestRollbackDiscardsIncident(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := NewMaterializer(nil)
	orgID := uuid.New()
	now := time.Now().UTC()

	params := createParams(orgID, types.IncidentStatusOngoing, now)
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	inc, err := m.Create(ctx, tx, params)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	err = store.WithTx(ctx, func(tx storage.Tx) error {
		_, err := tx.Incidents().Get(ctx, orgID, inc.ID)
		assert.ErrorIs(t, err, types.ErrNotFound)

		open, err := tx.Incidents().FindOpenBySource(ctx, orgID, params.SourceType, params.SourceID)
		require.NoError(t, err)
		assert.Nil(t, open)
		return nil
	})
	require.NoError(t, err)
}
