package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vigilhq/vigil/pkg/types"
)

type pgIncidentRepo struct {
	tx pgx.Tx
}

const incidentColumns = `organization_id, id, created_at, created_by, resolved_at,
	status, priority, source_type, source_id, cause, acknowledged_by, metadata`

func (r *pgIncidentRepo) Create(ctx context.Context, inc *types.Incident) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO incidents (`+incidentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inc.OrganizationID, inc.ID, inc.CreatedAt, inc.CreatedBy, inc.ResolvedAt,
		inc.Status, inc.Priority, inc.SourceType, inc.SourceID,
		inc.Cause, inc.AcknowledgedBy, inc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to insert incident %s: %w", inc.ID, err)
	}
	return nil
}

func (r *pgIncidentRepo) Get(ctx context.Context, orgID, id uuid.UUID) (*types.Incident, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE organization_id = $1 AND id = $2`, orgID, id)
	inc, err := scanIncident(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	return inc, err
}

func (r *pgIncidentRepo) Update(ctx context.Context, inc *types.Incident) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE incidents SET
			resolved_at = $3,
			status = $4,
			priority = $5,
			cause = $6,
			acknowledged_by = $7,
			metadata = $8
		WHERE organization_id = $1 AND id = $2`,
		inc.OrganizationID, inc.ID, inc.ResolvedAt, inc.Status, inc.Priority,
		inc.Cause, inc.AcknowledgedBy, inc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to update incident %s: %w", inc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *pgIncidentRepo) FindOpenBySource(ctx context.Context, orgID uuid.UUID, sourceType types.IncidentSourceType, sourceID string) (*types.Incident, error) {
	// A partial unique index on open incidents guarantees at most one row.
	row := r.tx.QueryRow(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE organization_id = $1 AND source_type = $2 AND source_id = $3
		  AND status <> $4`,
		orgID, sourceType, sourceID, types.IncidentStatusResolved)
	inc, err := scanIncident(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return inc, err
}

func scanIncident(row pgx.Row) (*types.Incident, error) {
	var inc types.Incident
	err := row.Scan(
		&inc.OrganizationID, &inc.ID, &inc.CreatedAt, &inc.CreatedBy, &inc.ResolvedAt,
		&inc.Status, &inc.Priority, &inc.SourceType, &inc.SourceID,
		&inc.Cause, &inc.AcknowledgedBy, &inc.Metadata)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

type pgEventRepo struct {
	tx pgx.Tx
}

func (r *pgEventRepo) Append(ctx context.Context, ev *types.IncidentEvent) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO incident_timeline_events
			(organization_id, id, incident_id, created_at, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.OrganizationID, ev.ID, ev.IncidentID, ev.CreatedAt, ev.EventType, ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to append timeline event for incident %s: %w", ev.IncidentID, err)
	}
	return nil
}

func (r *pgEventRepo) ListByIncident(ctx context.Context, orgID, incidentID uuid.UUID) ([]*types.IncidentEvent, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT organization_id, id, incident_id, created_at, event_type, payload
		FROM incident_timeline_events
		WHERE organization_id = $1 AND incident_id = $2
		ORDER BY created_at ASC, seq ASC`, orgID, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline events: %w", err)
	}
	defer rows.Close()

	var events []*types.IncidentEvent
	for rows.Next() {
		var ev types.IncidentEvent
		if err := rows.Scan(&ev.OrganizationID, &ev.ID, &ev.IncidentID,
			&ev.CreatedAt, &ev.EventType, &ev.Payload); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

type pgNotificationRepo struct {
	tx pgx.Tx
}

const notificationColumns = `organization_id, incident_id, escalation_level,
	type, notification_due_at, payload, send_email, send_push_notification, send_sms`

func (r *pgNotificationRepo) Upsert(ctx context.Context, n *types.IncidentNotification) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO incidents_notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id, incident_id, escalation_level) DO UPDATE SET
			type = EXCLUDED.type,
			notification_due_at = EXCLUDED.notification_due_at,
			payload = EXCLUDED.payload,
			send_email = EXCLUDED.send_email,
			send_push_notification = EXCLUDED.send_push_notification,
			send_sms = EXCLUDED.send_sms`,
		n.OrganizationID, n.IncidentID, n.EscalationLevel,
		n.Type, n.DueAt, n.Payload,
		n.SendEmail, n.SendPushNotification, n.SendSMS)
	if err != nil {
		return fmt.Errorf("failed to upsert notification for incident %s: %w", n.IncidentID, err)
	}
	return nil
}

func (r *pgNotificationRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*types.IncidentNotification, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM incidents_notifications
		WHERE notification_due_at <= $1
		ORDER BY notification_due_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*types.IncidentNotification
	for rows.Next() {
		var n types.IncidentNotification
		if err := rows.Scan(&n.OrganizationID, &n.IncidentID, &n.EscalationLevel,
			&n.Type, &n.DueAt, &n.Payload,
			&n.SendEmail, &n.SendPushNotification, &n.SendSMS); err != nil {
			return nil, err
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (r *pgNotificationRepo) Delete(ctx context.Context, orgID, incidentID uuid.UUID, escalationLevel int32) error {
	_, err := r.tx.Exec(ctx, `
		DELETE FROM incidents_notifications
		WHERE organization_id = $1 AND incident_id = $2 AND escalation_level = $3`,
		orgID, incidentID, escalationLevel)
	if err != nil {
		return fmt.Errorf("failed to delete notification for incident %s: %w", incidentID, err)
	}
	return nil
}

func (r *pgNotificationRepo) CancelForIncident(ctx context.Context, orgID, incidentID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `
		DELETE FROM incidents_notifications
		WHERE organization_id = $1 AND incident_id = $2`,
		orgID, incidentID)
	if err != nil {
		return fmt.Errorf("failed to cancel notifications for incident %s: %w", incidentID, err)
	}
	return nil
}
