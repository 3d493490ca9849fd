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

type pgMonitorRepo struct {
	tx pgx.Tx
}

const monitorColumns = `organization_id, id, created_at, url,
	interval_seconds, request_timeout_seconds, request_headers,
	downtime_confirmation_threshold, recovery_confirmation_threshold,
	email_notification_enabled, push_notification_enabled, sms_notification_enabled,
	metadata, status, status_counter, error_kind, last_http_code,
	first_ping_at, last_ping_at, next_ping_at, last_status_change_at, archived_at`

func (r *pgMonitorRepo) Create(ctx context.Context, m *types.HttpMonitor) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO http_monitors (`+monitorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		m.OrganizationID, m.ID, m.CreatedAt, m.URL,
		int64(m.Interval/time.Second), int64(m.RequestTimeout/time.Second), m.RequestHeaders,
		m.DowntimeConfirmationThreshold, m.RecoveryConfirmationThreshold,
		m.EmailNotificationEnabled, m.PushNotificationEnabled, m.SMSNotificationEnabled,
		m.Metadata, m.Status, m.StatusCounter, m.ErrorKind, m.LastHTTPCode,
		m.FirstPingAt, m.LastPingAt, m.NextPingAt, m.LastStatusChangeAt, m.ArchivedAt)
	if err != nil {
		return fmt.Errorf("failed to insert monitor %s: %w", m.ID, err)
	}
	return nil
}

func (r *pgMonitorRepo) Get(ctx context.Context, orgID, id uuid.UUID) (*types.HttpMonitor, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+monitorColumns+`
		FROM http_monitors
		WHERE organization_id = $1 AND id = $2`, orgID, id)
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	return m, err
}

func (r *pgMonitorRepo) Update(ctx context.Context, m *types.HttpMonitor) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE http_monitors SET
			url = $3,
			interval_seconds = $4,
			request_timeout_seconds = $5,
			request_headers = $6,
			downtime_confirmation_threshold = $7,
			recovery_confirmation_threshold = $8,
			email_notification_enabled = $9,
			push_notification_enabled = $10,
			sms_notification_enabled = $11,
			metadata = $12,
			status = $13,
			status_counter = $14,
			error_kind = $15,
			last_http_code = $16,
			first_ping_at = $17,
			last_ping_at = $18,
			next_ping_at = $19,
			last_status_change_at = $20,
			archived_at = $21
		WHERE organization_id = $1 AND id = $2`,
		m.OrganizationID, m.ID, m.URL,
		int64(m.Interval/time.Second), int64(m.RequestTimeout/time.Second), m.RequestHeaders,
		m.DowntimeConfirmationThreshold, m.RecoveryConfirmationThreshold,
		m.EmailNotificationEnabled, m.PushNotificationEnabled, m.SMSNotificationEnabled,
		m.Metadata, m.Status, m.StatusCounter, m.ErrorKind, m.LastHTTPCode,
		m.FirstPingAt, m.LastPingAt, m.NextPingAt, m.LastStatusChangeAt, m.ArchivedAt)
	if err != nil {
		return fmt.Errorf("failed to update monitor %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *pgMonitorRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*types.HttpMonitor, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+monitorColumns+`
		FROM http_monitors
		WHERE next_ping_at IS NOT NULL AND next_ping_at <= $1
		  AND status NOT IN ($2, $3)
		ORDER BY next_ping_at ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED`,
		now, types.MonitorStatusInactive, types.MonitorStatusArchived, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due monitors: %w", err)
	}
	defer rows.Close()

	var monitors []*types.HttpMonitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

func scanMonitor(row pgx.Row) (*types.HttpMonitor, error) {
	var m types.HttpMonitor
	var intervalSec, timeoutSec int64
	err := row.Scan(
		&m.OrganizationID, &m.ID, &m.CreatedAt, &m.URL,
		&intervalSec, &timeoutSec, &m.RequestHeaders,
		&m.DowntimeConfirmationThreshold, &m.RecoveryConfirmationThreshold,
		&m.EmailNotificationEnabled, &m.PushNotificationEnabled, &m.SMSNotificationEnabled,
		&m.Metadata, &m.Status, &m.StatusCounter, &m.ErrorKind, &m.LastHTTPCode,
		&m.FirstPingAt, &m.LastPingAt, &m.NextPingAt, &m.LastStatusChangeAt, &m.ArchivedAt)
	if err != nil {
		return nil, err
	}
	m.Interval = time.Duration(intervalSec) * time.Second
	m.RequestTimeout = time.Duration(timeoutSec) * time.Second
	return &m, nil
}
