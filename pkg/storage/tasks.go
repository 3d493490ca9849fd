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

type pgTaskRepo struct {
	tx pgx.Tx
}

const taskColumns = `organization_id, id, created_at, cron_schedule,
	start_window_seconds, lateness_window_seconds, heartbeat_timeout_seconds,
	email_notification_enabled, push_notification_enabled, sms_notification_enabled,
	metadata, status, previous_status, last_status_change_at, next_due_at, last_due_at`

func (r *pgTaskRepo) Create(ctx context.Context, t *types.Task) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.OrganizationID, t.ID, t.CreatedAt, t.CronSchedule,
		int64(t.StartWindow/time.Second), int64(t.LatenessWindow/time.Second),
		int64(t.HeartbeatTimeout/time.Second),
		t.EmailNotificationEnabled, t.PushNotificationEnabled, t.SMSNotificationEnabled,
		t.Metadata, t.Status, t.PreviousStatus, t.LastStatusChangeAt, t.NextDueAt, t.LastDueAt)
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}
	return nil
}

func (r *pgTaskRepo) Get(ctx context.Context, orgID uuid.UUID, id string) (*types.Task, error) {
	return r.get(ctx, orgID, id, "")
}

// GetForUpdate locks the task row for the remainder of the transaction.
// The lifecycle coordinator serializes on this lock so that concurrent
// start/finish calls for the same task cannot interleave.
func (r *pgTaskRepo) GetForUpdate(ctx context.Context, orgID uuid.UUID, id string) (*types.Task, error) {
	return r.get(ctx, orgID, id, " FOR UPDATE")
}

func (r *pgTaskRepo) get(ctx context.Context, orgID uuid.UUID, id, lock string) (*types.Task, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE organization_id = $1 AND id = $2`+lock, orgID, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	return t, err
}

func (r *pgTaskRepo) Update(ctx context.Context, t *types.Task) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE tasks SET
			cron_schedule = $3,
			start_window_seconds = $4,
			lateness_window_seconds = $5,
			heartbeat_timeout_seconds = $6,
			email_notification_enabled = $7,
			push_notification_enabled = $8,
			sms_notification_enabled = $9,
			metadata = $10,
			status = $11,
			previous_status = $12,
			last_status_change_at = $13,
			next_due_at = $14,
			last_due_at = $15
		WHERE organization_id = $1 AND id = $2`,
		t.OrganizationID, t.ID, t.CronSchedule,
		int64(t.StartWindow/time.Second), int64(t.LatenessWindow/time.Second),
		int64(t.HeartbeatTimeout/time.Second),
		t.EmailNotificationEnabled, t.PushNotificationEnabled, t.SMSNotificationEnabled,
		t.Metadata, t.Status, t.PreviousStatus, t.LastStatusChangeAt, t.NextDueAt, t.LastDueAt)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *pgTaskRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*types.Task, error) {
	return r.claim(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status IN ($1, $2) AND next_due_at IS NOT NULL AND next_due_at <= $3
		ORDER BY next_due_at ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED`,
		types.TaskStatusHealthy, types.TaskStatusPending, now, limit)
}

func (r *pgTaskRepo) ClaimLate(ctx context.Context, now time.Time, limit int) ([]*types.Task, error) {
	return r.claim(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status = $1
		  AND last_due_at + make_interval(secs => start_window_seconds::double precision) <= $2
		ORDER BY last_due_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		types.TaskStatusDue, now, limit)
}

func (r *pgTaskRepo) ClaimAbsent(ctx context.Context, now time.Time, limit int) ([]*types.Task, error) {
	return r.claim(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status = $1
		  AND last_due_at
		      + make_interval(secs => (start_window_seconds + lateness_window_seconds)::double precision) <= $2
		ORDER BY last_due_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		types.TaskStatusLate, now, limit)
}

func (r *pgTaskRepo) claim(ctx context.Context, query string, args ...interface{}) ([]*types.Task, error) {
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*types.Task, error) {
	var t types.Task
	var startSec, latenessSec, heartbeatSec int64
	err := row.Scan(
		&t.OrganizationID, &t.ID, &t.CreatedAt, &t.CronSchedule,
		&startSec, &latenessSec, &heartbeatSec,
		&t.EmailNotificationEnabled, &t.PushNotificationEnabled, &t.SMSNotificationEnabled,
		&t.Metadata, &t.Status, &t.PreviousStatus, &t.LastStatusChangeAt, &t.NextDueAt, &t.LastDueAt)
	if err != nil {
		return nil, err
	}
	t.StartWindow = time.Duration(startSec) * time.Second
	t.LatenessWindow = time.Duration(latenessSec) * time.Second
	t.HeartbeatTimeout = time.Duration(heartbeatSec) * time.Second
	return &t, nil
}

type pgTaskRunRepo struct {
	tx pgx.Tx
}

const taskRunColumns = `organization_id, id, task_id, status,
	started_at, updated_at, completed_at, last_heartbeat_at, exit_code, error_message`

func (r *pgTaskRunRepo) Create(ctx context.Context, run *types.TaskRun) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO task_runs (`+taskRunColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.OrganizationID, run.ID, run.TaskID, run.Status,
		run.StartedAt, run.UpdatedAt, run.CompletedAt, run.LastHeartbeatAt,
		run.ExitCode, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to insert task run %s: %w", run.ID, err)
	}
	return nil
}

func (r *pgTaskRunRepo) Update(ctx context.Context, run *types.TaskRun) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE task_runs SET
			status = $3,
			updated_at = $4,
			completed_at = $5,
			last_heartbeat_at = $6,
			exit_code = $7,
			error_message = $8
		WHERE organization_id = $1 AND id = $2`,
		run.OrganizationID, run.ID, run.Status, run.UpdatedAt,
		run.CompletedAt, run.LastHeartbeatAt, run.ExitCode, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to update task run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *pgTaskRunRepo) GetRunning(ctx context.Context, orgID uuid.UUID, taskID string) (*types.TaskRun, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+taskRunColumns+`
		FROM task_runs
		WHERE organization_id = $1 AND task_id = $2 AND status = $3
		ORDER BY started_at DESC
		LIMIT 1`, orgID, taskID, types.TaskRunStatusRunning)
	run, err := scanTaskRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func (r *pgTaskRunRepo) ClaimDead(ctx context.Context, now time.Time, limit int) ([]*types.TaskRun, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT r.organization_id, r.id, r.task_id, r.status,
			r.started_at, r.updated_at, r.completed_at, r.last_heartbeat_at,
			r.exit_code, r.error_message
		FROM task_runs r
		JOIN tasks t ON t.organization_id = r.organization_id AND t.id = r.task_id
		WHERE r.status = $1
		  AND r.last_heartbeat_at IS NOT NULL
		  AND r.last_heartbeat_at
		      + make_interval(secs => t.heartbeat_timeout_seconds::double precision) < $2
		ORDER BY r.last_heartbeat_at ASC
		LIMIT $3
		FOR UPDATE OF r SKIP LOCKED`,
		types.TaskRunStatusRunning, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim dead task runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.TaskRun
	for rows.Next() {
		run, err := scanTaskRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanTaskRun(row pgx.Row) (*types.TaskRun, error) {
	var run types.TaskRun
	err := row.Scan(
		&run.OrganizationID, &run.ID, &run.TaskID, &run.Status,
		&run.StartedAt, &run.UpdatedAt, &run.CompletedAt, &run.LastHeartbeatAt,
		&run.ExitCode, &run.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
