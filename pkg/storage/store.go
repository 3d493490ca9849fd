package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil/pkg/types"
)

// Store defines the interface for the transactional state store.
// The production implementation is PostgreSQL; Memory backs tests.
type Store interface {
	// Begin opens a transaction. The caller must Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction, committing on nil and rolling
	// back on error.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// CreateMonthlyPartitions ensures timeline partitions exist for the
	// current and the next two months. Returns how many were created.
	CreateMonthlyPartitions(ctx context.Context, now time.Time) (int, error)

	// Ping verifies the store is reachable. The readiness probe calls it
	// periodically.
	Ping(ctx context.Context) error

	Close()
}

// Tx is a single transaction over every repository. All repository
// methods operate under the transaction's row locks; skip-locked claim
// methods guarantee batch disjointness across concurrent workers.
type Tx interface {
	Monitors() MonitorRepo
	Tasks() TaskRepo
	TaskRuns() TaskRunRepo
	Incidents() IncidentRepo
	Events() EventRepo
	Notifications() NotificationRepo

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// MonitorRepo persists HTTP monitors.
type MonitorRepo interface {
	Create(ctx context.Context, m *types.HttpMonitor) error
	Get(ctx context.Context, orgID, id uuid.UUID) (*types.HttpMonitor, error)
	Update(ctx context.Context, m *types.HttpMonitor) error

	// ClaimDue locks and returns up to limit active monitors whose
	// next_ping_at has elapsed, skipping rows already claimed by
	// concurrent workers.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*types.HttpMonitor, error)
}

// TaskRepo persists scheduled tasks.
type TaskRepo interface {
	Create(ctx context.Context, t *types.Task) error
	Get(ctx context.Context, orgID uuid.UUID, id string) (*types.Task, error)
	GetForUpdate(ctx context.Context, orgID uuid.UUID, id string) (*types.Task, error)
	Update(ctx context.Context, t *types.Task) error

	// ClaimDue locks Healthy/Pending tasks whose next_due_at has elapsed.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*types.Task, error)
	// ClaimLate locks Due tasks past their start window.
	ClaimLate(ctx context.Context, now time.Time, limit int) ([]*types.Task, error)
	// ClaimAbsent locks Late tasks past their lateness window.
	ClaimAbsent(ctx context.Context, now time.Time, limit int) ([]*types.Task, error)
}

// TaskRunRepo persists task runs.
type TaskRunRepo interface {
	Create(ctx context.Context, r *types.TaskRun) error
	Update(ctx context.Context, r *types.TaskRun) error

	// GetRunning returns the task's current Running run, or nil.
	GetRunning(ctx context.Context, orgID uuid.UUID, taskID string) (*types.TaskRun, error)

	// ClaimDead locks Running runs whose last heartbeat has aged
	// strictly past their task's heartbeat timeout: a run at exactly
	// last_heartbeat_at + timeout is still alive.
	ClaimDead(ctx context.Context, now time.Time, limit int) ([]*types.TaskRun, error)
}

// IncidentRepo persists incidents.
type IncidentRepo interface {
	Create(ctx context.Context, inc *types.Incident) error
	Get(ctx context.Context, orgID, id uuid.UUID) (*types.Incident, error)
	Update(ctx context.Context, inc *types.Incident) error

	// FindOpenBySource returns the unresolved incident for the given
	// source, or nil. Callers look up before creating so a source never
	// carries two open incidents at once.
	FindOpenBySource(ctx context.Context, orgID uuid.UUID, sourceType types.IncidentSourceType, sourceID string) (*types.Incident, error)
}

// EventRepo persists the append-only incident timeline.
type EventRepo interface {
	Append(ctx context.Context, ev *types.IncidentEvent) error
	ListByIncident(ctx context.Context, orgID, incidentID uuid.UUID) ([]*types.IncidentEvent, error)
}

// NotificationRepo persists pending notification rows.
type NotificationRepo interface {
	// Upsert inserts or replaces the row keyed by
	// (organization, incident, escalation level).
	Upsert(ctx context.Context, n *types.IncidentNotification) error

	// ClaimDue locks up to limit rows whose due time has elapsed. Claimed
	// rows are consumed by Delete in the same transaction.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*types.IncidentNotification, error)

	Delete(ctx context.Context, orgID, incidentID uuid.UUID, escalationLevel int32) error

	// CancelForIncident removes every pending row for the incident.
	CancelForIncident(ctx context.Context, orgID, incidentID uuid.UUID) error
}
