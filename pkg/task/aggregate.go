package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/types"
)

// Aggregate is the task plus its current Running run, loaded as a pair
// under a row lock and written back in the same transaction. It exists
// only for the duration of one transaction; there are no long-lived
// in-memory aggregates.
type Aggregate struct {
	Task *types.Task
	Run  *types.TaskRun
}

// LoadAggregate locks the task row and loads its current run. A Running
// task without a Running run is an impossible persisted state; fail
// loudly rather than repairing it.
func LoadAggregate(ctx context.Context, tx storage.Tx, orgID uuid.UUID, taskID string) (*Aggregate, error) {
	t, err := tx.Tasks().GetForUpdate(ctx, orgID, taskID)
	if err != nil {
		return nil, err
	}
	run, err := tx.TaskRuns().GetRunning(ctx, orgID, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == types.TaskStatusRunning && run == nil {
		return nil, fmt.Errorf("task %s is running but has no running task run", taskID)
	}
	if t.Status != types.TaskStatusRunning && run != nil {
		return nil, fmt.Errorf("task %s is %s but has a running task run %s", taskID, t.Status, run.ID)
	}
	return &Aggregate{Task: t, Run: run}, nil
}

// ApplyStatus moves the task to next, keeping previous_status and the
// status-change timestamp consistent. at may be back-dated by the due
// sweep to the occurrence that fired.
func ApplyStatus(t *types.Task, next types.TaskStatus, at time.Time) {
	if t.Status == next {
		return
	}
	t.PreviousStatus = t.Status
	t.Status = next
	t.LastStatusChangeAt = &at
}
