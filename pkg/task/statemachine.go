package task

import (
	"fmt"

	"github.com/vigilhq/vigil/pkg/types"
)

// Input is an event fed into the task timing state machine.
type Input int

const (
	// InputBecameDue fires when the cron occurrence arrives (due sweep).
	InputBecameDue Input = iota
	// InputBecameLate fires when the start window elapses (late sweep).
	InputBecameLate
	// InputBecameAbsent fires when the lateness window elapses (absent sweep).
	InputBecameAbsent
	// InputStarted fires when a runner reports a start.
	InputStarted
	// InputFinishedOK fires on a successful or aborted finish.
	InputFinishedOK
	// InputFinishedFailed fires on a failed finish.
	InputFinishedFailed
	// InputRunDied fires when the dead-run sweep kills the current run.
	InputRunDied
)

func (i Input) String() string {
	switch i {
	case InputBecameDue:
		return "became_due"
	case InputBecameLate:
		return "became_late"
	case InputBecameAbsent:
		return "became_absent"
	case InputStarted:
		return "started"
	case InputFinishedOK:
		return "finished_ok"
	case InputFinishedFailed:
		return "finished_failed"
	case InputRunDied:
		return "run_died"
	default:
		return "invalid"
	}
}

// Advance is the single transition function for the task state machine.
// Every caller — coordinator and sweeps alike — funnels through it, so
// there is exactly one valid transition per input per state.
func Advance(status types.TaskStatus, input Input) (types.TaskStatus, error) {
	switch input {
	case InputBecameDue:
		if status == types.TaskStatusHealthy || status == types.TaskStatusPending {
			return types.TaskStatusDue, nil
		}
	case InputBecameLate:
		if status == types.TaskStatusDue {
			return types.TaskStatusLate, nil
		}
	case InputBecameAbsent:
		if status == types.TaskStatusLate {
			return types.TaskStatusAbsent, nil
		}
	case InputStarted:
		switch status {
		case types.TaskStatusRunning:
			return status, types.ErrTaskAlreadyStarted
		case types.TaskStatusPending, types.TaskStatusDue, types.TaskStatusLate,
			types.TaskStatusAbsent, types.TaskStatusHealthy, types.TaskStatusFailing:
			return types.TaskStatusRunning, nil
		}
	case InputFinishedOK:
		if status == types.TaskStatusRunning {
			return types.TaskStatusHealthy, nil
		}
		return status, types.ErrTaskNotRunning
	case InputFinishedFailed, InputRunDied:
		if status == types.TaskStatusRunning {
			return types.TaskStatusFailing, nil
		}
		return status, types.ErrTaskNotRunning
	}
	return status, fmt.Errorf("invalid task transition: %s on %s", input, status)
}
