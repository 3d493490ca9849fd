package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil/pkg/types"
)

func TestAdvance(t *testing.T) {
	tests := []struct {
		name   string
		status types.TaskStatus
		input  Input
		want   types.TaskStatus
	}{
		{"healthy becomes due", types.TaskStatusHealthy, InputBecameDue, types.TaskStatusDue},
		{"pending becomes due", types.TaskStatusPending, InputBecameDue, types.TaskStatusDue},
		{"due becomes late", types.TaskStatusDue, InputBecameLate, types.TaskStatusLate},
		{"late becomes absent", types.TaskStatusLate, InputBecameAbsent, types.TaskStatusAbsent},
		{"pending starts", types.TaskStatusPending, InputStarted, types.TaskStatusRunning},
		{"due starts", types.TaskStatusDue, InputStarted, types.TaskStatusRunning},
		{"late starts", types.TaskStatusLate, InputStarted, types.TaskStatusRunning},
		{"absent starts", types.TaskStatusAbsent, InputStarted, types.TaskStatusRunning},
		{"healthy starts", types.TaskStatusHealthy, InputStarted, types.TaskStatusRunning},
		{"failing starts", types.TaskStatusFailing, InputStarted, types.TaskStatusRunning},
		{"running finishes ok", types.TaskStatusRunning, InputFinishedOK, types.TaskStatusHealthy},
		{"running finishes failed", types.TaskStatusRunning, InputFinishedFailed, types.TaskStatusFailing},
		{"running run dies", types.TaskStatusRunning, InputRunDied, types.TaskStatusFailing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Advance(tt.status, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdvanceRejectsDoubleStart(t *testing.T) {
	_, err := Advance(types.TaskStatusRunning, InputStarted)
	assert.ErrorIs(t, err, types.ErrTaskAlreadyStarted)
}

func TestAdvanceRejectsFinishWhenNotRunning(t *testing.T) {
	for _, status := range []types.TaskStatus{
		types.TaskStatusHealthy, types.TaskStatusDue, types.TaskStatusLate,
		types.TaskStatusAbsent, types.TaskStatusFailing, types.TaskStatusPending,
	} {
		_, err := Advance(status, InputFinishedOK)
		assert.ErrorIs(t, err, types.ErrTaskNotRunning, "finish ok on %s", status)

		_, err = Advance(status, InputFinishedFailed)
		assert.ErrorIs(t, err, types.ErrTaskNotRunning, "finish failed on %s", status)
	}
}

func TestAdvanceRejectsSweepInputsOutOfOrder(t *testing.T) {
	_, err := Advance(types.TaskStatusHealthy, InputBecameLate)
	assert.Error(t, err)

	_, err = Advance(types.TaskStatusDue, InputBecameAbsent)
	assert.Error(t, err)

	_, err = Advance(types.TaskStatusRunning, InputBecameDue)
	assert.Error(t, err)
}
