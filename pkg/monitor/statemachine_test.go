package monitor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vigilhq/vigil/pkg/types"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name        string
		d, r        int32
		current     types.MonitorStatus
		counter     int32
		ok          bool
		wantStatus  types.MonitorStatus
		wantCounter int32
	}{
		{"unknown ok", 2, 2, types.MonitorStatusUnknown, 0, true, types.MonitorStatusUp, 1},
		{"inactive ok", 2, 2, types.MonitorStatusInactive, 0, true, types.MonitorStatusUp, 1},
		{"unknown fail d=1", 1, 1, types.MonitorStatusUnknown, 0, false, types.MonitorStatusDown, 1},
		{"unknown fail d>1", 3, 1, types.MonitorStatusUnknown, 0, false, types.MonitorStatusSuspicious, 1},

		{"up ok increments", 2, 2, types.MonitorStatusUp, 4, true, types.MonitorStatusUp, 5},
		{"up fail d=1", 1, 2, types.MonitorStatusUp, 9, false, types.MonitorStatusDown, 1},
		{"up fail d>1", 2, 2, types.MonitorStatusUp, 9, false, types.MonitorStatusSuspicious, 1},

		{"suspicious ok clears to up", 2, 2, types.MonitorStatusSuspicious, 1, true, types.MonitorStatusUp, 1},
		{"suspicious ok clears even with high r", 3, 5, types.MonitorStatusSuspicious, 2, true, types.MonitorStatusUp, 1},
		{"suspicious fail below threshold", 3, 1, types.MonitorStatusSuspicious, 1, false, types.MonitorStatusSuspicious, 2},
		{"suspicious fail reaches threshold", 3, 1, types.MonitorStatusSuspicious, 2, false, types.MonitorStatusDown, 1},

		{"recovering ok below threshold", 1, 3, types.MonitorStatusRecovering, 1, true, types.MonitorStatusRecovering, 2},
		{"recovering ok reaches threshold", 1, 3, types.MonitorStatusRecovering, 2, true, types.MonitorStatusUp, 1},
		{"recovering fail d>1 goes suspicious", 2, 3, types.MonitorStatusRecovering, 2, false, types.MonitorStatusSuspicious, 1},
		{"recovering fail d=1 goes down", 1, 3, types.MonitorStatusRecovering, 2, false, types.MonitorStatusDown, 1},

		{"down ok r>1 starts recovery", 1, 2, types.MonitorStatusDown, 5, true, types.MonitorStatusRecovering, 1},
		{"down ok r=1 goes straight up", 1, 1, types.MonitorStatusDown, 5, true, types.MonitorStatusUp, 1},
		{"down fail increments", 1, 1, types.MonitorStatusDown, 2, false, types.MonitorStatusDown, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, counter := NextStatus(tt.d, tt.r, tt.current, tt.counter, tt.ok)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCounter, counter)
		})
	}
}

// With d=1 and r=1 the monitor flips directly between Up and Down with
// no intermediate confirmation states.
func TestNextStatusNoConfirmation(t *testing.T) {
	status, counter := NextStatus(1, 1, types.MonitorStatusUp, 3, false)
	assert.Equal(t, types.MonitorStatusDown, status)
	assert.Equal(t, int32(1), counter)

	status, counter = NextStatus(1, 1, types.MonitorStatusDown, 7, true)
	assert.Equal(t, types.MonitorStatusUp, status)
	assert.Equal(t, int32(1), counter)
}

func TestNextStatusCounterSaturates(t *testing.T) {
	status, counter := NextStatus(1, 1, types.MonitorStatusUp, math.MaxInt32, true)
	assert.Equal(t, types.MonitorStatusUp, status)
	assert.Equal(t, int32(math.MaxInt32), counter)

	status, counter = NextStatus(1, 1, types.MonitorStatusDown, math.MaxInt32, false)
	assert.Equal(t, types.MonitorStatusDown, status)
	assert.Equal(t, int32(math.MaxInt32), counter)
}

func TestNextStatusIsPure(t *testing.T) {
	for i := 0; i < 3; i++ {
		status, counter := NextStatus(3, 2, types.MonitorStatusSuspicious, 1, false)
		assert.Equal(t, types.MonitorStatusSuspicious, status)
		assert.Equal(t, int32(2), counter)
	}
}

func TestNextStatusArchivedPanics(t *testing.T) {
	assert.Panics(t, func() {
		NextStatus(1, 1, types.MonitorStatusArchived, 1, true)
	})
}
