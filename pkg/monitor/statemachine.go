package monitor

import (
	"fmt"
	"math"

	"github.com/vigilhq/vigil/pkg/types"
)

// NextStatus is the pure monitor transition function. d and r are the
// downtime and recovery confirmation thresholds (both >= 1), counter is
// the number of consecutive observations in the current status, ok is
// the probe verdict. It returns the next status and counter.
//
// Downtime confirmation: from a healthy status, the first failure moves
// to Suspicious (or straight to Down when d == 1); d consecutive
// failures confirm Down. Recovery confirmation guards confirmed
// downtime only: leaving Down takes r consecutive OKs through
// Recovering, while a single OK clears an unconfirmed Suspicious back
// to Up.
//
// An Archived monitor must never reach the state machine; that is a
// programmer error, not an input.
func NextStatus(d, r int32, current types.MonitorStatus, counter int32, ok bool) (types.MonitorStatus, int32) {
	if current == types.MonitorStatusArchived {
		panic("archived monitor entered the status machine")
	}

	if ok {
		switch current {
		case types.MonitorStatusUnknown, types.MonitorStatusInactive:
			return types.MonitorStatusUp, 1
		case types.MonitorStatusUp:
			return types.MonitorStatusUp, saturatingInc(counter)
		case types.MonitorStatusSuspicious:
			// Downtime was never confirmed; one OK clears the suspicion.
			return types.MonitorStatusUp, 1
		case types.MonitorStatusRecovering:
			next := saturatingInc(counter)
			if next >= r {
				return types.MonitorStatusUp, 1
			}
			return types.MonitorStatusRecovering, next
		case types.MonitorStatusDown:
			if r > 1 {
				return types.MonitorStatusRecovering, 1
			}
			return types.MonitorStatusUp, 1
		}
	} else {
		switch current {
		case types.MonitorStatusUnknown, types.MonitorStatusInactive, types.MonitorStatusUp:
			if d == 1 {
				return types.MonitorStatusDown, 1
			}
			return types.MonitorStatusSuspicious, 1
		case types.MonitorStatusSuspicious:
			next := saturatingInc(counter)
			if next >= d {
				return types.MonitorStatusDown, 1
			}
			return types.MonitorStatusSuspicious, next
		case types.MonitorStatusRecovering:
			// A failure during recovery re-enters confirmation when d > 1,
			// otherwise downtime is immediate.
			if d > 1 {
				return types.MonitorStatusSuspicious, 1
			}
			return types.MonitorStatusDown, 1
		case types.MonitorStatusDown:
			return types.MonitorStatusDown, saturatingInc(counter)
		}
	}

	panic(fmt.Sprintf("unhandled monitor status %v", current))
}

func saturatingInc(counter int32) int32 {
	if counter == math.MaxInt32 {
		return counter
	}
	return counter + 1
}
