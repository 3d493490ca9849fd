package types

import (
	"time"

	"github.com/google/uuid"
)

// PingSignature is the failure signature of a probe: the error kind plus
// the HTTP status code when one was observed. Two signatures are equal
// when both fields match; a signature change mid-incident pushes the old
// last ping into the cause history.
type PingSignature struct {
	ErrorKind PingErrorKind `json:"error_kind"`
	HTTPCode  *int32        `json:"http_code,omitempty"`
}

// Equal reports whether two signatures describe the same failure.
func (s PingSignature) Equal(other PingSignature) bool {
	if s.ErrorKind != other.ErrorKind {
		return false
	}
	if (s.HTTPCode == nil) != (other.HTTPCode == nil) {
		return false
	}
	return s.HTTPCode == nil || *s.HTTPCode == *other.HTTPCode
}

// HTTPMonitorCause carries the ping signature history of a monitor
// incident. LastPing is the current signature; PreviousPings accumulates
// earlier signatures when the failure mode changes mid-incident.
type HTTPMonitorCause struct {
	LastPing      PingSignature   `json:"last_ping"`
	PreviousPings []PingSignature `json:"previous_pings,omitempty"`
}

// ScheduledTaskCause records a missed schedule.
type ScheduledTaskCause struct {
	TaskID                 string     `json:"task_id"`
	TaskWasDueAt           time.Time  `json:"task_was_due_at"`
	TaskRanLateAt          *time.Time `json:"task_ran_late_at,omitempty"`
	TaskSwitchedToAbsentAt *time.Time `json:"task_switched_to_absent_at,omitempty"`
}

// TaskRunCause records a failed or dead execution attempt.
type TaskRunCause struct {
	TaskID            string        `json:"task_id"`
	TaskRunID         uuid.UUID     `json:"task_run_id"`
	TaskRunStartedAt  time.Time     `json:"task_run_started_at"`
	TaskRunFinishedAt *time.Time    `json:"task_run_finished_at,omitempty"`
	TaskRunStatus     TaskRunStatus `json:"task_run_status"`
}

// IncidentCause is the tagged union of source-specific incident context.
// Exactly one variant is set, matching the incident's SourceType.
type IncidentCause struct {
	HTTPMonitor   *HTTPMonitorCause   `json:"http_monitor,omitempty"`
	ScheduledTask *ScheduledTaskCause `json:"scheduled_task,omitempty"`
	TaskRun       *TaskRunCause       `json:"task_run,omitempty"`
}

// IncidentEventPayload is the optional typed payload of a timeline event.
// At most one field group is populated, matching the event type.
type IncidentEventPayload struct {
	// MonitorPinged events.
	Ping *PingEventPayload `json:"ping,omitempty"`

	// Notification events: which channels a dispatch attempted.
	NotificationChannels []string `json:"notification_channels,omitempty"`

	// Acknowledged events.
	AcknowledgedBy *uuid.UUID `json:"acknowledged_by,omitempty"`

	// Comment events.
	Comment     *string    `json:"comment,omitempty"`
	CommentedBy *uuid.UUID `json:"commented_by,omitempty"`
}

// PingEventPayload captures one probe observation. Response bodies and
// screenshots live in the blob store; only their file ids are recorded.
type PingEventPayload struct {
	ErrorKind        PingErrorKind `json:"error_kind"`
	HTTPCode         *int32        `json:"http_code,omitempty"`
	ResponseTimeMS   int64         `json:"response_time_ms"`
	IPAddresses      []string      `json:"ip_addresses,omitempty"`
	BodyFileID       *uuid.UUID    `json:"body_file_id,omitempty"`
	ScreenshotFileID *uuid.UUID    `json:"screenshot_file_id,omitempty"`
}
