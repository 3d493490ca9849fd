package types

// MonitorStatus represents the current state of an HTTP monitor.
// Stored discriminants: Unknown=0, Inactive=1, Up=2, Recovering=3,
// Suspicious=4, Down=5, Archived=6.
type MonitorStatus int16

const (
	MonitorStatusUnknown    MonitorStatus = 0
	MonitorStatusInactive   MonitorStatus = 1
	MonitorStatusUp         MonitorStatus = 2
	MonitorStatusRecovering MonitorStatus = 3
	MonitorStatusSuspicious MonitorStatus = 4
	MonitorStatusDown       MonitorStatus = 5
	MonitorStatusArchived   MonitorStatus = 6
)

func (s MonitorStatus) String() string {
	switch s {
	case MonitorStatusUnknown:
		return "unknown"
	case MonitorStatusInactive:
		return "inactive"
	case MonitorStatusUp:
		return "up"
	case MonitorStatusRecovering:
		return "recovering"
	case MonitorStatusSuspicious:
		return "suspicious"
	case MonitorStatusDown:
		return "down"
	case MonitorStatusArchived:
		return "archived"
	default:
		return "invalid"
	}
}

// Active reports whether the monitor participates in probing.
// Inactive and Archived monitors have no next ping time.
func (s MonitorStatus) Active() bool {
	return s != MonitorStatusInactive && s != MonitorStatusArchived
}

// PingErrorKind classifies the failure mode of a single probe.
// Stored discriminants: None=0, HttpCode=1, Connect=2, Builder=3,
// Request=4, Redirect=5, Body=6, Decode=7, Timeout=8,
// BrowserServiceCallFailed=9, Unknown=10.
type PingErrorKind int16

const (
	PingErrorNone                     PingErrorKind = 0
	PingErrorHTTPCode                 PingErrorKind = 1
	PingErrorConnect                  PingErrorKind = 2
	PingErrorBuilder                  PingErrorKind = 3
	PingErrorRequest                  PingErrorKind = 4
	PingErrorRedirect                 PingErrorKind = 5
	PingErrorBody                     PingErrorKind = 6
	PingErrorDecode                   PingErrorKind = 7
	PingErrorTimeout                  PingErrorKind = 8
	PingErrorBrowserServiceCallFailed PingErrorKind = 9
	PingErrorUnknown                  PingErrorKind = 10
)

func (k PingErrorKind) String() string {
	switch k {
	case PingErrorNone:
		return "none"
	case PingErrorHTTPCode:
		return "http_code"
	case PingErrorConnect:
		return "connect"
	case PingErrorBuilder:
		return "builder"
	case PingErrorRequest:
		return "request"
	case PingErrorRedirect:
		return "redirect"
	case PingErrorBody:
		return "body"
	case PingErrorDecode:
		return "decode"
	case PingErrorTimeout:
		return "timeout"
	case PingErrorBrowserServiceCallFailed:
		return "browser_service_call_failed"
	case PingErrorUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// TaskStatus represents the timing state of a scheduled task.
// Stored discriminants: Running=1, Pending=2, Due=3, Late=4, Absent=5,
// Healthy=6, Failing=7.
type TaskStatus int16

const (
	TaskStatusRunning TaskStatus = 1
	TaskStatusPending TaskStatus = 2
	TaskStatusDue     TaskStatus = 3
	TaskStatusLate    TaskStatus = 4
	TaskStatusAbsent  TaskStatus = 5
	TaskStatusHealthy TaskStatus = 6
	TaskStatusFailing TaskStatus = 7
)

func (s TaskStatus) String() string {
	switch s {
	case TaskStatusRunning:
		return "running"
	case TaskStatusPending:
		return "pending"
	case TaskStatusDue:
		return "due"
	case TaskStatusLate:
		return "late"
	case TaskStatusAbsent:
		return "absent"
	case TaskStatusHealthy:
		return "healthy"
	case TaskStatusFailing:
		return "failing"
	default:
		return "invalid"
	}
}

// TaskRunStatus represents the state of a single execution attempt.
// Stored discriminants: Running=1, Finished=2, Failed=3, Aborted=4, Dead=5.
type TaskRunStatus int16

const (
	TaskRunStatusRunning  TaskRunStatus = 1
	TaskRunStatusFinished TaskRunStatus = 2
	TaskRunStatusFailed   TaskRunStatus = 3
	TaskRunStatusAborted  TaskRunStatus = 4
	TaskRunStatusDead     TaskRunStatus = 5
)

func (s TaskRunStatus) String() string {
	switch s {
	case TaskRunStatusRunning:
		return "running"
	case TaskRunStatusFinished:
		return "finished"
	case TaskRunStatusFailed:
		return "failed"
	case TaskRunStatusAborted:
		return "aborted"
	case TaskRunStatusDead:
		return "dead"
	default:
		return "invalid"
	}
}

// Terminal reports whether the run has reached a final state.
func (s TaskRunStatus) Terminal() bool {
	return s != TaskRunStatusRunning
}

// IncidentStatus represents the lifecycle state of an incident.
// Stored discriminants: Resolved=0, Ongoing=1, ToBeConfirmed=2.
type IncidentStatus int16

const (
	IncidentStatusResolved      IncidentStatus = 0
	IncidentStatusOngoing       IncidentStatus = 1
	IncidentStatusToBeConfirmed IncidentStatus = 2
)

func (s IncidentStatus) String() string {
	switch s {
	case IncidentStatusResolved:
		return "resolved"
	case IncidentStatusOngoing:
		return "ongoing"
	case IncidentStatusToBeConfirmed:
		return "to_be_confirmed"
	default:
		return "invalid"
	}
}

// Open reports whether the incident is still unresolved.
func (s IncidentStatus) Open() bool {
	return s == IncidentStatusOngoing || s == IncidentStatusToBeConfirmed
}

// IncidentPriority orders incidents for downstream consumers.
// Stored discriminants: P1=1 (Critical) through P5=5 (Informational).
type IncidentPriority int16

const (
	IncidentPriorityCritical IncidentPriority = 1
	IncidentPriorityMajor    IncidentPriority = 2
	IncidentPriorityMinor    IncidentPriority = 3
	IncidentPriorityWarning  IncidentPriority = 4
	IncidentPriorityInfo     IncidentPriority = 5
)

func (p IncidentPriority) String() string {
	switch p {
	case IncidentPriorityCritical:
		return "critical"
	case IncidentPriorityMajor:
		return "major"
	case IncidentPriorityMinor:
		return "minor"
	case IncidentPriorityWarning:
		return "warning"
	case IncidentPriorityInfo:
		return "info"
	default:
		return "invalid"
	}
}

// IncidentSourceType discriminates the entity an incident was derived from.
// Stored discriminants: HttpMonitor=1, Task=2, TaskRun=3. The source type
// keeps incident namespaces distinct: a lateness incident on a Task and a
// dead-run incident on one of its TaskRuns can coexist.
type IncidentSourceType int16

const (
	IncidentSourceHTTPMonitor IncidentSourceType = 1
	IncidentSourceTask        IncidentSourceType = 2
	IncidentSourceTaskRun     IncidentSourceType = 3
)

func (t IncidentSourceType) String() string {
	switch t {
	case IncidentSourceHTTPMonitor:
		return "http_monitor"
	case IncidentSourceTask:
		return "task"
	case IncidentSourceTaskRun:
		return "task_run"
	default:
		return "invalid"
	}
}

// IncidentEventType identifies a timeline entry.
// Stored discriminants are listed next to each constant.
type IncidentEventType int16

const (
	EventCreation                     IncidentEventType = 0
	EventNotification                 IncidentEventType = 1
	EventResolution                   IncidentEventType = 2
	EventComment                      IncidentEventType = 3
	EventAcknowledged                 IncidentEventType = 4
	EventConfirmation                 IncidentEventType = 5
	EventMonitorPinged                IncidentEventType = 6
	EventMonitorSwitchedToRecovering  IncidentEventType = 7
	EventMonitorSwitchedToSuspicious  IncidentEventType = 8
	EventMonitorSwitchedToDown        IncidentEventType = 9
	EventTaskSwitchedToDue            IncidentEventType = 10
	EventTaskSwitchedToLate           IncidentEventType = 11
	EventTaskSwitchedToAbsent         IncidentEventType = 12
	EventTaskSwitchedToRunning        IncidentEventType = 13
	EventTaskRunStarted               IncidentEventType = 14
	EventTaskRunIsDead                IncidentEventType = 15
	EventTaskRunFailed                IncidentEventType = 16
	EventTaskRunReceivedLastHeartbeat IncidentEventType = 17
)

func (t IncidentEventType) String() string {
	switch t {
	case EventCreation:
		return "creation"
	case EventNotification:
		return "notification"
	case EventResolution:
		return "resolution"
	case EventComment:
		return "comment"
	case EventAcknowledged:
		return "acknowledged"
	case EventConfirmation:
		return "confirmation"
	case EventMonitorPinged:
		return "monitor_pinged"
	case EventMonitorSwitchedToRecovering:
		return "monitor_switched_to_recovering"
	case EventMonitorSwitchedToSuspicious:
		return "monitor_switched_to_suspicious"
	case EventMonitorSwitchedToDown:
		return "monitor_switched_to_down"
	case EventTaskSwitchedToDue:
		return "task_switched_to_due"
	case EventTaskSwitchedToLate:
		return "task_switched_to_late"
	case EventTaskSwitchedToAbsent:
		return "task_switched_to_absent"
	case EventTaskSwitchedToRunning:
		return "task_switched_to_running"
	case EventTaskRunStarted:
		return "task_run_started"
	case EventTaskRunIsDead:
		return "task_run_is_dead"
	case EventTaskRunFailed:
		return "task_run_failed"
	case EventTaskRunReceivedLastHeartbeat:
		return "task_run_received_last_heartbeat"
	default:
		return "invalid"
	}
}

// NotificationType identifies why a notification row was materialized.
// Stored discriminants: Creation=0, Confirmation=1.
type NotificationType int16

const (
	NotificationIncidentCreation     NotificationType = 0
	NotificationIncidentConfirmation NotificationType = 1
)

func (t NotificationType) String() string {
	switch t {
	case NotificationIncidentCreation:
		return "incident_creation"
	case NotificationIncidentConfirmation:
		return "incident_confirmation"
	default:
		return "invalid"
	}
}
