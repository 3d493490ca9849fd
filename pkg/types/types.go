package types

import (
	"time"

	"github.com/google/uuid"
)

// HttpMonitor is a probe target owned by an organization.
type HttpMonitor struct {
	OrganizationID uuid.UUID
	ID             uuid.UUID
	CreatedAt      time.Time

	URL            string
	Interval       time.Duration
	RequestTimeout time.Duration
	RequestHeaders map[string]string

	// Confirmation thresholds: D consecutive failing pings confirm
	// downtime, R consecutive OK pings confirm recovery. Both >= 1.
	DowntimeConfirmationThreshold int32
	RecoveryConfirmationThreshold int32

	EmailNotificationEnabled bool
	PushNotificationEnabled  bool
	SMSNotificationEnabled   bool

	Metadata map[string]string

	Status             MonitorStatus
	StatusCounter      int32
	ErrorKind          PingErrorKind
	LastHTTPCode       *int32
	FirstPingAt        *time.Time
	LastPingAt         *time.Time
	NextPingAt         *time.Time
	LastStatusChangeAt *time.Time
	ArchivedAt         *time.Time
}

// Task is a named, optionally scheduled, externally executed job.
// The identity is the user-supplied ID plus the organization.
type Task struct {
	OrganizationID uuid.UUID
	ID             string
	CreatedAt      time.Time

	CronSchedule     *string
	StartWindow      time.Duration
	LatenessWindow   time.Duration
	HeartbeatTimeout time.Duration

	EmailNotificationEnabled bool
	PushNotificationEnabled  bool
	SMSNotificationEnabled   bool

	Metadata map[string]string

	Status             TaskStatus
	PreviousStatus     TaskStatus
	LastStatusChangeAt *time.Time

	// NextDueAt is the next cron occurrence. LastDueAt is the occurrence
	// that most recently fired; the late and absent sweeps measure their
	// windows from it, and it back-dates TaskSwitchedToDue events.
	NextDueAt *time.Time
	LastDueAt *time.Time
}

// TaskRun is a single execution attempt of a Task.
type TaskRun struct {
	OrganizationID uuid.UUID
	ID             uuid.UUID
	TaskID         string

	Status          TaskRunStatus
	StartedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	LastHeartbeatAt *time.Time
	ExitCode        *int32
	ErrorMessage    *string
}

// Incident is a durable record of a suspected or confirmed problem.
type Incident struct {
	OrganizationID uuid.UUID
	ID             uuid.UUID
	CreatedAt      time.Time
	CreatedBy      *uuid.UUID
	ResolvedAt     *time.Time

	Status   IncidentStatus
	Priority IncidentPriority

	// SourceType and SourceID name the entity the incident was derived
	// from: a monitor UUID, a task ID, or a task-run UUID.
	SourceType IncidentSourceType
	SourceID   string

	Cause          IncidentCause
	AcknowledgedBy []uuid.UUID
	Metadata       map[string]string
}

// Acknowledged reports whether the given user already acknowledged
// the incident.
func (i *Incident) Acknowledged(userID uuid.UUID) bool {
	for _, id := range i.AcknowledgedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// IncidentEvent is an append-only timeline entry attached to an incident.
// CreatedAt is monotone non-decreasing within an incident but not strictly:
// one transaction may insert several events sharing a timestamp, and
// sweepers back-date events to keep the timeline chronologically correct.
type IncidentEvent struct {
	OrganizationID uuid.UUID
	ID             uuid.UUID
	IncidentID     uuid.UUID
	CreatedAt      time.Time
	EventType      IncidentEventType
	Payload        *IncidentEventPayload
}

// IncidentNotification is a pending notification row, keyed by
// (organization, incident, escalation level) and upserted so that
// at-least-once scheduling never produces duplicates. The engine only
// writes escalation level 0; higher levels exist in the schema for
// future on-call escalation.
type IncidentNotification struct {
	OrganizationID  uuid.UUID
	IncidentID      uuid.UUID
	EscalationLevel int32

	Type    NotificationType
	DueAt   time.Time
	Payload NotificationPayload

	SendEmail            bool
	SendPushNotification bool
	SendSMS              bool
}

// NotificationPayload is the channel-independent context carried by a
// notification row; transports format it per channel at dispatch time.
type NotificationPayload struct {
	IncidentID uuid.UUID          `json:"incident_id"`
	SourceType IncidentSourceType `json:"incident_source_type"`
	SourceName string             `json:"source_name"`
	Cause      IncidentCause      `json:"cause"`
}
