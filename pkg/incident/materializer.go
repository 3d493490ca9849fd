package incident

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil/pkg/events"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/metrics"
	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/types"
)

// Materializer turns detector decisions into durable incident state:
// incident rows, timeline events, and pending notification rows. Every
// method writes through the caller's transaction so an incident, its
// events, and its notification land atomically with the batch that
// produced them.
type Materializer struct {
	broker *events.Broker
}

// NewMaterializer creates a materializer. broker may be nil; the
// in-process event stream is a best-effort mirror of the durable
// timeline, never the other way around.
func NewMaterializer(broker *events.Broker) *Materializer {
	return &Materializer{broker: broker}
}

// NotificationOpts describes the notification row materialized together
// with an incident creation or confirmation.
type NotificationOpts struct {
	Type       types.NotificationType
	DueAt      time.Time
	SourceName string

	SendEmail            bool
	SendPushNotification bool
	SendSMS              bool
}

// enabled reports whether any channel is requested.
func (o *NotificationOpts) enabled() bool {
	return o != nil && (o.SendEmail || o.SendPushNotification || o.SendSMS)
}

// CreateParams carries everything needed to open an incident.
type CreateParams struct {
	OrganizationID uuid.UUID
	CreatedAt      time.Time
	CreatedBy      *uuid.UUID

	Status   types.IncidentStatus
	Priority types.IncidentPriority

	SourceType types.IncidentSourceType
	SourceID   string

	Cause    types.IncidentCause
	Metadata map[string]string

	// Notification is honored only when the incident opens as Ongoing;
	// suspected incidents notify at confirmation time instead.
	Notification *NotificationOpts
}

// Create opens a new incident and appends its creation event. Callers
// must have checked FindOpenBySource first; the open-incident unique
// index backstops races between concurrent batches.
func (m *Materializer) Create(ctx context.Context, tx storage.Tx, p CreateParams) (*types.Incident, error) {
	inc := &types.Incident{
		OrganizationID: p.OrganizationID,
		ID:             uuid.New(),
		CreatedAt:      p.CreatedAt,
		CreatedBy:      p.CreatedBy,
		Status:         p.Status,
		Priority:       p.Priority,
		SourceType:     p.SourceType,
		SourceID:       p.SourceID,
		Cause:          p.Cause,
		Metadata:       p.Metadata,
	}
	if err := tx.Incidents().Create(ctx, inc); err != nil {
		return nil, err
	}

	if err := m.AppendEvent(ctx, tx, inc, types.EventCreation, p.CreatedAt, nil); err != nil {
		return nil, err
	}

	if inc.Status == types.IncidentStatusOngoing && p.Notification.enabled() {
		if err := m.scheduleNotification(ctx, tx, inc, p.Notification); err != nil {
			return nil, err
		}
	}

	metrics.IncidentsTotal.WithLabelValues("created").Inc()
	m.publish(events.EventIncidentCreated, inc)
	log.WithIncidentID(inc.ID.String()).Info().
		Str("source_type", inc.SourceType.String()).
		Str("source_id", inc.SourceID).
		Str("status", inc.Status.String()).
		Msg("incident created")
	return inc, nil
}

// Confirm promotes a suspected incident to Ongoing, appends the
// confirmation event, and schedules the confirmation notification.
func (m *Materializer) Confirm(ctx context.Context, tx storage.Tx, inc *types.Incident, at time.Time, opts *NotificationOpts) error {
	if inc.Status != types.IncidentStatusToBeConfirmed {
		return nil
	}
	inc.Status = types.IncidentStatusOngoing
	if err := tx.Incidents().Update(ctx, inc); err != nil {
		return err
	}
	if err := m.AppendEvent(ctx, tx, inc, types.EventConfirmation, at, nil); err != nil {
		return err
	}
	if opts.enabled() {
		if err := m.scheduleNotification(ctx, tx, inc, opts); err != nil {
			return err
		}
	}

	metrics.IncidentsTotal.WithLabelValues("confirmed").Inc()
	m.publish(events.EventIncidentConfirmed, inc)
	return nil
}

// Resolve closes the incident and cancels any pending notification so a
// short-lived suspected incident never reaches anyone.
func (m *Materializer) Resolve(ctx context.Context, tx storage.Tx, inc *types.Incident, at time.Time) error {
	if !inc.Status.Open() {
		return types.ErrIncidentNotResolvable
	}
	inc.Status = types.IncidentStatusResolved
	inc.ResolvedAt = &at
	if err := tx.Incidents().Update(ctx, inc); err != nil {
		return err
	}
	if err := m.AppendEvent(ctx, tx, inc, types.EventResolution, at, nil); err != nil {
		return err
	}
	if err := tx.Notifications().CancelForIncident(ctx, inc.OrganizationID, inc.ID); err != nil {
		return err
	}

	metrics.IncidentsTotal.WithLabelValues("resolved").Inc()
	m.publish(events.EventIncidentResolved, inc)
	log.WithIncidentID(inc.ID.String()).Info().Msg("incident resolved")
	return nil
}

// Acknowledge records that a user has seen the incident and cancels any
// pending notification; someone is already looking at it. A repeated
// acknowledgement by the same user is a no-op.
func (m *Materializer) Acknowledge(ctx context.Context, tx storage.Tx, inc *types.Incident, userID uuid.UUID, at time.Time) error {
	if inc.Acknowledged(userID) {
		return nil
	}
	inc.AcknowledgedBy = append(inc.AcknowledgedBy, userID)
	if err := tx.Incidents().Update(ctx, inc); err != nil {
		return err
	}
	payload := &types.IncidentEventPayload{AcknowledgedBy: &userID}
	if err := m.AppendEvent(ctx, tx, inc, types.EventAcknowledged, at, payload); err != nil {
		return err
	}
	if err := tx.Notifications().CancelForIncident(ctx, inc.OrganizationID, inc.ID); err != nil {
		return err
	}

	metrics.IncidentsTotal.WithLabelValues("acknowledged").Inc()
	m.publish(events.EventIncidentAcknowledged, inc)
	return nil
}

// Comment appends a free-form comment to the timeline.
func (m *Materializer) Comment(ctx context.Context, tx storage.Tx, inc *types.Incident, userID uuid.UUID, at time.Time, comment string) error {
	payload := &types.IncidentEventPayload{Comment: &comment, CommentedBy: &userID}
	return m.AppendEvent(ctx, tx, inc, types.EventComment, at, payload)
}

// AppendEvent adds a timeline entry. Detectors use this directly for
// observation events (pings, status switches); at may be back-dated so
// the timeline stays chronologically correct.
func (m *Materializer) AppendEvent(ctx context.Context, tx storage.Tx, inc *types.Incident, eventType types.IncidentEventType, at time.Time, payload *types.IncidentEventPayload) error {
	ev := &types.IncidentEvent{
		OrganizationID: inc.OrganizationID,
		ID:             uuid.New(),
		IncidentID:     inc.ID,
		CreatedAt:      at,
		EventType:      eventType,
		Payload:        payload,
	}
	return tx.Events().Append(ctx, ev)
}

// UpdateCause persists a cause rewrite (signature changes, lateness
// escalation timestamps).
func (m *Materializer) UpdateCause(ctx context.Context, tx storage.Tx, inc *types.Incident) error {
	return tx.Incidents().Update(ctx, inc)
}

func (m *Materializer) scheduleNotification(ctx context.Context, tx storage.Tx, inc *types.Incident, opts *NotificationOpts) error {
	n := &types.IncidentNotification{
		OrganizationID:  inc.OrganizationID,
		IncidentID:      inc.ID,
		EscalationLevel: 0,
		Type:            opts.Type,
		DueAt:           opts.DueAt,
		Payload: types.NotificationPayload{
			IncidentID: inc.ID,
			SourceType: inc.SourceType,
			SourceName: opts.SourceName,
			Cause:      inc.Cause,
		},
		SendEmail:            opts.SendEmail,
		SendPushNotification: opts.SendPushNotification,
		SendSMS:              opts.SendSMS,
	}
	return tx.Notifications().Upsert(ctx, n)
}

func (m *Materializer) publish(eventType events.EventType, inc *types.Incident) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		ID:   uuid.New().String(),
		Type: eventType,
		Metadata: map[string]string{
			"organization_id": inc.OrganizationID.String(),
			"incident_id":     inc.ID.String(),
			"source_type":     inc.SourceType.String(),
			"source_id":       inc.SourceID,
		},
	})
}
