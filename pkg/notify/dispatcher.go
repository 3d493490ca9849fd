package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil/pkg/events"
	"github.com/vigilhq/vigil/pkg/incident"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/metrics"
	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/types"
)

const component = "incident-notifications"

// Dispatcher consumes due notification rows: claim with skip-locked,
// resolve recipients, hand the messages to the channel transports,
// record a Notification timeline event, and delete the row — all in one
// transaction. Delivery itself is best-effort per channel; a transport
// failure is logged and does not roll the batch back.
type Dispatcher struct {
	store        storage.Store
	directory    Directory
	email        EmailTransport
	sms          SMSTransport
	push         PushTransport
	materializer *incident.Materializer
	broker       *events.Broker
}

// NewDispatcher creates a notification dispatcher. Any transport may be
// nil; its channel is then skipped.
func NewDispatcher(store storage.Store, directory Directory, email EmailTransport, sms SMSTransport, push PushTransport, materializer *incident.Materializer, broker *events.Broker) *Dispatcher {
	return &Dispatcher{
		store:        store,
		directory:    directory,
		email:        email,
		sms:          sms,
		push:         push,
		materializer: materializer,
		broker:       broker,
	}
}

// ExecuteBatch processes one batch of due notifications and returns the
// number dispatched.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, selectLimit int) (int, error) {
	timer := metrics.NewTimer()
	processed := 0

	err := d.store.WithTx(ctx, func(tx storage.Tx) error {
		now := time.Now().UTC()
		claimed, err := tx.Notifications().ClaimDue(ctx, now, selectLimit)
		if err != nil {
			return err
		}

		// Recipient lookups are amortized per batch and thrown away with
		// it; membership changes surface on the next batch.
		members := make(map[uuid.UUID][]User)

		for _, n := range claimed {
			if err := d.dispatch(ctx, tx, n, members, now); err != nil {
				return err
			}
			processed++
		}
		return nil
	})

	timer.ObserveDuration(metrics.BatchDuration.WithLabelValues(component))
	if err != nil {
		metrics.BatchesTotal.WithLabelValues(component, "error").Inc()
		return 0, err
	}
	metrics.BatchesTotal.WithLabelValues(component, "ok").Inc()
	metrics.BatchItemsProcessed.WithLabelValues(component).Add(float64(processed))
	return processed, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, tx storage.Tx, n *types.IncidentNotification, members map[uuid.UUID][]User, now time.Time) error {
	users, ok := members[n.OrganizationID]
	if !ok {
		var err error
		users, err = d.directory.OrganizationMembers(ctx, n.OrganizationID)
		if err != nil {
			return err
		}
		members[n.OrganizationID] = users
	}

	attempted := d.send(ctx, n, users)

	inc, err := tx.Incidents().Get(ctx, n.OrganizationID, n.IncidentID)
	if err != nil {
		return err
	}
	payload := &types.IncidentEventPayload{NotificationChannels: attempted}
	if err := d.materializer.AppendEvent(ctx, tx, inc, types.EventNotification, now, payload); err != nil {
		return err
	}

	// The claim-and-act pattern consumes the row.
	if err := tx.Notifications().Delete(ctx, n.OrganizationID, n.IncidentID, n.EscalationLevel); err != nil {
		return err
	}

	if d.broker != nil {
		d.broker.Publish(&events.Event{
			ID:   uuid.New().String(),
			Type: events.EventNotificationSent,
			Metadata: map[string]string{
				"organization_id": n.OrganizationID.String(),
				"incident_id":     n.IncidentID.String(),
			},
		})
	}
	return nil
}

// send fans the notification out to every requested channel and returns
// the channels that were attempted. Per-channel failures are logged and
// counted, never propagated.
func (d *Dispatcher) send(ctx context.Context, n *types.IncidentNotification, users []User) []string {
	logger := log.WithIncidentID(n.IncidentID.String())
	subject := subjectFor(n)
	var attempted []string

	if n.SendEmail && d.email != nil {
		var messages []EmailMessage
		for _, u := range users {
			if u.Email != "" {
				messages = append(messages, EmailMessage{To: u.Email, Subject: subject, Body: subject})
			}
		}
		if len(messages) > 0 {
			attempted = append(attempted, "email")
			if err := d.email.SendBatch(ctx, messages); err != nil {
				metrics.NotificationsTotal.WithLabelValues("email", "error").Inc()
				logger.Error().Err(err).Msg("failed to send email notifications")
			} else {
				metrics.NotificationsTotal.WithLabelValues("email", "ok").Inc()
			}
		}
	}

	if n.SendSMS && d.sms != nil {
		var messages []SMSMessage
		for _, u := range users {
			if u.PhoneNumber != "" {
				messages = append(messages, SMSMessage{To: u.PhoneNumber, Body: subject})
			}
		}
		if len(messages) > 0 {
			attempted = append(attempted, "sms")
			if err := d.sms.SendBatch(ctx, messages); err != nil {
				metrics.NotificationsTotal.WithLabelValues("sms", "error").Inc()
				logger.Error().Err(err).Msg("failed to send sms notifications")
			} else {
				metrics.NotificationsTotal.WithLabelValues("sms", "ok").Inc()
			}
		}
	}

	if n.SendPushNotification && d.push != nil {
		var messages []PushMessage
		for _, u := range users {
			for _, token := range u.DeviceTokens {
				messages = append(messages, PushMessage{DeviceToken: token, Title: subject, Body: subject})
			}
		}
		if len(messages) > 0 {
			attempted = append(attempted, "push")
			if err := d.push.SendBatch(ctx, messages); err != nil {
				metrics.NotificationsTotal.WithLabelValues("push", "error").Inc()
				logger.Error().Err(err).Msg("failed to send push notifications")
			} else {
				metrics.NotificationsTotal.WithLabelValues("push", "ok").Inc()
			}
		}
	}

	return attempted
}

// subjectFor builds the channel-independent one-line summary. Rendering
// full notification text is the transports' concern, not the engine's.
func subjectFor(n *types.IncidentNotification) string {
	verb := "created"
	if n.Type == types.NotificationIncidentConfirmation {
		verb = "confirmed"
	}
	return fmt.Sprintf("Incident %s for %s %q", verb, n.Payload.SourceType, n.Payload.SourceName)
}
