package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vigilhq/vigil/pkg/blob"
	"github.com/vigilhq/vigil/pkg/events"
	"github.com/vigilhq/vigil/pkg/incident"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/metrics"
	"github.com/vigilhq/vigil/pkg/probe"
	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/types"
)

const component = "http-monitors"

// Executor claims batches of due monitors, probes them concurrently,
// and feeds every result through the status machine and its incident
// side effects. One batch is one transaction.
type Executor struct {
	store        storage.Store
	prober       probe.Prober
	blobs        blob.Store
	materializer *incident.Materializer
	broker       *events.Broker
}

// NewExecutor creates a monitor executor
func NewExecutor(store storage.Store, prober probe.Prober, blobs blob.Store, materializer *incident.Materializer, broker *events.Broker) *Executor {
	return &Executor{
		store:        store,
		prober:       prober,
		blobs:        blobs,
		materializer: materializer,
		broker:       broker,
	}
}

// ExecuteBatch processes one batch of due monitors and returns the
// number processed. The skip-locked claim keeps concurrent workers on
// disjoint batches; the claim and every resulting write commit together.
func (e *Executor) ExecuteBatch(ctx context.Context, selectLimit, pingConcurrency int) (int, error) {
	timer := metrics.NewTimer()
	processed := 0

	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		now := time.Now().UTC()
		monitors, err := tx.Monitors().ClaimDue(ctx, now, selectLimit)
		if err != nil {
			return err
		}
		if len(monitors) == 0 {
			return nil
		}

		results := e.probeAll(ctx, monitors, pingConcurrency)

		for i, m := range monitors {
			if err := e.HandlePingResponse(ctx, tx, m, results[i], time.Now().UTC()); err != nil {
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

// probeAll probes every claimed monitor with at most pingConcurrency
// requests in flight, preserving batch order.
func (e *Executor) probeAll(ctx context.Context, monitors []*types.HttpMonitor, pingConcurrency int) []probe.Result {
	results := make([]probe.Result, len(monitors))

	g, gctx := errgroup.WithContext(ctx)
	if pingConcurrency > 0 {
		g.SetLimit(pingConcurrency)
	}
	for i, m := range monitors {
		g.Go(func() error {
			timer := metrics.NewTimer()
			results[i] = e.prober.Ping(gctx, m.URL, m.RequestTimeout, m.RequestHeaders)
			timer.ObserveDuration(metrics.ProbeDuration)

			if results[i].OK() {
				metrics.ProbesTotal.WithLabelValues("ok").Inc()
			} else {
				metrics.ProbesTotal.WithLabelValues(results[i].ErrorKind.String()).Inc()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// HandlePingResponse advances one monitor through the status machine and
// applies the incident side effects of the transition.
func (e *Executor) HandlePingResponse(ctx context.Context, tx storage.Tx, m *types.HttpMonitor, res probe.Result, now time.Time) error {
	logger := log.WithMonitorID(m.ID.String())

	nextStatus, nextCounter := NextStatus(
		m.DowntimeConfirmationThreshold, m.RecoveryConfirmationThreshold,
		m.Status, m.StatusCounter, res.OK())
	changed := nextStatus != m.Status

	m.Status = nextStatus
	m.StatusCounter = nextCounter
	m.ErrorKind = res.ErrorKind
	m.LastHTTPCode = res.HTTPCode
	if m.FirstPingAt == nil {
		m.FirstPingAt = &now
	}
	m.LastPingAt = &now
	next := now.Add(m.Interval)
	m.NextPingAt = &next
	if changed {
		m.LastStatusChangeAt = &now
		metrics.MonitorTransitionsTotal.WithLabelValues(nextStatus.String()).Inc()
	}
	if err := tx.Monitors().Update(ctx, m); err != nil {
		return err
	}

	open, err := tx.Incidents().FindOpenBySource(ctx, m.OrganizationID, types.IncidentSourceHTTPMonitor, m.ID.String())
	if err != nil {
		return err
	}

	switch nextStatus {
	case types.MonitorStatusUp:
		if open != nil {
			if err := e.appendPing(ctx, tx, open, res, now); err != nil {
				return err
			}
			if err := e.materializer.Resolve(ctx, tx, open, now); err != nil {
				return err
			}
		}

	case types.MonitorStatusRecovering:
		if open == nil {
			// A recovering monitor without an incident means its incident
			// was resolved out of band; observe and move on.
			logger.Warn().Msg("recovering monitor has no open incident")
			break
		}
		if nextCounter == 1 {
			if err := e.appendPing(ctx, tx, open, res, now); err != nil {
				return err
			}
			if err := e.materializer.AppendEvent(ctx, tx, open, types.EventMonitorSwitchedToRecovering, now, nil); err != nil {
				return err
			}
		}

	case types.MonitorStatusSuspicious, types.MonitorStatusDown:
		if err := e.handleFailing(ctx, tx, m, open, res, now, nextStatus, nextCounter); err != nil {
			return err
		}
	}

	if changed && e.broker != nil {
		e.broker.Publish(&events.Event{
			ID:   uuid.New().String(),
			Type: events.EventMonitorStatusChanged,
			Metadata: map[string]string{
				"organization_id": m.OrganizationID.String(),
				"monitor_id":      m.ID.String(),
				"status":          nextStatus.String(),
			},
		})
	}
	return nil
}

// handleFailing covers the Suspicious and Down rows of the side-effect
// table: incident creation, confirmation, and cause signature updates.
func (e *Executor) handleFailing(ctx context.Context, tx storage.Tx, m *types.HttpMonitor, open *types.Incident, res probe.Result, now time.Time, nextStatus types.MonitorStatus, nextCounter int32) error {
	signature := res.Signature()

	if open == nil {
		status := types.IncidentStatusToBeConfirmed
		var notification *incident.NotificationOpts
		if nextStatus == types.MonitorStatusDown {
			status = types.IncidentStatusOngoing
			notification = e.notificationOpts(m, types.NotificationIncidentCreation, now)
		}
		inc, err := e.materializer.Create(ctx, tx, incident.CreateParams{
			OrganizationID: m.OrganizationID,
			CreatedAt:      now,
			Status:         status,
			Priority:       types.IncidentPriorityCritical,
			SourceType:     types.IncidentSourceHTTPMonitor,
			SourceID:       m.ID.String(),
			Cause: types.IncidentCause{
				HTTPMonitor: &types.HTTPMonitorCause{LastPing: signature},
			},
			Notification: notification,
		})
		if err != nil {
			return err
		}
		return e.appendPing(ctx, tx, inc, res, now)
	}

	signatureChanged := !open.Cause.HTTPMonitor.LastPing.Equal(signature)
	if signatureChanged {
		cause := open.Cause.HTTPMonitor
		cause.PreviousPings = append(cause.PreviousPings, cause.LastPing)
		cause.LastPing = signature
		if err := e.materializer.UpdateCause(ctx, tx, open); err != nil {
			return err
		}
	}

	if nextStatus == types.MonitorStatusDown && open.Status == types.IncidentStatusToBeConfirmed {
		opts := e.notificationOpts(m, types.NotificationIncidentConfirmation, now)
		if err := e.materializer.Confirm(ctx, tx, open, now, opts); err != nil {
			return err
		}
		return e.appendPing(ctx, tx, open, res, now)
	}

	if signatureChanged || nextCounter == 1 {
		if err := e.appendPing(ctx, tx, open, res, now); err != nil {
			return err
		}
	}
	if nextCounter == 1 {
		eventType := types.EventMonitorSwitchedToSuspicious
		if nextStatus == types.MonitorStatusDown {
			eventType = types.EventMonitorSwitchedToDown
		}
		if err := e.materializer.AppendEvent(ctx, tx, open, eventType, now, nil); err != nil {
			return err
		}
	}
	return nil
}

// appendPing writes the probe's large payloads to the blob store and
// appends a MonitorPinged event carrying only the file ids.
func (e *Executor) appendPing(ctx context.Context, tx storage.Tx, inc *types.Incident, res probe.Result, now time.Time) error {
	payload := &types.IncidentEventPayload{
		Ping: &types.PingEventPayload{
			ErrorKind:      res.ErrorKind,
			HTTPCode:       res.HTTPCode,
			ResponseTimeMS: res.ResponseTime.Milliseconds(),
			IPAddresses:    res.IPAddresses,
		},
	}
	if len(res.Body) > 0 {
		if fileID := e.putBlob(ctx, inc.OrganizationID, "text/html", res.Body); fileID != nil {
			payload.Ping.BodyFileID = fileID
		}
	}
	if len(res.Screenshot) > 0 {
		if fileID := e.putBlob(ctx, inc.OrganizationID, "image/png", res.Screenshot); fileID != nil {
			payload.Ping.ScreenshotFileID = fileID
		}
	}
	return e.materializer.AppendEvent(ctx, tx, inc, types.EventMonitorPinged, now, payload)
}

// putBlob stores one payload best-effort; a blob store outage degrades
// the event detail but never aborts the batch.
func (e *Executor) putBlob(ctx context.Context, orgID uuid.UUID, contentType string, data []byte) *uuid.UUID {
	if e.blobs == nil {
		return nil
	}
	fileID := uuid.New()
	if err := e.blobs.Put(ctx, orgID, fileID, contentType, data); err != nil {
		log.WithOrgID(orgID.String()).Warn().Err(err).Msg("failed to store probe payload")
		return nil
	}
	return &fileID
}

func (e *Executor) notificationOpts(m *types.HttpMonitor, notificationType types.NotificationType, now time.Time) *incident.NotificationOpts {
	if !m.EmailNotificationEnabled && !m.PushNotificationEnabled && !m.SMSNotificationEnabled {
		return nil
	}
	return &incident.NotificationOpts{
		Type:                 notificationType,
		DueAt:                now,
		SourceName:           m.URL,
		SendEmail:            m.EmailNotificationEnabled,
		SendPushNotification: m.PushNotificationEnabled,
		SendSMS:              m.SMSNotificationEnabled,
	}
}
