/*
Package incident materializes incidents, their append-only timeline, and
pending notification rows.

Detectors (the monitor executor and the task sweeps) decide WHEN an
incident opens, confirms, or resolves; this package owns HOW those
decisions become durable state. All writes go through the caller's
transaction, so an incident and the batch that produced it commit
together or not at all.

Notification scheduling follows the incident lifecycle: an incident that
opens directly as Ongoing schedules a creation notification, a suspected
incident schedules nothing until Confirm, and Resolve cancels whatever
is still pending. Rows are keyed by (organization, incident, escalation
level) and upserted, which keeps scheduling idempotent under the
engine's at-least-once processing.
*/
package incident
