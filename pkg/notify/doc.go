/*
Package notify dispatches materialized notification rows to the
outbound channel transports.

The dispatcher is the only consumer of the incidents_notifications
table. One batch is one transaction: claim due rows skip-locked, look up
recipients (cached for the batch), attempt delivery per enabled channel,
append a Notification event recording the attempted channels, and
delete the rows. Delivery failures are per-channel and best-effort; the
timeline event is the durable record of the attempt either way.
*/
package notify
