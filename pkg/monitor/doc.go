/*
Package monitor implements the HTTP monitor executor.

The executor pulls a batch of monitors whose next ping time has elapsed
(FOR UPDATE SKIP LOCKED, so concurrent workers get disjoint batches),
probes them concurrently bounded by a configured limit, and runs every
result through the status machine:

	                 ok                    fail
	Unknown ────────────────▶ Up ─────────────────▶ Suspicious (d>1)
	                          │                         │ d consecutive fails
	                          │                         ▼
	   Up ◀── r consecutive ── Recovering ◀── ok ────── Down
	          oks (r>1)

Downtime needs d consecutive failing pings to confirm; recovery from
confirmed downtime needs r consecutive OK pings. A single OK clears an
unconfirmed Suspicious straight back to Up.

Transitions drive incident side effects through the incident package:
Suspicious opens a suspected incident with no notification, Down opens
or confirms an ongoing one and schedules the notification, Up resolves.
Failure-signature changes mid-incident push the previous signature into
the cause history. All of it commits atomically with the batch.
*/
package monitor
