/*
Package probe implements the outbound HTTP probe client used by the
monitor executor.

A probe is a single GET against a monitor's URL with its configured
headers and timeout. The result carries a PingErrorKind classification
(none, http_code, connect, timeout, redirect, body, ...), the HTTP status
code when a status line was received, response headers, resolved IP
addresses, round-trip time, and a size-capped copy of the body destined
for the blob store.

The prober is a collaborator of the executor, not part of the state
machine: classification here decides only the OK/not-OK input and the
failure signature recorded in incident causes.
*/
package probe
