/*
Package blob abstracts the object store holding large probe payloads.

Response bodies and screenshots never enter the relational store: the
executor writes them here under a generated (organization_id, file_id)
key and records only the file id inside the ping event payload. The
production backend is an external object store; LocalStore and
MemoryStore cover single-node deployments and tests.
*/
package blob
