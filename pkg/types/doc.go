/*
Package types defines the domain model shared by every Vigil component:
HTTP monitors, scheduled tasks, task runs, incidents, incident timeline
events, and pending notifications.

All entities are scoped by OrganizationID; every repository query and
mutation carries that scope. Enumerations are persisted as small integers
with stable discriminants — the numeric values documented on each type are
part of the storage format and must never be renumbered.
*/
package types
