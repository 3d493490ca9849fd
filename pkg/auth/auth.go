package auth

import (
	"github.com/google/uuid"

	"github.com/vigilhq/vigil/pkg/types"
)

// Permission is a bit set of capabilities granted to a caller.
type Permission uint32

const (
	PermMonitorRead Permission = 1 << iota
	PermMonitorWrite
	PermTaskRead
	PermTaskWrite
	PermTaskReport // start/heartbeat/finish reported by runners
	PermIncidentRead
	PermIncidentWrite
)

// PermAll grants every permission; used by trusted internal callers
// (sweepers, operator CLI).
const PermAll Permission = ^Permission(0)

// Context carries the identity and capabilities resolved at the API
// boundary. The core never authenticates; it only checks the bits it is
// handed. UserID is zero for machine callers (runners, sweepers).
type Context struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Permissions    Permission
}

// Internal returns a context with full permissions for the given
// organization, used by the engine's own sweeps.
func Internal(orgID uuid.UUID) Context {
	return Context{OrganizationID: orgID, Permissions: PermAll}
}

// Can reports whether the caller holds every bit in p.
func (c Context) Can(p Permission) bool {
	return c.Permissions&p == p
}

// Require returns ErrPermissionDenied unless the caller holds every
// bit in p.
func (c Context) Require(p Permission) error {
	if !c.Can(p) {
		return types.ErrPermissionDenied
	}
	return nil
}
