package blob

import (
	"context"

	"github.com/google/uuid"
)

// Store is the contract of the external object store holding large probe
// payloads (response bodies, screenshots). The database only ever stores
// file ids; content lives behind this interface.
type Store interface {
	Put(ctx context.Context, orgID, fileID uuid.UUID, contentType string, data []byte) error
}
