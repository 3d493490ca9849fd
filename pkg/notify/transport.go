package notify

import (
	"context"

	"github.com/google/uuid"
)

// EmailMessage is one outbound email.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// SMSMessage is one outbound text message.
type SMSMessage struct {
	To   string
	Body string
}

// PushMessage is one outbound mobile push notification.
type PushMessage struct {
	DeviceToken string
	Title       string
	Body        string
}

// Transports are the outbound delivery collaborators. Implementations
// live outside the engine (SMTP relay, SMS gateway, push service); the
// dispatcher only batches per channel and records what was attempted.
type EmailTransport interface {
	SendBatch(ctx context.Context, messages []EmailMessage) error
}

type SMSTransport interface {
	SendBatch(ctx context.Context, messages []SMSMessage) error
}

type PushTransport interface {
	SendBatch(ctx context.Context, messages []PushMessage) error
}

// User is a notification recipient as resolved by the directory.
type User struct {
	ID           uuid.UUID
	Email        string
	PhoneNumber  string
	DeviceTokens []string
}

// Directory resolves the members of an organization. Lookups are cached
// per batch only; membership changes take effect on the next batch.
type Directory interface {
	OrganizationMembers(ctx context.Context, orgID uuid.UUID) ([]User, error)
}

// EmptyDirectory resolves no recipients. Used when the engine runs
// without the identity service: rows are still consumed and Notification
// events recorded, with no deliveries attempted.
type EmptyDirectory struct{}

func (EmptyDirectory) OrganizationMembers(ctx context.Context, orgID uuid.UUID) ([]User, error) {
	return nil, nil
}
