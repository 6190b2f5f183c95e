package provider

import (
	"context"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
)

// Message is a rendered notification addressed to one recipient on one channel.
type Message struct {
	Channel domain.Channel
	To      string
	Subject string
	HTML    string
	Text    string
}

// Provider is the outbound channel adaptor port.
type Provider interface {
	// Send fails with ErrNotConfigured, without any network I/O, when the
	// adaptor was built without the credentials it needs.
	Send(ctx context.Context, msg Message) (*ProviderResponse, error)
	// Verify is a lightweight connectivity check. Callers log its error.
	Verify(ctx context.Context) error
	Configured() bool
}

// ProviderResponse stores provider call metadata for audit and logging.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
