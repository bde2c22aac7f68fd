// Package provider defines the interface for outbound relay services.
package provider

import (
	"context"

	"github.com/shineum/forward-relay/internal/email"
)

// Provider is the interface that relay backends must implement.
// Each provider submits an already-rendered raw message to its service
// (e.g., SES, an SMTP smarthost, Microsoft Graph, stdout).
type Provider interface {
	// Send submits msg and returns the service-assigned message ID once the
	// service has accepted it. Any error means the message was not accepted.
	Send(ctx context.Context, msg *email.Outbound) (string, error)

	// Name returns the human-readable name of this provider.
	Name() string
}
