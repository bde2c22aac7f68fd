// Package relay submits rewritten messages to the outbound mail service and
// removes the original from the intake store once the submission is accepted.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/shineum/forward-relay/internal/email"
	"github.com/shineum/forward-relay/internal/intake"
	"github.com/shineum/forward-relay/internal/provider"
)

// DispatchError reports that the relay service did not accept a message.
// The original stays in the intake store.
type DispatchError struct {
	Provider string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("relay: %s rejected message: %v", e.Provider, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// CleanupError reports that a sent message could not be removed from the
// intake store.
type CleanupError struct {
	Key string
	Err error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("relay: delete %q after send: %v", e.Key, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// Config holds the envelope and delivery settings applied to every message.
type Config struct {
	// ConfigurationSet names the delivery configuration at the relay service.
	ConfigurationSet string

	// EnvelopeFrom is the bounce path.
	EnvelopeFrom string

	// Recipients are the envelope recipients.
	Recipients []string
}

// Dispatcher sends messages through a Provider and cleans up the intake
// store. Callers must only call Cleanup after Dispatch returned nil.
type Dispatcher struct {
	provider provider.Provider
	store    intake.Store
	cfg      Config
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(p provider.Provider, store intake.Store, cfg Config) (*Dispatcher, error) {
	if p == nil {
		return nil, errors.New("relay: provider is required")
	}
	if store == nil {
		return nil, errors.New("relay: store is required")
	}
	if len(cfg.Recipients) == 0 {
		return nil, errors.New("relay: at least one recipient is required")
	}
	return &Dispatcher{provider: p, store: store, cfg: cfg}, nil
}

// Provider returns the name of the underlying relay provider.
func (d *Dispatcher) Provider() string {
	return d.provider.Name()
}

// Dispatch submits raw as a complete message and returns the relay-assigned
// message id.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) (string, error) {
	out := &email.Outbound{
		Data:             raw,
		EnvelopeFrom:     d.cfg.EnvelopeFrom,
		Recipients:       append([]string(nil), d.cfg.Recipients...),
		ConfigurationSet: d.cfg.ConfigurationSet,
	}

	id, err := d.provider.Send(ctx, out)
	if err != nil {
		return "", &DispatchError{Provider: d.provider.Name(), Err: err}
	}
	return id, nil
}

// Cleanup deletes the original message from the intake store.
func (d *Dispatcher) Cleanup(ctx context.Context, key string) error {
	if err := d.store.Delete(ctx, key); err != nil {
		return &CleanupError{Key: key, Err: err}
	}
	return nil
}
