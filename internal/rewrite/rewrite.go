// Package rewrite turns an inbound message into one that can be re-sent from
// a verified identity to a fixed forwarding target.
package rewrite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shineum/forward-relay/internal/email"
	"github.com/shineum/forward-relay/internal/parser"
)

// ErrInvalidInput is returned when Rewrite is called without message bytes.
var ErrInvalidInput = errors.New("rewrite: message bytes are required")

// ErrIncompleteConfig is returned by ForwardConfig.Validate.
var ErrIncompleteConfig = errors.New("rewrite: incomplete forward configuration")

// ForwardConfig holds the identities used for every rewritten message.
type ForwardConfig struct {
	// BouncePath receives delivery-failure notifications.
	BouncePath string

	// ForwardAsName and ForwardAsAddress form the verified sending identity.
	ForwardAsName    string
	ForwardAsAddress string

	// ForwardToName and ForwardToAddress form the fixed recipient.
	ForwardToName    string
	ForwardToAddress string
}

// Validate reports every empty field.
func (c ForwardConfig) Validate() error {
	var missing []string
	if c.BouncePath == "" {
		missing = append(missing, "bounce path")
	}
	if c.ForwardAsName == "" {
		missing = append(missing, "forward-as name")
	}
	if c.ForwardAsAddress == "" {
		missing = append(missing, "forward-as address")
	}
	if c.ForwardToName == "" {
		missing = append(missing, "forward-to name")
	}
	if c.ForwardToAddress == "" {
		missing = append(missing, "forward-to address")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteConfig, strings.Join(missing, ", "))
	}
	return nil
}

// RewriteError reports a parse or serialize failure.
type RewriteError struct {
	Op  string
	Err error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewrite: %s: %v", e.Op, e.Err)
}

func (e *RewriteError) Unwrap() error {
	return e.Err
}

// Rewrite parses raw, applies cfg and serializes the result. It performs no
// I/O and returns byte-identical output for identical input.
func Rewrite(raw []byte, cfg ForwardConfig) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrInvalidInput
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		return nil, &RewriteError{Op: "parse", Err: err}
	}

	Apply(msg, cfg)

	out, err := parser.Serialize(msg)
	if err != nil {
		return nil, &RewriteError{Op: "serialize", Err: err}
	}
	return out, nil
}

// Apply overwrites the five identity fields of msg. Everything else,
// including the body, is left alone.
func Apply(msg *email.Message, cfg ForwardConfig) {
	subject := msg.Subject
	fromText := email.HeaderText(msg.From)
	toText := email.AddressText(msg.To)

	// The visible From must be an identity the relay accepts.
	msg.From = []email.Address{{Name: cfg.ForwardAsName, Address: cfg.ForwardAsAddress}}
	msg.To = []email.Address{{Name: cfg.ForwardToName, Address: cfg.ForwardToAddress}}
	msg.EnvelopeFrom = cfg.BouncePath

	// Replies go straight to the original sender. The text is kept in header
	// form so names with commas or non-ASCII characters survive serialization.
	msg.ReplyTo = []email.Address{{Name: "", Address: fromText}}

	// To is overwritten, so the original destination lives on in the subject.
	msg.Subject = "Fwd: (" + toText + ") " + subject
}
