// Package email defines the message model shared by the parser, the rewrite
// engine and the relay providers.
package email

import (
	"strings"

	"github.com/emersion/go-message/mail"
)

// Address is a single mailbox as seen by a human reader.
type Address struct {
	Name    string
	Address string
}

// String returns the display text of the address: "Name <addr>", or just the
// address when no name is set.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return a.Name + " <" + a.Address + ">"
}

// HeaderString returns the RFC 5322 form of the address: a name with
// specials is quoted and a non-ASCII name is encoded. An entry with no name is
// returned as-is, since it may already be display text that failed to parse.
func (a Address) HeaderString() string {
	if a.Name == "" {
		return a.Address
	}
	return (&mail.Address{Name: a.Name, Address: a.Address}).String()
}

// HeaderText joins the RFC 5322 form of every address with ", ". Unlike
// AddressText the result can be parsed back into the same list.
func HeaderText(addrs []Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.HeaderString())
	}
	return strings.Join(parts, ", ")
}

// AddressText joins the display text of every address with ", ".
// A nil or empty list yields the empty string.
func AddressText(addrs []Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// Message is a parsed inbound message. Header holds every field in its
// original order; the identity fields below are decoded views that the
// serializer writes back over the corresponding header fields. Body is
// everything after the header block and is never modified.
type Message struct {
	Header mail.Header
	Body   []byte

	Subject      string
	From         []Address
	To           []Address
	ReplyTo      []Address
	EnvelopeFrom string

	// BareLF is set when the header block uses LF line endings. The
	// serializer writes the header back the same way.
	BareLF bool
}

// Outbound is a rewritten message ready for a relay provider.
type Outbound struct {
	// Data is the complete RFC 5322 message.
	Data []byte

	// EnvelopeFrom is the bounce address (SMTP MAIL FROM / SES feedback address).
	EnvelopeFrom string

	// Recipients are the envelope recipients.
	Recipients []string

	// ConfigurationSet names the delivery configuration at the relay service.
	ConfigurationSet string
}
