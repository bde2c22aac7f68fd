// Package parser converts raw RFC 5322 messages to and from email.Message
// without touching the body: only the header block is decoded.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/shineum/forward-relay/internal/email"
)

// Parse reads the header block of raw and returns a Message whose Body holds
// the remaining bytes unchanged. A malformed header block is an error.
func Parse(raw []byte) (*email.Message, error) {
	br := bufio.NewReader(bytes.NewReader(raw))

	th, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	h := mail.Header{Header: message.Header{Header: th}}

	return &email.Message{
		Header:       h,
		Body:         body,
		Subject:      subject(h),
		From:         addressList(h, "From"),
		To:           addressList(h, "To"),
		ReplyTo:      addressList(h, "Reply-To"),
		EnvelopeFrom: returnPath(h),
		BareLF:       bareLF(raw),
	}, nil
}

// identityFields are the header fields Serialize regenerates from the
// decoded Message fields. New fields with no original position are written
// at the top of the header block in this order.
var identityFields = []string{"Return-Path", "From", "To", "Reply-To", "Subject"}

// Serialize writes msg back to RFC 5322 form. Every field keeps its original
// raw bytes and position except the identity fields, which are regenerated
// in place of their first occurrence; later duplicates are dropped. The
// header is written with the line endings of the input and the body is
// appended as-is.
func Serialize(msg *email.Message) ([]byte, error) {
	var identity mail.Header

	setAddressList(&identity, "From", msg.From)
	setAddressList(&identity, "To", msg.To)
	setAddressList(&identity, "Reply-To", msg.ReplyTo)
	if msg.EnvelopeFrom != "" {
		identity.Set("Return-Path", "<"+msg.EnvelopeFrom+">")
	}
	if msg.Subject != "" {
		identity.SetSubject(msg.Subject)
	}

	orig := &msg.Header.Header.Header
	isIdentity := make(map[string]bool, len(identityFields))
	written := make(map[string]bool, len(identityFields))

	var buf bytes.Buffer
	for _, key := range identityFields {
		isIdentity[key] = true
		if orig.Has(key) {
			continue
		}
		if err := writeFields(&buf, &identity.Header.Header, key); err != nil {
			return nil, err
		}
	}

	fields := orig.Fields()
	for fields.Next() {
		key := fields.Key()
		if isIdentity[key] {
			if !written[key] {
				written[key] = true
				if err := writeFields(&buf, &identity.Header.Header, key); err != nil {
					return nil, err
				}
			}
			continue
		}
		raw, err := fields.Raw()
		if err != nil {
			return nil, fmt.Errorf("failed to write header field %q: %w", key, err)
		}
		buf.Write(raw)
	}
	buf.WriteString("\r\n")

	out := buf.Bytes()
	if msg.BareLF {
		out = bytes.ReplaceAll(out, []byte("\r\n"), []byte("\n"))
	}
	return append(out, msg.Body...), nil
}

// writeFields copies every field named key from h to w.
func writeFields(w *bytes.Buffer, h *textproto.Header, key string) error {
	fields := h.FieldsByKey(key)
	for fields.Next() {
		raw, err := fields.Raw()
		if err != nil {
			return fmt.Errorf("failed to write header field %q: %w", key, err)
		}
		w.Write(raw)
	}
	return nil
}

// bareLF reports whether the first line of raw ends in LF without CR.
func bareLF(raw []byte) bool {
	i := bytes.IndexByte(raw, '\n')
	return i == 0 || i > 0 && raw[i-1] != '\r'
}

// subject returns the decoded Subject, falling back to the raw value when
// the encoded words use an unknown charset.
func subject(h mail.Header) string {
	s, err := h.Subject()
	if err != nil {
		slog.Warn("failed to decode subject, using raw value", "error", err)
		return h.Get("Subject")
	}
	return s
}

// addressList parses an address header. Values that are not a valid RFC 5322
// address list are kept as a single entry carrying the decoded header text,
// so nothing the sender wrote is lost.
func addressList(h mail.Header, key string) []email.Address {
	if !h.Has(key) {
		return nil
	}

	list, err := h.AddressList(key)
	if err != nil {
		text, textErr := h.Text(key)
		if textErr != nil {
			text = h.Get(key)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		slog.Debug("unparseable address header, keeping raw text",
			"header", key,
			"error", err,
		)
		return []email.Address{{Address: text}}
	}

	addrs := make([]email.Address, 0, len(list))
	for _, a := range list {
		addrs = append(addrs, email.Address{Name: a.Name, Address: a.Address})
	}
	return addrs
}

func returnPath(h mail.Header) string {
	v := strings.TrimSpace(h.Get("Return-Path"))
	v = strings.TrimPrefix(v, "<")
	v = strings.TrimSuffix(v, ">")
	return v
}

// setAddressList replaces key with addrs. An entry with no name may carry a
// full address text ("Bob <bob@example.com>"); it is re-parsed so names are
// encoded properly. If any entry cannot be parsed the texts are written as
// one encoded text value. Empty entries are dropped; an empty list removes key.
func setAddressList(h *mail.Header, key string, addrs []email.Address) {
	var (
		list []*mail.Address
		raw  []string
		ok   = true
	)

	for _, a := range addrs {
		if strings.TrimSpace(a.Address) == "" {
			continue
		}
		raw = append(raw, a.HeaderString())

		if a.Name != "" {
			list = append(list, &mail.Address{Name: a.Name, Address: a.Address})
			continue
		}
		parsed, err := mail.ParseAddressList(a.Address)
		if err != nil {
			ok = false
			continue
		}
		list = append(list, parsed...)
	}

	switch {
	case len(raw) == 0:
		h.Del(key)
	case ok:
		h.SetAddressList(key, list)
	default:
		h.SetText(key, strings.Join(raw, ", "))
	}
}
