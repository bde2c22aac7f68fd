package parser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shineum/forward-relay/internal/email"
)

func TestParsePlainTextEmail(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"Return-Path: <bounce@origin.example>",
		"From: Bob Sender <bob@example.com>",
		"To: alice@example.com",
		"Subject: Test Subject",
		"Message-Id: <test123@example.com>",
		"Content-Type: text/plain",
		"",
		"Hello, this is a plain text email.",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Subject != "Test Subject" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Test Subject")
	}
	if len(msg.From) != 1 || msg.From[0].Name != "Bob Sender" || msg.From[0].Address != "bob@example.com" {
		t.Errorf("From: got %+v, want [{Bob Sender bob@example.com}]", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0].Address != "alice@example.com" {
		t.Errorf("To: got %+v, want [alice@example.com]", msg.To)
	}
	if msg.ReplyTo != nil {
		t.Errorf("ReplyTo: got %+v, want nil", msg.ReplyTo)
	}
	if msg.EnvelopeFrom != "bounce@origin.example" {
		t.Errorf("EnvelopeFrom: got %q, want %q", msg.EnvelopeFrom, "bounce@origin.example")
	}
	if string(msg.Body) != "Hello, this is a plain text email." {
		t.Errorf("Body: got %q", msg.Body)
	}
	if got := msg.Header.Get("Message-Id"); got != "<test123@example.com>" {
		t.Errorf("Message-Id: got %q, want %q", got, "<test123@example.com>")
	}
}

func TestParseEncodedSubject(t *testing.T) {
	t.Parallel()

	raw := []byte("Subject: =?UTF-8?Q?Gr=C3=BC=C3=9Fe?=\r\nFrom: a@example.com\r\n\r\nbody")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Grüße" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Grüße")
	}
}

func TestParseUnparseableAddressKeepsText(t *testing.T) {
	t.Parallel()

	raw := []byte("From: undisclosed recipients\r\nSubject: x\r\n\r\nbody")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.From) != 1 || msg.From[0].Address != "undisclosed recipients" {
		t.Errorf("From: got %+v, want raw text entry", msg.From)
	}
}

func TestParseMissingHeaders(t *testing.T) {
	t.Parallel()

	raw := []byte("Subject: only a subject\r\n\r\nbody")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.From != nil || msg.To != nil {
		t.Errorf("expected no From/To, got From=%+v To=%+v", msg.From, msg.To)
	}
	if email.AddressText(msg.From) != "" {
		t.Errorf("AddressText: got %q, want empty", email.AddressText(msg.From))
	}
}

func TestParseMalformedHeader(t *testing.T) {
	t.Parallel()

	raw := []byte("this line has no colon\r\n\r\nbody")

	if _, err := Parse(raw); err == nil {
		t.Fatal("expected error for malformed header, got nil")
	}
}

func TestSerializeRoundTripIsLossless(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"X-Custom: keep   spacing",
		"Message-Id: <rt@example.com>",
		"Content-Type: multipart/mixed; boundary=b1",
		"",
		"--b1",
		"Content-Type: text/plain",
		"",
		"hello",
		"--b1--",
		"",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := Serialize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Errorf("round trip changed message:\n got: %q\nwant: %q", out, raw)
	}
}

func TestSerializeIdentityFields(t *testing.T) {
	t.Parallel()

	raw := []byte("From: old@example.com\r\nTo: old-to@example.com\r\nX-Keep: yes\r\n\r\nbody bytes\r\n")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg.From = []email.Address{{Name: "Relay", Address: "relay@example.com"}}
	msg.To = []email.Address{{Name: "Owner", Address: "owner@example.com"}}
	msg.ReplyTo = []email.Address{{Address: "Old Sender <old@example.com>"}}
	msg.EnvelopeFrom = "bounce@example.com"
	msg.Subject = "Fwd: hi"

	out, err := Serialize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	back, err := Parse(out)
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}

	if len(back.From) != 1 || back.From[0] != (email.Address{Name: "Relay", Address: "relay@example.com"}) {
		t.Errorf("From: got %+v", back.From)
	}
	if len(back.To) != 1 || back.To[0] != (email.Address{Name: "Owner", Address: "owner@example.com"}) {
		t.Errorf("To: got %+v", back.To)
	}
	if len(back.ReplyTo) != 1 || back.ReplyTo[0] != (email.Address{Name: "Old Sender", Address: "old@example.com"}) {
		t.Errorf("ReplyTo: got %+v", back.ReplyTo)
	}
	if back.EnvelopeFrom != "bounce@example.com" {
		t.Errorf("EnvelopeFrom: got %q", back.EnvelopeFrom)
	}
	if back.Subject != "Fwd: hi" {
		t.Errorf("Subject: got %q", back.Subject)
	}
	if back.Header.Get("X-Keep") != "yes" {
		t.Errorf("X-Keep: got %q, want %q", back.Header.Get("X-Keep"), "yes")
	}
	if string(back.Body) != "body bytes\r\n" {
		t.Errorf("Body: got %q", back.Body)
	}

	// The original message must not be affected by serialization.
	if msg.Header.Get("From") != "old@example.com" {
		t.Errorf("source header mutated: From=%q", msg.Header.Get("From"))
	}
}

func TestSerializeDropsEmptyReplyTo(t *testing.T) {
	t.Parallel()

	raw := []byte("Reply-To: someone@example.com\r\n\r\nbody")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg.ReplyTo = []email.Address{{Name: "", Address: ""}}

	out, err := Serialize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(out), "Reply-To") {
		t.Errorf("expected Reply-To to be removed, got %q", out)
	}
}

func TestSerializeUnparseableReplyToWrittenVerbatim(t *testing.T) {
	t.Parallel()

	msg, err := Parse([]byte("Subject: s\r\n\r\nbody"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg.ReplyTo = []email.Address{{Address: "undisclosed recipients"}}

	out, err := Serialize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "Reply-To: undisclosed recipients\r\n") {
		t.Errorf("expected verbatim Reply-To, got %q", out)
	}
}

func TestSerializeKeepsFieldPositions(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"Return-Path: <bob@example.com>",
		"Received: from mx.example.com",
		"From: bob@example.com",
		"X-Between: 1",
		"To: alice@example.com",
		"Subject: hi",
		"Subject: duplicate",
		"Date: Mon, 12 Oct 2026 09:00:00 +0000",
		"",
		"body",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg.From = []email.Address{{Name: "Relay", Address: "relay@example.com"}}
	msg.ReplyTo = []email.Address{{Address: "bob@example.com"}}
	msg.EnvelopeFrom = "bounce@example.com"
	msg.Subject = "Fwd: hi"

	out, err := Serialize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	back, err := Parse(out)
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}

	var keys []string
	f := back.Header.Fields()
	for f.Next() {
		keys = append(keys, f.Key())
	}

	want := []string{"Reply-To", "Return-Path", "Received", "From", "X-Between", "To", "Subject", "Date"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("field order:\n got %v\nwant %v", keys, want)
	}
	if back.Subject != "Fwd: hi" {
		t.Errorf("Subject: got %q, want %q", back.Subject, "Fwd: hi")
	}
}

func TestSerializeKeepsBareLFLineEndings(t *testing.T) {
	t.Parallel()

	raw := []byte("From: bob@example.com\nX-Keep: yes\nSubject: hi\n\nline one\nline two\n")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !msg.BareLF {
		t.Fatal("BareLF: got false, want true")
	}
	msg.From = []email.Address{{Name: "Relay", Address: "relay@example.com"}}
	msg.Subject = "Fwd: hi"

	out, err := Serialize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Contains(out, []byte("\r")) {
		t.Errorf("output mixes line endings: %q", out)
	}
	want := "From: \"Relay\" <relay@example.com>\nX-Keep: yes\nSubject: Fwd: hi\n\nline one\nline two\n"
	if string(out) != want {
		t.Errorf("output:\n got %q\nwant %q", out, want)
	}
}

func TestParseCRLFIsNotBareLF(t *testing.T) {
	t.Parallel()

	msg, err := Parse([]byte("Subject: s\r\n\r\nbody\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.BareLF {
		t.Error("BareLF: got true, want false")
	}
}

func TestSerializeUnparseableNonASCIIReplyToIsEncoded(t *testing.T) {
	t.Parallel()

	msg, err := Parse([]byte("Subject: s\r\n\r\nbody"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg.ReplyTo = []email.Address{{Address: "Empfänger unbekannt"}}

	out, err := Serialize(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, b := range out {
		if b >= 0x80 {
			t.Fatalf("header contains 8-bit bytes: %q", out)
		}
	}

	back, err := Parse(out)
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	if len(back.ReplyTo) != 1 || back.ReplyTo[0].Address != "Empfänger unbekannt" {
		t.Errorf("ReplyTo: got %+v", back.ReplyTo)
	}
}
