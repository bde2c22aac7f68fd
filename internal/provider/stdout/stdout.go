// Package stdout implements a Provider that prints messages to standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/shineum/forward-relay/internal/email"
)

const separator = "========================================\n"

// Provider prints raw messages with their envelope for dry runs.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
	seq    atomic.Int64
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send prints the envelope followed by the raw message. A write failure is
// returned so the original is kept in the intake store.
func (p *Provider) Send(_ context.Context, msg *email.Outbound) (string, error) {
	var b strings.Builder

	b.WriteString(separator)
	fmt.Fprintf(&b, "Envelope-From: %s\n", msg.EnvelopeFrom)
	fmt.Fprintf(&b, "Envelope-To: %s\n", strings.Join(msg.Recipients, ", "))
	if msg.ConfigurationSet != "" {
		fmt.Fprintf(&b, "Configuration-Set: %s\n", msg.ConfigurationSet)
	}
	fmt.Fprintf(&b, "Size: %s\n", formatSize(len(msg.Data)))
	b.WriteString("\n")
	b.Write(msg.Data)
	if len(msg.Data) > 0 && msg.Data[len(msg.Data)-1] != '\n' {
		b.WriteString("\n")
	}
	b.WriteString(separator)

	if _, err := fmt.Fprint(p.writer, b.String()); err != nil {
		return "", fmt.Errorf("failed to write message: %w", err)
	}

	return fmt.Sprintf("stdout-%d", p.seq.Add(1)), nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
