// Package smtp implements a Provider that hands rewritten messages to an
// upstream SMTP relay.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/shineum/forward-relay/internal/email"
)

// TLS modes for the relay connection.
const (
	TLSModeNone     = "none"
	TLSModeStartTLS = "starttls"
	TLSModeTLS      = "tls"
)

const dialTimeout = 30 * time.Second

// SMTPProviderConfig holds the configuration for creating an SMTPProvider.
type SMTPProviderConfig struct {
	// Host is the relay address in host:port form.
	Host string

	// Username and Password enable AUTH PLAIN when both are set.
	Username string
	Password string

	// TLSMode is one of TLSModeNone, TLSModeStartTLS or TLSModeTLS.
	// Empty means TLSModeStartTLS.
	TLSMode string

	// TLSConfig overrides the default client TLS configuration.
	TLSConfig *tls.Config
}

// RelayError wraps a delivery failure with whether retrying can help.
// Permanent errors are 5xx replies and configuration problems.
type RelayError struct {
	Err       error
	Permanent bool
}

func (e *RelayError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanent failure: %v", e.Err)
	}
	return fmt.Sprintf("temporary failure: %v", e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// IsPermanentError reports whether err is a permanent relay failure.
// Network errors and 4xx replies are temporary.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Permanent
	}

	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return !smtpErr.Temporary()
	}

	return false
}

// SMTPProvider delivers messages to a single SMTP relay, opening a new
// connection per message.
type SMTPProvider struct {
	host      string
	username  string
	password  string
	tlsMode   string
	tlsConfig *tls.Config
}

// New validates cfg and returns an SMTPProvider.
func New(cfg SMTPProviderConfig) (*SMTPProvider, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP relay host is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Host); err != nil {
		return nil, fmt.Errorf("invalid SMTP relay host %q: %w", cfg.Host, err)
	}

	mode := cfg.TLSMode
	if mode == "" {
		mode = TLSModeStartTLS
	}
	switch mode {
	case TLSModeNone, TLSModeStartTLS, TLSModeTLS:
	default:
		return nil, fmt.Errorf("unsupported SMTP TLS mode %q", cfg.TLSMode)
	}

	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		host, _, _ := net.SplitHostPort(cfg.Host)
		tlsConfig = &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		}
	}

	return &SMTPProvider{
		host:      cfg.Host,
		username:  cfg.Username,
		password:  cfg.Password,
		tlsMode:   mode,
		tlsConfig: tlsConfig,
	}, nil
}

// Send relays msg.Data with MAIL FROM set to the envelope sender. The
// returned id is generated locally because SMTP does not report one.
func (p *SMTPProvider) Send(ctx context.Context, msg *email.Outbound) (string, error) {
	if len(msg.Recipients) == 0 {
		return "", &RelayError{Err: fmt.Errorf("no recipients"), Permanent: true}
	}

	c, err := p.dial(ctx)
	if err != nil {
		return "", &RelayError{Err: fmt.Errorf("failed to connect to SMTP relay: %w", err), Permanent: false}
	}
	defer c.Close()

	if deadline, ok := ctx.Deadline(); ok {
		c.CommandTimeout = time.Until(deadline)
		c.SubmissionTimeout = time.Until(deadline)
	}

	if p.username != "" && p.password != "" {
		if err := c.Auth(sasl.NewPlainClient("", p.username, p.password)); err != nil {
			return "", &RelayError{Err: fmt.Errorf("authentication failed: %w", err), Permanent: IsPermanentError(err)}
		}
	}

	if err := c.Mail(msg.EnvelopeFrom, nil); err != nil {
		return "", &RelayError{Err: fmt.Errorf("failed to set sender: %w", err), Permanent: IsPermanentError(err)}
	}
	for _, rcpt := range msg.Recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return "", &RelayError{Err: fmt.Errorf("failed to set recipient %s: %w", rcpt, err), Permanent: IsPermanentError(err)}
		}
	}

	wc, err := c.Data()
	if err != nil {
		return "", &RelayError{Err: fmt.Errorf("failed to start data: %w", err), Permanent: IsPermanentError(err)}
	}
	if _, err := wc.Write(msg.Data); err != nil {
		_ = wc.Close()
		return "", &RelayError{Err: fmt.Errorf("failed to write message: %w", err), Permanent: false}
	}
	if err := wc.Close(); err != nil {
		return "", &RelayError{Err: fmt.Errorf("failed to close data writer: %w", err), Permanent: IsPermanentError(err)}
	}

	// The message is accepted at this point.
	if err := c.Quit(); err != nil {
		slog.Warn("failed to send QUIT to SMTP relay", "host", p.host, "error", err)
	}

	return uuid.NewString(), nil
}

// Name returns the provider name.
func (p *SMTPProvider) Name() string {
	return "smtp"
}

func (p *SMTPProvider) dial(ctx context.Context) (*gosmtp.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}

	switch p.tlsMode {
	case TLSModeTLS:
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: p.tlsConfig}
		conn, err := tlsDialer.DialContext(ctx, "tcp", p.host)
		if err != nil {
			return nil, err
		}
		return gosmtp.NewClient(conn), nil
	case TLSModeStartTLS:
		conn, err := dialer.DialContext(ctx, "tcp", p.host)
		if err != nil {
			return nil, err
		}
		c, err := gosmtp.NewClientStartTLS(conn, p.tlsConfig)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return c, nil
	default:
		conn, err := dialer.DialContext(ctx, "tcp", p.host)
		if err != nil {
			return nil, err
		}
		return gosmtp.NewClient(conn), nil
	}
}
