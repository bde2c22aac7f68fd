// Package ses implements a Provider that sends raw messages via AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/shineum/forward-relay/internal/email"
)

// defaultMaxRetries is used when SESProviderConfig.MaxRetries is negative.
const defaultMaxRetries = 2

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	// MaxRetries bounds the extra attempts after a failed submission.
	// Negative selects the default.
	MaxRetries int
}

// SESProvider sends messages via the AWS SES v2 API.
type SESProvider struct {
	client     SendEmailAPI
	maxRetries int
	baseDelay  time.Duration
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a SESProvider using a client built from awsCfg.
func New(awsCfg aws.Config, cfg SESProviderConfig) *SESProvider {
	return NewWithClient(sesv2.NewFromConfig(awsCfg), cfg)
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(client SendEmailAPI, cfg SESProviderConfig) *SESProvider {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = defaultMaxRetries
	}
	return &SESProvider{
		client:     client,
		maxRetries: retries,
		baseDelay:  baseRetryDelay,
	}
}

// Send submits msg as a raw message under its configuration set. Throttling,
// server faults and transport errors are retried; a rejection of the message,
// the identity or the account is returned at once.
func (s *SESProvider) Send(ctx context.Context, msg *email.Outbound) (string, error) {
	input := buildRawInput(msg)

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", s.maxRetries,
			)
			if err := sleepWithContext(ctx, s.backoffDelay(attempt)); err != nil {
				return "", fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		out, err := s.client.SendEmail(ctx, input)
		if err == nil {
			return aws.ToString(out.MessageId), nil
		}

		if ctx.Err() != nil {
			return "", fmt.Errorf("SES API request cancelled: %w", err)
		}
		if !isRetryable(err) {
			slog.Warn("SES rejected message, not retrying",
				"attempt", attempt,
				"error", err,
			)
			return "", fmt.Errorf("SES API request rejected: %w", err)
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return "", fmt.Errorf("SES API request failed after %d retries: %w", s.maxRetries, lastErr)
}

// Name returns the provider name.
func (s *SESProvider) Name() string {
	return "ses"
}

// buildRawInput creates a SES SendEmailInput carrying msg.Data unchanged.
func buildRawInput(msg *email.Outbound) *sesv2.SendEmailInput {
	input := &sesv2.SendEmailInput{
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: msg.Data,
			},
		},
	}
	if msg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(msg.ConfigurationSet)
	}
	if msg.EnvelopeFrom != "" {
		input.FeedbackForwardingEmailAddress = aws.String(msg.EnvelopeFrom)
	}
	if len(msg.Recipients) > 0 {
		input.Destination = &types.Destination{
			ToAddresses: msg.Recipients,
		}
	}
	return input
}

// isRetryable reports whether a SendEmail error may succeed on a later
// attempt. Any other client fault reported by the API is final.
func isRetryable(err error) bool {
	var (
		rejected   *types.MessageRejected
		mailFrom   *types.MailFromDomainNotVerifiedException
		suspended  *types.AccountSuspendedException
		paused     *types.SendingPausedException
		badRequest *types.BadRequestException
		notFound   *types.NotFoundException
	)
	switch {
	case errors.As(err, &rejected),
		errors.As(err, &mailFrom),
		errors.As(err, &suspended),
		errors.As(err, &paused),
		errors.As(err, &badRequest),
		errors.As(err, &notFound):
		return false
	}

	var (
		throttled *types.TooManyRequestsException
		limited   *types.LimitExceededException
	)
	if errors.As(err, &throttled) || errors.As(err, &limited) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorFault() != smithy.FaultClient
	}
	return true
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func (s *SESProvider) backoffDelay(attempt int) time.Duration {
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
