// Package forwarder drives each notified message through fetch, rewrite,
// dispatch and cleanup, one message at a time.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/forward-relay/internal/intake"
	"github.com/shineum/forward-relay/internal/metrics"
	"github.com/shineum/forward-relay/internal/provider"
	"github.com/shineum/forward-relay/internal/relay"
	"github.com/shineum/forward-relay/internal/rewrite"
)

// ErrMissingMessageID is the failure recorded for an empty identifier.
var ErrMissingMessageID = errors.New("forwarder: message identifier is empty")

// Options configures a Forwarder.
type Options struct {
	// Store is the mail-intake store; Prefix is the key namespace inside it.
	Store  intake.Store
	Prefix string

	// Provider submits rewritten messages under ConfigurationSet.
	Provider         provider.Provider
	ConfigurationSet string

	// Forward holds the identities applied by the rewrite.
	Forward rewrite.ForwardConfig

	// Metrics defaults to metrics.Nop.
	Metrics metrics.Collector

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Forwarder processes batches of message identifiers. It holds no state
// between messages and is safe to reuse across invocations.
type Forwarder struct {
	prefix     string
	forward    rewrite.ForwardConfig
	fetcher    *intake.Fetcher
	dispatcher *relay.Dispatcher
	metrics    metrics.Collector
	logger     *slog.Logger
}

// New validates opts and returns a Forwarder. An incomplete forward
// configuration is reported here, before any message is touched.
func New(opts Options) (*Forwarder, error) {
	if err := opts.Forward.Validate(); err != nil {
		return nil, err
	}
	if opts.Store == nil {
		return nil, errors.New("forwarder: intake store is required")
	}

	dispatcher, err := relay.NewDispatcher(opts.Provider, opts.Store, relay.Config{
		ConfigurationSet: opts.ConfigurationSet,
		EnvelopeFrom:     opts.Forward.BouncePath,
		Recipients:       []string{opts.Forward.ForwardToAddress},
	})
	if err != nil {
		return nil, fmt.Errorf("forwarder: %w", err)
	}

	collector := opts.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Forwarder{
		prefix:     opts.Prefix,
		forward:    opts.Forward,
		fetcher:    intake.NewFetcher(opts.Store),
		dispatcher: dispatcher,
		metrics:    collector,
		logger:     logger,
	}, nil
}

// ProcessBatch runs ProcessOne for every id in order. A failed message never
// stops the batch.
func (f *Forwarder) ProcessBatch(ctx context.Context, ids []string) *BatchResult {
	result := &BatchResult{
		ID:       uuid.NewString(),
		Outcomes: make([]Outcome, 0, len(ids)),
	}
	log := f.logger.With("batch_id", result.ID)

	log.Info("processing batch", "messages", len(ids), "provider", f.dispatcher.Provider())

	for _, id := range ids {
		result.Outcomes = append(result.Outcomes, f.process(ctx, log, id))
	}

	log.Info("batch complete",
		"messages", len(ids),
		"processed", result.Processed(),
		"skipped", result.Skipped(),
		"cleanup_failures", result.CleanupFailures(),
	)
	return result
}

// ProcessOne forwards a single message and reports how far it got.
func (f *Forwarder) ProcessOne(ctx context.Context, id string) Outcome {
	return f.process(ctx, f.logger, id)
}

func (f *Forwarder) process(ctx context.Context, log *slog.Logger, id string) Outcome {
	start := time.Now()
	key := intake.ObjectKey(f.prefix, id)
	out := Outcome{MessageID: id, Key: key}
	log = log.With("message_id", id, "key", key)

	if id == "" {
		return f.fail(log, out, StageFetching, ErrMissingMessageID)
	}

	raw, err := f.fetcher.Fetch(ctx, key)
	if err != nil {
		return f.fail(log, out, StageFetching, err)
	}
	log.Debug("fetched message", "size", len(raw))

	rewritten, err := rewrite.Rewrite(raw, f.forward)
	if err != nil {
		return f.fail(log, out, StageRewriting, err)
	}

	relayID, err := f.dispatcher.Dispatch(ctx, rewritten)
	if err != nil {
		return f.fail(log, out, StageDispatching, err)
	}
	out.RelayMessageID = relayID
	f.metrics.Forwarded(time.Since(start).Milliseconds())

	// The message is sent; a cleanup failure leaves a duplicate in the
	// store but never undoes the delivery.
	if err := f.dispatcher.Cleanup(ctx, key); err != nil {
		out.CleanupErr = err
		f.metrics.CleanupFailed()
		log.Warn("message sent but not removed from intake store",
			"stage", StageCleaning,
			"relay_message_id", relayID,
			"error", err,
		)
	}

	out.Stage = StageDone
	log.Info("message forwarded",
		"relay_message_id", relayID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func (f *Forwarder) fail(log *slog.Logger, out Outcome, stage Stage, err error) Outcome {
	out.Stage = StageFailed
	out.FailedAt = stage
	out.Err = err
	f.metrics.Skipped(string(stage))
	log.Error("skipping message", "stage", stage, "error", err)
	return out
}
