// Package metrics records per-message forwarding outcomes.
package metrics

// Collector receives one call per processed message.
type Collector interface {
	// Forwarded records a message that was sent, with the time it took.
	Forwarded(timeMs int64)
	// Skipped records a message that failed at the given stage.
	Skipped(stage string)
	// CleanupFailed records a sent message whose original was not deleted.
	CleanupFailed()
}

// Nop discards every metric.
type Nop struct{}

func (Nop) Forwarded(int64) {}
func (Nop) Skipped(string)  {}
func (Nop) CleanupFailed()  {}
