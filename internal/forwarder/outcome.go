package forwarder

// Stage is a step of the per-message state machine.
type Stage string

const (
	StageFetching    Stage = "fetching"
	StageRewriting   Stage = "rewriting"
	StageDispatching Stage = "dispatching"
	StageCleaning    Stage = "cleaning"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Outcome is the terminal state of one message. Stage is either StageDone or
// StageFailed; on failure FailedAt names the stage that produced Err.
type Outcome struct {
	MessageID string
	Key       string

	Stage    Stage
	FailedAt Stage
	Err      error

	// RelayMessageID is the id assigned by the relay service on acceptance.
	RelayMessageID string

	// CleanupErr is set when the message was sent but the original could
	// not be deleted. It does not make the outcome a failure.
	CleanupErr error
}

// Done reports whether the message was sent.
func (o Outcome) Done() bool {
	return o.Stage == StageDone
}

// BatchResult lists the outcome of every message of one invocation, in
// notification order.
type BatchResult struct {
	ID       string
	Outcomes []Outcome
}

// Processed returns the number of messages that were sent.
func (r *BatchResult) Processed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Done() {
			n++
		}
	}
	return n
}

// Skipped returns the number of messages that failed and remain in the
// intake store.
func (r *BatchResult) Skipped() int {
	return len(r.Outcomes) - r.Processed()
}

// CleanupFailures returns the number of sent messages whose original could
// not be deleted.
func (r *BatchResult) CleanupFailures() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.CleanupErr != nil {
			n++
		}
	}
	return n
}
