package forwarder

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// MessageIDs returns the identifier of every record in notification order.
// The SES message id names the stored object; the Message-ID header is used
// only when it is absent.
func MessageIDs(event events.SimpleEmailEvent) []string {
	ids := make([]string, 0, len(event.Records))
	for _, record := range event.Records {
		id := record.SES.Mail.MessageID
		if id == "" {
			id = strings.Trim(strings.TrimSpace(record.SES.Mail.CommonHeaders.MessageID), "<>")
		}
		ids = append(ids, id)
	}
	return ids
}

// HandleSESEvent is the Lambda handler for SES receipt notifications. It
// always returns the event unchanged and a nil error: per-message failures
// are logged and counted, and the messages stay in the intake store.
func (f *Forwarder) HandleSESEvent(ctx context.Context, event events.SimpleEmailEvent) (events.SimpleEmailEvent, error) {
	ids := MessageIDs(event)
	if len(ids) == 0 {
		f.logger.Warn("received SES event without records")
		return event, nil
	}

	f.ProcessBatch(ctx, ids)
	return event, nil
}
