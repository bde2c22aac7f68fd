// Package intake reads raw inbound messages from the mail-intake store.
package intake

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("intake: object not found")

// Store is the subset of object-store operations the relay needs.
type Store interface {
	// Open returns a reader for the object stored under key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object stored under key. Deleting a missing
	// object is not an error.
	Delete(ctx context.Context, key string) error
}

// ObjectKey derives the store key for a message identifier. Both the fetch
// and the delete of a message use this function, so they always target the
// same object.
func ObjectKey(prefix, messageID string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + messageID
}
