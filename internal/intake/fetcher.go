package intake

import (
	"context"
	"fmt"
	"io"
)

// FetchError reports that the store refused or failed the read.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("intake: fetch %q: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports that the object was found but its payload could not
// be read to the end.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("intake: read %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Fetcher loads raw messages from a Store. It never retries and never
// mutates the store.
type Fetcher struct {
	store Store
}

// NewFetcher creates a Fetcher backed by store.
func NewFetcher(store Store) *Fetcher {
	return &Fetcher{store: store}
}

// Fetch returns the raw bytes stored under key.
func (f *Fetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	rc, err := f.store.Open(ctx, key)
	if err != nil {
		return nil, &FetchError{Key: key, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &DecodeError{Key: key, Err: err}
	}
	return data, nil
}
