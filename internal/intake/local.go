package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore reads intake messages from files below a base directory.
// Keys map to relative paths, so "emails/abc" is basePath/emails/abc.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a LocalStore rooted at basePath, which must exist.
func NewLocalStore(basePath string) (*LocalStore, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("intake: stat base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("intake: %s is not a directory", basePath)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Open opens the file for key.
// Returns ErrNotFound if the file does not exist.
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("intake: open file: %w", err)
	}
	return f, nil
}

// Delete removes the file for key.
// Returns nil if the file does not exist (idempotent).
func (s *LocalStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("intake: remove file: %w", err)
	}
	return nil
}

// path resolves key below basePath and rejects keys escaping it.
func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("intake: invalid key %q", key)
	}
	return filepath.Join(s.basePath, clean), nil
}

var _ Store = (*LocalStore)(nil)
