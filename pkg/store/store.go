// Package store defines the snapshot storage contract shared by the
// persistence backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSnapshotNotFound is returned when no snapshot exists under a name.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrInvalidName is returned for snapshot names that are empty or could
	// escape the backend namespace.
	ErrInvalidName = errors.New("invalid snapshot name")
	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("snapshot store is closed")
)

// Adapter is the minimal lifecycle and health contract for storage adapters.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// SnapshotStore persists opaque snapshot payloads by name.
type SnapshotStore interface {
	Adapter

	// Backend names the storage technology, e.g. "file" or "s3".
	Backend() string
	// PutSnapshot stores data under name, replacing any previous payload.
	PutSnapshot(ctx context.Context, name string, data []byte) error
	// GetSnapshot returns the payload stored under name or an error wrapping
	// ErrSnapshotNotFound.
	GetSnapshot(ctx context.Context, name string) ([]byte, error)
	// DeleteSnapshot removes name. Deleting a missing snapshot is not an error.
	DeleteSnapshot(ctx context.Context, name string) error
	// ListSnapshots returns the stored names in lexical order.
	ListSnapshots(ctx context.Context) ([]string, error)
}

// ValidateName checks that name is usable as a key by every backend: not
// empty, no path separators, no parent references and no control characters.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if name == "." || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q contains a parent reference", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidName, name)
		}
	}
	return nil
}
