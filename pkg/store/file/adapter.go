// Package file stores snapshots as files in a local directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/store"
)

// Backend is the backend name reported by the adapter.
const Backend = "file"

const tempPattern = ".snapshot-*.tmp"

// Config defines file adapter configuration.
type Config struct {
	Dir string
	// FileMode applies to snapshot files; zero means 0o600.
	FileMode fs.FileMode
}

// Adapter stores one file per snapshot name under Config.Dir. Writes go to a
// temporary file in the same directory and are renamed into place.
type Adapter struct {
	dir    string
	mode   fs.FileMode
	logger logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewAdapter creates the snapshot directory when missing.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("snapshot directory is required")
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o600
	}
	if log == nil {
		log = logger.NewNop()
	}

	log.Info("file snapshot store initialized", "dir", dir)
	return &Adapter{dir: dir, mode: cfg.FileMode, logger: log}, nil
}

// Backend implements store.SnapshotStore.
func (a *Adapter) Backend() string { return Backend }

// Dir returns the absolute snapshot directory.
func (a *Adapter) Dir() string { return a.dir }

// PutSnapshot writes data atomically under name.
func (a *Adapter) PutSnapshot(ctx context.Context, name string, data []byte) error {
	path, err := a.resolve(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(a.dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write snapshot %q: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync snapshot %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close snapshot %q: %w", name, err)
	}
	if err := os.Chmod(tmpName, a.mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod snapshot %q: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename snapshot %q: %w", name, err)
	}

	a.logger.Debug("snapshot written", "name", name, "bytes", len(data))
	return nil
}

// GetSnapshot reads the payload stored under name.
func (a *Adapter) GetSnapshot(ctx context.Context, name string) ([]byte, error) {
	path, err := a.resolve(name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %q: %w", name, err)
	}
	return data, nil
}

// DeleteSnapshot removes the file stored under name.
func (a *Adapter) DeleteSnapshot(ctx context.Context, name string) error {
	path, err := a.resolve(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete snapshot %q: %w", name, err)
	}
	return nil
}

// ListSnapshots returns the names of the regular files in the directory.
func (a *Adapter) ListSnapshots(ctx context.Context) ([]string, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(tempPattern, e.Name()); ok {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// HealthCheck verifies the directory is still present.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	info, err := os.Stat(a.dir)
	if err != nil {
		a.logger.Error("file snapshot store health check failed", "error", err)
		return fmt.Errorf("file snapshot store health check failed: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("file snapshot store health check failed: %s is not a directory", a.dir)
	}
	return nil
}

// Close marks the adapter as closed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// resolve maps name to a path inside the snapshot directory.
func (a *Adapter) resolve(name string) (string, error) {
	if err := a.ensureOpen(); err != nil {
		return "", err
	}
	if err := store.ValidateName(name); err != nil {
		return "", err
	}
	path := filepath.Join(a.dir, name)
	rel, err := filepath.Rel(a.dir, path)
	if err != nil || rel != name {
		return "", fmt.Errorf("%w: %q escapes the snapshot directory", store.ErrInvalidName, name)
	}
	return path, nil
}

func (a *Adapter) ensureOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return store.ErrClosed
	}
	return nil
}
