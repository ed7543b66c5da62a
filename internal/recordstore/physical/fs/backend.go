// Package fs provides a filesystem-backed record storage backend.
// Records are stored as files sharded by the first two hex characters
// of their reference.
package fs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/recordstore/physical"
	"github.com/corknet/cork-node/internal/storage"
)

const (
	KeyPath     = "path"
	KeyFileMode = "file_mode"
	KeyDirMode  = "dir_mode"
)

func init() {
	physical.Register("fs", NewFactory, Defaults)
}

// Defaults returns the default configuration for the filesystem backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:     "~/.cork/records",
		KeyFileMode: "0600",
		KeyDirMode:  "0700",
	}
}

// NewFactory creates a new filesystem backend from a configuration map.
func NewFactory(_ context.Context, config map[string]string) (physical.Backend, error) {
	path := storage.GetString(config, KeyPath, "")
	if path == "" {
		return nil, storage.NewConfigError("fs", KeyPath, "cannot be empty")
	}
	path = storage.ExpandPath(path)

	fileMode, err := parseFileMode(config[KeyFileMode], 0o600)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("fs", KeyFileMode, config[KeyFileMode], err.Error())
	}
	dirMode, err := parseFileMode(config[KeyDirMode], 0o700)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("fs", KeyDirMode, config[KeyDirMode], err.Error())
	}

	if err := os.MkdirAll(path, dirMode); err != nil {
		return nil, storage.NewConfigErrorWithCause("fs", KeyPath, "failed to create directory", err)
	}

	slog.Info("fs recordstore initialized", "path", path)
	return &Backend{
		root:     path,
		fileMode: fileMode,
		dirMode:  dirMode,
	}, nil
}

func parseFileMode(s string, def os.FileMode) (os.FileMode, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q", s)
	}
	return os.FileMode(n), nil
}

// Backend is a filesystem implementation of physical.Backend.
type Backend struct {
	root     string
	fileMode os.FileMode
	dirMode  os.FileMode
	closed   atomic.Bool
}

func (b *Backend) pathFor(r reference.Reference) string {
	hex := reference.Hex(r)
	return filepath.Join(b.root, hex[:2], hex)
}

// Put stores record bytes at the given reference. The write is atomic:
// data is written to a temp file and renamed into place.
func (b *Backend) Put(_ context.Context, r reference.Reference, data []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	dest := b.pathFor(r)
	if err := os.MkdirAll(filepath.Dir(dest), b.dirMode); err != nil {
		return fmt.Errorf("fs put: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("fs put: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fs put: %w", err)
	}
	if err := tmp.Chmod(b.fileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fs put: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fs put: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fs put: %w", err)
	}
	return nil
}

// Get retrieves record bytes by reference.
func (b *Backend) Get(_ context.Context, r reference.Reference) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	data, err := os.ReadFile(b.pathFor(r))
	if os.IsNotExist(err) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fs get: %w", err)
	}
	return data, nil
}

// Exists checks if a record exists.
func (b *Backend) Exists(_ context.Context, r reference.Reference) (bool, error) {
	if b.closed.Load() {
		return false, physical.ErrClosed
	}

	_, err := os.Stat(b.pathFor(r))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fs exists: %w", err)
	}
	return true, nil
}

// Stats walks the storage tree and returns aggregate statistics.
func (b *Backend) Stats(_ context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var size int64
	err := filepath.WalkDir(b.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fs stats: %w", err)
	}
	return &physical.Stats{
		SizeBytes:   size,
		BackendType: "fs",
	}, nil
}

// Close marks the backend closed.
func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}
