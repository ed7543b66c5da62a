// Package physical provides the physical storage backend interface for record storage.
package physical

import (
	"context"
	"errors"

	"github.com/corknet/cork-node/pkg/reference"
)

var (
	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("backend closed")
)

// Stats contains storage statistics.
type Stats struct {
	SizeBytes   int64
	BackendType string
}

// Backend is the physical storage interface for record storage.
// Records are immutable once written; backends expose no delete.
// All implementations must be thread-safe.
type Backend interface {
	Put(ctx context.Context, r reference.Reference, data []byte) error
	Get(ctx context.Context, r reference.Reference) ([]byte, error)
	Exists(ctx context.Context, r reference.Reference) (bool, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
