// Package memory provides an in-memory index storage backend for
// testing and ephemeral nodes. It wraps BadgerDB in in-memory mode.
package memory

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/corknet/cork-node/internal/indexstore/physical"
	"github.com/corknet/cork-node/internal/indexstore/physical/badger"
)

func init() {
	physical.Register("memory", NewFactory, Defaults)
}

// Defaults returns the default configuration for the memory backend.
func Defaults() map[string]string {
	return map[string]string{}
}

// NewFactory creates a new in-memory backend.
func NewFactory(_ context.Context, _ map[string]string) (physical.Backend, error) {
	opts := badgerdb.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("memory backend: %w", err)
	}
	return badger.NewWithDB(db), nil
}

// New creates a new in-memory backend, panicking on failure.
// Intended for tests.
func New() physical.Backend {
	b, err := NewFactory(context.Background(), nil)
	if err != nil {
		panic(err)
	}
	return b
}
