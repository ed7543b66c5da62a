package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/observability"
	"github.com/corknet/cork-node/internal/recordstore/physical"
)

// Store provides content-addressed storage for signed records.
// Records are append-only: there is no delete, history is permanent.
type Store struct {
	backend physical.Backend
	metrics *observability.Metrics
}

// New creates a new Store with the given backend.
func New(backend physical.Backend, metrics *observability.Metrics) *Store {
	return &Store{
		backend: backend,
		metrics: metrics,
	}
}

// Put validates, signs-checks, and stores a record, returning its reference.
// Storing the same record twice is a no-op.
func (s *Store) Put(ctx context.Context, rec *Record) (r reference.Reference, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "recordstore.put")
	defer op.End(err)

	if err = rec.Validate(); err != nil {
		return reference.Reference{}, err
	}

	data, err := rec.Encode()
	if err != nil {
		return reference.Reference{}, err
	}

	r = reference.Compute(data)
	rec.Ref = r

	slog.DebugContext(ctx, "storing record", "ref", reference.Hex(r), "kind", rec.Kind, "size_bytes", len(data))

	if err = s.backend.Put(ctx, r, data); err != nil {
		return reference.Reference{}, fmt.Errorf("store record: %w", err)
	}

	return r, nil
}

// Fetch retrieves a record by its reference.
// Returns ErrNotFound if the record does not exist. Integrity and signature
// are verified on every fetch.
func (s *Store) Fetch(ctx context.Context, r reference.Reference) (rec *Record, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "recordstore.fetch")
	defer op.End(err)

	data, err := s.backend.Get(ctx, r)
	if errors.Is(err, physical.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch record: %w", err)
	}

	computed := reference.Compute(data)
	if !reference.Equal(computed, r) {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrIntegrityMismatch, reference.Hex(r), reference.Hex(computed))
	}

	rec, err = Decode(data)
	if err != nil {
		return nil, err
	}
	if err = rec.Verify(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Exists checks if a record exists.
func (s *Store) Exists(ctx context.Context, r reference.Reference) (exists bool, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "recordstore.exists")
	defer op.End(err)

	exists, err = s.backend.Exists(ctx, r)
	if err != nil {
		return false, fmt.Errorf("check record exists: %w", err)
	}
	return exists, nil
}

// Stats returns storage statistics.
func (s *Store) Stats(ctx context.Context) (stats *physical.Stats, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "recordstore.stats")
	defer op.End(err)

	stats, err = s.backend.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get record stats: %w", err)
	}
	return stats, nil
}
