package indexstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/corknet/cork-node/pkg/reference"

	celeval "github.com/corknet/cork-node/internal/indexstore/cel"
	"github.com/corknet/cork-node/internal/indexstore/physical"
	"github.com/corknet/cork-node/internal/observability"
)

// IndexStore provides indexed lookup over derived record facts with
// label filters and optional CEL expressions.
type IndexStore struct {
	backend physical.Backend
	metrics *observability.Metrics
	eval    *celeval.Evaluator
}

// New creates a new IndexStore with the given backend.
func New(backend physical.Backend, metrics *observability.Metrics) (*IndexStore, error) {
	eval, err := celeval.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("create CEL evaluator: %w", err)
	}

	return &IndexStore{
		backend: backend,
		metrics: metrics,
		eval:    eval,
	}, nil
}

// Index stores an entry with the given labels. Indexing the same reference
// again replaces its previous labels, which makes category moves idempotent.
func (s *IndexStore) Index(ctx context.Context, entry *physical.Entry) (err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "indexstore.index")
	defer op.End(err)

	slog.DebugContext(ctx, "indexing entry", "ref", reference.Hex(entry.Ref), "label_count", len(entry.Labels))

	if err = s.backend.Put(ctx, entry); err != nil {
		return fmt.Errorf("index entry: %w", err)
	}
	return nil
}

// IndexBatch stores multiple entries atomically where the backend supports it.
func (s *IndexStore) IndexBatch(ctx context.Context, entries []*physical.Entry) (err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "indexstore.index_batch")
	defer op.End(err)

	if err = s.backend.PutBatch(ctx, entries); err != nil {
		return fmt.Errorf("index batch: %w", err)
	}
	return nil
}

// Get retrieves an entry by its reference.
func (s *IndexStore) Get(ctx context.Context, r reference.Reference) (entry *physical.Entry, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "indexstore.get")
	defer op.End(err)

	entry, err = s.backend.Get(ctx, r)
	if errors.Is(err, physical.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// QueryOptions configures a query operation.
type QueryOptions struct {
	Expression string
	Labels     map[string]string
	After      int64
	Before     int64
	Limit      int
	Cursor     string
	Descending bool
}

// QueryResult contains the results of a query.
type QueryResult struct {
	Entries    []*physical.Entry
	NextCursor string
	HasMore    bool
}

// Query returns entries matching the given options.
func (s *IndexStore) Query(ctx context.Context, opts *QueryOptions) (result *QueryResult, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "indexstore.query")
	defer op.End(err)

	if opts == nil {
		opts = &QueryOptions{}
	}

	var celPrg cel.Program
	if opts.Expression != "" {
		celPrg, err = s.eval.Compile(ctx, opts.Expression)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
		}
	}

	physOpts := &physical.QueryOptions{
		Labels:     opts.Labels,
		After:      opts.After,
		Before:     opts.Before,
		Cursor:     opts.Cursor,
		Descending: opts.Descending,
	}

	// Overfetch when a CEL filter will discard candidates after the scan.
	if celPrg != nil && opts.Limit > 0 {
		physOpts.Limit = opts.Limit * 3
	} else {
		physOpts.Limit = opts.Limit
	}

	physResult, err := s.backend.Query(ctx, physOpts)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}

	var entries []*physical.Entry
	if celPrg != nil {
		matches, evalErr := s.eval.EvalBatch(ctx, celPrg, physResult.Entries)
		if evalErr != nil {
			return nil, fmt.Errorf("evaluate CEL: %w", evalErr)
		}
		if opts.Limit > 0 && len(matches) > opts.Limit {
			entries = matches[:opts.Limit]
		} else {
			entries = matches
		}
	} else {
		entries = physResult.Entries
	}

	hasMore := physResult.HasMore
	if celPrg != nil && opts.Limit > 0 && len(entries) < opts.Limit && physResult.HasMore {
		hasMore = true
	}

	slog.DebugContext(ctx, "query completed", "result_count", len(entries), "has_more", hasMore)

	return &QueryResult{
		Entries:    entries,
		NextCursor: physResult.NextCursor,
		HasMore:    hasMore,
	}, nil
}

// Count returns the number of entries matching the given options without
// fetching full entries. CEL expressions are not supported for counting,
// only label and time-range filters are applied at the backend level.
func (s *IndexStore) Count(ctx context.Context, opts *QueryOptions) (count int64, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "indexstore.count")
	defer op.End(err)

	if opts == nil {
		opts = &QueryOptions{}
	}

	physOpts := &physical.QueryOptions{
		Labels: opts.Labels,
		After:  opts.After,
		Before: opts.Before,
	}

	count, err = s.backend.Count(ctx, physOpts)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

// ResolvePrefix resolves a hex reference prefix to a single full reference.
// Returns ErrPrefixTooShort if the prefix is less than 4 characters,
// ErrAmbiguousPrefix if multiple entries match, or ErrNotFound if none match.
func (s *IndexStore) ResolvePrefix(ctx context.Context, hexPrefix string) (ref reference.Reference, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "indexstore.resolve_prefix")
	defer op.End(err)

	if len(hexPrefix) < 4 {
		return reference.Reference{}, ErrPrefixTooShort
	}
	scanner, ok := s.backend.(physical.PrefixScanner)
	if !ok {
		return reference.Reference{}, fmt.Errorf("backend does not support prefix resolution")
	}
	refs, err := scanner.ScanPrefix(ctx, hexPrefix, 2)
	if err != nil {
		return reference.Reference{}, fmt.Errorf("scan prefix: %w", err)
	}
	switch len(refs) {
	case 0:
		return reference.Reference{}, ErrNotFound
	case 1:
		return refs[0], nil
	default:
		return reference.Reference{}, ErrAmbiguousPrefix
	}
}

// Delete removes an entry by its reference.
func (s *IndexStore) Delete(ctx context.Context, r reference.Reference) (err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "indexstore.delete")
	defer op.End(err)

	if err = s.backend.Delete(ctx, r); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Stats returns storage statistics.
func (s *IndexStore) Stats(ctx context.Context) (stats *physical.Stats, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "indexstore.stats")
	defer op.End(err)

	stats, err = s.backend.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Close releases resources associated with the IndexStore.
func (s *IndexStore) Close() error {
	return s.backend.Close()
}
