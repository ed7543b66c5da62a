package board

import (
	"context"
	"fmt"

	corkerrors "github.com/corknet/cork-node/pkg/errors"
	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/indexstore"
	"github.com/corknet/cork-node/internal/indexstore/physical"
	"github.com/corknet/cork-node/internal/observability"
	"github.com/corknet/cork-node/internal/status"
)

// Index labels for category entries. Entries are keyed by the entity ref
// itself, so re-indexing replaces the labels and an entity sits in exactly
// one category at a time.
const (
	LabelKind     = "kind"
	LabelCategory = "category"
)

// applyCategory moves the entity into the category derived from its latest
// status. The index has no transaction with the chain append, so this can
// fail after the record already stands; RebuildIndex repairs that.
func (s *Service) applyCategory(ctx context.Context, entity reference.Reference, cat status.Category, ts int64) error {
	err := s.index.Index(ctx, &physical.Entry{
		Ref: entity,
		Labels: map[string]string{
			LabelKind:     Kind,
			LabelCategory: string(cat),
		},
		Timestamp: ts,
	})
	if err != nil {
		return fmt.Errorf("move category entry: %w", err)
	}
	return nil
}

// ListByCategory returns the identities of every entity whose latest status
// maps to the given category, newest first.
func (s *Service) ListByCategory(ctx context.Context, cat status.Category) (entities []reference.Reference, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "board.list_by_category")
	defer op.End(err)

	if !cat.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", corkerrors.ErrInvalidInput, cat)
	}

	cursor := ""
	for {
		result, queryErr := s.index.Query(ctx, &indexstore.QueryOptions{
			Labels: map[string]string{
				LabelKind:     Kind,
				LabelCategory: string(cat),
			},
			Cursor:     cursor,
			Descending: true,
		})
		if queryErr != nil {
			return nil, queryErr
		}
		for _, entry := range result.Entries {
			entities = append(entities, entry.Ref)
		}
		if !result.HasMore {
			break
		}
		cursor = result.NextCursor
	}
	return entities, nil
}

// CategoryCounts reports how many entities sit in each category.
func (s *Service) CategoryCounts(ctx context.Context) (map[status.Category]int64, error) {
	counts := make(map[status.Category]int64, len(status.Categories()))
	for _, cat := range status.Categories() {
		n, err := s.index.Count(ctx, &indexstore.QueryOptions{
			Labels: map[string]string{
				LabelKind:     Kind,
				LabelCategory: string(cat),
			},
		})
		if err != nil {
			return nil, err
		}
		counts[cat] = n
	}
	return counts, nil
}

// RebuildIndex re-derives every category entry and administrator lookup
// entry from the chains. Full re-derivation is always correct, so any reader
// may invoke it to repair an index that lagged behind the chains. Returns
// the number of chains processed.
func (s *Service) RebuildIndex(ctx context.Context) (rebuilt int, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "board.rebuild_index")
	defer op.End(err)

	roots, err := s.chains.Roots(ctx, Kind)
	if err != nil {
		return 0, err
	}
	for _, root := range roots {
		tip, resolveErr := s.chains.ResolveLatest(ctx, root)
		if resolveErr != nil {
			return rebuilt, resolveErr
		}
		view, viewErr := s.statusView(tip)
		if viewErr != nil {
			return rebuilt, viewErr
		}
		if err = s.applyCategory(ctx, root, status.CategoryOf(view.Status.Type), view.CreatedAt); err != nil {
			return rebuilt, err
		}
		rebuilt++
	}

	admins, err := s.registry.Rebuild(ctx)
	if err != nil {
		return rebuilt, err
	}
	return rebuilt + admins, nil
}
