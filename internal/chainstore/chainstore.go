package chainstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/corknet/cork-node/pkg/identity"
	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/indexstore"
	"github.com/corknet/cork-node/internal/indexstore/physical"
	"github.com/corknet/cork-node/internal/observability"
	"github.com/corknet/cork-node/internal/recordstore"
)

// Index labels for chain link entries.
const (
	LabelKind       = "kind"
	LabelChain      = "chain"
	LabelPrev       = "prev"
	LabelRef        = "ref"
	LabelRecordKind = "record_kind"

	linkKind = "chainlink"
)

// Store binds immutable records into revision chains. Records are stored in
// the record store; a link entry per record in the index store makes the
// chain walkable without scanning.
//
// A chain is identified by the reference of its root record. Appends use
// optimistic concurrency against the locally resolved tip; replicated records
// ingested from other agents bypass that check, so a chain may fork. Forks
// are surfaced, never repaired: ResolveLatest picks the same winner on every
// agent given the same records.
type Store struct {
	records *recordstore.Store
	index   *indexstore.IndexStore
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates a chain store over the given record and index stores.
func New(records *recordstore.Store, index *indexstore.IndexStore, metrics *observability.Metrics) *Store {
	return &Store{
		records: records,
		index:   index,
		metrics: metrics,
		now:     time.Now,
	}
}

// linkRef derives the index key for a record's chain link entry. Link entries
// live under derived references so they never collide with entries keyed by
// the record reference itself.
func linkRef(r reference.Reference) reference.Reference {
	return reference.Compute([]byte("link/" + reference.Hex(r)))
}

// CreateRoot creates, signs, and stores the first record of a new chain.
// The returned record's reference identifies the chain from then on.
func (s *Store) CreateRoot(ctx context.Context, kind string, body json.RawMessage, signer identity.Signer) (rec *recordstore.Record, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "chainstore.create_root")
	defer op.End(err)

	rec, err = recordstore.New(kind, reference.Reference{}, reference.Reference{}, body, signer, s.now())
	if err != nil {
		return nil, fmt.Errorf("create root record: %w", err)
	}

	if _, err = s.records.Put(ctx, rec); err != nil {
		return nil, err
	}
	if err = s.indexLink(ctx, rec); err != nil {
		return nil, err
	}

	s.metrics.RecordsAppended.WithLabelValues(kind).Inc()
	slog.InfoContext(ctx, "chain created", "chain", reference.Hex(rec.Ref), "kind", kind)
	return rec, nil
}

// Append creates, signs, and stores a revision on top of presumedTip.
// If the chain has advanced past presumedTip the append is rejected with
// ErrStaleReference and nothing is written.
func (s *Store) Append(ctx context.Context, kind string, chain, presumedTip reference.Reference, body json.RawMessage, signer identity.Signer) (rec *recordstore.Record, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "chainstore.append")
	defer op.End(err)

	tip, err := s.ResolveLatest(ctx, chain)
	if err != nil {
		return nil, err
	}
	if !reference.Equal(tip.Ref, presumedTip) {
		s.metrics.StaleReferences.Inc()
		slog.WarnContext(ctx, "append rejected on stale reference",
			"chain", reference.Hex(chain),
			"presumed_tip", reference.Hex(presumedTip),
			"actual_tip", reference.Hex(tip.Ref),
		)
		return nil, fmt.Errorf("%w: tip is %s", ErrStaleReference, reference.Hex(tip.Ref))
	}

	rec, err = recordstore.New(kind, chain, presumedTip, body, signer, s.now())
	if err != nil {
		return nil, fmt.Errorf("create revision record: %w", err)
	}

	if _, err = s.records.Put(ctx, rec); err != nil {
		return nil, err
	}
	if err = s.indexLink(ctx, rec); err != nil {
		return nil, err
	}

	s.metrics.RecordsAppended.WithLabelValues(kind).Inc()
	return rec, nil
}

// Ingest stores a record received from another agent. The record must carry a
// valid signature but is not checked against the local tip: concurrent
// revisions of the same predecessor coexist as a fork.
func (s *Store) Ingest(ctx context.Context, rec *recordstore.Record) (err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "chainstore.ingest")
	defer op.End(err)

	if err = rec.Validate(); err != nil {
		return err
	}

	if _, err = s.records.Put(ctx, rec); err != nil {
		return err
	}
	if err = s.indexLink(ctx, rec); err != nil {
		return err
	}

	s.metrics.RecordsAppended.WithLabelValues(rec.Kind).Inc()
	slog.DebugContext(ctx, "record ingested",
		"ref", reference.Hex(rec.Ref),
		"chain", reference.Hex(rec.ChainRoot()),
	)
	return nil
}

func (s *Store) indexLink(ctx context.Context, rec *recordstore.Record) error {
	labels := map[string]string{
		LabelKind:       linkKind,
		LabelChain:      reference.Hex(rec.ChainRoot()),
		LabelRef:        reference.Hex(rec.Ref),
		LabelRecordKind: rec.Kind,
	}
	if !rec.IsRoot() {
		labels[LabelPrev] = reference.Hex(rec.Previous)
	}

	err := s.index.Index(ctx, &physical.Entry{
		Ref:       linkRef(rec.Ref),
		Labels:    labels,
		Timestamp: rec.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("index chain link: %w", err)
	}
	return nil
}

func (s *Store) chainLinks(ctx context.Context, chain reference.Reference) ([]*physical.Entry, error) {
	var entries []*physical.Entry
	cursor := ""
	for {
		result, err := s.index.Query(ctx, &indexstore.QueryOptions{
			Labels: map[string]string{
				LabelKind:  linkKind,
				LabelChain: reference.Hex(chain),
			},
			Cursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("query chain links: %w", err)
		}
		entries = append(entries, result.Entries...)
		if !result.HasMore {
			break
		}
		cursor = result.NextCursor
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: chain %s", ErrNotFound, reference.Hex(chain))
	}
	return entries, nil
}

// Tips returns the references of all records in the chain that no other
// record supersedes. A healthy chain has exactly one; a forked chain has
// one per branch.
func (s *Store) Tips(ctx context.Context, chain reference.Reference) (tips []reference.Reference, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "chainstore.tips")
	defer op.End(err)

	entries, err := s.chainLinks(ctx, chain)
	if err != nil {
		return nil, err
	}

	superseded := make(map[string]bool, len(entries))
	for _, e := range entries {
		if prev, ok := e.Labels[LabelPrev]; ok {
			superseded[prev] = true
		}
	}

	for _, e := range entries {
		refHex := e.Labels[LabelRef]
		if superseded[refHex] {
			continue
		}
		ref, convErr := reference.FromHex(refHex)
		if convErr != nil {
			continue
		}
		tips = append(tips, ref)
	}

	sort.Slice(tips, func(i, j int) bool {
		return reference.Hex(tips[i]) < reference.Hex(tips[j])
	})
	return tips, nil
}

// ResolveLatest returns the winning tip of the chain. When a fork leaves
// multiple tips, the record with the greatest timestamp wins; equal
// timestamps fall back to the lexicographically greater reference, so every
// agent with the same records resolves the same winner.
func (s *Store) ResolveLatest(ctx context.Context, chain reference.Reference) (rec *recordstore.Record, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "chainstore.resolve_latest")
	defer op.End(err)

	entries, err := s.chainLinks(ctx, chain)
	if err != nil {
		return nil, err
	}

	superseded := make(map[string]bool, len(entries))
	for _, e := range entries {
		if prev, ok := e.Labels[LabelPrev]; ok {
			superseded[prev] = true
		}
	}

	var winner *physical.Entry
	for _, e := range entries {
		if superseded[e.Labels[LabelRef]] {
			continue
		}
		if winner == nil {
			winner = e
			continue
		}
		if e.Timestamp > winner.Timestamp ||
			(e.Timestamp == winner.Timestamp && e.Labels[LabelRef] > winner.Labels[LabelRef]) {
			winner = e
		}
	}
	if winner == nil {
		return nil, fmt.Errorf("%w: chain %s has no tip", ErrNotFound, reference.Hex(chain))
	}

	ref, err := reference.FromHex(winner.Labels[LabelRef])
	if err != nil {
		return nil, fmt.Errorf("decode tip ref: %w", err)
	}
	return s.records.Fetch(ctx, ref)
}

// ResolveHistory returns every record in the chain, all branches included,
// ordered by timestamp ascending with the reference as tie-break. The root
// comes first.
func (s *Store) ResolveHistory(ctx context.Context, chain reference.Reference) (recs []*recordstore.Record, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "chainstore.resolve_history")
	defer op.End(err)

	entries, err := s.chainLinks(ctx, chain)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp == entries[j].Timestamp {
			return entries[i].Labels[LabelRef] < entries[j].Labels[LabelRef]
		}
		return entries[i].Timestamp < entries[j].Timestamp
	})

	recs = make([]*recordstore.Record, 0, len(entries))
	for _, e := range entries {
		ref, convErr := reference.FromHex(e.Labels[LabelRef])
		if convErr != nil {
			continue
		}
		rec, fetchErr := s.records.Fetch(ctx, ref)
		if fetchErr != nil {
			return nil, fetchErr
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// IsForked reports whether the chain currently has more than one tip.
func (s *Store) IsForked(ctx context.Context, chain reference.Reference) (bool, error) {
	tips, err := s.Tips(ctx, chain)
	if err != nil {
		return false, err
	}
	return len(tips) > 1, nil
}

// Fetch retrieves a single record by reference.
func (s *Store) Fetch(ctx context.Context, r reference.Reference) (*recordstore.Record, error) {
	return s.records.Fetch(ctx, r)
}

// Roots lists every locally known chain root of the given record kind.
func (s *Store) Roots(ctx context.Context, kind string) (roots []reference.Reference, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "chainstore.roots")
	defer op.End(err)

	cursor := ""
	for {
		result, queryErr := s.index.Query(ctx, &indexstore.QueryOptions{
			Labels: map[string]string{
				LabelKind:       linkKind,
				LabelRecordKind: kind,
			},
			Cursor: cursor,
		})
		if queryErr != nil {
			return nil, queryErr
		}
		for _, e := range result.Entries {
			// A root links to itself.
			if e.Labels[LabelChain] != e.Labels[LabelRef] {
				continue
			}
			ref, convErr := reference.FromHex(e.Labels[LabelRef])
			if convErr != nil {
				return nil, convErr
			}
			roots = append(roots, ref)
		}
		if !result.HasMore {
			break
		}
		cursor = result.NextCursor
	}
	return roots, nil
}
