package indexstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/indexstore"
	"github.com/corknet/cork-node/internal/indexstore/physical"
	"github.com/corknet/cork-node/internal/indexstore/physical/memory"
	"github.com/corknet/cork-node/internal/observability"
)

func newTestStore(t *testing.T) *indexstore.IndexStore {
	t.Helper()
	store, err := indexstore.New(memory.New(), observability.NewMetrics())
	if err != nil {
		t.Fatalf("new indexstore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func entryAt(data string, ts int64, labels map[string]string) *physical.Entry {
	return &physical.Entry{
		Ref:       reference.Compute([]byte(data)),
		Labels:    labels,
		Timestamp: ts,
	}
}

func TestIndexAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry := entryAt("e1", 100, map[string]string{"kind": "entity", "category": "pending"})
	if err := store.Index(ctx, entry); err != nil {
		t.Fatalf("Index: %v", err)
	}

	got, err := store.Get(ctx, entry.Ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Labels["category"] != "pending" {
		t.Errorf("category = %q, want pending", got.Labels["category"])
	}
	if got.Timestamp != 100 {
		t.Errorf("timestamp = %d, want 100", got.Timestamp)
	}
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, reference.Compute([]byte("missing")))
	if !errors.Is(err, indexstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReindexReplacesLabels(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ref := reference.Compute([]byte("e1"))
	if err := store.Index(ctx, &physical.Entry{Ref: ref, Timestamp: 100, Labels: map[string]string{"category": "pending"}}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := store.Index(ctx, &physical.Entry{Ref: ref, Timestamp: 200, Labels: map[string]string{"category": "accepted"}}); err != nil {
		t.Fatalf("reindex: %v", err)
	}

	// Old label slot should no longer match.
	result, err := store.Query(ctx, &indexstore.QueryOptions{Labels: map[string]string{"category": "pending"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("expected no pending entries after move, got %d", len(result.Entries))
	}

	result, err = store.Query(ctx, &indexstore.QueryOptions{Labels: map[string]string{"category": "accepted"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 accepted entry, got %d", len(result.Entries))
	}
	if !reference.Equal(result.Entries[0].Ref, ref) {
		t.Error("wrong ref returned")
	}
}

func TestQueryByLabels(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		category := "pending"
		if i%2 == 0 {
			category = "accepted"
		}
		entry := entryAt(fmt.Sprintf("e%d", i), int64(100+i), map[string]string{
			"kind":     "entity",
			"category": category,
		})
		if err := store.Index(ctx, entry); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}

	result, err := store.Query(ctx, &indexstore.QueryOptions{
		Labels: map[string]string{"kind": "entity", "category": "accepted"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Entries) != 3 {
		t.Errorf("expected 3 accepted entries, got %d", len(result.Entries))
	}
}

func TestQueryOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 4; i++ {
		entry := entryAt(fmt.Sprintf("e%d", i), int64(100+i), map[string]string{"kind": "entity"})
		if err := store.Index(ctx, entry); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}

	result, err := store.Query(ctx, &indexstore.QueryOptions{Descending: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(result.Entries))
	}
	for i := 1; i < len(result.Entries); i++ {
		if result.Entries[i].Timestamp > result.Entries[i-1].Timestamp {
			t.Error("entries not in descending order")
		}
	}
}

func TestQueryWithCELExpression(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Index(ctx, entryAt("e1", 100, map[string]string{"category": "pending"})); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := store.Index(ctx, entryAt("e2", 200, map[string]string{"category": "suspended"})); err != nil {
		t.Fatalf("Index: %v", err)
	}

	result, err := store.Query(ctx, &indexstore.QueryOptions{
		Expression: `labels["category"] == "suspended" && timestamp > 150`,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(result.Entries))
	}
	if result.Entries[0].Labels["category"] != "suspended" {
		t.Error("wrong entry matched")
	}
}

func TestQueryRejectsInvalidExpression(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Query(ctx, &indexstore.QueryOptions{Expression: `labels[`})
	if !errors.Is(err, indexstore.ErrInvalidExpression) {
		t.Errorf("expected ErrInvalidExpression, got %v", err)
	}
}

func TestCount(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		entry := entryAt(fmt.Sprintf("e%d", i), int64(100+i), map[string]string{"category": "rejected"})
		if err := store.Index(ctx, entry); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}

	count, err := store.Count(ctx, &indexstore.QueryOptions{Labels: map[string]string{"category": "rejected"}})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry := entryAt("e1", 100, map[string]string{"category": "pending"})
	if err := store.Index(ctx, entry); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := store.Delete(ctx, entry.Ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, entry.Ref); !errors.Is(err, indexstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestResolvePrefix(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry := entryAt("e1", 100, map[string]string{"kind": "entity"})
	if err := store.Index(ctx, entry); err != nil {
		t.Fatalf("Index: %v", err)
	}

	hex := reference.Hex(entry.Ref)
	ref, err := store.ResolvePrefix(ctx, hex[:8])
	if err != nil {
		t.Fatalf("ResolvePrefix: %v", err)
	}
	if !reference.Equal(ref, entry.Ref) {
		t.Error("resolved wrong reference")
	}

	if _, err := store.ResolvePrefix(ctx, hex[:2]); !errors.Is(err, indexstore.ErrPrefixTooShort) {
		t.Errorf("expected ErrPrefixTooShort, got %v", err)
	}
	if _, err := store.ResolvePrefix(ctx, "ffffffff"); !errors.Is(err, indexstore.ErrNotFound) && reference.Hex(entry.Ref)[:8] != "ffffffff" {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
