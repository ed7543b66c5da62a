package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/indexstore/physical"
)

func newTestBackend(t *testing.T) physical.Backend {
	t.Helper()
	be, err := NewFactory(context.Background(), map[string]string{
		KeyPath: filepath.Join(t.TempDir(), "index.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { be.Close() })
	return be
}

func TestPutAndGet(t *testing.T) {
	be := newTestBackend(t)
	ctx := context.Background()

	entry := &physical.Entry{
		Ref:       reference.Compute([]byte("hello")),
		Labels:    map[string]string{"kind": "entity", "category": "pending"},
		Timestamp: 1000,
	}
	if err := be.Put(ctx, entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := be.Get(ctx, entry.Ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reference.Equal(got.Ref, entry.Ref) {
		t.Error("ref mismatch")
	}
	if got.Labels["kind"] != "entity" {
		t.Errorf("kind = %q, want entity", got.Labels["kind"])
	}
}

func TestGetNotFound(t *testing.T) {
	be := newTestBackend(t)
	ctx := context.Background()

	_, err := be.Get(ctx, reference.Compute([]byte("missing")))
	if !errors.Is(err, physical.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryByLabels(t *testing.T) {
	be := newTestBackend(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		category := "pending"
		if i >= 4 {
			category = "suspended"
		}
		entry := &physical.Entry{
			Ref:       reference.Compute([]byte(fmt.Sprintf("e%d", i))),
			Labels:    map[string]string{"kind": "entity", "category": category},
			Timestamp: int64(100 + i),
		}
		if err := be.Put(ctx, entry); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	result, err := be.Query(ctx, &physical.QueryOptions{
		Labels: map[string]string{"kind": "entity", "category": "suspended"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 suspended entries, got %d", len(result.Entries))
	}
	for _, e := range result.Entries {
		if e.Labels["category"] != "suspended" {
			t.Errorf("wrong entry in results: %v", e.Labels)
		}
	}
}

func TestQueryPagination(t *testing.T) {
	be := newTestBackend(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		entry := &physical.Entry{
			Ref:       reference.Compute([]byte(fmt.Sprintf("e%d", i))),
			Labels:    map[string]string{"kind": "entity"},
			Timestamp: int64(100 + i),
		}
		if err := be.Put(ctx, entry); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	first, err := be.Query(ctx, &physical.QueryOptions{Limit: 4})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(first.Entries) != 4 || !first.HasMore {
		t.Fatalf("first page: %d entries, hasMore=%v", len(first.Entries), first.HasMore)
	}

	second, err := be.Query(ctx, &physical.QueryOptions{Limit: 4, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(second.Entries) != 3 || second.HasMore {
		t.Fatalf("second page: %d entries, hasMore=%v", len(second.Entries), second.HasMore)
	}
}

func TestDeleteCascadesLabels(t *testing.T) {
	be := newTestBackend(t)
	ctx := context.Background()

	entry := &physical.Entry{
		Ref:       reference.Compute([]byte("doomed")),
		Labels:    map[string]string{"category": "rejected"},
		Timestamp: 100,
	}
	if err := be.Put(ctx, entry); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := be.Delete(ctx, entry.Ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	result, err := be.Query(ctx, &physical.QueryOptions{Labels: map[string]string{"category": "rejected"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Error("label rows survived entry delete")
	}
}

func TestCount(t *testing.T) {
	be := newTestBackend(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := &physical.Entry{
			Ref:       reference.Compute([]byte(fmt.Sprintf("e%d", i))),
			Labels:    map[string]string{"category": "accepted"},
			Timestamp: int64(100 + i),
		}
		if err := be.Put(ctx, entry); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	count, err := be.Count(ctx, &physical.QueryOptions{
		Labels: map[string]string{"category": "accepted"},
		After:  101,
	})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestScanPrefix(t *testing.T) {
	be := newTestBackend(t)
	ctx := context.Background()

	entry := &physical.Entry{
		Ref:       reference.Compute([]byte("target")),
		Labels:    map[string]string{"kind": "entity"},
		Timestamp: 100,
	}
	if err := be.Put(ctx, entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	scanner, ok := be.(physical.PrefixScanner)
	if !ok {
		t.Fatal("sqlite backend should implement PrefixScanner")
	}
	refs, err := scanner.ScanPrefix(ctx, reference.Hex(entry.Ref)[:8], 2)
	if err != nil {
		t.Fatalf("ScanPrefix: %v", err)
	}
	if len(refs) != 1 || !reference.Equal(refs[0], entry.Ref) {
		t.Errorf("ScanPrefix returned %d refs", len(refs))
	}
}
