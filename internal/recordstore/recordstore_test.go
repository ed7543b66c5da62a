package recordstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/corknet/cork-node/pkg/identity/ed25519"
	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/observability"
	"github.com/corknet/cork-node/internal/recordstore"
	"github.com/corknet/cork-node/internal/recordstore/physical/memory"
)

func testStore(t *testing.T) *recordstore.Store {
	t.Helper()
	backend := memory.New()
	t.Cleanup(func() { backend.Close() })
	return recordstore.New(backend, observability.NewMetrics())
}

func testRecord(t *testing.T, body string) *recordstore.Record {
	t.Helper()
	kp, err := ed25519.Generate()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	rec, err := recordstore.New("entity", reference.Reference{}, reference.Reference{}, json.RawMessage(body), kp, time.Now())
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	return rec
}

func TestPutFetch(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	rec := testRecord(t, `{"title":"hello"}`)

	ref, err := store.Put(ctx, rec)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !reference.Equal(ref, rec.Ref) {
		t.Errorf("Put ref %s does not match record ref %s", reference.Hex(ref), reference.Hex(rec.Ref))
	}

	got, err := store.Fetch(ctx, ref)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Kind != "entity" {
		t.Errorf("kind = %q, want entity", got.Kind)
	}
	if string(got.Body) != `{"title":"hello"}` {
		t.Errorf("body = %s", got.Body)
	}
}

func TestPutIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	rec := testRecord(t, `{"title":"same"}`)

	ref1, err := store.Put(ctx, rec)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	ref2, err := store.Put(ctx, rec)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if !reference.Equal(ref1, ref2) {
		t.Error("same record should yield the same reference")
	}
}

func TestFetchNotFound(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	_, err := store.Fetch(ctx, reference.Compute([]byte("missing")))
	if !errors.Is(err, recordstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPutRejectsInvalidRecord(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	rec := testRecord(t, `{"a":1}`)
	rec.Body = json.RawMessage(`{"a":2}`)

	if _, err := store.Put(ctx, rec); !errors.Is(err, recordstore.ErrBadSignature) {
		t.Errorf("expected ErrBadSignature, got %v", err)
	}
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	rec := testRecord(t, `{"x":true}`)

	ok, err := store.Exists(ctx, rec.Ref)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("record should not exist yet")
	}

	if _, err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err = store.Exists(ctx, rec.Ref)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("record should exist after Put")
	}
}
