package fs

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/recordstore/physical"
)

func testBackend(t *testing.T) physical.Backend {
	t.Helper()
	backend, err := NewFactory(context.Background(), map[string]string{
		KeyPath: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	backend := testBackend(t)

	data := []byte(`{"kind":"entity"}`)
	ref := reference.Compute(data)

	if err := backend.Put(ctx, ref, data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := backend.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get = %s, want %s", got, data)
	}
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	backend := testBackend(t)

	_, err := backend.Get(ctx, reference.Compute([]byte("missing")))
	if !errors.Is(err, physical.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	backend := testBackend(t)

	data := []byte("record bytes")
	ref := reference.Compute(data)

	ok, err := backend.Exists(ctx, ref)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("should not exist before Put")
	}

	if err := backend.Put(ctx, ref, data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err = backend.Exists(ctx, ref)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("should exist after Put")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	backend := testBackend(t)

	data := []byte("some record content")
	if err := backend.Put(ctx, reference.Compute(data), data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	stats, err := backend.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.BackendType != "fs" {
		t.Errorf("BackendType = %q, want fs", stats.BackendType)
	}
	if stats.SizeBytes != int64(len(data)) {
		t.Errorf("SizeBytes = %d, want %d", stats.SizeBytes, len(data))
	}
}

func TestClosedBackend(t *testing.T) {
	ctx := context.Background()
	backend := testBackend(t)
	backend.Close()

	if err := backend.Put(ctx, reference.Compute([]byte("x")), []byte("x")); !errors.Is(err, physical.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
