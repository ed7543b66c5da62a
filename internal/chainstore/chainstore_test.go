package chainstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/corknet/cork-node/pkg/identity"
	"github.com/corknet/cork-node/pkg/identity/ed25519"
	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/indexstore"
	indexmem "github.com/corknet/cork-node/internal/indexstore/physical/memory"
	"github.com/corknet/cork-node/internal/observability"
	"github.com/corknet/cork-node/internal/recordstore"
	recordmem "github.com/corknet/cork-node/internal/recordstore/physical/memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	metrics := observability.NewMetrics()

	recBackend := recordmem.New()
	t.Cleanup(func() { recBackend.Close() })
	records := recordstore.New(recBackend, metrics)

	index, err := indexstore.New(indexmem.New(), metrics)
	if err != nil {
		t.Fatalf("new indexstore: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	return New(records, index, metrics)
}

func testSigner(t *testing.T) identity.Signer {
	t.Helper()
	kp, err := ed25519.Generate()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return kp
}

func TestCreateRootAndResolve(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	signer := testSigner(t)

	root, err := store.CreateRoot(ctx, "entity", json.RawMessage(`{"title":"hi"}`), signer)
	if err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}

	tip, err := store.ResolveLatest(ctx, root.Ref)
	if err != nil {
		t.Fatalf("ResolveLatest: %v", err)
	}
	if !reference.Equal(tip.Ref, root.Ref) {
		t.Error("fresh chain tip should be the root")
	}
}

func TestAppendAdvancesTip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	signer := testSigner(t)

	ts := time.Now()
	store.now = func() time.Time { ts = ts.Add(time.Second); return ts }

	root, err := store.CreateRoot(ctx, "entity-status", json.RawMessage(`{"type":"pending"}`), signer)
	if err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}

	rev, err := store.Append(ctx, "entity-status", root.Ref, root.Ref, json.RawMessage(`{"type":"accepted"}`), signer)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	tip, err := store.ResolveLatest(ctx, root.Ref)
	if err != nil {
		t.Fatalf("ResolveLatest: %v", err)
	}
	if !reference.Equal(tip.Ref, rev.Ref) {
		t.Error("tip should be the appended revision")
	}
	if string(tip.Body) != `{"type":"accepted"}` {
		t.Errorf("tip body = %s", tip.Body)
	}
}

func TestAppendStaleReferenceRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	signer := testSigner(t)

	ts := time.Now()
	store.now = func() time.Time { ts = ts.Add(time.Second); return ts }

	root, err := store.CreateRoot(ctx, "entity-status", json.RawMessage(`{"type":"pending"}`), signer)
	if err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	if _, err := store.Append(ctx, "entity-status", root.Ref, root.Ref, json.RawMessage(`{"type":"accepted"}`), signer); err != nil {
		t.Fatalf("first Append: %v", err)
	}

	// Second writer still presumes the root is the tip.
	_, err = store.Append(ctx, "entity-status", root.Ref, root.Ref, json.RawMessage(`{"type":"rejected"}`), signer)
	if !errors.Is(err, ErrStaleReference) {
		t.Fatalf("expected ErrStaleReference, got %v", err)
	}

	// The losing write must not have landed.
	history, err := store.ResolveHistory(ctx, root.Ref)
	if err != nil {
		t.Fatalf("ResolveHistory: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history has %d records, want 2", len(history))
	}
}

func TestIngestCreatesFork(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	signer := testSigner(t)

	base := time.Now()
	store.now = func() time.Time { return base }

	root, err := store.CreateRoot(ctx, "entity-status", json.RawMessage(`{"type":"pending"}`), signer)
	if err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}

	// Two agents revise the same tip concurrently; both records replicate in.
	recA, err := recordstore.New("entity-status", root.Ref, root.Ref, json.RawMessage(`{"type":"accepted"}`), signer, base.Add(time.Second))
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	recB, err := recordstore.New("entity-status", root.Ref, root.Ref, json.RawMessage(`{"type":"rejected","reason":"spam"}`), signer, base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("new record: %v", err)
	}

	if err := store.Ingest(ctx, recA); err != nil {
		t.Fatalf("Ingest A: %v", err)
	}
	if err := store.Ingest(ctx, recB); err != nil {
		t.Fatalf("Ingest B: %v", err)
	}

	tips, err := store.Tips(ctx, root.Ref)
	if err != nil {
		t.Fatalf("Tips: %v", err)
	}
	if len(tips) != 2 {
		t.Fatalf("forked chain should have 2 tips, got %d", len(tips))
	}

	forked, err := store.IsForked(ctx, root.Ref)
	if err != nil {
		t.Fatalf("IsForked: %v", err)
	}
	if !forked {
		t.Error("IsForked should report true")
	}

	// recB has the later timestamp, so it wins.
	tip, err := store.ResolveLatest(ctx, root.Ref)
	if err != nil {
		t.Fatalf("ResolveLatest: %v", err)
	}
	if !reference.Equal(tip.Ref, recB.Ref) {
		t.Error("later-timestamped branch should win")
	}
}

func TestForkTieBreakByReference(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	signer := testSigner(t)

	base := time.Now()
	store.now = func() time.Time { return base }

	root, err := store.CreateRoot(ctx, "entity-status", json.RawMessage(`{"type":"pending"}`), signer)
	if err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}

	// Identical timestamps force the reference tie-break.
	at := base.Add(time.Second)
	recA, err := recordstore.New("entity-status", root.Ref, root.Ref, json.RawMessage(`{"type":"accepted"}`), signer, at)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	recB, err := recordstore.New("entity-status", root.Ref, root.Ref, json.RawMessage(`{"type":"rejected","reason":"dup"}`), signer, at)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}

	if err := store.Ingest(ctx, recA); err != nil {
		t.Fatalf("Ingest A: %v", err)
	}
	if err := store.Ingest(ctx, recB); err != nil {
		t.Fatalf("Ingest B: %v", err)
	}

	want := recA.Ref
	if reference.Hex(recB.Ref) > reference.Hex(recA.Ref) {
		want = recB.Ref
	}

	tip, err := store.ResolveLatest(ctx, root.Ref)
	if err != nil {
		t.Fatalf("ResolveLatest: %v", err)
	}
	if !reference.Equal(tip.Ref, want) {
		t.Error("tie-break should pick the lexicographically greater reference")
	}
}

func TestResolveHistoryOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	signer := testSigner(t)

	ts := time.Now()
	store.now = func() time.Time { ts = ts.Add(time.Second); return ts }

	root, err := store.CreateRoot(ctx, "entity-status", json.RawMessage(`{"type":"pending"}`), signer)
	if err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}

	tip := root.Ref
	for _, body := range []string{`{"type":"accepted"}`, `{"type":"suspended_indefinitely","reason":"abuse"}`} {
		rev, err := store.Append(ctx, "entity-status", root.Ref, tip, json.RawMessage(body), signer)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		tip = rev.Ref
	}

	history, err := store.ResolveHistory(ctx, root.Ref)
	if err != nil {
		t.Fatalf("ResolveHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history has %d records, want 3", len(history))
	}
	if !reference.Equal(history[0].Ref, root.Ref) {
		t.Error("history should start at the root")
	}
	for i := 1; i < len(history); i++ {
		if history[i].CreatedAt < history[i-1].CreatedAt {
			t.Error("history not in ascending timestamp order")
		}
	}
}

func TestResolveUnknownChain(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.ResolveLatest(ctx, reference.Compute([]byte("nope")))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
