package registry_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/corknet/cork-node/pkg/identity"
	"github.com/corknet/cork-node/pkg/identity/ed25519"
	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/chainstore"
	"github.com/corknet/cork-node/internal/indexstore"
	indexmem "github.com/corknet/cork-node/internal/indexstore/physical/memory"
	"github.com/corknet/cork-node/internal/observability"
	"github.com/corknet/cork-node/internal/recordstore"
	recordmem "github.com/corknet/cork-node/internal/recordstore/physical/memory"
	"github.com/corknet/cork-node/internal/registry"
	"github.com/corknet/cork-node/internal/status"
)

func newTestRegistry(t *testing.T) (*registry.Registry, *chainstore.Store) {
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

	chains := chainstore.New(records, index, metrics)
	return registry.New(chains, index, metrics), chains
}

func testSigner(t *testing.T) *ed25519.Keypair {
	t.Helper()
	kp, err := ed25519.Generate()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return kp
}

// newEntity creates an ordinary entity chain and returns its identity.
func newEntity(t *testing.T, chains *chainstore.Store, signer identity.Signer) reference.Reference {
	t.Helper()
	root, err := chains.CreateRoot(context.Background(), "entity", json.RawMessage(`{"name":"someone"}`), signer)
	if err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	return root.Ref
}

func TestRegisterAndCheck(t *testing.T) {
	ctx := context.Background()
	reg, chains := newTestRegistry(t)
	signer := testSigner(t)

	agentA := testSigner(t).PublicKey()
	agentB := testSigner(t).PublicKey()
	entity := newEntity(t, chains, signer)

	admin, err := reg.Register(ctx, entity, []identity.PublicKey{agentA, agentB}, signer)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !admin.Active() {
		t.Fatalf("expected active standing, got %s", admin.Status.Type)
	}
	if admin.Entity != entity {
		t.Error("administrator entity does not match")
	}
	if len(admin.Agents) != 2 {
		t.Fatalf("Agents = %d, want 2", len(admin.Agents))
	}

	// Both keys of a multi-key entity are granted together.
	for _, agent := range []identity.PublicKey{agentA, agentB} {
		ok, err := reg.IsAgentAdministrator(ctx, agent)
		if err != nil {
			t.Fatalf("IsAgentAdministrator: %v", err)
		}
		if !ok {
			t.Errorf("IsAgentAdministrator = false for %s", identity.EncodePublicKey(agent))
		}
	}

	ok, err := reg.IsEntityAdministrator(ctx, entity)
	if err != nil {
		t.Fatalf("IsEntityAdministrator: %v", err)
	}
	if !ok {
		t.Error("IsEntityAdministrator = false for registered entity")
	}
}

func TestUnknownAgentAndEntity(t *testing.T) {
	ctx := context.Background()
	reg, chains := newTestRegistry(t)
	signer := testSigner(t)

	ok, err := reg.IsAgentAdministrator(ctx, testSigner(t).PublicKey())
	if err != nil {
		t.Fatalf("IsAgentAdministrator: %v", err)
	}
	if ok {
		t.Error("IsAgentAdministrator = true for unknown agent")
	}

	entity := newEntity(t, chains, signer)
	ok, err = reg.IsEntityAdministrator(ctx, entity)
	if err != nil {
		t.Fatalf("IsEntityAdministrator: %v", err)
	}
	if ok {
		t.Error("IsEntityAdministrator = true for unregistered entity")
	}

	if _, err := reg.Get(ctx, entity); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestRemoveRevokesAllKeys(t *testing.T) {
	ctx := context.Background()
	reg, chains := newTestRegistry(t)
	signer := testSigner(t)

	agentA := testSigner(t).PublicKey()
	agentB := testSigner(t).PublicKey()
	entity := newEntity(t, chains, signer)

	if _, err := reg.Register(ctx, entity, []identity.PublicKey{agentA, agentB}, signer); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Remove(ctx, entity, nil, "rotated out", signer); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	for _, agent := range []identity.PublicKey{agentA, agentB} {
		ok, err := reg.IsAgentAdministrator(ctx, agent)
		if err != nil {
			t.Fatalf("IsAgentAdministrator: %v", err)
		}
		if ok {
			t.Errorf("IsAgentAdministrator = true after removal for %s", identity.EncodePublicKey(agent))
		}
	}

	// History is preserved; the chain carries the removal marker.
	admin, err := reg.Get(ctx, entity)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if admin.Status.Type != status.Rejected {
		t.Errorf("Status = %s, want %s", admin.Status.Type, status.Rejected)
	}
	if admin.Status.Reason != "rotated out" {
		t.Errorf("Reason = %q, want %q", admin.Status.Reason, "rotated out")
	}
}

func TestReRegisterExtendsChain(t *testing.T) {
	ctx := context.Background()
	reg, chains := newTestRegistry(t)
	signer := testSigner(t)

	agent := testSigner(t).PublicKey()
	entity := newEntity(t, chains, signer)

	first, err := reg.Register(ctx, entity, []identity.PublicKey{agent}, signer)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Remove(ctx, entity, nil, "break", signer); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	second, err := reg.Register(ctx, entity, []identity.PublicKey{agent}, signer)
	if err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	if !second.Active() {
		t.Error("expected reactivated standing")
	}
	if second.Chain != first.Chain {
		t.Error("reactivation should extend the existing chain")
	}

	ok, err := reg.IsAgentAdministrator(ctx, agent)
	if err != nil {
		t.Fatalf("IsAgentAdministrator: %v", err)
	}
	if !ok {
		t.Error("IsAgentAdministrator = false after reactivation")
	}
}

func TestRegisterIdempotentWhileActive(t *testing.T) {
	ctx := context.Background()
	reg, chains := newTestRegistry(t)
	signer := testSigner(t)

	agent := testSigner(t).PublicKey()
	entity := newEntity(t, chains, signer)

	first, err := reg.Register(ctx, entity, []identity.PublicKey{agent}, signer)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Register(ctx, entity, []identity.PublicKey{agent}, signer); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	history, err := chains.ResolveHistory(ctx, first.Chain)
	if err != nil {
		t.Fatalf("ResolveHistory: %v", err)
	}
	// Root plus one granting revision, nothing appended by the retry.
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}
}

func TestListAndHasAny(t *testing.T) {
	ctx := context.Background()
	reg, chains := newTestRegistry(t)
	signer := testSigner(t)

	any, err := reg.HasAny(ctx)
	if err != nil {
		t.Fatalf("HasAny: %v", err)
	}
	if any {
		t.Error("HasAny = true on empty registry")
	}

	agentA := testSigner(t).PublicKey()
	agentB := testSigner(t).PublicKey()
	entityA := newEntity(t, chains, signer)
	entityB := newEntity(t, chains, signer)

	if _, err := reg.Register(ctx, entityA, []identity.PublicKey{agentA}, signer); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if _, err := reg.Register(ctx, entityB, []identity.PublicKey{agentB}, signer); err != nil {
		t.Fatalf("Register b: %v", err)
	}
	if err := reg.Remove(ctx, entityB, nil, "gone", signer); err != nil {
		t.Fatalf("Remove b: %v", err)
	}

	admins, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(admins) != 2 {
		t.Fatalf("List returned %d administrators, want 2", len(admins))
	}
	active := 0
	for _, admin := range admins {
		if admin.Active() {
			active++
		}
	}
	if active != 1 {
		t.Errorf("active administrators = %d, want 1", active)
	}

	any, err = reg.HasAny(ctx)
	if err != nil {
		t.Fatalf("HasAny: %v", err)
	}
	if !any {
		t.Error("HasAny = false with one active administrator")
	}

	if err := reg.Remove(ctx, entityA, nil, "done", signer); err != nil {
		t.Fatalf("Remove a: %v", err)
	}
	any, err = reg.HasAny(ctx)
	if err != nil {
		t.Fatalf("HasAny: %v", err)
	}
	if any {
		t.Error("HasAny = true after removing every administrator")
	}
}

func TestAgentAcrossEntities(t *testing.T) {
	ctx := context.Background()
	reg, chains := newTestRegistry(t)
	signer := testSigner(t)

	agent := testSigner(t).PublicKey()
	entityA := newEntity(t, chains, signer)
	entityB := newEntity(t, chains, signer)

	if _, err := reg.Register(ctx, entityA, []identity.PublicKey{agent}, signer); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if _, err := reg.Register(ctx, entityB, []identity.PublicKey{agent}, signer); err != nil {
		t.Fatalf("Register b: %v", err)
	}

	// Standing holds while at least one entity remains active.
	if err := reg.Remove(ctx, entityA, nil, "demoted", signer); err != nil {
		t.Fatalf("Remove a: %v", err)
	}
	ok, err := reg.IsAgentAdministrator(ctx, agent)
	if err != nil {
		t.Fatalf("IsAgentAdministrator: %v", err)
	}
	if !ok {
		t.Error("IsAgentAdministrator = false while one entity is still active")
	}

	if err := reg.Remove(ctx, entityB, nil, "demoted", signer); err != nil {
		t.Fatalf("Remove b: %v", err)
	}
	ok, err = reg.IsAgentAdministrator(ctx, agent)
	if err != nil {
		t.Fatalf("IsAgentAdministrator: %v", err)
	}
	if ok {
		t.Error("IsAgentAdministrator = true after all entities removed")
	}
}
