// Package board is the lifecycle service of the bulletin board. Entities are
// immutable chain roots; their status lives in revisions appended by
// administrators. Reads are open to anyone, mutations pass through the
// authorization guard, and every successful transition moves the entity
// between the derived category sets.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/corknet/cork-node/pkg/identity"
	"github.com/corknet/cork-node/pkg/reference"

	corkerrors "github.com/corknet/cork-node/pkg/errors"

	"github.com/corknet/cork-node/internal/chainstore"
	"github.com/corknet/cork-node/internal/indexstore"
	"github.com/corknet/cork-node/internal/observability"
	"github.com/corknet/cork-node/internal/recordstore"
	"github.com/corknet/cork-node/internal/registry"
	"github.com/corknet/cork-node/internal/status"
)

// Kind is the record kind of entity chain roots.
const Kind = "entity"

// Entity is the decoded root of an entity chain.
type Entity struct {
	Ref       reference.Reference
	Agents    []identity.PublicKey
	Profile   json.RawMessage
	Author    identity.PublicKey
	CreatedAt int64
}

type entityBody struct {
	Agents  []string        `json:"agents"`
	Profile json.RawMessage `json:"profile,omitempty"`
}

// StatusRecord is one node of an entity's status history.
type StatusRecord struct {
	Ref       reference.Reference
	Entity    reference.Reference
	Previous  reference.Reference
	Status    status.Status
	Author    identity.PublicKey
	CreatedAt int64
}

// Service exposes the lifecycle operations of the board.
type Service struct {
	chains   *chainstore.Store
	index    *indexstore.IndexStore
	registry *registry.Registry
	metrics  *observability.Metrics
	now      func() time.Time
}

// New creates a board service over the given stores.
func New(chains *chainstore.Store, index *indexstore.IndexStore, reg *registry.Registry, metrics *observability.Metrics) *Service {
	return &Service{
		chains:   chains,
		index:    index,
		registry: reg,
		metrics:  metrics,
		now:      time.Now,
	}
}

// mutationContext tags the log context of a mutation with a correlation id.
func mutationContext(ctx context.Context, op string) (context.Context, *slog.Logger) {
	logger := slog.Default().With("correlation_id", uuid.NewString(), "op", op)
	return ctx, logger
}

// CreateEntity registers a new entity bound to the given agent keys and
// attaches its initial pending status.
func (s *Service) CreateEntity(ctx context.Context, agents []identity.PublicKey, profile json.RawMessage, signer identity.Signer) (entity *Entity, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "board.create_entity")
	defer op.End(err)
	ctx, logger := mutationContext(ctx, "create_entity")

	if len(agents) == 0 {
		return nil, fmt.Errorf("%w: entity needs at least one agent key", corkerrors.ErrInvalidInput)
	}

	encoded := make([]string, len(agents))
	for i, agent := range agents {
		encoded[i] = identity.EncodePublicKey(agent)
	}
	body, err := json.Marshal(entityBody{Agents: encoded, Profile: profile})
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}

	root, err := s.chains.CreateRoot(ctx, Kind, body, signer)
	if err != nil {
		return nil, err
	}

	initial := status.Status{Type: status.Pending}
	initialBody, err := initial.Encode()
	if err != nil {
		return nil, err
	}
	rec, err := s.chains.Append(ctx, status.Kind, root.Ref, root.Ref, initialBody, signer)
	if err != nil {
		return nil, err
	}

	if err = s.applyCategory(ctx, root.Ref, status.CategoryPending, rec.CreatedAt); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "entity created", "entity", reference.Hex(root.Ref), "agents", len(agents))
	return s.GetEntity(ctx, root.Ref)
}

// GetEntity fetches and decodes an entity chain root.
func (s *Service) GetEntity(ctx context.Context, entity reference.Reference) (*Entity, error) {
	root, err := s.chains.Fetch(ctx, entity)
	if err != nil {
		return nil, err
	}
	if root.Kind != Kind {
		return nil, fmt.Errorf("%w: %s is not an entity", corkerrors.ErrInvalidInput, reference.Hex(entity))
	}

	var body entityBody
	if err := json.Unmarshal(root.Body, &body); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	agents := make([]identity.PublicKey, 0, len(body.Agents))
	for _, enc := range body.Agents {
		agent, decodeErr := identity.DecodePublicKey(enc)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode entity agent: %w", decodeErr)
		}
		agents = append(agents, agent)
	}

	return &Entity{
		Ref:       root.Ref,
		Agents:    agents,
		Profile:   body.Profile,
		Author:    root.Author,
		CreatedAt: root.CreatedAt,
	}, nil
}

// UpdateStatus appends a status revision for an entity. The caller supplies
// the reference it believes is the current tip; a stale reference fails with
// ErrStaleReference and nothing is written. The caller must refetch and
// retry, the service never retries on its own.
func (s *Service) UpdateStatus(ctx context.Context, entity, previous reference.Reference, st status.Status, signer identity.Signer) (rec *StatusRecord, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "board.update_status")
	defer op.End(err)
	ctx, logger := mutationContext(ctx, "update_status")

	if err = s.authorize(ctx, signer.PublicKey(), entity); err != nil {
		return nil, err
	}
	if err = st.Validate(s.now()); err != nil {
		return nil, err
	}

	body, err := st.Encode()
	if err != nil {
		return nil, err
	}
	appended, err := s.chains.Append(ctx, status.Kind, entity, previous, body, signer)
	if err != nil {
		return nil, err
	}

	if err = s.applyCategory(ctx, entity, status.CategoryOf(st.Type), appended.CreatedAt); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "status updated",
		"entity", reference.Hex(entity),
		"status", st.Type,
		"record", reference.Hex(appended.Ref))
	return s.statusView(appended)
}

// GetLatestStatus resolves the entity's current status. An entity whose
// chain carries no revisions yet reads as pending. The result is a snapshot:
// an expired temporary suspension is reported as-is until someone calls
// UnsuspendIfExpired.
func (s *Service) GetLatestStatus(ctx context.Context, entity reference.Reference) (rec *StatusRecord, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "board.get_latest_status")
	defer op.End(err)

	tip, err := s.chains.ResolveLatest(ctx, entity)
	if err != nil {
		return nil, err
	}
	return s.statusView(tip)
}

// GetStatusHistory returns the entity's status revisions oldest first. A
// forked chain yields every branch; observers may disagree on the apparent
// latest until an administrator supersedes both sides.
func (s *Service) GetStatusHistory(ctx context.Context, entity reference.Reference) (recs []*StatusRecord, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "board.get_status_history")
	defer op.End(err)

	history, err := s.chains.ResolveHistory(ctx, entity)
	if err != nil {
		return nil, err
	}
	for _, r := range history {
		if r.Kind != status.Kind {
			continue
		}
		view, viewErr := s.statusView(r)
		if viewErr != nil {
			return nil, viewErr
		}
		recs = append(recs, view)
	}
	return recs, nil
}

// UnsuspendIfExpired lifts a temporary suspension whose deadline has passed.
// It returns false without writing anything when the entity is not expired.
// Expiry is mechanical, so the caller needs no administrator standing; the
// supplied previous reference still guards against concurrent updates.
func (s *Service) UnsuspendIfExpired(ctx context.Context, entity, previous reference.Reference, signer identity.Signer) (lifted bool, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "board.unsuspend_if_expired")
	defer op.End(err)
	ctx, logger := mutationContext(ctx, "unsuspend_if_expired")

	latest, err := s.GetLatestStatus(ctx, entity)
	if err != nil {
		return false, err
	}
	if !latest.Status.IsExpired(s.now()) {
		return false, nil
	}

	accepted := status.Status{Type: status.Accepted, Reason: "suspension expired"}
	body, err := accepted.Encode()
	if err != nil {
		return false, err
	}
	appended, err := s.chains.Append(ctx, status.Kind, entity, previous, body, signer)
	if err != nil {
		return false, err
	}
	if err = s.applyCategory(ctx, entity, status.CategoryAccepted, appended.CreatedAt); err != nil {
		return false, err
	}

	logger.InfoContext(ctx, "expired suspension lifted", "entity", reference.Hex(entity))
	return true, nil
}

// RegisterAdministrator grants administrator standing to an entity. The
// caller must already be an administrator; the very first grant goes through
// Bootstrap instead.
func (s *Service) RegisterAdministrator(ctx context.Context, entity reference.Reference, agents []identity.PublicKey, signer identity.Signer) (admin *registry.Administrator, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "board.register_administrator")
	defer op.End(err)
	ctx, logger := mutationContext(ctx, "register_administrator")

	if err = s.authorizeAdminChange(ctx, signer.PublicKey()); err != nil {
		return nil, err
	}
	admin, err = s.registry.Register(ctx, entity, agents, signer)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "administrator granted", "entity", reference.Hex(entity))
	return admin, nil
}

// Bootstrap registers the first administrator of a fresh network. It is only
// open while no administrator holds active standing.
func (s *Service) Bootstrap(ctx context.Context, entity reference.Reference, agents []identity.PublicKey, signer identity.Signer) (admin *registry.Administrator, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "board.bootstrap")
	defer op.End(err)
	ctx, logger := mutationContext(ctx, "bootstrap")

	any, err := s.registry.HasAny(ctx)
	if err != nil {
		return nil, err
	}
	if any {
		return nil, fmt.Errorf("%w: administrators already exist, bootstrap is closed", corkerrors.ErrUnauthorized)
	}
	admin, err = s.registry.Register(ctx, entity, agents, signer)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "network bootstrapped", "entity", reference.Hex(entity))
	return admin, nil
}

// RemoveAdministrator revokes an entity's administrator standing.
func (s *Service) RemoveAdministrator(ctx context.Context, entity reference.Reference, agents []identity.PublicKey, reason string, signer identity.Signer) (err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "board.remove_administrator")
	defer op.End(err)
	ctx, logger := mutationContext(ctx, "remove_administrator")

	if err = s.authorizeAdminChange(ctx, signer.PublicKey()); err != nil {
		return err
	}
	if err = s.registry.Remove(ctx, entity, agents, reason, signer); err != nil {
		return err
	}
	logger.InfoContext(ctx, "administrator revoked", "entity", reference.Hex(entity))
	return nil
}

// IsAgentAdministrator reports whether the agent currently holds standing.
func (s *Service) IsAgentAdministrator(ctx context.Context, agent identity.PublicKey) (bool, error) {
	return s.registry.IsAgentAdministrator(ctx, agent)
}

// Administrators lists every administrator ever registered.
func (s *Service) Administrators(ctx context.Context) ([]*registry.Administrator, error) {
	return s.registry.List(ctx)
}

// statusView converts a chain record into a status view. A bare entity root
// (a chain replicated before any revision arrived) reads as pending.
func (s *Service) statusView(rec *recordstore.Record) (*StatusRecord, error) {
	view := &StatusRecord{
		Ref:       rec.Ref,
		Entity:    rec.ChainRoot(),
		Previous:  rec.ChainRoot(),
		Author:    rec.Author,
		CreatedAt: rec.CreatedAt,
		Status:    status.Status{Type: status.Pending},
	}
	if rec.Kind != status.Kind {
		return view, nil
	}
	if !rec.Previous.IsZero() {
		view.Previous = rec.Previous
	}
	st, err := status.Decode(rec.Body)
	if err != nil {
		return nil, err
	}
	view.Status = st
	return view, nil
}
