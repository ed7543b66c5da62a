// Package registry tracks which agents hold administrator rights. Each
// grant is a chain scoped to one entity, listing the agent keys that act for
// it; status revisions on the chain grant or revoke standing, so membership
// replicates and forks the same way every other chain does.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corknet/cork-node/pkg/identity"
	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/chainstore"
	"github.com/corknet/cork-node/internal/indexstore"
	"github.com/corknet/cork-node/internal/indexstore/physical"
	"github.com/corknet/cork-node/internal/observability"
	"github.com/corknet/cork-node/internal/status"
)

// Kind is the record kind of administrator chain roots.
const Kind = "administrator"

// Index labels.
const (
	LabelKind   = "kind"
	LabelAgent  = "agent"
	LabelEntity = "entity"
	LabelChain  = "chain"

	agentKind  = "admin-agent"
	entityKind = "admin-entity"
)

// ErrNotFound indicates no administrator chain exists for the entity.
var ErrNotFound = errors.New("administrator not found")

// Administrator describes one entity's administrator standing.
type Administrator struct {
	Entity reference.Reference
	Chain  reference.Reference
	Agents []identity.PublicKey
	Status status.Status
	Since  int64
}

// Active reports whether the grant currently stands.
func (a *Administrator) Active() bool {
	return a.Status.Type == status.Accepted
}

type adminBody struct {
	Entity string   `json:"entity"`
	Agents []string `json:"agents"`
}

// Registry resolves and mutates administrator membership.
type Registry struct {
	chains  *chainstore.Store
	index   *indexstore.IndexStore
	metrics *observability.Metrics
}

// New creates a registry over the given chain and index stores.
func New(chains *chainstore.Store, index *indexstore.IndexStore, metrics *observability.Metrics) *Registry {
	return &Registry{
		chains:  chains,
		index:   index,
		metrics: metrics,
	}
}

// entityRef derives the index key binding an entity to its administrator chain.
func entityRef(entity reference.Reference) reference.Reference {
	return reference.Compute([]byte("admin-entity/" + reference.Hex(entity)))
}

// agentRef derives the index key for one agent's standing under one entity.
// Keyed per pair so an agent acting for several entities keeps one entry each.
func agentRef(agent identity.PublicKey, entity reference.Reference) reference.Reference {
	return reference.Compute([]byte("admin-agent/" + identity.EncodePublicKey(agent) + "/" + reference.Hex(entity)))
}

// Register grants administrator standing to an entity and links all of its
// agent keys into the lookup index. A removed entity is reactivated by
// extending its existing chain.
func (r *Registry) Register(ctx context.Context, entity reference.Reference, agents []identity.PublicKey, signer identity.Signer) (admin *Administrator, err error) {
	op, ctx := observability.StartOperation(ctx, r.metrics, "registry.register")
	defer op.End(err)

	if len(agents) == 0 {
		return nil, fmt.Errorf("register administrator: no agent keys")
	}

	existing, err := r.Get(ctx, entity)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	grant := status.Status{Type: status.Accepted}
	grantBody, err := grant.Encode()
	if err != nil {
		return nil, err
	}

	var chain reference.Reference
	var since int64
	if existing != nil {
		chain = existing.Chain
		since = existing.Since
		if !existing.Active() {
			tip, resolveErr := r.chains.ResolveLatest(ctx, chain)
			if resolveErr != nil {
				return nil, resolveErr
			}
			if _, err = r.chains.Append(ctx, status.Kind, chain, tip.Ref, grantBody, signer); err != nil {
				return nil, err
			}
			slog.InfoContext(ctx, "administrator reactivated", "entity", reference.Hex(entity))
		}
	} else {
		encoded := make([]string, len(agents))
		for i, agent := range agents {
			encoded[i] = identity.EncodePublicKey(agent)
		}
		body, marshalErr := json.Marshal(adminBody{
			Entity: reference.Hex(entity),
			Agents: encoded,
		})
		if marshalErr != nil {
			return nil, fmt.Errorf("encode administrator: %w", marshalErr)
		}

		root, createErr := r.chains.CreateRoot(ctx, Kind, body, signer)
		if createErr != nil {
			return nil, createErr
		}
		if _, err = r.chains.Append(ctx, status.Kind, root.Ref, root.Ref, grantBody, signer); err != nil {
			return nil, err
		}
		chain = root.Ref
		since = root.CreatedAt

		err = r.index.Index(ctx, &physical.Entry{
			Ref: entityRef(entity),
			Labels: map[string]string{
				LabelKind:   entityKind,
				LabelEntity: reference.Hex(entity),
				LabelChain:  reference.Hex(chain),
			},
			Timestamp: root.CreatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("index administrator entity: %w", err)
		}
		slog.InfoContext(ctx, "administrator registered", "entity", reference.Hex(entity), "chain", reference.Hex(chain))
	}

	for _, agent := range agents {
		err = r.index.Index(ctx, &physical.Entry{
			Ref: agentRef(agent, entity),
			Labels: map[string]string{
				LabelKind:   agentKind,
				LabelAgent:  identity.EncodePublicKey(agent),
				LabelEntity: reference.Hex(entity),
				LabelChain:  reference.Hex(chain),
			},
			Timestamp: since,
		})
		if err != nil {
			return nil, fmt.Errorf("index administrator agent: %w", err)
		}
	}

	return r.Get(ctx, entity)
}

// Remove revokes administrator standing and drops the agent keys from the
// lookup index. The chain and its history remain.
func (r *Registry) Remove(ctx context.Context, entity reference.Reference, agents []identity.PublicKey, reason string, signer identity.Signer) (err error) {
	op, ctx := observability.StartOperation(ctx, r.metrics, "registry.remove")
	defer op.End(err)

	existing, err := r.Get(ctx, entity)
	if err != nil {
		return err
	}

	if existing.Active() {
		revoke := status.Status{Type: status.Rejected, Reason: reason}
		body, encodeErr := revoke.Encode()
		if encodeErr != nil {
			return encodeErr
		}
		tip, resolveErr := r.chains.ResolveLatest(ctx, existing.Chain)
		if resolveErr != nil {
			return resolveErr
		}
		if _, err = r.chains.Append(ctx, status.Kind, existing.Chain, tip.Ref, body, signer); err != nil {
			return err
		}
	}

	if len(agents) == 0 {
		agents = existing.Agents
	}
	for _, agent := range agents {
		if err = r.index.Delete(ctx, agentRef(agent, entity)); err != nil && !errors.Is(err, indexstore.ErrNotFound) {
			return fmt.Errorf("unlink administrator agent: %w", err)
		}
	}

	slog.InfoContext(ctx, "administrator removed", "entity", reference.Hex(entity), "reason", reason)
	return nil
}

// Get returns the administrator record for an entity, active or not.
func (r *Registry) Get(ctx context.Context, entity reference.Reference) (*Administrator, error) {
	entry, err := r.index.Get(ctx, entityRef(entity))
	if errors.Is(err, indexstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, reference.Hex(entity))
	}
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, entry.Labels[LabelChain])
}

func (r *Registry) resolve(ctx context.Context, chainHex string) (*Administrator, error) {
	chain, err := reference.FromHex(chainHex)
	if err != nil {
		return nil, fmt.Errorf("decode administrator chain ref: %w", err)
	}

	root, err := r.chains.Fetch(ctx, chain)
	if err != nil {
		return nil, err
	}

	var body adminBody
	if err := json.Unmarshal(root.Body, &body); err != nil {
		return nil, fmt.Errorf("decode administrator: %w", err)
	}
	entity, err := reference.FromHex(body.Entity)
	if err != nil {
		return nil, fmt.Errorf("decode administrator entity ref: %w", err)
	}
	agents := make([]identity.PublicKey, 0, len(body.Agents))
	for _, encoded := range body.Agents {
		agent, decodeErr := identity.DecodePublicKey(encoded)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode administrator agent: %w", decodeErr)
		}
		agents = append(agents, agent)
	}

	admin := &Administrator{
		Entity: entity,
		Chain:  chain,
		Agents: agents,
		Status: status.Status{Type: status.Pending},
		Since:  root.CreatedAt,
	}

	tip, err := r.chains.ResolveLatest(ctx, chain)
	if err != nil {
		return nil, err
	}
	if tip.Kind == status.Kind {
		st, err := status.Decode(tip.Body)
		if err != nil {
			return nil, err
		}
		admin.Status = st
	}
	return admin, nil
}

// IsAgentAdministrator reports whether any entity the agent acts for holds
// active standing. Resolution goes through the agent index and a single
// chain resolve per hit, never a walk over all chains.
func (r *Registry) IsAgentAdministrator(ctx context.Context, agent identity.PublicKey) (bool, error) {
	result, err := r.index.Query(ctx, &indexstore.QueryOptions{
		Labels: map[string]string{
			LabelKind:  agentKind,
			LabelAgent: identity.EncodePublicKey(agent),
		},
	})
	if err != nil {
		return false, err
	}
	for _, entry := range result.Entries {
		admin, resolveErr := r.resolve(ctx, entry.Labels[LabelChain])
		if resolveErr != nil {
			return false, resolveErr
		}
		if admin.Active() {
			return true, nil
		}
	}
	return false, nil
}

// IsEntityAdministrator reports whether the entity holds active standing.
func (r *Registry) IsEntityAdministrator(ctx context.Context, entity reference.Reference) (bool, error) {
	admin, err := r.Get(ctx, entity)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return admin.Active(), nil
}

// List returns every administrator ever registered, active or not.
func (r *Registry) List(ctx context.Context) (admins []*Administrator, err error) {
	op, ctx := observability.StartOperation(ctx, r.metrics, "registry.list")
	defer op.End(err)

	cursor := ""
	for {
		result, queryErr := r.index.Query(ctx, &indexstore.QueryOptions{
			Labels: map[string]string{LabelKind: entityKind},
			Cursor: cursor,
		})
		if queryErr != nil {
			return nil, queryErr
		}
		for _, entry := range result.Entries {
			admin, resolveErr := r.resolve(ctx, entry.Labels[LabelChain])
			if resolveErr != nil {
				return nil, resolveErr
			}
			admins = append(admins, admin)
		}
		if !result.HasMore {
			break
		}
		cursor = result.NextCursor
	}
	return admins, nil
}

// Rebuild re-derives the entity and agent lookup entries from the
// administrator chains. Returns the number of chains processed.
func (r *Registry) Rebuild(ctx context.Context) (rebuilt int, err error) {
	op, ctx := observability.StartOperation(ctx, r.metrics, "registry.rebuild")
	defer op.End(err)

	roots, err := r.chains.Roots(ctx, Kind)
	if err != nil {
		return 0, err
	}
	for _, root := range roots {
		admin, resolveErr := r.resolve(ctx, reference.Hex(root))
		if resolveErr != nil {
			return rebuilt, resolveErr
		}

		err = r.index.Index(ctx, &physical.Entry{
			Ref: entityRef(admin.Entity),
			Labels: map[string]string{
				LabelKind:   entityKind,
				LabelEntity: reference.Hex(admin.Entity),
				LabelChain:  reference.Hex(admin.Chain),
			},
			Timestamp: admin.Since,
		})
		if err != nil {
			return rebuilt, fmt.Errorf("index administrator entity: %w", err)
		}

		for _, agent := range admin.Agents {
			ref := agentRef(agent, admin.Entity)
			if admin.Active() {
				err = r.index.Index(ctx, &physical.Entry{
					Ref: ref,
					Labels: map[string]string{
						LabelKind:   agentKind,
						LabelAgent:  identity.EncodePublicKey(agent),
						LabelEntity: reference.Hex(admin.Entity),
						LabelChain:  reference.Hex(admin.Chain),
					},
					Timestamp: admin.Since,
				})
			} else if err = r.index.Delete(ctx, ref); errors.Is(err, indexstore.ErrNotFound) {
				err = nil
			}
			if err != nil {
				return rebuilt, fmt.Errorf("rebuild administrator agent: %w", err)
			}
		}
		rebuilt++
	}
	return rebuilt, nil
}

// HasAny reports whether any administrator currently holds active standing.
// Used to decide whether bootstrap registration is still open.
func (r *Registry) HasAny(ctx context.Context) (bool, error) {
	admins, err := r.List(ctx)
	if err != nil {
		return false, err
	}
	for _, admin := range admins {
		if admin.Active() {
			return true, nil
		}
	}
	return false, nil
}
