package board

import (
	"context"
	"fmt"

	corkerrors "github.com/corknet/cork-node/pkg/errors"
	"github.com/corknet/cork-node/pkg/identity"
	"github.com/corknet/cork-node/pkg/reference"
)

// authorize gates a status mutation: the caller must hold administrator
// standing and must not be one of the target entity's own agent keys.
func (s *Service) authorize(ctx context.Context, caller identity.PublicKey, entity reference.Reference) error {
	ok, err := s.registry.IsAgentAdministrator(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: agent %s is not an administrator", corkerrors.ErrUnauthorized, identity.EncodePublicKey(caller))
	}

	target, err := s.GetEntity(ctx, entity)
	if err != nil {
		return err
	}
	for _, agent := range target.Agents {
		if identity.Equal(agent, caller) {
			return fmt.Errorf("%w: agents cannot mutate the status of their own entity", corkerrors.ErrUnauthorized)
		}
	}
	return nil
}

// authorizeAdminChange gates administrator grants and revocations. Only an
// existing administrator may change the set; the first grant of a fresh
// network goes through Bootstrap.
func (s *Service) authorizeAdminChange(ctx context.Context, caller identity.PublicKey) error {
	ok, err := s.registry.IsAgentAdministrator(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: agent %s is not an administrator", corkerrors.ErrUnauthorized, identity.EncodePublicKey(caller))
	}
	return nil
}
