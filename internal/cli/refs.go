package cli

import (
	"context"
	"fmt"

	"github.com/corknet/cork-node/internal/node"
	"github.com/corknet/cork-node/pkg/reference"
)

// ResolveRef turns a user-supplied reference string into a Reference.
// A full 64-char hex string decodes directly; anything shorter is
// resolved as a prefix against the index.
func ResolveRef(ctx context.Context, n *node.Node, s string) (reference.Reference, error) {
	if len(s) == reference.Size*2 {
		ref, err := reference.FromHex(s)
		if err != nil {
			return reference.Reference{}, fmt.Errorf("invalid reference %q: %w", s, err)
		}
		return ref, nil
	}
	ref, err := n.Index.ResolvePrefix(ctx, s)
	if err != nil {
		return reference.Reference{}, fmt.Errorf("resolve %q: %w", s, err)
	}
	return ref, nil
}
