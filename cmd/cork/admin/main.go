// Package admin implements the `cork admin` subcommands.
package admin

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/pkg/identity"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrators",
		Long:  "Grant, revoke, and inspect administrator standing.\nAdministrator grants are entity-scoped; all of an entity's agent keys\nare granted and revoked together.",
	}

	cmd.AddCommand(
		newBootstrapCmd(v),
		newGrantCmd(v),
		newRevokeCmd(v),
		newCheckCmd(v),
		newListCmd(v),
	)

	return cmd
}

func parseAgentKeys(args []string) ([]identity.PublicKey, error) {
	keys := make([]identity.PublicKey, 0, len(args))
	for _, arg := range args {
		pk, err := identity.DecodePublicKey(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid agent key %q: %w", arg, err)
		}
		keys = append(keys, pk)
	}
	return keys, nil
}
