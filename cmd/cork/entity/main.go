// Package entity implements the `cork entity` subcommands.
package entity

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/pkg/identity"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Manage entities and their status",
		Long:  "Create entities, inspect and update their moderation status,\nand list them by category.",
	}

	cmd.AddCommand(
		newCreateCmd(v),
		newStatusCmd(v),
		newHistoryCmd(v),
		newListCmd(v),
		newUpdateCmd(v),
		newUnsuspendCmd(v),
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

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
