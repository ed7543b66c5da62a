// Package index implements the `cork index` subcommands.
package index

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain the derived index",
		Long:  "The category and administrator indices are derived from the\nrecord chains and can be rebuilt from them at any time.",
	}

	cmd.AddCommand(
		newRebuildCmd(v),
		newStatsCmd(v),
	)

	return cmd
}
