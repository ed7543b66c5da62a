package index

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/node"
)

func newRebuildCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the derived index from the record chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.RunCommand(cli.CommandConfig{
				Name:    "index-rebuild",
				Viper:   v,
				Timeout: 5 * time.Minute,
				Run: func(ctx context.Context, n *node.Node, out *cli.Output) error {
					rebuilt, err := n.Board.RebuildIndex(ctx)
					if err != nil {
						return err
					}
					return out.Result("index-rebuilt", "Index rebuilt").
						With("Chains", rebuilt).
						Render()
				},
			})
		},
	}
}
