package entity

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/node"
	"github.com/corknet/cork-node/internal/status"
	"github.com/corknet/cork-node/pkg/reference"
)

func newListCmd(v *viper.Viper) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.RunCommand(cli.CommandConfig{
				Name:    "entity-list",
				Viper:   v,
				Timeout: 30 * time.Second,
				Run: func(ctx context.Context, n *node.Node, out *cli.Output) error {
					refs, err := n.Board.ListByCategory(ctx, status.Category(category))
					if err != nil {
						return err
					}

					list := out.StringList("entity-list")
					for _, ref := range refs {
						list.Add(reference.Hex(ref))
					}
					return list.Render()
				},
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "accepted", "category (pending, accepted, rejected, suspended)")
	return cmd
}
