package admin

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/node"
	"github.com/corknet/cork-node/pkg/identity"
)

func newCheckCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check <agent-key>",
		Short: "Check whether an agent key holds administrator standing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := identity.DecodePublicKey(args[0])
			if err != nil {
				return err
			}

			return cli.RunCommand(cli.CommandConfig{
				Name:    "admin-check",
				Viper:   v,
				Timeout: 30 * time.Second,
				Run: func(ctx context.Context, n *node.Node, out *cli.Output) error {
					ok, err := n.Board.IsAgentAdministrator(ctx, pk)
					if err != nil {
						return err
					}

					return out.KV("admin-check").
						Set("Agent", identity.EncodePublicKey(pk)).
						Set("Administrator", ok).
						Render()
				},
			})
		},
	}
}
