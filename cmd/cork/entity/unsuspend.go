package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/node"
	"github.com/corknet/cork-node/pkg/reference"
)

func newUnsuspendCmd(v *viper.Viper) *cobra.Command {
	var previous string

	cmd := &cobra.Command{
		Use:   "unsuspend <entity>",
		Short: "Lift an expired temporary suspension",
		Long: "Append an accepted revision if the entity's temporary suspension\n" +
			"deadline has passed. Does nothing otherwise. Any key may run this;\n" +
			"the lift records an expiry, not a moderation decision.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunCommand(cli.CommandConfig{
				Name:    "entity-unsuspend",
				Viper:   v,
				Timeout: 30 * time.Second,
				Run: func(ctx context.Context, n *node.Node, out *cli.Output) error {
					ref, err := cli.ResolveRef(ctx, n, args[0])
					if err != nil {
						return err
					}

					prev, err := resolvePrevious(ctx, n, ref, previous)
					if err != nil {
						return err
					}

					signer, err := cli.LoadSigner(v, n.Config.KeyName)
					if err != nil {
						return fmt.Errorf("load signer: %w", err)
					}

					lifted, err := n.Board.UnsuspendIfExpired(ctx, ref, prev, signer)
					if err != nil {
						return fmt.Errorf("unsuspend: %w", err)
					}

					if !lifted {
						return out.Result("unsuspend-noop", "Nothing to lift").
							With("Entity", reference.Hex(ref)).
							Render()
					}
					return out.Result("unsuspended", "Suspension lifted").
						With("Entity", reference.Hex(ref)).
						With("Category", "accepted").
						Render()
				},
			})
		},
	}

	cmd.Flags().StringVar(&previous, "previous", "", "expected current tip (defaults to the latest record)")
	return cmd
}
