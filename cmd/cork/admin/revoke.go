package admin

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

func newRevokeCmd(v *viper.Viper) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "revoke <entity>",
		Short: "Revoke an entity's administrator standing",
		Long:  "Revoke administrator standing from an entity.\nAll of the entity's granted agent keys lose standing together.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunCommand(cli.CommandConfig{
				Name:    "admin-revoke",
				Viper:   v,
				Timeout: 30 * time.Second,
				Run: func(ctx context.Context, n *node.Node, out *cli.Output) error {
					ref, err := cli.ResolveRef(ctx, n, args[0])
					if err != nil {
						return err
					}

					signer, err := cli.LoadSigner(v, n.Config.KeyName)
					if err != nil {
						return fmt.Errorf("load signer: %w", err)
					}

					if err := n.Board.RemoveAdministrator(ctx, ref, nil, reason, signer); err != nil {
						return fmt.Errorf("revoke: %w", err)
					}

					return out.Result("admin-revoked", "Administrator revoked").
						With("Entity", reference.Hex(ref)).
						With("Reason", reason).
						Render()
				},
			})
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason for the revocation")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}
