package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/node"
	"github.com/corknet/cork-node/pkg/identity"
	"github.com/corknet/cork-node/pkg/reference"
)

func newBootstrapCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap <entity> [agent-key...]",
		Short: "Grant the first administrator",
		Long: "Grant administrator standing without an existing administrator.\n" +
			"Only works while no administrator exists. Agent keys default to\n" +
			"the entity's own keys.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := parseAgentKeys(args[1:])
			if err != nil {
				return err
			}

			return cli.RunCommand(cli.CommandConfig{
				Name:    "admin-bootstrap",
				Viper:   v,
				Timeout: 30 * time.Second,
				Run: func(ctx context.Context, n *node.Node, out *cli.Output) error {
					ref, err := cli.ResolveRef(ctx, n, args[0])
					if err != nil {
						return err
					}

					if len(agents) == 0 {
						ent, err := n.Board.GetEntity(ctx, ref)
						if err != nil {
							return err
						}
						agents = ent.Agents
					}

					signer, err := cli.LoadSigner(v, n.Config.KeyName)
					if err != nil {
						return fmt.Errorf("load signer: %w", err)
					}

					adm, err := n.Board.Bootstrap(ctx, ref, agents, signer)
					if err != nil {
						return fmt.Errorf("bootstrap: %w", err)
					}

					res := out.Result("admin-bootstrapped", "Administrator granted").
						With("Entity", reference.Hex(adm.Entity))
					for i, pk := range adm.Agents {
						res.With(fmt.Sprintf("Agent %d", i+1), identity.EncodePublicKey(pk))
					}
					return res.Render()
				},
			})
		},
	}
}
