package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/node"
	"github.com/corknet/cork-node/pkg/reference"
)

func newCreateCmd(v *viper.Viper) *cobra.Command {
	var profileFile string

	cmd := &cobra.Command{
		Use:   "create <agent-key>...",
		Short: "Create a new entity",
		Long:  "Create an entity owned by the given agent keys.\nThe entity starts in the pending category.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := parseAgentKeys(args)
			if err != nil {
				return err
			}

			var profile json.RawMessage
			if profileFile != "" {
				data, readErr := os.ReadFile(profileFile)
				if readErr != nil {
					return fmt.Errorf("read profile: %w", readErr)
				}
				if !json.Valid(data) {
					return fmt.Errorf("profile %q is not valid JSON", profileFile)
				}
				profile = data
			}

			return cli.RunCommand(cli.CommandConfig{
				Name:    "entity-create",
				Viper:   v,
				Timeout: 30 * time.Second,
				Run: func(ctx context.Context, n *node.Node, out *cli.Output) error {
					signer, err := cli.LoadSigner(v, n.Config.KeyName)
					if err != nil {
						return fmt.Errorf("load signer: %w", err)
					}

					ent, err := n.Board.CreateEntity(ctx, agents, profile, signer)
					if err != nil {
						return fmt.Errorf("create entity: %w", err)
					}

					res := out.Result("entity-created", "Entity created").
						With("Reference", reference.Hex(ent.Ref)).
						With("Agents", len(ent.Agents)).
						With("Category", "pending")
					return res.Render()
				},
			})
		},
	}

	cmd.Flags().StringVar(&profileFile, "profile", "", "path to a JSON profile document")
	return cmd
}
