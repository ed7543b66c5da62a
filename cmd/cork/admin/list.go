package admin

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/node"
	"github.com/corknet/cork-node/pkg/reference"
)

func newListCmd(v *viper.Viper) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List administrators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.RunCommand(cli.CommandConfig{
				Name:    "admin-list",
				Viper:   v,
				Timeout: 30 * time.Second,
				Run: func(ctx context.Context, n *node.Node, out *cli.Output) error {
					admins, err := n.Board.Administrators(ctx)
					if err != nil {
						return err
					}

					t := out.Table("admin-list", "Entity", "Agents", "Status", "Since")
					for _, adm := range admins {
						if !all && !adm.Active() {
							continue
						}
						t.AddRow(
							reference.Hex(adm.Entity),
							strconv.Itoa(len(adm.Agents)),
							string(adm.Status.Type),
							time.UnixMilli(adm.Since).UTC().Format(time.RFC3339),
						)
					}
					return t.Render()
				},
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include revoked administrators")
	return cmd
}
