package entity

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/node"
	"github.com/corknet/cork-node/pkg/reference"
)

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "history <entity>",
		Short: "Show an entity's full status history",
		Long:  "List every status revision of an entity, oldest first.\nDiverged branches are included.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunCommand(cli.CommandConfig{
				Name:    "entity-history",
				Viper:   v,
				Timeout: 30 * time.Second,
				Run: func(ctx context.Context, n *node.Node, out *cli.Output) error {
					ref, err := cli.ResolveRef(ctx, n, args[0])
					if err != nil {
						return err
					}

					recs, err := n.Board.GetStatusHistory(ctx, ref)
					if err != nil {
						return err
					}

					t := out.Table("entity-history", "Record", "Status", "Reason", "Until", "At")
					for _, rec := range recs {
						until := "-"
						if rec.Status.SuspendedUntil != 0 {
							until = formatMillis(rec.Status.SuspendedUntil)
						}
						reason := rec.Status.Reason
						if reason == "" {
							reason = "-"
						}
						t.AddRow(
							reference.Hex(rec.Ref)[:12],
							string(rec.Status.Type),
							reason,
							until,
							formatMillis(rec.CreatedAt),
						)
					}
					return t.Render()
				},
			})
		},
	}
}
