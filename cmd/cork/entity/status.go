package entity

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/node"
	"github.com/corknet/cork-node/internal/status"
	"github.com/corknet/cork-node/pkg/identity"
	"github.com/corknet/cork-node/pkg/reference"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status <entity>",
		Short: "Show an entity's latest status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunCommand(cli.CommandConfig{
				Name:    "entity-status",
				Viper:   v,
				Timeout: 30 * time.Second,
				Run: func(ctx context.Context, n *node.Node, out *cli.Output) error {
					ref, err := cli.ResolveRef(ctx, n, args[0])
					if err != nil {
						return err
					}

					rec, err := n.Board.GetLatestStatus(ctx, ref)
					if err != nil {
						return err
					}

					kv := out.KV("entity-status").
						Set("Entity", reference.Hex(rec.Entity)).
						Set("Status", string(rec.Status.Type)).
						Set("Category", string(status.CategoryOf(rec.Status.Type))).
						Set("Updated At", formatMillis(rec.CreatedAt)).
						Set("Updated By", identity.EncodePublicKey(rec.Author)).
						Set("Record", reference.Hex(rec.Ref))
					if rec.Status.Reason != "" {
						kv.Set("Reason", rec.Status.Reason)
					}
					if rec.Status.SuspendedUntil != 0 {
						kv.Set("Suspended Until", formatMillis(rec.Status.SuspendedUntil))
						if rec.Status.IsExpired(time.Now()) {
							kv.Set("Note", "suspension deadline has passed; run `cork entity unsuspend` to lift it")
						}
					}

					forked, err := n.Chains.IsForked(ctx, rec.Entity)
					if err == nil && forked {
						kv.Set("Warning", "status chain has diverged; history shows all branches")
					}

					return kv.Render()
				},
			})
		},
	}
}
