package index

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/node"
	"github.com/corknet/cork-node/internal/status"
)

func newStatsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage and category statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.RunCommand(cli.CommandConfig{
				Name:    "index-stats",
				Viper:   v,
				Timeout: 30 * time.Second,
				Run: func(ctx context.Context, n *node.Node, out *cli.Output) error {
					kv := out.KV("index-stats")

					if recStats, err := n.Records.Stats(ctx); err == nil {
						kv.Set("Record Backend", recStats.BackendType)
						kv.Set("Record Bytes", recStats.SizeBytes)
					}
					if idxStats, err := n.Index.Stats(ctx); err == nil {
						kv.Set("Index Backend", idxStats.BackendType)
						kv.Set("Index Bytes", idxStats.SizeBytes)
					}

					counts, err := n.Board.CategoryCounts(ctx)
					if err != nil {
						return err
					}
					for _, cat := range status.Categories() {
						kv.Set(fmt.Sprintf("Entities %s", cat), counts[cat])
					}

					return kv.Render()
				},
			})
		},
	}
}
