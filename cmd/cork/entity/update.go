package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/node"
	"github.com/corknet/cork-node/internal/status"
	"github.com/corknet/cork-node/pkg/reference"
)

func newUpdateCmd(v *viper.Viper) *cobra.Command {
	var (
		statusType string
		reason     string
		until      string
		previous   string
	)

	cmd := &cobra.Command{
		Use:   "update <entity>",
		Short: "Update an entity's status",
		Long: "Append a new status revision to an entity's chain.\n" +
			"Requires administrator standing. If --previous is omitted the\n" +
			"current tip is used; a concurrent update in between fails with\n" +
			"a stale reference error.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := status.Status{Type: status.Type(statusType), Reason: reason}
			if until != "" {
				deadline, err := parseDeadline(until)
				if err != nil {
					return err
				}
				st.SuspendedUntil = deadline.UnixMilli()
			}

			return cli.RunCommand(cli.CommandConfig{
				Name:    "entity-update",
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

					rec, err := n.Board.UpdateStatus(ctx, ref, prev, st, signer)
					if err != nil {
						return fmt.Errorf("update status: %w", err)
					}

					res := out.Result("status-updated", fmt.Sprintf("Status set to %s", rec.Status.Type)).
						With("Entity", reference.Hex(rec.Entity)).
						With("Record", reference.Hex(rec.Ref)).
						With("Category", string(status.CategoryOf(rec.Status.Type)))
					if rec.Status.SuspendedUntil != 0 {
						res.With("Suspended Until", formatMillis(rec.Status.SuspendedUntil))
					}
					return res.Render()
				},
			})
		},
	}

	cmd.Flags().StringVarP(&statusType, "status", "s", "", "new status (pending, accepted, rejected, suspended_temporarily, suspended_indefinitely)")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason for the change")
	cmd.Flags().StringVar(&until, "until", "", "suspension deadline (duration like 168h, or RFC3339)")
	cmd.Flags().StringVar(&previous, "previous", "", "expected current tip (defaults to the latest record)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

// resolvePrevious returns the reference the caller expects to extend.
// With no explicit value the entity's latest status record is used.
func resolvePrevious(ctx context.Context, n *node.Node, entity reference.Reference, previous string) (reference.Reference, error) {
	if previous != "" {
		return cli.ResolveRef(ctx, n, previous)
	}
	rec, err := n.Board.GetLatestStatus(ctx, entity)
	if err != nil {
		return reference.Reference{}, fmt.Errorf("resolve tip: %w", err)
	}
	return rec.Ref, nil
}

func parseDeadline(s string) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q: use a duration (168h) or RFC3339", s)
	}
	return t, nil
}
