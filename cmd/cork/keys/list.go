package keys

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
)

func newListCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			kr := openKeyring(v)

			infos, err := kr.List(ctx)
			if err != nil {
				return fmt.Errorf("list keys: %w", err)
			}

			out := cli.NewOutputFromViper(v)
			if len(infos) == 0 {
				return out.Result("keys", "No keys found. Create one with: cork keys generate").Render()
			}

			t := out.Table("keys", "Public Key", "Aliases", "Default")
			for _, info := range infos {
				aliases := strings.Join(info.Aliases, ", ")
				if aliases == "" {
					aliases = "-"
				}
				def := ""
				if info.IsDefault {
					def = "*"
				}
				t.AddRow(info.PublicKey, aliases, def)
			}
			return t.Render()
		},
	}

	return cmd
}
