package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/cli"
	"github.com/corknet/cork-node/internal/config"
	"github.com/corknet/cork-node/internal/keyring"
)

func newWhoamiCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the active identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := v.GetString("data_dir")
			if dataDir == "" {
				dataDir = config.DefaultDataDir()
			}
			kr := keyring.New(dataDir)

			name := v.GetString("key")
			var key *keyring.Key
			var err error
			if name != "" {
				key, err = kr.Load(cmd.Context(), name)
			} else {
				key, err = kr.LoadDefault(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("load key: %w", err)
			}

			out := cli.NewOutputFromViper(v)
			kv := out.KV("whoami").Set("Public Key", key.PublicKey)

			infos, err := kr.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list keys: %w", err)
			}
			for _, info := range infos {
				if info.PublicKey != key.PublicKey {
					continue
				}
				if len(info.Aliases) > 0 {
					kv.Set("Aliases", info.Aliases)
				}
				if info.IsDefault {
					kv.Set("Default", true)
				}
				break
			}
			return kv.Render()
		},
	}
}
