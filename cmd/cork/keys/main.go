// Package keys implements the `cork keys` subcommands.
package keys

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/config"
	"github.com/corknet/cork-node/internal/keyring"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage keypairs",
		Long:  "Manage Ed25519 keys with alias support.\nKeys are stored in <data-dir>/keys/ with a keyring.json alias map.",
	}

	cmd.AddCommand(
		newGenerateCmd(v),
		newListCmd(v),
		newShowCmd(v),
		newAliasCmd(v),
		newDefaultCmd(v),
	)

	return cmd
}

func dataDir(v *viper.Viper) string {
	if d := v.GetString("data_dir"); d != "" {
		return d
	}
	return config.DefaultDataDir()
}

func openKeyring(v *viper.Viper) *keyring.Keyring {
	return keyring.New(dataDir(v))
}
