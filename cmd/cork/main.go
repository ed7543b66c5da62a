package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corknet/cork-node/cmd/cork/admin"
	"github.com/corknet/cork-node/cmd/cork/entity"
	"github.com/corknet/cork-node/cmd/cork/index"
	"github.com/corknet/cork-node/cmd/cork/keys"
	"github.com/corknet/cork-node/internal/config"
)

func main() {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "cork",
		Short: "Cork bulletin board node",
	}

	config.BindCommonFlags(rootCmd, v)

	rootCmd.AddCommand(entity.Entrypoint(v))
	rootCmd.AddCommand(admin.Entrypoint(v))
	rootCmd.AddCommand(index.Entrypoint(v))
	rootCmd.AddCommand(keys.Entrypoint(v))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newWhoamiCmd(v))
	rootCmd.AddCommand(newCompletionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
