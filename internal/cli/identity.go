package cli

import (
	"context"

	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/config"
	"github.com/corknet/cork-node/internal/keyring"
	"github.com/corknet/cork-node/pkg/identity"
)

// LoadSigner loads a signer from viper configuration.
// Resolution order: key flag → key_name config → defaultKeyName. The key is
// loaded (or generated on first use) from the keyring in data_dir.
func LoadSigner(v *viper.Viper, defaultKeyName string) (identity.Signer, error) {
	dataDir := v.GetString("data_dir")
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	keyName := v.GetString("key")
	if keyName == "" {
		keyName = v.GetString("key_name")
	}
	if keyName == "" {
		keyName = defaultKeyName
	}

	kr := keyring.New(dataDir)
	return kr.LoadSigner(context.Background(), keyName)
}
