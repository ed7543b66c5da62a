package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/corknet/cork-node/internal/config"
	"github.com/corknet/cork-node/internal/node"
)

// CommandConfig configures a CLI command that runs against an opened node.
type CommandConfig struct {
	// Name identifies this command (for logging).
	Name string

	// Viper holds the command's configuration.
	Viper *viper.Viper

	// Timeout for the command operation. Zero means no timeout.
	Timeout time.Duration

	// Run is the command's business logic.
	Run func(ctx context.Context, n *node.Node, out *Output) error
}

// RunCommand executes a CLI command with standard infrastructure setup:
// load config, open the node, apply the timeout, render through Output,
// close the node. Command logs go to {data_dir}/log/cli.log so stdout stays
// clean for the rendered result.
func RunCommand(cfg CommandConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("command name required")
	}
	if cfg.Viper == nil {
		return fmt.Errorf("viper required")
	}
	if cfg.Run == nil {
		return fmt.Errorf("run function required")
	}

	conf, err := config.Load(cfg.Viper, cfg.Viper.GetString("config_file"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logWriter := commandLogWriter(conf.DataDir)

	ctx := context.Background()
	n, err := node.Open(ctx, conf, logWriter)
	if err != nil {
		return fmt.Errorf("open node: %w", err)
	}
	defer func() { _ = n.Close(context.Background()) }()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	out := NewOutputFromViper(cfg.Viper)
	return cfg.Run(ctx, n, out)
}

// commandLogWriter opens {dataDir}/log/cli.log, falling back to stderr.
func commandLogWriter(dataDir string) *os.File {
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	logDir := filepath.Join(dataDir, "log")
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return os.Stderr
	}
	f, err := os.OpenFile(filepath.Join(logDir, "cli.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return os.Stderr
	}
	return f
}
