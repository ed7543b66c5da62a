// Package config provides viper-backed configuration for the cork node.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config struct {
	DataDir       string              `mapstructure:"data_dir"`
	KeyName       string              `mapstructure:"key_name"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Storage       StorageConfig       `mapstructure:"storage"`
}

type StorageConfig struct {
	Record BackendConfig `mapstructure:"record"`
	Index  BackendConfig `mapstructure:"index"`
}

type BackendConfig struct {
	Backend string            `mapstructure:"backend"`
	Config  map[string]string `mapstructure:"config"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPProtocol   string `mapstructure:"otlp_protocol"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

// DefaultDataDir returns the default data directory (~/.cork).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cork"
	}
	return filepath.Join(home, ".cork")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("key_name", "default")

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "text")
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_protocol", "http")
	v.SetDefault("observability.service_name", "cork")
	v.SetDefault("observability.service_version", "dev")

	v.SetDefault("storage.record.backend", "badger")
	v.SetDefault("storage.index.backend", "badger")
}

// BindCommonFlags binds shared CLI flags to viper.
func BindCommonFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	f.String("data-dir", "", "data directory (default ~/.cork)")
	f.String("config", "", "config file path")
	f.StringP("key", "k", "", "key alias or public key hex")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (json, text)")
	f.StringP("output", "o", "", "output format (text, json, markdown)")

	_ = v.BindPFlag("data_dir", f.Lookup("data-dir"))
	_ = v.BindPFlag("config_file", f.Lookup("config"))
	_ = v.BindPFlag("key", f.Lookup("key"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
	_ = v.BindPFlag("output", f.Lookup("output"))
}

// Load reads config from flags, env, and file, returning the merged Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("CORK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile == "" {
		configFile = v.GetString("config_file")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("cork")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.cork")
		v.AddConfigPath("/etc/cork")
	}

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) && configFile != "" {
			return Config{}, err
		}
		// Missing config file is fine unless one was named explicitly.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Storage.Record.Config == nil {
		cfg.Storage.Record.Config = map[string]string{}
	}
	if cfg.Storage.Index.Config == nil {
		cfg.Storage.Index.Config = map[string]string{}
	}
	return cfg, nil
}
