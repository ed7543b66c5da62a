package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DataDir == "" {
		t.Error("DataDir empty")
	}
	if cfg.Storage.Record.Backend != "badger" {
		t.Errorf("record backend = %q, want badger", cfg.Storage.Record.Backend)
	}
	if cfg.Storage.Index.Backend != "badger" {
		t.Errorf("index backend = %q, want badger", cfg.Storage.Index.Backend)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("log level = %q, want info", cfg.Observability.LogLevel)
	}
	if cfg.KeyName != "default" {
		t.Errorf("key name = %q, want default", cfg.KeyName)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CORK_DATA_DIR", "/tmp/cork-test")
	t.Setenv("CORK_OBSERVABILITY_LOG_LEVEL", "debug")

	v := viper.New()
	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DataDir != "/tmp/cork-test" {
		t.Errorf("DataDir = %q, want /tmp/cork-test", cfg.DataDir)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Observability.LogLevel)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	v := viper.New()
	if _, err := Load(v, "/nonexistent/cork.hcl"); err == nil {
		t.Error("Load succeeded with missing explicit config file")
	}
}
