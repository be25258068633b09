package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/tinytelemetry/tracestore/internal/reader"
	"github.com/tinytelemetry/tracestore/internal/tracestore"
)

const (
	backendLocal = "local"
	backendCloud = "cloud"
)

// cliConfig holds connection and logging settings shared by subcommands.
type cliConfig struct {
	Backend        string        `mapstructure:"backend"`
	TestRoot       string        `mapstructure:"test-root"`
	LogRoot        string        `mapstructure:"log-root"`
	WorkingDir     string        `mapstructure:"working-dir"`
	AccountName    string        `mapstructure:"account-name"`
	AccountKey     string        `mapstructure:"account-key"`
	TablePrefix    string        `mapstructure:"table-prefix"`
	DeploymentID   string        `mapstructure:"deployment-id"`
	Endpoint       string        `mapstructure:"endpoint"`
	PageSize       int           `mapstructure:"page-size"`
	RetryAttempts  int           `mapstructure:"retry-attempts"`
	InitialBackoff time.Duration `mapstructure:"initial-backoff"`
	MaxBackoff     time.Duration `mapstructure:"max-backoff"`
	LogFormat      string        `mapstructure:"log-format"`
	LogLevel       string        `mapstructure:"log-level"`
	ConfigPath     string        `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("TRACESTORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("backend", backendLocal)
	v.SetDefault("test-root", "")
	v.SetDefault("log-root", filepath.Join(home, ".local", "share", "tracestore", "traces"))
	v.SetDefault("working-dir", "")
	v.SetDefault("account-name", "")
	v.SetDefault("account-key", "")
	v.SetDefault("table-prefix", "")
	v.SetDefault("deployment-id", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("page-size", model.DefaultPageSize)
	v.SetDefault("retry-attempts", model.DefaultRetryAttempts)
	v.SetDefault("initial-backoff", model.DefaultInitialBackoff)
	v.SetDefault("max-backoff", model.DefaultMaxBackoff)
	v.SetDefault("log-format", "text")
	v.SetDefault("log-level", "warn")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "tracestore", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend != backendLocal && cfg.Backend != backendCloud {
		return cfg, fmt.Errorf("invalid backend %q (want local or cloud)", cfg.Backend)
	}

	for _, p := range []*string{&cfg.TestRoot, &cfg.LogRoot, &cfg.WorkingDir} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}
	return cfg, nil
}

// connectionInfo builds the connection information for the configured backend.
func (c cliConfig) connectionInfo() tracestore.ConnectionInfo {
	if c.Backend == backendCloud {
		return tracestore.CloudInfo{
			AccountName:     c.AccountName,
			AccountKey:      tracestore.NewSecret(c.AccountKey),
			TableNamePrefix: c.TablePrefix,
			DeploymentID:    c.DeploymentID,
			Endpoint:        c.Endpoint,
		}
	}
	return tracestore.LocalInfo{
		TestRootDirectory: c.TestRoot,
		LogRootDirectory:  c.LogRoot,
		WorkingDirectory:  c.WorkingDir,
	}
}

func (c cliConfig) readerConfig() reader.Config {
	return reader.Config{
		PageSize: c.PageSize,
		Retry: reader.RetryPolicy{
			Attempts:       c.RetryAttempts,
			InitialBackoff: c.InitialBackoff,
			MaxBackoff:     c.MaxBackoff,
		},
	}
}
