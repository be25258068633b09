package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultBindHost          = "127.0.0.1"
	defaultPort              = 10002
	defaultQueryTimeout      = 30 * time.Second
	defaultRetentionDays     = 30 // 0 = disabled
	defaultRetentionInterval = time.Hour
	defaultStatsInterval     = time.Minute

	// The development account works out of the box, like other storage
	// emulators. Configure accounts for anything shared.
	devAccountName = "devaccount"
	devAccountKey  = "dHJhY2VzdG9yZS1lbXVsYXRvci1kZXZlbG9wbWVudC1rZXk="
)

// emulatorConfig is internal runtime configuration.
type emulatorConfig struct {
	Host              string            `mapstructure:"host"`
	Port              int               `mapstructure:"port"`
	Addr              string            `mapstructure:"addr"`
	DBPath            string            `mapstructure:"db-path"`
	QueryTimeout      time.Duration     `mapstructure:"query-timeout"`
	RetentionDays     int               `mapstructure:"retention-days"`
	RetentionInterval time.Duration     `mapstructure:"retention-interval"`
	StatsInterval     time.Duration     `mapstructure:"stats-interval"`
	AccountName       string            `mapstructure:"account-name"`
	AccountKey        string            `mapstructure:"account-key"`
	Accounts          map[string]string `mapstructure:"accounts"`
	ConfigPath        string            `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (emulatorConfig, error) {
	var cfg emulatorConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("TRACESTORE_EMULATOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("host", defaultBindHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("db-path", filepath.Join(home, ".local", "share", "tracestore", "emulator.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("retention-days", defaultRetentionDays)
	v.SetDefault("retention-interval", defaultRetentionInterval)
	v.SetDefault("stats-interval", defaultStatsInterval)
	v.SetDefault("account-name", devAccountName)
	v.SetDefault("account-key", devAccountKey)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "tracestore", "emulator.yml"))
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
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	// Expand ~ in db-path; ":memory:" selects an in-memory database.
	if strings.HasPrefix(cfg.DBPath, "~/") {
		cfg.DBPath = filepath.Join(home, cfg.DBPath[2:])
	}
	if cfg.DBPath == ":memory:" {
		cfg.DBPath = ""
	}
	if cfg.Addr == "" {
		cfg.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}
	return cfg, nil
}

// accounts merges the single account settings into the accounts map.
func (c emulatorConfig) accounts() map[string]string {
	out := make(map[string]string, len(c.Accounts)+1)
	for name, key := range c.Accounts {
		out[name] = key
	}
	if c.AccountName != "" && c.AccountKey != "" {
		out[c.AccountName] = c.AccountKey
	}
	return out
}
