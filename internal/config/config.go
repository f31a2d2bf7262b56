// Package config loads helixd configuration with viper. Precedence:
// explicit flag overrides > HELIXD_* environment variables > config
// file > built-in defaults. The config file is looked up at
// ~/.helix/config.yaml, then ./helixd.yaml.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the full helixd configuration tree.
type Config struct {
	Socket  string        `mapstructure:"socket"`
	Logging LoggingConfig `mapstructure:"logging"`
	Index   IndexConfig   `mapstructure:"index"`
	Sync    SyncConfig    `mapstructure:"sync"`
}

// LoggingConfig controls the daemon logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// IndexConfig locates the sqlite document index.
type IndexConfig struct {
	Path string `mapstructure:"path"`
}

// SyncConfig controls which files the built-in syncer indexes.
type SyncConfig struct {
	Includes []string `mapstructure:"includes"`
	Excludes []string `mapstructure:"excludes"`
}

var (
	configMu  sync.Mutex
	appConfig *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("socket", "~/.helix/helixd.sock")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("index.path", "~/.helix/index.db")
	v.SetDefault("sync.includes", []string{"**/*.md"})
	v.SetDefault("sync.excludes", []string{})
}

// Load reads configuration and caches the result for GetConfig.
// overrides, when given, win over every other source; keys use viper
// dotted form ("logging.level").
func Load(overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.helix")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Fall back to a repo-local helixd.yaml.
		v.SetConfigName("helixd")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("HELIXD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, o := range overrides {
		for key, val := range o {
			v.Set(key, val)
		}
	}

	var cfg Config
	decode := func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = false
	}
	if err := v.Unmarshal(&cfg, decode); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the last loaded config, or defaults when Load has
// not run.
func GetConfig() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	if appConfig == nil {
		v := viper.New()
		setDefaults(v)
		var cfg Config
		_ = v.Unmarshal(&cfg)
		appConfig = &cfg
	}
	return appConfig
}

func (c *Config) validate() error {
	if c.Socket == "" {
		return fmt.Errorf("socket path must not be empty")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Index.Path == "" {
		return fmt.Errorf("index.path must not be empty")
	}
	return nil
}
