package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/settlewatch/settle"
	"github.com/ZanzyTHEbar/settlewatch/settle/filesystem/common"
	"github.com/ZanzyTHEbar/settlewatch/settle/filesystem/watcher"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Watcher WatcherSettings `mapstructure:"watcher"`
	Log     LogConfig       `mapstructure:"log"`
}

// WatcherSettings stores the settle watcher configuration.
type WatcherSettings struct {
	Folder                string `mapstructure:"folder"`
	Include               string `mapstructure:"include"`
	Exclude               string `mapstructure:"exclude"`
	QuietPeriodMillis     int    `mapstructure:"quietPeriodMillis"`
	IncludeSubdirectories bool   `mapstructure:"includeSubdirectories"`
	IgnoreFile            string `mapstructure:"ignoreFile"`
	ScanWorkers           int    `mapstructure:"scanWorkers"`
}

// LogConfig stores logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
// Environment variables are prefixed with SETTLEWATCH_, e.g. SETTLEWATCH_WATCHER_QUIETPERIODMILLIS.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("watcher.folder", ".")
	v.SetDefault("watcher.include", "")
	v.SetDefault("watcher.exclude", "")
	v.SetDefault("watcher.quietPeriodMillis", internal.DefaultQuietPeriodMillis)
	v.SetDefault("watcher.includeSubdirectories", internal.DefaultIncludeSubdirectories)
	v.SetDefault("watcher.ignoreFile", "")
	v.SetDefault("watcher.scanWorkers", 0)
	v.SetDefault("log.level", internal.DefaultLogLevel)
	v.SetDefault("log.pretty", false)

	v.SetEnvPrefix(internal.DefaultAppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if cfg.Watcher.QuietPeriodMillis <= 0 {
		return nil, fmt.Errorf("watcher.quietPeriodMillis=%d: %w", cfg.Watcher.QuietPeriodMillis, common.ErrInvalidQuietPeriod)
	}

	AppConfig = cfg
	return &cfg, nil
}

// WatcherConfig converts the loaded settings into a watcher configuration
func (c *Config) WatcherConfig() watcher.WatcherConfig {
	wc := watcher.DefaultConfig(c.Watcher.Folder)
	wc.IncludeFilter = c.Watcher.Include
	wc.ExcludeFilter = c.Watcher.Exclude
	wc.QuietPeriod = time.Duration(c.Watcher.QuietPeriodMillis) * time.Millisecond
	wc.IncludeSubdirectories = c.Watcher.IncludeSubdirectories
	wc.IgnoreFile = c.Watcher.IgnoreFile
	wc.ScanWorkers = c.Watcher.ScanWorkers
	return wc
}
