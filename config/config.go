// Package config loads the taskdoc settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/zenibako/taskdoc-golang/safewrite"
)

// MaxFileSize guards against loading something that is not a settings file
const MaxFileSize = 1024 * 1024

type Config struct {
	LockTimeout  time.Duration `yaml:"lock_timeout" validate:"gte=0"`
	Lock         bool          `yaml:"lock"`
	CloudMarkers []string      `yaml:"cloud_markers" validate:"dive,required"`
	Backup       BackupConfig  `yaml:"backup"`
	Watch        WatchConfig   `yaml:"watch"`
	LogLevel     string        `yaml:"log_level" validate:"oneof=debug info warn error"`
}

type BackupConfig struct {
	Dir  string `yaml:"dir"`                   // empty: next to the data file
	Keep int    `yaml:"keep" validate:"gte=0"` // 0 disables backups
}

type WatchConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"omitempty,gte=100ms"`
}

var validate = validator.New()

func Default() *Config {
	return &Config{
		LockTimeout:  5 * time.Second,
		Lock:         true,
		CloudMarkers: append([]string(nil), safewrite.DefaultCloudMarkers...),
		Backup:       BackupConfig{Keep: 10},
		Watch:        WatchConfig{Enabled: true, PollInterval: 2 * time.Second},
		LogLevel:     "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("config %s too large: %d bytes (max %d)", path, info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	return validate.Struct(c)
}
