// Package config holds the application configuration: defaults, optional
// YAML overrides and the logger/session wiring derived from them.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/blectl/internal/gatt"
)

// Config holds application configuration.
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	OutputFormat   string        `yaml:"output_format" default:"table"` // table, json

	// RequestMTU, when > 0, is negotiated right after connection setup.
	RequestMTU int `yaml:"request_mtu"`

	EventBuffer  int    `yaml:"event_buffer" default:"256"`
	EventHistory uint32 `yaml:"event_history" default:"512"`

	// CommandCharacteristic receives the single-byte pad commands.
	CommandCharacteristic string `yaml:"command_characteristic" default:"ffe1"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	return cfg, nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

// SessionOptions maps the configuration onto session options.
func (c *Config) SessionOptions() gatt.Options {
	return gatt.Options{
		ConnectTimeout:        c.ConnectTimeout,
		RequestMTU:            c.RequestMTU,
		EventBuffer:           c.EventBuffer,
		EventHistory:          c.EventHistory,
		CommandCharacteristic: c.CommandCharacteristic,
	}
}
