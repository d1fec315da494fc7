package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Config holds daemon configuration.
type Config struct {
	// X display to connect to. Empty means $DISPLAY.
	Display string `envconfig:"DISPLAY_NAME" default:""`

	// XEmbed version advertised to clients.
	XEmbedVersion uint32 `envconfig:"XEMBED_VERSION" default:"0"`

	// Whether to publish embedded windows on the session bus.
	DBus bool `envconfig:"DBUS" default:"true"`

	Log LogConfig
}

// LogConfig holds logging configuration. Its variables are prefixed with
// XSYSTRAY_LOG_.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// loadConfig reads configuration from XSYSTRAY_* environment variables and
// then applies command line flags on top of it.
func loadConfig(args []string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("XSYSTRAY", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flagSet := pflag.NewFlagSet("xsystrayd", pflag.ContinueOnError)
	flagSet.StringVarP(&cfg.Display, "display", "d", cfg.Display, "X display to connect to (default: $DISPLAY)")
	flagSet.Uint32Var(&cfg.XEmbedVersion, "xembed-version", cfg.XEmbedVersion, "XEmbed protocol version advertised to clients")
	flagSet.BoolVar(&cfg.DBus, "dbus", cfg.DBus, "publish embedded windows on the session bus")
	flagSet.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	flagSet.BoolVar(&cfg.Log.Development, "log-dev", cfg.Log.Development, "human-readable development logging")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// newLogger builds a zap logger from configuration.
func newLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.Level = level

	return zapConfig.Build()
}
