package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PTBRIDGE_SERVER_ADDR
const EnvPrefix = "PTBRIDGE"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader. An empty path loads defaults and
// environment overrides only.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file, if present, over the defaults
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
		} else {
			v.SetConfigFile(l.configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.fps", cfg.Server.FPS)
	v.SetDefault("server.width", cfg.Server.Width)
	v.SetDefault("server.height", cfg.Server.Height)
	v.SetDefault("server.max_sessions", cfg.Server.MaxSessions)
	v.SetDefault("server.metrics", cfg.Server.Metrics)

	v.SetDefault("render.scene", cfg.Render.Scene)
	v.SetDefault("render.width", cfg.Render.Width)
	v.SetDefault("render.height", cfg.Render.Height)
	v.SetDefault("render.output_dir", cfg.Render.OutputDir)
	v.SetDefault("render.max_frames", cfg.Render.MaxFrames)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)

	v.SetDefault("options_file", cfg.OptionsFile)
}

// Validate checks ranges viper cannot express
func (c *Config) Validate() error {
	if c.Server.FPS <= 0 {
		return fmt.Errorf("server.fps must be positive, got %d", c.Server.FPS)
	}
	if c.Server.Width <= 0 || c.Server.Height <= 0 {
		return fmt.Errorf("server viewport must be positive, got %dx%d", c.Server.Width, c.Server.Height)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render size must be positive, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Server.MaxSessions < 0 {
		return fmt.Errorf("server.max_sessions must be non-negative, got %d", c.Server.MaxSessions)
	}
	return nil
}
