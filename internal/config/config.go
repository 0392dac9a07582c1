package config

import (
	"github.com/df07/go-progressive-bridge/internal/logger"
)

// Config is the bridge configuration
type Config struct {
	// Interactive viewer
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Headless renders
	Render RenderConfig `json:"render" mapstructure:"render"`

	// Logging
	Logging logger.Config `json:"logging" mapstructure:"logging"`

	// Render options file applied to every session and watched for changes
	OptionsFile string `json:"options_file" mapstructure:"options_file"`
}

// ServerConfig configures the websocket viewer
type ServerConfig struct {
	Addr        string `json:"addr" mapstructure:"addr"`
	FPS         int    `json:"fps" mapstructure:"fps"`                   // Frame loop rate per connection
	Width       int    `json:"width" mapstructure:"width"`               // Initial viewport width
	Height      int    `json:"height" mapstructure:"height"`             // Initial viewport height
	MaxSessions int    `json:"max_sessions" mapstructure:"max_sessions"` // 0 means unlimited
	Metrics     bool   `json:"metrics" mapstructure:"metrics"`           // Serve /metrics
}

// RenderConfig configures the headless render command
type RenderConfig struct {
	Scene     string `json:"scene" mapstructure:"scene"`
	Width     int    `json:"width" mapstructure:"width"`
	Height    int    `json:"height" mapstructure:"height"`
	OutputDir string `json:"output_dir" mapstructure:"output_dir"`
	MaxFrames int    `json:"max_frames" mapstructure:"max_frames"` // Frame cap when the budget is never reached
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    ":8080",
			FPS:     30,
			Width:   640,
			Height:  360,
			Metrics: true,
		},
		Render: RenderConfig{
			Scene:     "default",
			Width:     400,
			Height:    225,
			OutputDir: "output",
			MaxFrames: 10000,
		},
		Logging: logger.DefaultConfig(),
	}
}
