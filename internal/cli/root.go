package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/df07/go-progressive-bridge/internal/config"
	"github.com/df07/go-progressive-bridge/internal/logger"
)

const version = "0.1.0"

// globalFlags are shared by every subcommand
type globalFlags struct {
	cfgFile  string
	logLevel string
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "ptbridge",
		Short: "Progressive path tracer session bridge",
		Long: `ptbridge mounts progressive path tracing sessions into a frame loop.
It renders built-in scenes headlessly to PNG, or serves an interactive
websocket viewer with live option updates.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	rootCmd.AddCommand(newRenderCmd(flags), newServeCmd(flags))
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// setup loads configuration and installs the global logger
func (f *globalFlags) setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.NewLoader(f.cfgFile).Load()
	if err != nil {
		return nil, nil, err
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	log.Debug().Str("config", f.cfgFile).Msg("Configuration loaded")
	return cfg, lg, nil
}
