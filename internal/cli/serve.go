package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/df07/go-progressive-bridge/internal/config"
	"github.com/df07/go-progressive-bridge/internal/logger"
	"github.com/df07/go-progressive-bridge/internal/metrics"
	"github.com/df07/go-progressive-bridge/pkg/session"
	"github.com/df07/go-progressive-bridge/web/server"
)

type serveFlags struct {
	addr        string
	optionsFile string
}

func newServeCmd(global *globalFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the interactive websocket viewer",
		Long: `Serve mounts one session per websocket connection on /api/session.
When an options file is configured it is watched and every change is
applied to all live sessions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := global.setup()
			if err != nil {
				return err
			}
			defer lg.Close()

			if flags.addr != "" {
				cfg.Server.Addr = flags.addr
			}
			if flags.optionsFile != "" {
				cfg.OptionsFile = flags.optionsFile
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, lg)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&flags.optionsFile, "options", "", "render options file to watch (JSON or YAML)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	var base session.Options
	if cfg.OptionsFile != "" {
		opts, err := config.LoadOptions(cfg.OptionsFile)
		if err != nil {
			return err
		}
		base = opts
	}

	var m *metrics.Metrics
	if cfg.Server.Metrics {
		m = metrics.NewMetrics()
	}

	srv, err := server.NewServer(server.Config{
		Addr:        cfg.Server.Addr,
		FPS:         cfg.Server.FPS,
		Width:       cfg.Server.Width,
		Height:      cfg.Server.Height,
		MaxSessions: cfg.Server.MaxSessions,
		Metrics:     m,
		Options:     base,
		Logger:      lg.GetZerolog(),
		LogOutput:   lg.Writer(),
	})
	if err != nil {
		return err
	}

	if cfg.OptionsFile != "" {
		watcher, err := config.NewOptionsWatcher(config.OptionsWatcherConfig{
			Path:     cfg.OptionsFile,
			OnChange: srv.SetBaseOptions,
			Logger:   lg.Component("options-watcher"),
		})
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	return srv.ListenAndServe(ctx)
}
