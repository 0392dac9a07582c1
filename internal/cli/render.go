package cli

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/df07/go-progressive-bridge/internal/config"
	"github.com/df07/go-progressive-bridge/internal/logger"
	"github.com/df07/go-progressive-bridge/pkg/host"
	"github.com/df07/go-progressive-bridge/pkg/renderer"
	"github.com/df07/go-progressive-bridge/pkg/scene"
	"github.com/df07/go-progressive-bridge/pkg/session"
)

type renderFlags struct {
	scene       string
	width       int
	height      int
	samples     int
	outputDir   string
	optionsFile string
	tiles       bool
}

func newRenderCmd(global *globalFlags) *cobra.Command {
	flags := &renderFlags{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a built-in scene headlessly to PNG",
		Long: `Render mounts a session on a headless stage, advances the frame loop
until the sample budget is met and writes the final frame to
<output>/<scene>/render_<timestamp>.png.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := global.setup()
			if err != nil {
				return err
			}
			defer lg.Close()

			flags.applyTo(cmd, cfg)
			path, err := runRender(cmd.Context(), cmd, cfg, flags, lg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Render saved as %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.scene, "scene", "", "scene name (see 'serve' /api/scenes)")
	cmd.Flags().IntVar(&flags.width, "width", 0, "image width")
	cmd.Flags().IntVar(&flags.height, "height", 0, "image height")
	cmd.Flags().IntVar(&flags.samples, "samples", 0, "sample budget (overrides the options file)")
	cmd.Flags().StringVar(&flags.outputDir, "output", "", "output directory")
	cmd.Flags().StringVar(&flags.optionsFile, "options", "", "render options file (JSON or YAML)")
	cmd.Flags().BoolVar(&flags.tiles, "tiles", false, "render a quarter of the tiles per frame")
	return cmd
}

// applyTo copies explicitly set flags over the loaded configuration
func (f *renderFlags) applyTo(cmd *cobra.Command, cfg *config.Config) {
	if f.scene != "" {
		cfg.Render.Scene = f.scene
	}
	if f.width > 0 {
		cfg.Render.Width = f.width
	}
	if f.height > 0 {
		cfg.Render.Height = f.height
	}
	if f.outputDir != "" {
		cfg.Render.OutputDir = f.outputDir
	}
	if f.optionsFile != "" {
		cfg.OptionsFile = f.optionsFile
	}
}

// buildObserver records the outcome of the scene build
type buildObserver struct {
	session.NopObserver
	done bool
	err  error
}

func (o *buildObserver) BuildFinished(_ string, _ time.Duration, err error) {
	o.done = true
	o.err = err
}

func runRender(ctx context.Context, cmd *cobra.Command, cfg *config.Config, flags *renderFlags, lg *logger.Logger) (string, error) {
	root, camera, err := scene.Preset(cfg.Render.Scene)
	if err != nil {
		return "", err
	}

	var opts session.Options
	if cfg.OptionsFile != "" {
		if opts, err = config.LoadOptions(cfg.OptionsFile); err != nil {
			return "", err
		}
	}
	if cmd.Flags().Changed("samples") {
		opts.Samples = session.Ptr(flags.samples)
	}
	if cmd.Flags().Changed("tiles") {
		opts.UseTileRender = session.Ptr(flags.tiles)
	}
	if opts.SamplesOrDefault() < 1 {
		return "", fmt.Errorf("render needs a sample budget of at least 1, got %d", opts.SamplesOrDefault())
	}

	surface := &renderer.FrameSurface{}
	stage := host.NewHeadlessStage(camera, cfg.Render.Width, cfg.Render.Height, surface)
	// A headless render has no camera controls
	stage.Controls = nil

	observer := &buildObserver{}
	sess, err := session.Mount(ctx, stage, root, &opts,
		session.WithLogger(lg.Component("session")),
		session.WithRendererLogger(lg.Component("renderer")),
		session.WithObserver(observer),
	)
	if err != nil {
		return "", err
	}
	defer sess.Unmount()

	start := time.Now()
	frames := 0
	for !sess.Converged() {
		if !sess.Active() {
			return "", errors.New("render session ended before converging")
		}
		if observer.done && observer.err != nil {
			return "", fmt.Errorf("scene build failed: %w", observer.err)
		}
		if frames >= cfg.Render.MaxFrames {
			return "", fmt.Errorf("no convergence after %d frames", frames)
		}
		if !observer.done {
			// Build still running; yield instead of spinning the loop
			time.Sleep(time.Millisecond)
		}
		stage.Loop.Advance(0)
		frames++
	}

	frame := surface.Latest()
	if frame == nil {
		return "", errors.New("no frame was presented")
	}

	outputDir := filepath.Join(cfg.Render.OutputDir, cfg.Render.Scene)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("render_%s.png", time.Now().Format("20060102_150405")))

	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, frame); err != nil {
		return "", fmt.Errorf("failed to save PNG: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Render completed in %v: %d samples over %d frames\n",
		time.Since(start).Round(time.Millisecond), sess.Renderer().TotalSamples(), frames)
	return filename, nil
}
