package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-progressive-bridge/pkg/renderer"
	"github.com/df07/go-progressive-bridge/pkg/session"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoader(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent.json")).Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("json file overrides defaults", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "bridge.json", `{
			"server": {"addr": ":9000", "fps": 24},
			"logging": {"level": "debug"},
			"options_file": "opts.yaml"
		}`)

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Addr)
		assert.Equal(t, 24, cfg.Server.FPS)
		assert.Equal(t, 640, cfg.Server.Width)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "opts.yaml", cfg.OptionsFile)
	})

	t.Run("yaml file", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "bridge.yaml", "render:\n  scene: spheregrid\n  width: 200\n")

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, "spheregrid", cfg.Render.Scene)
		assert.Equal(t, 200, cfg.Render.Width)
		assert.Equal(t, 225, cfg.Render.Height)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PTBRIDGE_SERVER_ADDR", ":7070")
		t.Setenv("PTBRIDGE_RENDER_SCENE", "spheregrid")

		cfg, err := NewLoader("").Load()
		require.NoError(t, err)
		assert.Equal(t, ":7070", cfg.Server.Addr)
		assert.Equal(t, "spheregrid", cfg.Render.Scene)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "bridge.json", `{"server": {"fps": 0}}`)
		_, err := NewLoader(path).Load()
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "bridge.json", `{"server":`)
		_, err := NewLoader(path).Load()
		assert.Error(t, err)
	})
}

func TestDecodeOptions(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		ext     string
		wantErr bool
		check   func(t *testing.T, opts session.Options)
	}{
		{
			name: "json",
			data: `{"samples": 16, "toneMapping": 4}`,
			ext:  ".json",
			check: func(t *testing.T, opts session.Options) {
				assert.Equal(t, 16, *opts.Samples)
				assert.Equal(t, renderer.ACESFilmicToneMapping, *opts.ToneMapping)
				assert.Nil(t, opts.Bounces)
			},
		},
		{
			name: "yaml",
			data: "bounces: 4\nenableDenoise: true\n",
			ext:  ".YML",
			check: func(t *testing.T, opts session.Options) {
				assert.Equal(t, 4, *opts.Bounces)
				assert.True(t, *opts.EnableDenoise)
			},
		},
		{name: "unknown json key", data: `{"sample": 16}`, ext: ".json", wantErr: true},
		{name: "unknown yaml key", data: "bounce: 4\n", ext: ".yaml", wantErr: true},
		{name: "out of range", data: `{"bounces": 50}`, ext: ".json", wantErr: true},
		{name: "unsupported format", data: "samples = 1", ext: ".toml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := DecodeOptions([]byte(tt.data), tt.ext)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, opts)
		})
	}
}

func TestLoadOptionsInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "opts.json", `{"bounces": 1}`)
	_, err := LoadOptions(path)
	assert.ErrorIs(t, err, session.ErrInvalidOptions)

	_, err = LoadOptions(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
