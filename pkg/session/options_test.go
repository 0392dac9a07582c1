package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/df07/go-progressive-bridge/pkg/renderer"
)

func TestMergeKeepsAbsentFields(t *testing.T) {
	prev := Options{Samples: Ptr(10), Bounces: Ptr(4), EnableDenoise: Ptr(true)}
	next := Options{Bounces: Ptr(6), EnableDenoise: Ptr(false)}

	merged := Merge(prev, next)
	assert.Equal(t, 10, *merged.Samples)
	assert.Equal(t, 6, *merged.Bounces)
	assert.False(t, *merged.EnableDenoise)
	assert.Nil(t, merged.ToneMapping)

	// Merge copies values, so later edits to next do not leak in
	*next.Bounces = 8
	assert.Equal(t, 6, *merged.Bounces)
	assert.Equal(t, 4, *prev.Bounces)
}

func TestApplyUsesSettersOnlyWhenPresent(t *testing.T) {
	f := newFakeRenderer(nil)
	f.factors = renderer.DenoiseFactors{ColorBlend: 9, MomentBlend: 9, ColorFactor: 9, PositionFactor: 9}

	Options{DenoiseColorFactor: Ptr(0.7)}.Apply(f)
	assert.Equal(t, renderer.DenoiseFactors{ColorBlend: 9, MomentBlend: 9, ColorFactor: 0.7, PositionFactor: 9}, f.factors)

	Options{Samples: Ptr(3), RenderIndex: Ptr(2), EnvMapIntensity: Ptr(2.5)}.Apply(f)
	assert.Equal(t, 2.5, f.settings.EnvMapIntensity)
	assert.Equal(t, renderer.DefaultSettings().Bounces, f.settings.Bounces)
}

func TestOptionsDecodeFromJSONAndYAML(t *testing.T) {
	var fromJSON Options
	require.NoError(t, json.Unmarshal([]byte(`{"samples":32,"toneMapping":4,"useTileRender":true}`), &fromJSON))
	assert.Equal(t, 32, fromJSON.SamplesOrDefault())
	assert.Equal(t, renderer.ACESFilmicToneMapping, *fromJSON.ToneMapping)
	assert.True(t, *fromJSON.UseTileRender)
	assert.Nil(t, fromJSON.Bounces)

	var fromYAML Options
	require.NoError(t, yaml.Unmarshal([]byte("bounces: 5\ndenoiseColorBlendFactor: 0.1\n"), &fromYAML))
	assert.Equal(t, 5, *fromYAML.Bounces)
	assert.Equal(t, 0.1, *fromYAML.DenoiseColorBlendFactor)
	assert.Equal(t, DefaultRenderIndex, fromYAML.RenderIndexOrDefault())
}
