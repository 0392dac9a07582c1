package session

import (
	"errors"
	"fmt"

	"github.com/df07/go-progressive-bridge/pkg/renderer"
)

// Session-level defaults. Renderer-level defaults live in renderer.DefaultSettings.
const (
	DefaultSamples     = 64
	DefaultRenderIndex = 1
)

// ErrInvalidOptions wraps every validation failure of Options
var ErrInvalidOptions = errors.New("invalid options")

// Options configures a session. Every field is optional: nil means "keep the
// current value", never "reset to default".
type Options struct {
	Samples     *int `json:"samples,omitempty" yaml:"samples,omitempty"`         // Sample budget
	RenderIndex *int `json:"renderIndex,omitempty" yaml:"renderIndex,omitempty"` // Frame loop ordering index, read at mount

	Bounces               *int                  `json:"bounces,omitempty" yaml:"bounces,omitempty"`
	EnvMapIntensity       *float64              `json:"envMapIntensity,omitempty" yaml:"envMapIntensity,omitempty"`
	EnvironmentVisible    *bool                 `json:"environmentVisible,omitempty" yaml:"environmentVisible,omitempty"`
	EnableDenoise         *bool                 `json:"enableDenoise,omitempty" yaml:"enableDenoise,omitempty"`
	EnableTemporalDenoise *bool                 `json:"enableTemporalDenoise,omitempty" yaml:"enableTemporalDenoise,omitempty"`
	EnableSpatialDenoise  *bool                 `json:"enableSpatialDenoise,omitempty" yaml:"enableSpatialDenoise,omitempty"`
	FullSampleCallback    func()                `json:"-" yaml:"-"`
	MovingDownsampling    *bool                 `json:"movingDownsampling,omitempty" yaml:"movingDownsampling,omitempty"`
	RenderWhenOffFocus    *bool                 `json:"renderWhenOffFocus,omitempty" yaml:"renderWhenOffFocus,omitempty"`
	ToneMapping           *renderer.ToneMapping `json:"toneMapping,omitempty" yaml:"toneMapping,omitempty"`
	UseTileRender         *bool                 `json:"useTileRender,omitempty" yaml:"useTileRender,omitempty"`

	DenoiseColorBlendFactor  *float64 `json:"denoiseColorBlendFactor,omitempty" yaml:"denoiseColorBlendFactor,omitempty"`
	DenoiseMomentBlendFactor *float64 `json:"denoiseMomentBlendFactor,omitempty" yaml:"denoiseMomentBlendFactor,omitempty"`
	DenoiseColorFactor       *float64 `json:"denoiseColorFactor,omitempty" yaml:"denoiseColorFactor,omitempty"`
	DenoisePositionFactor    *float64 `json:"denoisePositionFactor,omitempty" yaml:"denoisePositionFactor,omitempty"`
}

// Ptr returns a pointer to v, for building Options literals
func Ptr[T any](v T) *T {
	return &v
}

// Merge returns prev with every field present in next applied over it
func Merge(prev, next Options) Options {
	out := prev
	mergeField(&out.Samples, next.Samples)
	mergeField(&out.RenderIndex, next.RenderIndex)
	mergeField(&out.Bounces, next.Bounces)
	mergeField(&out.EnvMapIntensity, next.EnvMapIntensity)
	mergeField(&out.EnvironmentVisible, next.EnvironmentVisible)
	mergeField(&out.EnableDenoise, next.EnableDenoise)
	mergeField(&out.EnableTemporalDenoise, next.EnableTemporalDenoise)
	mergeField(&out.EnableSpatialDenoise, next.EnableSpatialDenoise)
	if next.FullSampleCallback != nil {
		out.FullSampleCallback = next.FullSampleCallback
	}
	mergeField(&out.MovingDownsampling, next.MovingDownsampling)
	mergeField(&out.RenderWhenOffFocus, next.RenderWhenOffFocus)
	mergeField(&out.ToneMapping, next.ToneMapping)
	mergeField(&out.UseTileRender, next.UseTileRender)
	mergeField(&out.DenoiseColorBlendFactor, next.DenoiseColorBlendFactor)
	mergeField(&out.DenoiseMomentBlendFactor, next.DenoiseMomentBlendFactor)
	mergeField(&out.DenoiseColorFactor, next.DenoiseColorFactor)
	mergeField(&out.DenoisePositionFactor, next.DenoisePositionFactor)
	return out
}

func mergeField[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// Apply copies the present renderer fields onto r. The denoise factors go
// through their setters; Samples and RenderIndex belong to the session and
// are not copied.
func (o Options) Apply(r Renderer) {
	s := r.Settings()
	applyField(&s.Bounces, o.Bounces)
	applyField(&s.EnvMapIntensity, o.EnvMapIntensity)
	applyField(&s.EnvironmentVisible, o.EnvironmentVisible)
	applyField(&s.EnableDenoise, o.EnableDenoise)
	applyField(&s.EnableTemporalDenoise, o.EnableTemporalDenoise)
	applyField(&s.EnableSpatialDenoise, o.EnableSpatialDenoise)
	if o.FullSampleCallback != nil {
		s.FullSampleCallback = o.FullSampleCallback
	}
	applyField(&s.MovingDownsampling, o.MovingDownsampling)
	applyField(&s.RenderWhenOffFocus, o.RenderWhenOffFocus)
	applyField(&s.ToneMapping, o.ToneMapping)
	applyField(&s.UseTileRender, o.UseTileRender)

	if o.DenoiseColorBlendFactor != nil {
		r.SetDenoiseColorBlendFactor(*o.DenoiseColorBlendFactor)
	}
	if o.DenoiseMomentBlendFactor != nil {
		r.SetDenoiseMomentBlendFactor(*o.DenoiseMomentBlendFactor)
	}
	if o.DenoiseColorFactor != nil {
		r.SetDenoiseColorFactor(*o.DenoiseColorFactor)
	}
	if o.DenoisePositionFactor != nil {
		r.SetDenoisePositionFactor(*o.DenoisePositionFactor)
	}
}

func applyField[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Validate reports the first out-of-range field
func (o Options) Validate() error {
	if o.Samples != nil && *o.Samples < 0 {
		return fmt.Errorf("%w: samples must be non-negative, got %d", ErrInvalidOptions, *o.Samples)
	}
	if o.Bounces != nil && (*o.Bounces < renderer.MinBounces || *o.Bounces > renderer.MaxBounces) {
		return fmt.Errorf("%w: bounces must be in [%d, %d], got %d",
			ErrInvalidOptions, renderer.MinBounces, renderer.MaxBounces, *o.Bounces)
	}
	if o.EnvMapIntensity != nil && *o.EnvMapIntensity < 0 {
		return fmt.Errorf("%w: envMapIntensity must be non-negative, got %g", ErrInvalidOptions, *o.EnvMapIntensity)
	}
	if o.ToneMapping != nil && !o.ToneMapping.Valid() {
		return fmt.Errorf("%w: unknown toneMapping %d", ErrInvalidOptions, int(*o.ToneMapping))
	}

	factors := []struct {
		name  string
		value *float64
	}{
		{"denoiseColorBlendFactor", o.DenoiseColorBlendFactor},
		{"denoiseMomentBlendFactor", o.DenoiseMomentBlendFactor},
		{"denoiseColorFactor", o.DenoiseColorFactor},
		{"denoisePositionFactor", o.DenoisePositionFactor},
	}
	for _, f := range factors {
		if f.value != nil && *f.value < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %g", ErrInvalidOptions, f.name, *f.value)
		}
	}
	return nil
}

// SamplesOrDefault returns the sample budget
func (o Options) SamplesOrDefault() int {
	if o.Samples == nil {
		return DefaultSamples
	}
	return *o.Samples
}

// RenderIndexOrDefault returns the frame loop ordering index
func (o Options) RenderIndexOrDefault() int {
	if o.RenderIndex == nil {
		return DefaultRenderIndex
	}
	return *o.RenderIndex
}
