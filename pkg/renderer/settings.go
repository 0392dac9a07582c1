package renderer

import "fmt"

// ToneMapping selects the tone mapping operator. Values match the three.js
// constants so option payloads written for browser viewers carry over.
type ToneMapping int

const (
	NoToneMapping ToneMapping = iota
	LinearToneMapping
	ReinhardToneMapping
	CineonToneMapping
	ACESFilmicToneMapping
)

// String returns the operator name
func (tm ToneMapping) String() string {
	switch tm {
	case NoToneMapping:
		return "none"
	case LinearToneMapping:
		return "linear"
	case ReinhardToneMapping:
		return "reinhard"
	case CineonToneMapping:
		return "cineon"
	case ACESFilmicToneMapping:
		return "aces-filmic"
	default:
		return fmt.Sprintf("ToneMapping(%d)", int(tm))
	}
}

// Valid reports whether tm is a known operator
func (tm ToneMapping) Valid() bool {
	return tm >= NoToneMapping && tm <= ACESFilmicToneMapping
}

// Bounce limits accepted by the renderer
const (
	MinBounces = 2
	MaxBounces = 8
)

// Settings holds the plain renderer configuration fields. Callers assign them
// directly; the denoise factors have dedicated setters on Renderer.
type Settings struct {
	Bounces               int     // Light bounces per path, clamped to [MinBounces, MaxBounces]
	EnvMapIntensity       float64 // Environment lighting multiplier
	EnvironmentVisible    bool    // Show the environment as background
	EnableDenoise         bool    // Master denoise switch
	EnableTemporalDenoise bool    // History blend part of the filter
	EnableSpatialDenoise  bool    // Edge-aware spatial part of the filter
	FullSampleCallback    func()  // Invoked after each complete full-frame sample
	MovingDownsampling    bool    // Render a reduced preview while the camera moves
	RenderWhenOffFocus    bool    // Keep sampling while the host is unfocused
	ToneMapping           ToneMapping
	UseTileRender         bool // Spread each full sample over several render calls
}

// DefaultSettings returns the renderer defaults
func DefaultSettings() Settings {
	return Settings{
		Bounces:               2,
		EnvMapIntensity:       1,
		EnvironmentVisible:    true,
		EnableDenoise:         false,
		EnableTemporalDenoise: true,
		EnableSpatialDenoise:  true,
		MovingDownsampling:    false,
		RenderWhenOffFocus:    true,
		ToneMapping:           LinearToneMapping,
		UseTileRender:         false,
	}
}

// DenoiseFactors are the blend and threshold factors of the denoise filter
type DenoiseFactors struct {
	ColorBlend    float64 // Weight of the current frame against history colour
	MomentBlend   float64 // Weight of the current frame against history variance
	ColorFactor   float64 // Colour threshold of the spatial pass
	PositionFactor float64 // Depth threshold of the spatial pass
}

// DefaultDenoiseFactors returns the filter defaults
func DefaultDenoiseFactors() DenoiseFactors {
	return DenoiseFactors{
		ColorBlend:     0.2,
		MomentBlend:    0.2,
		ColorFactor:    0.5,
		PositionFactor: 0.35,
	}
}
