package renderer

import (
	"image/color"

	"github.com/df07/go-progressive-bridge/pkg/core"
)

// displayGamma is applied after tone mapping for every operator except Cineon,
// whose curve already includes it
const displayGamma = 2.0

// toneMap maps a linear HDR colour into display range
func toneMap(c core.Vec3, mode ToneMapping) core.Vec3 {
	switch mode {
	case ReinhardToneMapping:
		return core.NewVec3(c.X/(1+c.X), c.Y/(1+c.Y), c.Z/(1+c.Z))
	case CineonToneMapping:
		return core.NewVec3(cineon(c.X), cineon(c.Y), cineon(c.Z))
	case ACESFilmicToneMapping:
		return core.NewVec3(acesFilmic(c.X), acesFilmic(c.Y), acesFilmic(c.Z))
	default:
		// None and Linear at unit exposure leave the colour as is
		return c
	}
}

// cineon is the Hejl-Burgess-Dawson filmic curve
func cineon(v float64) float64 {
	x := max(0, v-0.004)
	return (x * (6.2*x + 0.5)) / (x*(6.2*x+1.7) + 0.06)
}

// acesFilmic is Narkowicz's fit of the ACES reference curve, saturated to
// [0, 1]. Unclamped, the fit levels off at 2.51/2.43.
func acesFilmic(x float64) float64 {
	x = max(0, x)
	return min(1, (x*(2.51*x+0.03))/(x*(2.43*x+0.59)+0.14))
}

// vec3ToColor converts a linear colour to RGBA with tone mapping, gamma
// correction and clamping
func vec3ToColor(colorVec core.Vec3, mode ToneMapping) color.RGBA {
	colorVec = toneMap(colorVec, mode)
	if mode != CineonToneMapping {
		colorVec = colorVec.GammaCorrect(displayGamma)
	}
	colorVec = colorVec.Clamp(0.0, 1.0)

	return color.RGBA{
		R: uint8(255 * colorVec.X),
		G: uint8(255 * colorVec.Y),
		B: uint8(255 * colorVec.Z),
		A: 255,
	}
}
