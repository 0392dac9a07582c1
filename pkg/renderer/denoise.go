package renderer

import (
	"math"

	"github.com/df07/go-progressive-bridge/pkg/core"
)

// denoiser keeps the temporal history of the edge-aware filter. Buffers are
// sized to the render resolution and dropped whenever accumulation resets.
type denoiser struct {
	width, height int
	history       []core.Vec3
	moment1       []float64 // Blended luminance
	moment2       []float64 // Blended luminance squared
	valid         bool
}

// reset discards history and resizes the buffers
func (d *denoiser) reset(width, height int) {
	d.width, d.height = width, height
	n := width * height
	d.history = make([]core.Vec3, n)
	d.moment1 = make([]float64, n)
	d.moment2 = make([]float64, n)
	d.valid = false
}

// apply filters a row-major frame of averaged colours. colors may be
// overwritten.
func (d *denoiser) apply(colors []core.Vec3, depth []float64, factors DenoiseFactors, temporal, spatial bool) []core.Vec3 {
	n := d.width * d.height
	if len(colors) != n || n == 0 {
		return colors
	}

	variance := make([]float64, n)
	if temporal {
		colorBlend := clamp01(factors.ColorBlend)
		momentBlend := clamp01(factors.MomentBlend)
		for i, c := range colors {
			l := c.Luminance()
			if !d.valid {
				d.history[i] = c
				d.moment1[i] = l
				d.moment2[i] = l * l
				continue
			}
			d.history[i] = d.history[i].Lerp(c, colorBlend)
			d.moment1[i] += (l - d.moment1[i]) * momentBlend
			d.moment2[i] += (l*l - d.moment2[i]) * momentBlend
			colors[i] = d.history[i]
			variance[i] = max(0, d.moment2[i]-d.moment1[i]*d.moment1[i])
		}
		d.valid = true
	}

	if spatial {
		colors = d.spatialPass(colors, depth, variance, factors)
	}
	return colors
}

// spatialPass runs one 3x3 edge-aware blur weighted by colour and depth
// similarity
func (d *denoiser) spatialPass(colors []core.Vec3, depth, variance []float64, factors DenoiseFactors) []core.Vec3 {
	const eps = 1e-6
	out := make([]core.Vec3, len(colors))

	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			center := y*d.width + x
			c0 := colors[center]
			d0 := depth[center]

			// Noisier pixels accept larger colour differences
			sigmaC := factors.ColorFactor * (1 + math.Sqrt(variance[center]))
			sigmaC2 := max(eps, sigmaC*sigmaC)
			sigmaP := max(eps, factors.PositionFactor)

			sum := core.Vec3{}
			weights := 0.0
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= d.height {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= d.width {
						continue
					}
					idx := ny*d.width + nx
					diff := colors[idx].Subtract(c0)
					w := math.Exp(-diff.LengthSquared()/sigmaC2) * math.Exp(-math.Abs(depth[idx]-d0)/sigmaP)
					sum = sum.Add(colors[idx].Multiply(w))
					weights += w
				}
			}

			if weights > eps {
				out[center] = sum.Multiply(1 / weights)
			} else {
				out[center] = c0
			}
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
