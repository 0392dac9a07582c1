package renderer

import (
	"image"

	"github.com/df07/go-progressive-bridge/pkg/core"
)

// RenderStats contains statistics about the accumulation buffer
type RenderStats struct {
	TotalPixels    int     // Total number of pixels in the buffer
	TotalSamples   int     // Total number of pixel samples taken
	AverageSamples float64 // Average samples per pixel
	MinSamples     int     // Minimum samples taken by any pixel
	MaxSamplesUsed int     // Maximum samples taken by any pixel
	FullSamples    int     // Completed full-frame samples
}

// PixelStats tracks sampling statistics for a single pixel
type PixelStats struct {
	ColorAccum       core.Vec3 // RGB accumulator for final result
	LuminanceAccum   float64   // Luminance accumulator for variance
	LuminanceSqAccum float64   // Luminance squared for variance
	Depth            float64   // Distance to the first hit of the last sample, 0 on a miss
	SampleCount      int       // Number of samples taken
}

// AddSample adds a new color sample to the pixel statistics
func (ps *PixelStats) AddSample(color core.Vec3, depth float64) {
	ps.ColorAccum = ps.ColorAccum.Add(color)
	luminance := color.Luminance()
	ps.LuminanceAccum += luminance
	ps.LuminanceSqAccum += luminance * luminance
	ps.Depth = depth
	ps.SampleCount++
}

// GetColor returns the current average color for this pixel
func (ps *PixelStats) GetColor() core.Vec3 {
	if ps.SampleCount == 0 {
		return core.Vec3{}
	}
	return ps.ColorAccum.Multiply(1.0 / float64(ps.SampleCount))
}

// Variance returns the luminance variance of the samples taken so far
func (ps *PixelStats) Variance() float64 {
	if ps.SampleCount == 0 {
		return 0
	}
	mean := ps.LuminanceAccum / float64(ps.SampleCount)
	meanSq := ps.LuminanceSqAccum / float64(ps.SampleCount)
	return max(0, meanSq-mean*mean)
}

// newPixelBuffer allocates a height x width accumulation buffer
func newPixelBuffer(width, height int) [][]PixelStats {
	buffer := make([][]PixelStats, height)
	for y := range buffer {
		buffer[y] = make([]PixelStats, width)
	}
	return buffer
}

// collectStats summarises an accumulation buffer
func collectStats(buffer [][]PixelStats, fullSamples int) RenderStats {
	stats := RenderStats{FullSamples: fullSamples}
	first := true
	for y := range buffer {
		for x := range buffer[y] {
			count := buffer[y][x].SampleCount
			stats.TotalPixels++
			stats.TotalSamples += count
			if first {
				stats.MinSamples = count
				first = false
			}
			stats.MinSamples = min(stats.MinSamples, count)
			stats.MaxSamplesUsed = max(stats.MaxSamplesUsed, count)
		}
	}
	if stats.TotalPixels > 0 {
		stats.AverageSamples = float64(stats.TotalSamples) / float64(stats.TotalPixels)
	}
	return stats
}

// CalculateAverageLuminance returns the mean luminance of img in [0, 1]
func CalculateAverageLuminance(img image.Image) float64 {
	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return 0
	}

	total := 0.0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			c := core.NewVec3(float64(r)/0xffff, float64(g)/0xffff, float64(b)/0xffff)
			total += c.Luminance()
		}
	}
	return total / float64(pixels)
}
