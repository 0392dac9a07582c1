package renderer

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// previewScale is the resolution divisor used while the camera moves
const previewScale = 2

// renderPreview traces one sample per pixel at reduced resolution into a
// scratch buffer and upscales it to the full frame. The accumulation buffer
// and the sample count are left untouched.
func (r *Renderer) renderPreview(job *frameJob) *image.RGBA {
	pw := max(1, job.width/previewScale)
	ph := max(1, job.height/previewScale)

	preview := *job
	preview.width, preview.height = pw, ph

	if r.previewWidth != pw || r.previewHeight != ph {
		r.previewTiles = NewTileGrid(pw, ph, DefaultTileSize)
		r.previewWidth, r.previewHeight = pw, ph
	}
	scratch := newPixelBuffer(pw, ph)
	r.pool.RenderTiles(&preview, r.previewTiles, scratch)

	small := image.NewRGBA(image.Rect(0, 0, pw, ph))
	for y := 0; y < ph; y++ {
		for x := 0; x < pw; x++ {
			small.SetRGBA(x, y, vec3ToColor(scratch[y][x].GetColor(), r.settings.ToneMapping))
		}
	}

	return upscale(small, job.width, job.height)
}

// upscale resamples src to width x height
func upscale(src *image.RGBA, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
