package renderer

import (
	"context"
	"image"
	"math"
	"runtime"

	"github.com/gogpu/gpucontext"
	"github.com/rs/zerolog"

	"github.com/df07/go-progressive-bridge/pkg/core"
	"github.com/df07/go-progressive-bridge/pkg/scene"
)

const (
	// DefaultTileSize is the edge length of a render tile in pixels
	DefaultTileSize = 32
	// tileSlices is how many render calls one full sample takes in tile mode
	tileSlices = 4
)

// Renderer is a CPU progressive path tracer. It keeps an accumulation buffer
// that grows by one full-frame sample per render (or per tileSlices renders in
// tile mode) until NeedsUpdate or a resolution or camera change resets it.
//
// Renderer is not safe for concurrent use. All methods must be called from the
// host frame loop; tile workers are internal and only touch the buffer while
// Render blocks.
type Renderer struct {
	canvas Canvas
	logger zerolog.Logger

	settings Settings
	denoise  DenoiseFactors

	surface  Surface
	device   gpucontext.DeviceProvider
	pipeline *pipeline
	released bool

	logicalWidth, logicalHeight int
	pixelRatio                  float64
	cameraMoving                bool
	focused                     bool
	needsUpdate                 bool

	// Accumulation state at the current render resolution
	width, height int
	camera        *scene.Camera // Camera of the latest render or build
	cameraVersion uint64
	accum         [][]PixelStats
	tiles         []*Tile
	tileCursor    int
	samples       int
	history       denoiser
	lastFrame     *image.RGBA
	numWorkers    int
	pool          *WorkerPool
	previewTiles  []*Tile
	previewWidth  int
	previewHeight int
}

// New creates a renderer that will draw through the host resources reachable
// from canvas. logger receives debug output; pass zerolog.Nop() to silence it.
func New(canvas Canvas, logger zerolog.Logger) *Renderer {
	r := &Renderer{
		canvas:     canvas,
		logger:     logger.With().Str("component", "renderer").Logger(),
		settings:   DefaultSettings(),
		denoise:    DefaultDenoiseFactors(),
		pixelRatio: 1,
		focused:    true,
		numWorkers: runtime.NumCPU(),
	}
	if canvas != nil {
		if n, ok := canvas.Extension(ExtensionWorkerCount).(int); ok && n > 0 {
			r.numWorkers = n
		}
	}
	return r
}

// Settings returns the mutable renderer configuration
func (r *Renderer) Settings() *Settings { return &r.settings }

// DenoiseFactors returns the current filter factors
func (r *Renderer) DenoiseFactors() DenoiseFactors { return r.denoise }

// SetDenoiseColorBlendFactor sets the history colour blend weight
func (r *Renderer) SetDenoiseColorBlendFactor(v float64) { r.denoise.ColorBlend = v }

// SetDenoiseMomentBlendFactor sets the history variance blend weight
func (r *Renderer) SetDenoiseMomentBlendFactor(v float64) { r.denoise.MomentBlend = v }

// SetDenoiseColorFactor sets the spatial colour threshold
func (r *Renderer) SetDenoiseColorFactor(v float64) { r.denoise.ColorFactor = v }

// SetDenoisePositionFactor sets the spatial depth threshold
func (r *Renderer) SetDenoisePositionFactor(v float64) { r.denoise.PositionFactor = v }

// SetSize sets the logical drawable size
func (r *Renderer) SetSize(width, height int) {
	r.logicalWidth, r.logicalHeight = max(0, width), max(0, height)
}

// SetPixelRatio sets the device pixel ratio applied to the logical size
func (r *Renderer) SetPixelRatio(ratio float64) {
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		ratio = 1
	}
	r.pixelRatio = ratio
}

// SetCameraMoving reports whether the user is moving the camera
func (r *Renderer) SetCameraMoving(moving bool) { r.cameraMoving = moving }

// SetFocused reports whether the host drawable has focus
func (r *Renderer) SetFocused(focused bool) { r.focused = focused }

// Resolution returns the render resolution in device pixels
func (r *Renderer) Resolution() (int, int) {
	if r.logicalWidth == 0 || r.logicalHeight == 0 {
		return 0, 0
	}
	w := max(1, int(math.Round(float64(r.logicalWidth)*r.pixelRatio)))
	h := max(1, int(math.Round(float64(r.logicalHeight)*r.pixelRatio)))
	return w, h
}

// Bind hands the host surface and device to the renderer. The renderer uses
// them as given and never creates its own.
func (r *Renderer) Bind(surface Surface, device gpucontext.DeviceProvider) {
	r.surface = surface
	r.device = device
	r.released = false
}

// Release drops the surface, device and pipeline and stops the tile workers.
// Render is a no-op afterwards.
func (r *Renderer) Release() {
	r.surface = nil
	r.device = nil
	r.pipeline = nil
	r.released = true
	if r.pool != nil {
		r.pool.Stop()
		r.pool = nil
	}
	r.logger.Debug().Msg("released")
}

// HasPipeline reports whether a compiled scene is installed
func (r *Renderer) HasPipeline() bool { return r.pipeline != nil }

// MarkNeedsUpdate makes the next render discard the accumulation
func (r *Renderer) MarkNeedsUpdate() { r.needsUpdate = true }

// NeedsUpdate reports whether the next render will discard the accumulation
func (r *Renderer) NeedsUpdate() bool { return r.needsUpdate }

// TotalSamples returns the number of complete full-frame samples accumulated
// since the last reset. It is 0 while a reset is due, including a resolution or
// camera change the next render has not picked up yet.
func (r *Renderer) TotalSamples() int {
	if r.accumulationStale() {
		return 0
	}
	return r.samples
}

// accumulationStale reports whether the next render will discard the buffer
func (r *Renderer) accumulationStale() bool {
	if r.needsUpdate || r.accum == nil {
		return true
	}
	if width, height := r.Resolution(); width != r.width || height != r.height {
		return true
	}
	return r.camera != nil && r.camera.Version() != r.cameraVersion
}

// Stats summarises the accumulation buffer
func (r *Renderer) Stats() RenderStats { return collectStats(r.accum, r.TotalSamples()) }

// Frame returns the most recently presented frame, or nil
func (r *Renderer) Frame() *image.RGBA { return r.lastFrame }

// BuildScene starts compiling root in the background. The root's renderable
// nodes are copied before BuildScene returns, so the caller may keep mutating
// the graph. The result is installed only by Adopt.
func (r *Renderer) BuildScene(ctx context.Context, root *scene.Root, camera *scene.Camera) Build {
	b := &sceneBuild{owner: r, done: make(chan struct{})}
	spheres, env := snapshotRoot(root)
	r.camera = camera

	go func() {
		defer close(b.done)
		b.pipeline, b.err = compilePipeline(ctx, spheres, env)
	}()

	r.logger.Debug().Int("spheres", len(spheres)).Msg("scene build started")
	return b
}

// Adopt installs the pipeline of a finished build and marks the accumulation
// for reset
func (r *Renderer) Adopt(b Build) error {
	sb, ok := b.(*sceneBuild)
	if !ok || sb.owner != r {
		return ErrForeignBuild
	}
	select {
	case <-sb.done:
	default:
		return ErrBuildPending
	}
	if sb.err != nil {
		return sb.err
	}
	if r.released || r.surface == nil || r.device == nil {
		return ErrReleased
	}

	r.pipeline = sb.pipeline
	r.needsUpdate = true
	r.logger.Debug().Int("spheres", len(sb.pipeline.spheres)).Msg("pipeline adopted")
	return nil
}

// Render advances the image by one render step and presents it. It does
// nothing without a bound surface, device and pipeline, without a size, or
// while unfocused unless RenderWhenOffFocus is set.
func (r *Renderer) Render(root *scene.Root, camera *scene.Camera) {
	if r.surface == nil || r.device == nil || r.pipeline == nil || camera == nil {
		return
	}
	if !r.focused && !r.settings.RenderWhenOffFocus {
		return
	}
	width, height := r.Resolution()
	if width == 0 || height == 0 {
		return
	}

	r.camera = camera
	if r.accumulationStale() {
		r.resetAccumulation(width, height, camera.Version())
	}
	if r.pool == nil {
		r.pool = NewWorkerPool(r.numWorkers)
		r.pool.Start()
	}

	job := r.newFrameJob(root, camera)

	if r.cameraMoving && r.settings.MovingDownsampling {
		r.present(r.renderPreview(job))
		return
	}

	if !r.settings.UseTileRender {
		r.pool.RenderTiles(job, r.tiles, r.accum)
		r.completeSample()
	} else {
		perCall := (len(r.tiles) + tileSlices - 1) / tileSlices
		end := min(r.tileCursor+perCall, len(r.tiles))
		r.pool.RenderTiles(job, r.tiles[r.tileCursor:end], r.accum)
		r.tileCursor = end
		if r.tileCursor >= len(r.tiles) {
			r.tileCursor = 0
			r.completeSample()
		}
	}

	r.present(r.composeFrame())
}

// resetAccumulation discards every sample and resizes the buffers
func (r *Renderer) resetAccumulation(width, height int, cameraVersion uint64) {
	if width != r.width || height != r.height || r.accum == nil {
		r.tiles = NewTileGrid(width, height, DefaultTileSize)
	}
	r.width, r.height = width, height
	r.cameraVersion = cameraVersion
	r.accum = newPixelBuffer(width, height)
	r.tileCursor = 0
	r.samples = 0
	r.needsUpdate = false
	r.history.reset(width, height)

	r.logger.Debug().Int("width", width).Int("height", height).Msg("accumulation reset")
}

func (r *Renderer) completeSample() {
	r.samples++
	if r.settings.FullSampleCallback != nil {
		r.settings.FullSampleCallback()
	}
}

func (r *Renderer) newFrameJob(root *scene.Root, camera *scene.Camera) *frameJob {
	env := r.pipeline.environment
	if root != nil && root.Environment != nil {
		env = root.Environment
	}
	return &frameJob{
		pipeline:           r.pipeline,
		camera:             *camera,
		environment:        env,
		width:              r.width,
		height:             r.height,
		bounces:            max(MinBounces, min(MaxBounces, r.settings.Bounces)),
		envIntensity:       max(0, r.settings.EnvMapIntensity),
		environmentVisible: r.settings.EnvironmentVisible,
	}
}

// composeFrame resolves the accumulation buffer through the denoise and tone
// mapping stages
func (r *Renderer) composeFrame() *image.RGBA {
	n := r.width * r.height
	colors := make([]core.Vec3, n)
	depth := make([]float64, n)
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			ps := &r.accum[y][x]
			colors[y*r.width+x] = ps.GetColor()
			depth[y*r.width+x] = ps.Depth
		}
	}

	s := r.settings
	if s.EnableDenoise && (s.EnableTemporalDenoise || s.EnableSpatialDenoise) {
		colors = r.history.apply(colors, depth, r.denoise, s.EnableTemporalDenoise, s.EnableSpatialDenoise)
	}

	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			img.SetRGBA(x, y, vec3ToColor(colors[y*r.width+x], s.ToneMapping))
		}
	}
	return img
}

func (r *Renderer) present(frame *image.RGBA) {
	r.lastFrame = frame
	r.surface.Present(frame)
}
