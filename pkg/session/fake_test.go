package session

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/rs/zerolog"

	"github.com/df07/go-progressive-bridge/pkg/host"
	"github.com/df07/go-progressive-bridge/pkg/renderer"
	"github.com/df07/go-progressive-bridge/pkg/scene"
)

// fakeBuild is a build the test resolves by hand
type fakeBuild struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newFakeBuild() *fakeBuild { return &fakeBuild{done: make(chan struct{})} }

func (b *fakeBuild) Done() <-chan struct{} { return b.done }
func (b *fakeBuild) Err() error            { return b.err }

func (b *fakeBuild) resolve(err error) {
	b.once.Do(func() {
		b.err = err
		close(b.done)
	})
}

// renderCall records the renderer state observed by one Render
type renderCall struct {
	reset   bool // The accumulation was discarded before this sample
	samples int  // Sample count after the render
}

// fakeRenderer counts one sample per Render and records every call
type fakeRenderer struct {
	canvas   renderer.Canvas
	settings renderer.Settings
	factors  renderer.DenoiseFactors

	surface  renderer.Surface
	device   gpucontext.DeviceProvider
	released bool

	width, height int
	pixelRatio    float64
	moving        bool
	focused       bool

	builds      []*fakeBuild
	pipeline    bool
	needsUpdate bool
	samples     int
	calls       []renderCall
	releases    int
	panicOnNext bool
}

func newFakeRenderer(canvas renderer.Canvas) *fakeRenderer {
	return &fakeRenderer{
		canvas:   canvas,
		settings: renderer.DefaultSettings(),
		factors:  renderer.DefaultDenoiseFactors(),
	}
}

func (f *fakeRenderer) Settings() *renderer.Settings          { return &f.settings }
func (f *fakeRenderer) SetDenoiseColorBlendFactor(v float64)  { f.factors.ColorBlend = v }
func (f *fakeRenderer) SetDenoiseMomentBlendFactor(v float64) { f.factors.MomentBlend = v }
func (f *fakeRenderer) SetDenoiseColorFactor(v float64)       { f.factors.ColorFactor = v }
func (f *fakeRenderer) SetDenoisePositionFactor(v float64)    { f.factors.PositionFactor = v }
func (f *fakeRenderer) SetSize(width, height int)             { f.width, f.height = width, height }
func (f *fakeRenderer) SetPixelRatio(ratio float64)           { f.pixelRatio = ratio }
func (f *fakeRenderer) SetCameraMoving(moving bool)           { f.moving = moving }
func (f *fakeRenderer) SetFocused(focused bool)               { f.focused = focused }
func (f *fakeRenderer) HasPipeline() bool                     { return f.pipeline }
func (f *fakeRenderer) MarkNeedsUpdate()                      { f.needsUpdate = true }
func (f *fakeRenderer) NeedsUpdate() bool                     { return f.needsUpdate }
func (f *fakeRenderer) Bind(s renderer.Surface, d gpucontext.DeviceProvider) {
	f.surface, f.device, f.released = s, d, false
}

// TotalSamples reads 0 while a reset is pending, like the real renderer
func (f *fakeRenderer) TotalSamples() int {
	if f.needsUpdate {
		return 0
	}
	return f.samples
}

func (f *fakeRenderer) Release() {
	f.surface, f.device, f.pipeline = nil, nil, false
	f.released = true
	f.releases++
}

func (f *fakeRenderer) BuildScene(context.Context, *scene.Root, *scene.Camera) renderer.Build {
	b := newFakeBuild()
	f.builds = append(f.builds, b)
	return b
}

func (f *fakeRenderer) Adopt(b renderer.Build) error {
	if err := b.Err(); err != nil {
		return err
	}
	if f.released || f.surface == nil {
		return renderer.ErrReleased
	}
	f.pipeline = true
	f.needsUpdate = true
	return nil
}

func (f *fakeRenderer) Render(*scene.Root, *scene.Camera) {
	if f.panicOnNext {
		f.panicOnNext = false
		panic("boom")
	}
	if f.surface == nil || f.device == nil || !f.pipeline {
		return
	}
	if !f.focused && !f.settings.RenderWhenOffFocus {
		return
	}
	call := renderCall{}
	if f.needsUpdate {
		f.samples = 0
		f.needsUpdate = false
		call.reset = true
	}
	f.samples++
	call.samples = f.samples
	f.calls = append(f.calls, call)
}

// build returns the single build started by the session
func (f *fakeRenderer) build() *fakeBuild {
	if len(f.builds) != 1 {
		panic("expected exactly one build")
	}
	return f.builds[0]
}

type nullSurface struct{}

func (nullSurface) Present(*image.RGBA) {}

// recordingObserver keeps every observed event
type recordingObserver struct {
	mounted       []string
	unmounted     []string
	invalidations []Outcome
	builds        []error
	ticks         []TickResult
}

func (o *recordingObserver) Mounted(id string)                { o.mounted = append(o.mounted, id) }
func (o *recordingObserver) Unmounted(_ string, cause string) { o.unmounted = append(o.unmounted, cause) }
func (o *recordingObserver) Invalidated(_ string, _ Reason, outcome Outcome) {
	o.invalidations = append(o.invalidations, outcome)
}
func (o *recordingObserver) BuildFinished(_ string, _ time.Duration, err error) {
	o.builds = append(o.builds, err)
}
func (o *recordingObserver) Ticked(_ string, result TickResult, _ int) {
	o.ticks = append(o.ticks, result)
}

// fixture is a mounted session over a fake renderer
type fixture struct {
	stage    *host.Stage
	root     *scene.Root
	fake     *fakeRenderer
	session  *Session
	observer *recordingObserver
}

func newStage() *host.Stage {
	_, camera := scene.NewDefaultScene()
	return host.NewHeadlessStage(camera, 16, 9, nullSurface{})
}

func mountFixture(ctx context.Context, stage *host.Stage, opts *Options, extra ...MountOption) (*fixture, error) {
	fx := &fixture{stage: stage, observer: &recordingObserver{}}
	fx.root, _ = scene.NewDefaultScene()

	options := []MountOption{
		WithFactory(func(canvas renderer.Canvas, _ zerolog.Logger) Renderer {
			fx.fake = newFakeRenderer(canvas)
			return fx.fake
		}),
		WithObserver(fx.observer),
	}
	options = append(options, extra...)

	s, err := Mount(ctx, stage, fx.root, opts, options...)
	fx.session = s
	return fx, err
}

// tick advances the stage loop n frames
func (fx *fixture) tick(n int) {
	for i := 0; i < n; i++ {
		fx.stage.Loop.Advance(1.0 / 60)
	}
}

// ready resolves the build and advances one frame so the session adopts it
func (fx *fixture) ready() {
	fx.fake.build().resolve(nil)
	fx.tick(1)
}
