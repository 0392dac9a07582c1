// Package session drives a progressive renderer from a host frame loop. It
// keeps the renderer's options in sync, discards stale accumulation when the
// scene, camera or viewport change, and submits samples until a budget is met.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/df07/go-progressive-bridge/pkg/host"
	"github.com/df07/go-progressive-bridge/pkg/renderer"
	"github.com/df07/go-progressive-bridge/pkg/scene"
)

var (
	// ErrUnmounted is returned by operations on an unmounted session
	ErrUnmounted = errors.New("session is unmounted")
	// ErrInvalidStage is returned by Mount when the stage lacks a loop or camera
	ErrInvalidStage = errors.New("stage needs a loop, a viewport and a camera")
)

// Renderer is the progressive renderer a session drives. *renderer.Renderer
// implements it.
type Renderer interface {
	Settings() *renderer.Settings
	SetDenoiseColorBlendFactor(v float64)
	SetDenoiseMomentBlendFactor(v float64)
	SetDenoiseColorFactor(v float64)
	SetDenoisePositionFactor(v float64)

	SetSize(width, height int)
	SetPixelRatio(ratio float64)
	SetCameraMoving(moving bool)
	SetFocused(focused bool)

	Bind(surface renderer.Surface, device gpucontext.DeviceProvider)
	Release()

	BuildScene(ctx context.Context, root *scene.Root, camera *scene.Camera) renderer.Build
	Adopt(b renderer.Build) error
	HasPipeline() bool

	MarkNeedsUpdate()
	NeedsUpdate() bool
	Render(root *scene.Root, camera *scene.Camera)
	TotalSamples() int
}

var _ Renderer = (*renderer.Renderer)(nil)

// Factory constructs the session's renderer
type Factory func(canvas renderer.Canvas, logger zerolog.Logger) Renderer

// DefaultFactory builds a *renderer.Renderer
func DefaultFactory(canvas renderer.Canvas, logger zerolog.Logger) Renderer {
	return renderer.New(canvas, logger)
}

// Observer receives session activity. Calls happen on the loop goroutine.
type Observer interface {
	Mounted(id string)
	Unmounted(id string, cause string)
	Invalidated(id string, reason Reason, outcome Outcome)
	BuildFinished(id string, elapsed time.Duration, err error)
	Ticked(id string, result TickResult, samples int)
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) Mounted(string)                             {}
func (NopObserver) Unmounted(string, string)                   {}
func (NopObserver) Invalidated(string, Reason, Outcome)        {}
func (NopObserver) BuildFinished(string, time.Duration, error) {}
func (NopObserver) Ticked(string, TickResult, int)             {}

type mountConfig struct {
	id             string
	factory        Factory
	logger         zerolog.Logger
	rendererLogger zerolog.Logger
	policy         Policy
	observer       Observer
	extensions     map[string]any
}

// MountOption customises Mount
type MountOption func(*mountConfig)

// WithID sets the session id instead of a random UUID
func WithID(id string) MountOption {
	return func(c *mountConfig) { c.id = id }
}

// WithFactory sets the renderer constructor
func WithFactory(f Factory) MountOption {
	return func(c *mountConfig) { c.factory = f }
}

// WithLogger sets the session logger
func WithLogger(logger zerolog.Logger) MountOption {
	return func(c *mountConfig) { c.logger = logger }
}

// WithRendererLogger sets the sink handed to the renderer. It defaults to a
// no-op logger.
func WithRendererLogger(logger zerolog.Logger) MountOption {
	return func(c *mountConfig) { c.rendererLogger = logger }
}

// WithPolicy sets the invalidation refresh policy
func WithPolicy(p Policy) MountOption {
	return func(c *mountConfig) { c.policy = p }
}

// WithObserver sets the activity observer
func WithObserver(o Observer) MountOption {
	return func(c *mountConfig) { c.observer = o }
}

// WithExtension exposes value to the renderer under name
func WithExtension(name string, value any) MountOption {
	return func(c *mountConfig) { c.extensions[name] = value }
}

// stageCanvas is the substitute canvas handed to the renderer. It exposes the
// host's existing context and mount-time extensions and nothing else.
type stageCanvas struct {
	device     gpucontext.DeviceProvider
	extensions map[string]any
}

func (c stageCanvas) Context() gpucontext.DeviceProvider { return c.device }
func (c stageCanvas) Extension(name string) any          { return c.extensions[name] }

// Session binds one renderer to one stage for the lifetime of a mount.
// Every method must be called on the stage loop goroutine; other goroutines
// go through Stage.Loop.Post.
type Session struct {
	id       string
	ctx      context.Context
	stage    *host.Stage
	root     *scene.Root
	renderer Renderer
	logger   zerolog.Logger
	observer Observer

	controller *Controller
	scheduler  *Scheduler

	options     *Options
	synced      bool
	merged      Options
	renderIndex int

	build         renderer.Build
	buildStarted  time.Time
	buildResolved bool

	active   bool
	done     chan struct{}
	unsubs   []func()
	untick   func()
	renders  int
	lastTick TickResult
}

// Mount binds a new renderer to stage and starts building root.
//
// Mount returns an error only for a stage without a loop, viewport or camera,
// or a nil root. A stage without a device or surface still mounts; the
// session then idles without a pipeline.
func Mount(ctx context.Context, stage *host.Stage, root *scene.Root, opts *Options, options ...MountOption) (*Session, error) {
	if stage == nil || stage.Loop == nil || stage.Viewport == nil || stage.Camera == nil {
		return nil, ErrInvalidStage
	}
	if root == nil {
		return nil, fmt.Errorf("mount: %w", renderer.ErrEmptyScene)
	}

	cfg := mountConfig{
		factory:        DefaultFactory,
		logger:         zerolog.Nop(),
		rendererLogger: zerolog.Nop(),
		policy:         PolicyEager,
		observer:       NopObserver{},
		extensions:     make(map[string]any),
	}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}

	s := &Session{
		id:       cfg.id,
		ctx:      ctx,
		stage:    stage,
		root:     root,
		logger:   cfg.logger.With().Str("session", cfg.id).Logger(),
		observer: cfg.observer,
		active:   true,
		done:     make(chan struct{}),
		lastTick: TickIdleNoPipeline,
	}

	// One renderer per mount, reusing the host context
	s.renderer = cfg.factory(stageCanvas{device: stage.Device, extensions: cfg.extensions}, cfg.rendererLogger)
	s.renderer.Bind(stage.Surface, stage.Device)
	s.controller = NewController(s.renderer, cfg.policy, s.render)
	s.scheduler = NewScheduler(s.renderer, DefaultSamples, s.render)

	// Inherit the ambient background and environment once
	s.renderer.Settings().EnvironmentVisible = stage.Background
	root.Environment = stage.Environment

	if err := s.SetOptions(opts); err != nil {
		s.logger.Warn().Err(err).Msg("initial options rejected")
	}
	s.renderIndex = s.merged.RenderIndexOrDefault()

	s.subscribeHost()

	if stage.Device == nil || stage.Surface == nil {
		s.logger.Warn().Msg("no device or surface; session stays idle")
	} else {
		s.buildStarted = time.Now()
		s.build = s.renderer.BuildScene(ctx, root, stage.Camera)
	}

	s.untick = stage.Loop.Subscribe(s.tick, s.renderIndex)
	s.observer.Mounted(s.id)
	s.logger.Info().Int("renderIndex", s.renderIndex).Int("samples", s.scheduler.Budget()).Msg("session mounted")
	return s, nil
}

func (s *Session) subscribeHost() {
	stage := s.stage

	if stage.Controls != nil {
		removeStart, err := stage.Controls.AddListener(host.EventStart, s.onDragStart)
		if err == nil {
			s.unsubs = append(s.unsubs, removeStart)
		}
		removeEnd, err := stage.Controls.AddListener(host.EventEnd, s.onDragEnd)
		if err == nil {
			s.unsubs = append(s.unsubs, removeEnd)
		}
	}
	s.unsubs = append(s.unsubs,
		stage.Viewport.OnResize(s.onResize),
		stage.Viewport.OnFocus(s.renderer.SetFocused),
	)

	width, height, ratio := stage.Viewport.Size()
	s.renderer.SetFocused(stage.Viewport.Focused())
	s.onResize(width, height, ratio)
}

func (s *Session) onDragStart() {
	if !s.active {
		return
	}
	s.renderer.SetCameraMoving(true)
	s.invalidate(ReasonCameraDragStarted)
}

func (s *Session) onDragEnd() {
	if !s.active {
		return
	}
	s.renderer.SetCameraMoving(false)
}

func (s *Session) onResize(width, height int, ratio float64) {
	if !s.active {
		return
	}
	s.renderer.SetSize(width, height)
	s.renderer.SetPixelRatio(ratio)
	s.invalidate(ReasonViewportResized)
}

func (s *Session) invalidate(reason Reason) {
	outcome := s.controller.Invalidate(reason)
	s.observer.Invalidated(s.id, reason, outcome)
	s.logger.Debug().Stringer("reason", reason).Stringer("outcome", outcome).Msg("invalidated")
}

// SetOptions applies opts when its identity differs from the last call. Present
// fields replace the current values; nil fields keep them.
func (s *Session) SetOptions(opts *Options) error {
	if !s.active {
		return ErrUnmounted
	}
	if s.synced && opts == s.options {
		return nil
	}

	var next Options
	if opts != nil {
		next = *opts
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.options = opts
	s.synced = true

	s.merged = Merge(s.merged, next)
	next.Apply(s.renderer)
	s.scheduler.SetBudget(s.merged.SamplesOrDefault())

	if next.RenderIndex != nil && s.untick != nil && *next.RenderIndex != s.renderIndex {
		s.untick()
		s.renderIndex = *next.RenderIndex
		s.untick = s.stage.Loop.Subscribe(s.tick, s.renderIndex)
	}

	s.invalidate(ReasonConfigChanged)
	return nil
}

// Update applies patch as a new options value
func (s *Session) Update(patch Options) error {
	return s.SetOptions(&patch)
}

func (s *Session) tick(float64) {
	if !s.active {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Msg("tick panicked; unmounting")
			s.lastTick = TickInactive
			s.unmount("panic")
		}
	}()

	if err := s.ctx.Err(); err != nil {
		s.lastTick = TickInactive
		s.unmount("context")
		return
	}

	s.pollBuild()

	result := s.scheduler.Tick()
	s.lastTick = result
	s.observer.Ticked(s.id, result, s.renderer.TotalSamples())
}

// pollBuild adopts the scene build once it is done. It only runs on an active
// session, so a build finishing after Unmount never reaches the renderer.
func (s *Session) pollBuild() {
	if s.build == nil || s.buildResolved {
		return
	}
	select {
	case <-s.build.Done():
	default:
		return
	}
	s.buildResolved = true
	if !s.active {
		return
	}

	err := s.renderer.Adopt(s.build)
	s.observer.BuildFinished(s.id, time.Since(s.buildStarted), err)
	if err != nil {
		s.logger.Error().Err(err).Msg("scene build failed; session stays idle")
		return
	}
	s.logger.Info().Dur("elapsed", time.Since(s.buildStarted)).Msg("scene built")
	s.invalidate(ReasonSceneBuilt)
}

// render issues one render step against the live session
func (s *Session) render() {
	if !s.active || !s.renderer.HasPipeline() {
		return
	}
	s.renderer.Render(s.root, s.stage.Camera)
	s.renders++
	s.controller.NoteRendered()
}

// Unmount releases the renderer and every host subscription. Safe to call
// more than once.
func (s *Session) Unmount() {
	s.unmount("unmount")
}

func (s *Session) unmount(cause string) {
	if !s.active {
		return
	}
	s.active = false

	if s.untick != nil {
		s.untick()
		s.untick = nil
	}
	for i := len(s.unsubs) - 1; i >= 0; i-- {
		s.unsubs[i]()
	}
	s.unsubs = nil

	s.renderer.Release()
	close(s.done)
	s.observer.Unmounted(s.id, cause)
	s.logger.Info().Str("cause", cause).Int("renders", s.renders).Msg("session unmounted")
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Active reports whether the session is still mounted
func (s *Session) Active() bool { return s.active }

// Done is closed when the session unmounts
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the accumulation state
func (s *Session) State() State { return s.controller.State() }

// Controller returns the invalidation controller
func (s *Session) Controller() *Controller { return s.controller }

// Renderer returns the session's renderer
func (s *Session) Renderer() Renderer { return s.renderer }

// Root returns the mounted scene root
func (s *Session) Root() *scene.Root { return s.root }

// Options returns the merged options applied so far
func (s *Session) Options() Options { return s.merged }

// Budget returns the sample budget
func (s *Session) Budget() int { return s.scheduler.Budget() }

// Renders returns the number of render calls the session issued
func (s *Session) Renders() int { return s.renders }

// LastTick returns the result of the most recent tick
func (s *Session) LastTick() TickResult { return s.lastTick }

// Converged reports whether the sample budget is met
func (s *Session) Converged() bool {
	return s.active && s.renderer.HasPipeline() && s.renderer.TotalSamples() >= s.scheduler.Budget()
}
