package session

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-progressive-bridge/pkg/host"
	"github.com/df07/go-progressive-bridge/pkg/renderer"
	"github.com/df07/go-progressive-bridge/pkg/scene"
)

func mustMount(t *testing.T, opts *Options, extra ...MountOption) *fixture {
	t.Helper()
	fx, err := mountFixture(context.Background(), newStage(), opts, extra...)
	require.NoError(t, err)
	t.Cleanup(fx.session.Unmount)
	return fx
}

func TestMountSetsUpRenderer(t *testing.T) {
	stage := newStage()
	stage.Background = false
	stage.Viewport.Resize(32, 18, 2)

	fx, err := mountFixture(context.Background(), stage, nil, WithExtension(renderer.ExtensionWorkerCount, 3))
	require.NoError(t, err)
	defer fx.session.Unmount()

	f := fx.fake
	assert.Equal(t, stage.Device, f.canvas.Context(), "renderer must reuse the host context")
	assert.Equal(t, 3, f.canvas.Extension(renderer.ExtensionWorkerCount))
	assert.Nil(t, f.canvas.Extension("missing"))
	assert.Equal(t, stage.Surface, f.surface)
	assert.Equal(t, stage.Device, f.device)

	assert.False(t, f.settings.EnvironmentVisible, "background flag is inherited")
	assert.Same(t, stage.Environment, fx.root.Environment, "environment is inherited")

	assert.Equal(t, 32, f.width)
	assert.Equal(t, 18, f.height)
	assert.Equal(t, 2.0, f.pixelRatio)
	assert.True(t, f.focused)

	assert.Len(t, f.builds, 1, "exactly one build per mount")
	assert.Equal(t, DefaultSamples, fx.session.Budget())
	assert.Equal(t, Stale, fx.session.State())
	assert.True(t, fx.session.Controller().PendingReset())
	assert.NotEmpty(t, fx.session.ID())
	assert.Equal(t, []string{fx.session.ID()}, fx.observer.mounted)
}

func TestMountRejectsIncompleteStage(t *testing.T) {
	root, camera := scene.NewDefaultScene()

	_, err := Mount(context.Background(), nil, root, nil)
	assert.ErrorIs(t, err, ErrInvalidStage)

	stage := host.NewHeadlessStage(camera, 8, 8, nullSurface{})
	stage.Loop = nil
	_, err = Mount(context.Background(), stage, root, nil)
	assert.ErrorIs(t, err, ErrInvalidStage)

	_, err = Mount(context.Background(), host.NewHeadlessStage(camera, 8, 8, nullSurface{}), nil, nil)
	assert.ErrorIs(t, err, renderer.ErrEmptyScene)
}

func TestMountWithoutDeviceIdles(t *testing.T) {
	stage := newStage()
	stage.Device = nil

	fx, err := mountFixture(context.Background(), stage, nil)
	require.NoError(t, err)
	defer fx.session.Unmount()

	assert.Empty(t, fx.fake.builds, "no build without a context")
	fx.tick(10)
	assert.Empty(t, fx.fake.calls)
	assert.Equal(t, TickIdleNoPipeline, fx.session.LastTick())
}

// Scenario: budget 64, pipeline present, count 0. Ticks 1..64 each render
// once; tick 65 renders nothing.
func TestBudgetScenario(t *testing.T) {
	fx := mustMount(t, &Options{Samples: Ptr(64)})
	fx.fake.build().resolve(nil)

	for i := 1; i <= 64; i++ {
		fx.tick(1)
		require.Len(t, fx.fake.calls, i, "tick %d", i)
		assert.Equal(t, TickRendered, fx.session.LastTick())
	}
	assert.Equal(t, 64, fx.fake.samples)

	fx.tick(1)
	assert.Len(t, fx.fake.calls, 64, "tick 65 must not render")
	assert.Equal(t, TickIdleBudgetReached, fx.session.LastTick())
	assert.True(t, fx.session.Converged())
}

func TestBudgetReachedIsIdempotent(t *testing.T) {
	fx := mustMount(t, &Options{Samples: Ptr(5)})
	fx.ready()
	fx.tick(4)
	require.Equal(t, 5, fx.fake.samples)

	fx.tick(100)
	assert.Len(t, fx.fake.calls, 5)

	// An invalidation drops the count, and the scheduler resumes on its own
	fx.session.Controller().Invalidate(ReasonCameraDragStarted)
	calls := len(fx.fake.calls)
	fx.tick(10)
	assert.Equal(t, 5, fx.fake.samples)
	assert.Len(t, fx.fake.calls, calls+4)
}

func TestIdleWithoutPipeline(t *testing.T) {
	fx := mustMount(t, &Options{Samples: Ptr(1000)})

	for i := 0; i < 50; i++ {
		fx.tick(1)
		if i%10 == 0 {
			fx.stage.Viewport.Resize(16+i, 9, 1)
			fx.stage.Controls.Start()
			require.NoError(t, fx.session.Update(Options{Bounces: Ptr(3)}))
		}
	}

	assert.Empty(t, fx.fake.calls, "no render may run without a pipeline")
	assert.Equal(t, TickIdleNoPipeline, fx.session.LastTick())
	assert.True(t, fx.session.Controller().PendingReset())
}

// Scenario: the build resolves between tick 3 and tick 4
func TestBuildResolvesLate(t *testing.T) {
	fx := mustMount(t, nil)

	fx.tick(3)
	assert.Empty(t, fx.fake.calls)

	fx.fake.build().resolve(nil)
	fx.tick(1)
	require.Len(t, fx.fake.calls, 1, "tick 4 renders")
	assert.True(t, fx.fake.calls[0].reset, "the pending reset is applied before the first sample")
	assert.False(t, fx.session.Controller().PendingReset())
	assert.Equal(t, Clean, fx.session.State())

	fx.tick(5)
	assert.Len(t, fx.fake.calls, 6)
	assert.Equal(t, []error{nil}, fx.observer.builds)
}

func TestSceneBuiltRefreshIsNotForcing(t *testing.T) {
	fx := mustMount(t, nil, WithPolicy(PolicyEager))
	fx.fake.build().resolve(nil)
	fx.tick(1)

	// The adoption refresh only marks; the scheduler issues the single render
	assert.Len(t, fx.fake.calls, 1)
	assert.Contains(t, fx.observer.invalidations, OutcomeMarked)
}

// Scenario: teardown while the build is in flight; the build resolves later
func TestUnmountDuringBuild(t *testing.T) {
	fx := mustMount(t, nil)
	fx.tick(2)

	fx.session.Unmount()
	fx.fake.build().resolve(nil)
	fx.tick(10)

	assert.Empty(t, fx.fake.calls)
	assert.False(t, fx.fake.pipeline, "a late build must not revive the session")
	assert.Nil(t, fx.fake.surface)
	assert.Nil(t, fx.fake.device)
	assert.Empty(t, fx.observer.builds)
	assert.Equal(t, 0, fx.stage.Loop.Subscribers())
}

func TestBuildFailureIdlesWithoutRetry(t *testing.T) {
	fx := mustMount(t, nil)
	fx.fake.build().resolve(renderer.ErrEmptyScene)

	fx.tick(20)
	assert.Empty(t, fx.fake.calls)
	assert.Len(t, fx.fake.builds, 1, "no retries")
	assert.Equal(t, TickIdleNoPipeline, fx.session.LastTick())
	require.Len(t, fx.observer.builds, 1)
	assert.ErrorIs(t, fx.observer.builds[0], renderer.ErrEmptyScene)
	assert.True(t, fx.session.Active(), "a failed build is not fatal")
}

// Scenario: a resize after 40 of 64 samples resets before the next sample
func TestResizeResetsBeforeNextRender(t *testing.T) {
	tests := []struct {
		name           string
		policy         Policy
		rendersOnEvent int
	}{
		{"eager", PolicyEager, 1},
		{"lazy", PolicyLazy, 0},
		{"eager with lazy resize", PolicyEager.With(ReasonViewportResized, RefreshLazy), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := mustMount(t, &Options{Samples: Ptr(64)}, WithPolicy(tt.policy))
			fx.ready()
			fx.tick(39)
			require.Equal(t, 40, fx.fake.samples)
			require.Equal(t, Clean, fx.session.State())

			before := len(fx.fake.calls)
			fx.stage.Viewport.Resize(32, 18, 1)
			assert.Len(t, fx.fake.calls, before+tt.rendersOnEvent)
			if tt.rendersOnEvent == 0 {
				assert.Equal(t, Stale, fx.session.State())
				assert.True(t, fx.fake.needsUpdate)
			}

			fx.tick(1)
			first := fx.fake.calls[before]
			assert.True(t, first.reset, "first render after resize observes the reset")
			assert.Equal(t, 1, first.samples)
			assert.Equal(t, Clean, fx.session.State())
			assert.Equal(t, 32, fx.fake.width)
		})
	}
}

// An invalidation after convergence resumes the scheduler for every refresh
// mode, including an eager refresh whose render is skipped off focus
func TestInvalidateAtBudgetResumes(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		opts    Options
		unfocus bool
	}{
		{"lazy", PolicyLazy, Options{}, false},
		{"eager with lazy resize", PolicyEager.With(ReasonViewportResized, RefreshLazy), Options{}, false},
		{"eager while unfocused", PolicyEager, Options{RenderWhenOffFocus: Ptr(false)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.Samples = Ptr(8)
			fx := mustMount(t, &opts, WithPolicy(tt.policy))
			fx.ready()
			fx.tick(20)
			require.Equal(t, 8, fx.fake.samples)
			require.Equal(t, TickIdleBudgetReached, fx.session.LastTick())
			require.True(t, fx.session.Converged())

			if tt.unfocus {
				fx.stage.Viewport.SetFocus(false)
			}
			before := len(fx.fake.calls)
			fx.stage.Viewport.Resize(32, 18, 1)
			assert.Len(t, fx.fake.calls, before, "no sample is taken on the event")
			assert.Equal(t, Stale, fx.session.State())
			assert.False(t, fx.session.Converged(), "a pending reset is not convergence")

			fx.tick(3)
			if tt.unfocus {
				assert.Len(t, fx.fake.calls, before, "nothing renders off focus")
				assert.Equal(t, Stale, fx.session.State())
				fx.stage.Viewport.SetFocus(true)
			}

			fx.tick(1)
			require.Greater(t, len(fx.fake.calls), before, "the scheduler resumes")
			first := fx.fake.calls[before]
			assert.True(t, first.reset, "the reset precedes the first post-change sample")
			assert.Equal(t, 1, first.samples)
			assert.Equal(t, Clean, fx.session.State())

			fx.tick(20)
			assert.Equal(t, 8, fx.fake.samples)
			assert.True(t, fx.session.Converged())
		})
	}
}

func TestConfigChangeRoundTrip(t *testing.T) {
	for _, policy := range []Policy{PolicyEager, PolicyLazy} {
		fx := mustMount(t, &Options{Samples: Ptr(10)}, WithPolicy(policy))
		fx.ready()
		fx.tick(9)
		require.Equal(t, 10, fx.fake.samples)

		before := len(fx.fake.calls)
		require.NoError(t, fx.session.Update(Options{ToneMapping: Ptr(renderer.ReinhardToneMapping)}))
		fx.tick(1)

		require.Greater(t, len(fx.fake.calls), before)
		first := fx.fake.calls[before]
		assert.True(t, first.reset)
		assert.Equal(t, 1, first.samples, "count restarts from zero")
		assert.Equal(t, renderer.ReinhardToneMapping, fx.fake.settings.ToneMapping)
	}
}

func TestSetOptionsIdentity(t *testing.T) {
	opts := &Options{Bounces: Ptr(4)}
	fx := mustMount(t, opts)
	fx.ready()
	fx.tick(2)

	invalidations := len(fx.observer.invalidations)
	require.NoError(t, fx.session.SetOptions(opts))
	assert.Len(t, fx.observer.invalidations, invalidations, "same pointer is not a change")

	same := *opts
	require.NoError(t, fx.session.SetOptions(&same))
	assert.Len(t, fx.observer.invalidations, invalidations+1, "a new value is a change even when equal")
}

func TestSetOptionsRejectsInvalid(t *testing.T) {
	fx := mustMount(t, nil)

	err := fx.session.Update(Options{Bounces: Ptr(12)})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Equal(t, 2, fx.fake.settings.Bounces, "rejected options are not applied")

	fx.session.Unmount()
	assert.ErrorIs(t, fx.session.Update(Options{}), ErrUnmounted)
}

func TestOptionsLastWriteWins(t *testing.T) {
	random := rand.New(rand.NewSource(7))
	fx := mustMount(t, nil)

	expected := renderer.DefaultSettings()
	expectedFactors := renderer.DefaultDenoiseFactors()
	expectedSamples := DefaultSamples

	for i := 0; i < 200; i++ {
		var o Options
		if random.Intn(2) == 0 {
			o.Samples = Ptr(random.Intn(100))
			expectedSamples = *o.Samples
		}
		if random.Intn(2) == 0 {
			o.Bounces = Ptr(renderer.MinBounces + random.Intn(renderer.MaxBounces-renderer.MinBounces+1))
			expected.Bounces = *o.Bounces
		}
		if random.Intn(2) == 0 {
			o.EnvMapIntensity = Ptr(random.Float64() * 3)
			expected.EnvMapIntensity = *o.EnvMapIntensity
		}
		if random.Intn(2) == 0 {
			o.EnableDenoise = Ptr(random.Intn(2) == 0)
			expected.EnableDenoise = *o.EnableDenoise
		}
		if random.Intn(2) == 0 {
			o.UseTileRender = Ptr(random.Intn(2) == 0)
			expected.UseTileRender = *o.UseTileRender
		}
		if random.Intn(2) == 0 {
			o.ToneMapping = Ptr(renderer.ToneMapping(random.Intn(5)))
			expected.ToneMapping = *o.ToneMapping
		}
		if random.Intn(2) == 0 {
			o.DenoiseColorFactor = Ptr(random.Float64())
			expectedFactors.ColorFactor = *o.DenoiseColorFactor
		}
		if random.Intn(2) == 0 {
			o.DenoisePositionFactor = Ptr(random.Float64())
			expectedFactors.PositionFactor = *o.DenoisePositionFactor
		}

		require.NoError(t, fx.session.Update(o))
	}

	got := fx.fake.settings
	got.FullSampleCallback = nil
	assert.Equal(t, expected, got)
	assert.Equal(t, expectedFactors, fx.fake.factors)
	assert.Equal(t, expectedSamples, fx.session.Budget())
	assert.Equal(t, expectedSamples, fx.session.Options().SamplesOrDefault())
}

func TestDragControlsInvalidate(t *testing.T) {
	fx := mustMount(t, &Options{Samples: Ptr(64)}, WithPolicy(PolicyLazy))
	fx.ready()
	fx.tick(5)

	fx.stage.Controls.Start()
	assert.True(t, fx.fake.moving)
	assert.Equal(t, Stale, fx.session.State())

	fx.tick(1)
	assert.True(t, fx.fake.calls[len(fx.fake.calls)-1].reset)

	fx.stage.Controls.End()
	assert.False(t, fx.fake.moving)
}

func TestFocusIsForwarded(t *testing.T) {
	fx := mustMount(t, nil)
	fx.stage.Viewport.SetFocus(false)
	assert.False(t, fx.fake.focused)
	fx.stage.Viewport.SetFocus(true)
	assert.True(t, fx.fake.focused)
}

func TestRenderIndexOrdering(t *testing.T) {
	stage := newStage()
	var order []string
	stage.Loop.Subscribe(func(float64) { order = append(order, "before") }, 0)
	stage.Loop.Subscribe(func(float64) { order = append(order, "after") }, 5)

	fx, err := mountFixture(context.Background(), stage, &Options{RenderIndex: Ptr(3)})
	require.NoError(t, err)
	defer fx.session.Unmount()
	fx.fake.build().resolve(nil)

	order = nil
	fx.stage.Loop.Subscribe(func(float64) {
		order = append(order, "session:"+map[bool]string{true: "rendered", false: "idle"}[len(fx.fake.calls) > 0])
	}, 4)
	fx.tick(1)
	assert.Equal(t, []string{"before", "session:rendered", "after"}, order)

	// Moving the session after the observer at index 6
	require.NoError(t, fx.session.Update(Options{RenderIndex: Ptr(10)}))
	order = nil
	calls := len(fx.fake.calls)
	fx.stage.Loop.Subscribe(func(float64) {
		order = append(order, "observer:"+map[bool]string{true: "rendered", false: "idle"}[len(fx.fake.calls) > calls])
	}, 6)
	fx.tick(1)
	assert.Contains(t, order, "observer:idle")
}

func TestUnmountReleasesEverything(t *testing.T) {
	fx := mustMount(t, nil)
	fx.ready()

	fx.session.Unmount()
	fx.session.Unmount()

	assert.False(t, fx.session.Active())
	assert.Equal(t, 1, fx.fake.releases)
	assert.Nil(t, fx.fake.surface)
	assert.Nil(t, fx.fake.device)
	assert.False(t, fx.fake.pipeline)
	assert.Equal(t, 0, fx.stage.Loop.Subscribers())
	assert.Equal(t, 0, fx.stage.Controls.Listeners(host.EventStart))
	assert.Equal(t, 0, fx.stage.Viewport.Subscriptions())
	assert.Equal(t, []string{"unmount"}, fx.observer.unmounted)

	select {
	case <-fx.session.Done():
	default:
		t.Fatal("Done must be closed after unmount")
	}

	// Host events after unmount never reach the renderer
	calls := len(fx.fake.calls)
	fx.stage.Controls.Start()
	fx.stage.Viewport.Resize(100, 100, 1)
	fx.tick(5)
	assert.Len(t, fx.fake.calls, calls)
}

func TestContextCancelUnmountsOnNextTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fx, err := mountFixture(ctx, newStage(), nil)
	require.NoError(t, err)
	fx.ready()

	cancel()
	assert.True(t, fx.session.Active())
	fx.tick(1)

	assert.False(t, fx.session.Active())
	assert.Equal(t, TickInactive, fx.session.LastTick())
	assert.Equal(t, []string{"context"}, fx.observer.unmounted)
	assert.Equal(t, 1, fx.fake.releases)
}

func TestTickPanicUnmounts(t *testing.T) {
	fx := mustMount(t, nil)
	fx.ready()

	fx.fake.panicOnNext = true
	assert.NotPanics(t, func() { fx.tick(1) })

	assert.False(t, fx.session.Active())
	assert.Equal(t, []string{"panic"}, fx.observer.unmounted)
	assert.Nil(t, fx.fake.surface)
}

func TestOffFocusAndCallbacksReachRenderer(t *testing.T) {
	called := 0
	fx := mustMount(t, &Options{
		RenderWhenOffFocus: Ptr(false),
		FullSampleCallback: func() { called++ },
	})

	assert.False(t, fx.fake.settings.RenderWhenOffFocus)
	require.NotNil(t, fx.fake.settings.FullSampleCallback)
	fx.fake.settings.FullSampleCallback()
	assert.Equal(t, 1, called)
}

func TestSessionWithRealRenderer(t *testing.T) {
	root, camera := scene.NewDefaultScene()
	surface := &renderer.FrameSurface{}
	stage := host.NewHeadlessStage(camera, 8, 6, surface)

	s, err := Mount(context.Background(), stage, root, &Options{Samples: Ptr(3), UseTileRender: Ptr(false)},
		WithLogger(zerolog.Nop()), WithExtension(renderer.ExtensionWorkerCount, 2))
	require.NoError(t, err)
	defer s.Unmount()

	deadline := time.Now().Add(5 * time.Second)
	for !s.Converged() {
		if time.Now().After(deadline) {
			t.Fatalf("session did not converge, last tick %v", s.LastTick())
		}
		stage.Loop.Advance(0)
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, 3, s.Renderer().TotalSamples())
	assert.Equal(t, 3, s.Renders())
	assert.Equal(t, Clean, s.State())
	require.NotNil(t, surface.Latest())
	assert.Equal(t, 8, surface.Latest().Bounds().Dx())

	stage.Loop.Advance(0)
	assert.Equal(t, TickIdleBudgetReached, s.LastTick())
}

func TestRealRendererResumesAfterConvergence(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		change func(stage *host.Stage)
		width  int
	}{
		{"lazy resize", PolicyLazy, func(stage *host.Stage) { stage.Viewport.Resize(16, 12, 1) }, 16},
		{"camera set during drag", PolicyEager, func(stage *host.Stage) { stage.Camera.SetAspect(1) }, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, camera := scene.NewDefaultScene()
			surface := &renderer.FrameSurface{}
			stage := host.NewHeadlessStage(camera, 8, 6, surface)

			s, err := Mount(context.Background(), stage, root, &Options{Samples: Ptr(3)},
				WithPolicy(tt.policy), WithLogger(zerolog.Nop()), WithExtension(renderer.ExtensionWorkerCount, 2))
			require.NoError(t, err)
			defer s.Unmount()

			converge := func() {
				t.Helper()
				deadline := time.Now().Add(5 * time.Second)
				for !s.Converged() {
					if time.Now().After(deadline) {
						t.Fatalf("session did not converge, last tick %v", s.LastTick())
					}
					stage.Loop.Advance(0)
					time.Sleep(time.Millisecond)
				}
			}

			stage.Controls.Start()
			converge()
			renders := s.Renders()

			tt.change(stage)
			assert.Equal(t, 0, s.Renderer().TotalSamples(), "stale samples are not progress")
			for i := 0; i < 10; i++ {
				stage.Loop.Advance(0)
			}

			assert.Greater(t, s.Renders(), renders)
			assert.Equal(t, 3, s.Renderer().TotalSamples())
			assert.False(t, s.Renderer().NeedsUpdate())
			assert.Equal(t, Clean, s.State())
			assert.Equal(t, TickIdleBudgetReached, s.LastTick())
			assert.Equal(t, tt.width, surface.Latest().Bounds().Dx())
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"empty", Options{}, true},
		{"bounds", Options{Bounces: Ptr(8), Samples: Ptr(0)}, true},
		{"too few bounces", Options{Bounces: Ptr(1)}, false},
		{"negative samples", Options{Samples: Ptr(-1)}, false},
		{"negative intensity", Options{EnvMapIntensity: Ptr(-0.1)}, false},
		{"unknown tone mapping", Options{ToneMapping: Ptr(renderer.ToneMapping(7))}, false},
		{"negative factor", Options{DenoiseMomentBlendFactor: Ptr(-1.0)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidOptions), "got %v", err)
		})
	}
}
