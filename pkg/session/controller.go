package session

import "fmt"

// State is the freshness of the renderer's accumulation
type State int

const (
	// Clean means the accumulation reflects the current scene, camera and options
	Clean State = iota
	// Stale means the accumulation must be discarded before it counts as progress
	Stale
)

func (s State) String() string {
	if s == Clean {
		return "clean"
	}
	return "stale"
}

// Reason identifies what invalidated the accumulation
type Reason int

const (
	ReasonConfigChanged Reason = iota
	ReasonCameraDragStarted
	ReasonViewportResized
	ReasonSceneBuilt
)

func (r Reason) String() string {
	switch r {
	case ReasonConfigChanged:
		return "config_changed"
	case ReasonCameraDragStarted:
		return "camera_drag_started"
	case ReasonViewportResized:
		return "viewport_resized"
	case ReasonSceneBuilt:
		return "scene_built"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Refresh decides whether an invalidation renders immediately
type Refresh int

const (
	// RefreshEager renders once synchronously after marking the reset
	RefreshEager Refresh = iota
	// RefreshLazy only marks the reset; the next tick renders
	RefreshLazy
)

// Policy maps invalidation reasons to a refresh mode
type Policy struct {
	Default   Refresh
	Overrides map[Reason]Refresh
}

var (
	// PolicyEager renders on every invalidation except scene builds
	PolicyEager = Policy{Default: RefreshEager}
	// PolicyLazy never renders on invalidation
	PolicyLazy = Policy{Default: RefreshLazy}
)

// With returns a copy of p using refresh for reason
func (p Policy) With(reason Reason, refresh Refresh) Policy {
	overrides := make(map[Reason]Refresh, len(p.Overrides)+1)
	for k, v := range p.Overrides {
		overrides[k] = v
	}
	overrides[reason] = refresh
	return Policy{Default: p.Default, Overrides: overrides}
}

// For returns the refresh mode for reason. Scene builds never force a render,
// so the first frame is left to the scheduler.
func (p Policy) For(reason Reason) Refresh {
	if reason == ReasonSceneBuilt {
		return RefreshLazy
	}
	if refresh, ok := p.Overrides[reason]; ok {
		return refresh
	}
	return p.Default
}

// Outcome reports what an invalidation did
type Outcome int

const (
	// OutcomeDeferred means no pipeline exists yet; the reset is pending
	OutcomeDeferred Outcome = iota
	// OutcomeMarked means the renderer will reset on its next render
	OutcomeMarked
	// OutcomeRendered means the reset was marked and one render was issued
	OutcomeRendered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDeferred:
		return "deferred"
	case OutcomeMarked:
		return "marked"
	default:
		return "rendered"
	}
}

// Controller tracks whether the renderer's accumulation is current
type Controller struct {
	renderer     Renderer
	render       func()
	policy       Policy
	state        State
	pendingReset bool
}

// NewController creates a controller. render issues one render step for the
// current root and camera.
func NewController(r Renderer, policy Policy, render func()) *Controller {
	return &Controller{
		renderer: r,
		render:   render,
		policy:   policy,
		state:    Stale,
	}
}

// State returns the current accumulation state
func (c *Controller) State() State { return c.state }

// PendingReset reports whether a reset was requested before any pipeline existed
func (c *Controller) PendingReset() bool { return c.pendingReset }

// Policy returns the refresh policy
func (c *Controller) Policy() Policy { return c.policy }

// Invalidate marks the accumulation stale. With a pipeline the renderer is told
// to reset before its next sample, and an eager policy renders once right away.
func (c *Controller) Invalidate(reason Reason) Outcome {
	c.state = Stale
	if !c.renderer.HasPipeline() {
		c.pendingReset = true
		return OutcomeDeferred
	}

	c.renderer.MarkNeedsUpdate()
	c.pendingReset = false
	if c.policy.For(reason) == RefreshEager {
		c.render()
		return OutcomeRendered
	}
	return OutcomeMarked
}

// NoteRendered is called after every render the session issues. The state
// becomes Clean once the renderer consumed the reset and holds at least one
// sample taken after it.
func (c *Controller) NoteRendered() {
	if c.renderer.HasPipeline() && !c.renderer.NeedsUpdate() && c.renderer.TotalSamples() > 0 {
		c.state = Clean
	}
}
