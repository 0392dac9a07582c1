package session

// TickResult reports what a scheduler tick did
type TickResult int

const (
	// TickRendered means one render step was submitted
	TickRendered TickResult = iota
	// TickIdleNoPipeline means no pipeline exists yet (or the build failed)
	TickIdleNoPipeline
	// TickIdleBudgetReached means the sample budget is met
	TickIdleBudgetReached
	// TickInactive means the session was unmounted during or before the tick
	TickInactive
)

func (t TickResult) String() string {
	switch t {
	case TickRendered:
		return "rendered"
	case TickIdleNoPipeline:
		return "idle_no_pipeline"
	case TickIdleBudgetReached:
		return "idle_budget_reached"
	default:
		return "inactive"
	}
}

// Scheduler submits at most one render per tick while the renderer is below
// the sample budget. The check is level-triggered: it resumes on its own after
// an invalidation drops the sample count.
type Scheduler struct {
	renderer Renderer
	render   func()
	budget   int
}

// NewScheduler creates a scheduler with the given sample budget
func NewScheduler(r Renderer, budget int, render func()) *Scheduler {
	return &Scheduler{renderer: r, render: render, budget: max(0, budget)}
}

// Budget returns the sample budget
func (s *Scheduler) Budget() int { return s.budget }

// SetBudget changes the sample budget
func (s *Scheduler) SetBudget(budget int) { s.budget = max(0, budget) }

// Tick runs one scheduling step
func (s *Scheduler) Tick() TickResult {
	if !s.renderer.HasPipeline() {
		return TickIdleNoPipeline
	}
	if s.renderer.TotalSamples() < s.budget {
		s.render()
		return TickRendered
	}
	return TickIdleBudgetReached
}
