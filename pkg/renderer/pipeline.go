package renderer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/df07/go-progressive-bridge/pkg/core"
	"github.com/df07/go-progressive-bridge/pkg/scene"
)

var (
	// ErrEmptyScene is returned by a build of a root with no renderable nodes
	ErrEmptyScene = errors.New("scene has no renderable nodes")
	// ErrForeignBuild is returned when adopting a build started by another renderer
	ErrForeignBuild = errors.New("build belongs to a different renderer")
	// ErrBuildPending is returned when adopting a build that has not finished
	ErrBuildPending = errors.New("build has not finished")
	// ErrReleased is returned when the renderer has no bound surface or device
	ErrReleased = errors.New("renderer is released")
)

// Build is the handle of an asynchronous scene build. Done is closed when the
// build finishes; Err reports its outcome after that.
type Build interface {
	Done() <-chan struct{}
	Err() error
}

// pipeline is a compiled, immutable scene snapshot shared by tile workers
type pipeline struct {
	spheres     []scene.Sphere
	environment *scene.Environment
	boundCenter core.Vec3
	boundRadius float64
}

// hitWorld finds the closest sphere hit along ray
func (p *pipeline) hitWorld(ray core.Ray, tMin, tMax float64) (scene.Hit, bool) {
	if !p.mayHit(ray) {
		return scene.Hit{}, false
	}

	var closest scene.Hit
	closestSoFar := tMax
	hitAnything := false
	for i := range p.spheres {
		if hit, ok := p.spheres[i].Hit(ray, tMin, closestSoFar); ok {
			hitAnything = true
			closestSoFar = hit.T
			closest = hit
		}
	}
	return closest, hitAnything
}

// mayHit tests the ray against the bounding sphere of the whole scene
func (p *pipeline) mayHit(ray core.Ray) bool {
	oc := ray.Origin.Subtract(p.boundCenter)
	if oc.LengthSquared() <= p.boundRadius*p.boundRadius {
		return true
	}
	a := ray.Direction.LengthSquared()
	halfB := oc.Dot(ray.Direction)
	c := oc.LengthSquared() - p.boundRadius*p.boundRadius
	if halfB > 0 {
		return false // Origin outside and pointing away
	}
	return halfB*halfB-a*c >= 0
}

// compilePipeline builds a pipeline from a snapshot of sphere values
func compilePipeline(ctx context.Context, spheres []scene.Sphere, env *scene.Environment) (*pipeline, error) {
	if len(spheres) == 0 {
		return nil, ErrEmptyScene
	}

	center := core.Vec3{}
	for _, s := range spheres {
		c, _ := s.Bounds()
		center = center.Add(c)
	}
	center = center.Multiply(1.0 / float64(len(spheres)))

	radius := 0.0
	for i, s := range spheres {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("compile scene: %w", err)
			}
		}
		c, r := s.Bounds()
		radius = math.Max(radius, c.Subtract(center).Length()+r)
	}

	return &pipeline{
		spheres:     spheres,
		environment: env,
		boundCenter: center,
		boundRadius: radius,
	}, nil
}

// sceneBuild is the Build implementation returned by Renderer.BuildScene
type sceneBuild struct {
	owner    *Renderer
	done     chan struct{}
	pipeline *pipeline
	err      error
}

// Done implements Build
func (b *sceneBuild) Done() <-chan struct{} { return b.done }

// Err implements Build. It returns nil until the build is done.
func (b *sceneBuild) Err() error {
	select {
	case <-b.done:
		return b.err
	default:
		return nil
	}
}

// snapshotRoot copies the renderable content of root so the build goroutine
// never reads caller-owned nodes
func snapshotRoot(root *scene.Root) ([]scene.Sphere, *scene.Environment) {
	if root == nil {
		return nil, nil
	}
	spheres := make([]scene.Sphere, 0, len(root.Children))
	for _, s := range root.Spheres() {
		spheres = append(spheres, *s)
	}
	var env *scene.Environment
	if root.Environment != nil {
		copied := *root.Environment
		env = &copied
	}
	return spheres, env
}
