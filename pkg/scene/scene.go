package scene

import (
	"math"

	"github.com/df07/go-progressive-bridge/pkg/core"
)

// Node is anything a Root can hold. Only spheres are renderable today.
type Node interface {
	// Bounds returns the centre and radius of a sphere enclosing the node
	Bounds() (center core.Vec3, radius float64)
}

// Root is the scene root handed to the renderer. The caller owns the children;
// the environment is inherited from the host stage when a session mounts.
type Root struct {
	Children    []Node
	Environment *Environment
}

// NewRoot creates a root holding the given children
func NewRoot(children ...Node) *Root {
	return &Root{Children: children}
}

// Add appends children to the root
func (r *Root) Add(children ...Node) {
	r.Children = append(r.Children, children...)
}

// Spheres returns every sphere in the root, in insertion order
func (r *Root) Spheres() []*Sphere {
	spheres := make([]*Sphere, 0, len(r.Children))
	for _, child := range r.Children {
		if s, ok := child.(*Sphere); ok {
			spheres = append(spheres, s)
		}
	}
	return spheres
}

// Hit describes a ray-surface intersection
type Hit struct {
	T         float64
	Point     core.Vec3
	Normal    core.Vec3 // Always faces against the incoming ray
	FrontFace bool
	Material  Material
}

// Sphere is a renderable sphere node
type Sphere struct {
	Center   core.Vec3
	Radius   float64
	Material Material
}

// NewSphere creates a new sphere
func NewSphere(center core.Vec3, radius float64, material Material) *Sphere {
	return &Sphere{Center: center, Radius: radius, Material: material}
}

// Bounds implements Node
func (s *Sphere) Bounds() (core.Vec3, float64) {
	return s.Center, math.Abs(s.Radius)
}

// Hit tests if a ray intersects with the sphere
func (s *Sphere) Hit(ray core.Ray, tMin, tMax float64) (Hit, bool) {
	oc := ray.Origin.Subtract(s.Center)

	// Quadratic equation coefficients: at² + bt + c = 0
	a := ray.Direction.LengthSquared()
	halfB := oc.Dot(ray.Direction)
	c := oc.LengthSquared() - s.Radius*s.Radius

	discriminant := halfB*halfB - a*c
	if discriminant < 0 {
		return Hit{}, false
	}

	sqrtD := math.Sqrt(discriminant)

	root := (-halfB - sqrtD) / a
	if root < tMin || root > tMax {
		root = (-halfB + sqrtD) / a
		if root < tMin || root > tMax {
			return Hit{}, false
		}
	}

	point := ray.At(root)
	outwardNormal := point.Subtract(s.Center).Multiply(1.0 / s.Radius)
	frontFace := ray.Direction.Dot(outwardNormal) < 0
	normal := outwardNormal
	if !frontFace {
		normal = outwardNormal.Multiply(-1)
	}

	return Hit{
		T:         root,
		Point:     point,
		Normal:    normal,
		FrontFace: frontFace,
		Material:  s.Material,
	}, true
}
