package scene

import (
	"math/rand"

	"github.com/df07/go-progressive-bridge/pkg/core"
)

// Scatter is the outcome of a material interaction
type Scatter struct {
	Ray         core.Ray
	Attenuation core.Vec3
}

// Material decides how light leaves a surface
type Material interface {
	// Scatter returns the continuation ray, false when the ray is absorbed
	Scatter(in core.Ray, hit Hit, random *rand.Rand) (Scatter, bool)
	// Emitted returns radiance emitted towards the viewer
	Emitted() core.Vec3
}

// Lambertian is a perfectly diffuse material
type Lambertian struct {
	Albedo core.Vec3
}

// NewLambertian creates a new lambertian material
func NewLambertian(albedo core.Vec3) *Lambertian {
	return &Lambertian{Albedo: albedo}
}

// Scatter samples a cosine-weighted bounce. The cosine and pdf cancel, so the
// throughput is the albedo itself.
func (l *Lambertian) Scatter(_ core.Ray, hit Hit, random *rand.Rand) (Scatter, bool) {
	direction := core.RandomCosineDirection(hit.Normal, random)
	return Scatter{
		Ray:         core.NewRay(hit.Point, direction),
		Attenuation: l.Albedo,
	}, true
}

// Emitted implements Material
func (l *Lambertian) Emitted() core.Vec3 { return core.Vec3{} }

// Metal is a specular reflector with optional fuzz
type Metal struct {
	Albedo   core.Vec3
	Fuzzness float64 // 0.0 = perfect mirror, 1.0 = very fuzzy
}

// NewMetal creates a new metal material with fuzzness clamped to [0, 1]
func NewMetal(albedo core.Vec3, fuzzness float64) *Metal {
	return &Metal{Albedo: albedo, Fuzzness: max(0, min(1, fuzzness))}
}

// Scatter implements Material
func (m *Metal) Scatter(in core.Ray, hit Hit, random *rand.Rand) (Scatter, bool) {
	reflected := in.Direction.Normalize().Reflect(hit.Normal)
	if m.Fuzzness > 0 {
		reflected = reflected.Add(core.RandomInUnitSphere(random).Multiply(m.Fuzzness))
	}

	scattered := core.NewRay(hit.Point, reflected)
	return Scatter{Ray: scattered, Attenuation: m.Albedo}, reflected.Dot(hit.Normal) > 0
}

// Emitted implements Material
func (m *Metal) Emitted() core.Vec3 { return core.Vec3{} }

// Emissive is a light source material
type Emissive struct {
	Emission core.Vec3
}

// NewEmissive creates a new emissive material
func NewEmissive(emission core.Vec3) *Emissive {
	return &Emissive{Emission: emission}
}

// Scatter implements Material. Lights absorb everything that reaches them.
func (e *Emissive) Scatter(core.Ray, Hit, *rand.Rand) (Scatter, bool) {
	return Scatter{}, false
}

// Emitted implements Material
func (e *Emissive) Emitted() core.Vec3 { return e.Emission }
