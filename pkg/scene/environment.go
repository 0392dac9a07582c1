package scene

import "github.com/df07/go-progressive-bridge/pkg/core"

// Environment is a vertical gradient sky used for both lighting and background
type Environment struct {
	TopColor    core.Vec3
	BottomColor core.Vec3
}

// NewSkyEnvironment returns the blue-to-white sky used by the built-in scenes
func NewSkyEnvironment() *Environment {
	return &Environment{
		TopColor:    core.NewVec3(0.5, 0.7, 1.0),
		BottomColor: core.NewVec3(1.0, 1.0, 1.0),
	}
}

// Radiance returns the environment colour seen along direction
func (e *Environment) Radiance(direction core.Vec3) core.Vec3 {
	if e == nil {
		return core.Vec3{}
	}
	// Map the y-component from [-1,1] to [0,1]
	t := 0.5 * (direction.Normalize().Y + 1.0)
	return e.BottomColor.Lerp(e.TopColor, t)
}
