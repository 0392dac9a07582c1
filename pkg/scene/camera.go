package scene

import (
	"math"

	"github.com/df07/go-progressive-bridge/pkg/core"
)

// CameraConfig describes a look-at pinhole camera
type CameraConfig struct {
	Center      core.Vec3 // Camera position
	LookAt      core.Vec3 // Point the camera looks at
	Up          core.Vec3 // Up direction
	VFov        float64   // Vertical field of view in degrees
	AspectRatio float64   // Width / height
}

// MergeCameraConfig returns base with every non-zero field of override applied
func MergeCameraConfig(base, override CameraConfig) CameraConfig {
	result := base
	if override.Center != (core.Vec3{}) {
		result.Center = override.Center
	}
	if override.LookAt != (core.Vec3{}) {
		result.LookAt = override.LookAt
	}
	if override.Up != (core.Vec3{}) {
		result.Up = override.Up
	}
	if override.VFov != 0 {
		result.VFov = override.VFov
	}
	if override.AspectRatio != 0 {
		result.AspectRatio = override.AspectRatio
	}
	return result
}

// Camera generates primary rays. It is read by the renderer on every render
// call; Version increases whenever the camera moves.
type Camera struct {
	config          CameraConfig
	version         uint64
	origin          core.Vec3
	lowerLeftCorner core.Vec3
	horizontal      core.Vec3
	vertical        core.Vec3
}

// NewCamera creates a camera from config
func NewCamera(config CameraConfig) *Camera {
	c := &Camera{}
	c.Set(config)
	return c
}

// Config returns the current camera configuration
func (c *Camera) Config() CameraConfig {
	return c.config
}

// Version returns a counter bumped by every Set
func (c *Camera) Version() uint64 {
	return c.version
}

// Set replaces the camera configuration
func (c *Camera) Set(config CameraConfig) {
	if config.Up == (core.Vec3{}) {
		config.Up = core.NewVec3(0, 1, 0)
	}
	if config.VFov <= 0 {
		config.VFov = 40
	}
	if config.AspectRatio <= 0 {
		config.AspectRatio = 16.0 / 9.0
	}
	c.config = config
	c.version++

	theta := config.VFov * math.Pi / 180
	viewportHeight := 2.0 * math.Tan(theta/2)
	viewportWidth := config.AspectRatio * viewportHeight

	w := config.Center.Subtract(config.LookAt).Normalize()
	u := config.Up.Cross(w).Normalize()
	v := w.Cross(u)

	c.origin = config.Center
	c.horizontal = u.Multiply(viewportWidth)
	c.vertical = v.Multiply(viewportHeight)
	c.lowerLeftCorner = c.origin.
		Subtract(c.horizontal.Multiply(0.5)).
		Subtract(c.vertical.Multiply(0.5)).
		Subtract(w)
}

// SetAspect updates only the aspect ratio
func (c *Camera) SetAspect(aspect float64) {
	config := c.config
	config.AspectRatio = aspect
	c.Set(config)
}

// GetRay generates a ray for screen coordinates (s, t) where 0 <= s,t <= 1
// and t=0 is the bottom of the image
func (c *Camera) GetRay(s, t float64) core.Ray {
	direction := c.lowerLeftCorner.
		Add(c.horizontal.Multiply(s)).
		Add(c.vertical.Multiply(t)).
		Subtract(c.origin)

	return core.NewRay(c.origin, direction)
}
