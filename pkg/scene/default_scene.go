package scene

import "github.com/df07/go-progressive-bridge/pkg/core"

// NewDefaultScene creates the default scene: three spheres on a large ground
// sphere, lit by the sky and a small warm light
func NewDefaultScene(cameraOverrides ...CameraConfig) (*Root, *Camera) {
	defaultCameraConfig := CameraConfig{
		Center:      core.NewVec3(0, 0.75, 2),
		LookAt:      core.NewVec3(0, 0.5, -1),
		Up:          core.NewVec3(0, 1, 0),
		AspectRatio: 16.0 / 9.0,
		VFov:        40.0,
	}

	cameraConfig := defaultCameraConfig
	if len(cameraOverrides) > 0 {
		cameraConfig = MergeCameraConfig(defaultCameraConfig, cameraOverrides[0])
	}

	lambertianGreen := NewLambertian(core.NewVec3(0.8, 0.8, 0.0).Multiply(0.6))
	lambertianRed := NewLambertian(core.NewVec3(0.65, 0.25, 0.2))
	metalSilver := NewMetal(core.NewVec3(0.8, 0.8, 0.8), 0.0)
	metalGold := NewMetal(core.NewVec3(0.8, 0.6, 0.2), 0.3)

	root := NewRoot(
		NewSphere(core.NewVec3(0, -1000, -1), 1000, lambertianGreen),
		NewSphere(core.NewVec3(0, 0.5, -1), 0.5, lambertianRed),
		NewSphere(core.NewVec3(-1, 0.5, -1), 0.5, metalSilver),
		NewSphere(core.NewVec3(1, 0.5, -1), 0.5, metalGold),
		NewSphere(core.NewVec3(30, 30.5, 15), 10, NewEmissive(core.NewVec3(15.0, 14.0, 13.0))),
	)

	return root, NewCamera(cameraConfig)
}
