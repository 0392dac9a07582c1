// Package host models the capabilities a host scene framework exposes to a
// render session: a frame loop, camera interaction notifications, a viewport,
// and the drawable plus GPU context the session renders into.
package host

import (
	"github.com/gogpu/gpucontext"

	"github.com/df07/go-progressive-bridge/pkg/renderer"
	"github.com/df07/go-progressive-bridge/pkg/scene"
)

// Stage is the ambient scene a session mounts into
type Stage struct {
	Background  bool               // Whether the host shows its environment as background
	Environment *scene.Environment // Ambient environment, copied onto the mounted root
	Camera      *scene.Camera      // Read on every frame
	Viewport    *Viewport
	Controls    *Controls // Optional; nil when the host has no camera controls
	Loop        *Loop
	Device      gpucontext.DeviceProvider // Host-owned GPU context
	Surface     renderer.Surface          // Host drawable
}

// NewHeadlessStage creates a stage with a CPU-only device, a sky environment
// and fresh loop, viewport and controls
func NewHeadlessStage(camera *scene.Camera, width, height int, surface renderer.Surface) *Stage {
	return &Stage{
		Background:  true,
		Environment: scene.NewSkyEnvironment(),
		Camera:      camera,
		Viewport:    NewViewport(width, height, 1),
		Controls:    NewControls(),
		Loop:        NewLoop(),
		Device:      renderer.HeadlessDevice{},
		Surface:     surface,
	}
}
