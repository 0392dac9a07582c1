package renderer

import (
	"image"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// ExtensionWorkerCount names the extension a host uses to cap the number of
// tile workers. The value must be an int.
const ExtensionWorkerCount = "tracer.workers"

// Canvas is everything the renderer needs from the host at construction time:
// the host's existing GPU context and an extension lookup. The renderer never
// creates a context of its own.
type Canvas interface {
	Context() gpucontext.DeviceProvider
	Extension(name string) any
}

// Surface is the host drawable the renderer presents frames to
type Surface interface {
	Present(frame *image.RGBA)
}

// HeadlessDevice is a DeviceProvider for CPU-only hosts. It is non-nil, so it
// satisfies the renderer's context presence checks, but exposes no GPU objects.
type HeadlessDevice struct{}

// HeadlessAdapterName is the adapter name reported by HeadlessDevice
const HeadlessAdapterName = "progressive CPU tracer"

// Device returns nil for the headless device
func (HeadlessDevice) Device() gpucontext.Device { return nil }

// Queue returns nil for the headless device
func (HeadlessDevice) Queue() gpucontext.Queue { return nil }

// Adapter returns nil for the headless device
func (HeadlessDevice) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat reports the RGBA8 layout frames are presented in
func (HeadlessDevice) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// AdapterInfo describes the CPU tracer as a software adapter
func (HeadlessDevice) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: HeadlessAdapterName, Type: gpucontext.AdapterTypeSoftware}
}

var _ gpucontext.DeviceProvider = HeadlessDevice{}

// FrameSurface keeps the most recently presented frame. Safe for concurrent use.
type FrameSurface struct {
	mu       sync.Mutex
	frame    *image.RGBA
	presents int
}

// Present implements Surface
func (fs *FrameSurface) Present(frame *image.RGBA) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.frame = frame
	fs.presents++
}

// Latest returns the last presented frame, or nil
func (fs *FrameSurface) Latest() *image.RGBA {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.frame
}

// Presents returns how many frames were presented
func (fs *FrameSurface) Presents() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.presents
}
