package host

import (
	"sort"
	"sync"
)

// Viewport is the host drawable's size, pixel ratio and focus
type Viewport struct {
	mu         sync.Mutex
	width      int
	height     int
	pixelRatio float64
	focused    bool

	nextID   int
	onResize map[int]func(width, height int, pixelRatio float64)
	onFocus  map[int]func(focused bool)
}

// NewViewport creates a focused viewport
func NewViewport(width, height int, pixelRatio float64) *Viewport {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}
	return &Viewport{
		width:      width,
		height:     height,
		pixelRatio: pixelRatio,
		focused:    true,
		onResize:   make(map[int]func(int, int, float64)),
		onFocus:    make(map[int]func(bool)),
	}
}

// Size returns the logical size and pixel ratio
func (v *Viewport) Size() (width, height int, pixelRatio float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width, v.height, v.pixelRatio
}

// Focused reports whether the drawable has focus
func (v *Viewport) Focused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.focused
}

// Resize updates the size and notifies resize subscribers when anything changed
func (v *Viewport) Resize(width, height int, pixelRatio float64) {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}

	v.mu.Lock()
	if v.width == width && v.height == height && v.pixelRatio == pixelRatio {
		v.mu.Unlock()
		return
	}
	v.width, v.height, v.pixelRatio = width, height, pixelRatio
	handlers := make([]func(int, int, float64), 0, len(v.onResize))
	for _, id := range sortedKeys(v.onResize) {
		handlers = append(handlers, v.onResize[id])
	}
	v.mu.Unlock()

	for _, fn := range handlers {
		fn(width, height, pixelRatio)
	}
}

// SetFocus updates focus and notifies focus subscribers on change
func (v *Viewport) SetFocus(focused bool) {
	v.mu.Lock()
	if v.focused == focused {
		v.mu.Unlock()
		return
	}
	v.focused = focused
	handlers := make([]func(bool), 0, len(v.onFocus))
	for _, id := range sortedKeys(v.onFocus) {
		handlers = append(handlers, v.onFocus[id])
	}
	v.mu.Unlock()

	for _, fn := range handlers {
		fn(focused)
	}
}

// OnResize subscribes fn to size changes and returns a function that removes it
func (v *Viewport) OnResize(fn func(width, height int, pixelRatio float64)) (remove func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.onResize[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.onResize, id)
	}
}

// OnFocus subscribes fn to focus changes and returns a function that removes it
func (v *Viewport) OnFocus(fn func(focused bool)) (remove func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.onFocus[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.onFocus, id)
	}
}

// Subscriptions returns the number of resize and focus subscribers
func (v *Viewport) Subscriptions() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.onResize) + len(v.onFocus)
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
