package host

import (
	"fmt"
	"sync"
)

// Control event names
const (
	EventStart = "start"
	EventEnd   = "end"
)

type listener struct {
	fn func()
}

// Controls notifies listeners when the user starts and stops interacting
// with the camera
type Controls struct {
	mu        sync.Mutex
	listeners map[string][]*listener
	dragging  bool
}

// NewControls creates a controls notifier
func NewControls() *Controls {
	return &Controls{listeners: make(map[string][]*listener)}
}

// AddListener subscribes fn to event ("start" or "end") and returns a function
// that removes it
func (c *Controls) AddListener(event string, fn func()) (remove func(), err error) {
	if event != EventStart && event != EventEnd {
		return nil, fmt.Errorf("unknown controls event %q", event)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	l := &listener{fn: fn}
	c.listeners[event] = append(c.listeners[event], l)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			list := c.listeners[event]
			for i, existing := range list {
				if existing == l {
					c.listeners[event] = append(list[:i], list[i+1:]...)
					break
				}
			}
		})
	}, nil
}

// Listeners returns how many listeners are subscribed to event
func (c *Controls) Listeners(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners[event])
}

// Start marks the beginning of a camera interaction
func (c *Controls) Start() {
	c.emit(EventStart, true)
}

// End marks the end of a camera interaction
func (c *Controls) End() {
	c.emit(EventEnd, false)
}

// Dragging reports whether an interaction is in progress
func (c *Controls) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragging
}

func (c *Controls) emit(event string, dragging bool) {
	c.mu.Lock()
	c.dragging = dragging
	list := make([]*listener, len(c.listeners[event]))
	copy(list, c.listeners[event])
	c.mu.Unlock()

	for _, l := range list {
		l.fn()
	}
}
