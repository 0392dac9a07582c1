package host

import (
	"context"
	"sort"
	"sync"
	"time"
)

// TickFunc is called once per frame with the elapsed seconds since the last frame
type TickFunc func(dt float64)

type subscription struct {
	fn      TickFunc
	index   int
	seq     uint64
	removed bool
}

// Loop is the host frame loop. Subscribers run once per Advance in ascending
// index order; subscribers sharing an index run in subscription order.
//
// Advance and every subscriber run on the goroutine driving the loop. Post is
// the only way for other goroutines to reach loop-owned state.
type Loop struct {
	mu     sync.Mutex
	subs   []*subscription
	seq    uint64
	posted []func()
	frames uint64
}

// NewLoop creates an empty frame loop
func NewLoop() *Loop {
	return &Loop{}
}

// Subscribe registers fn at the given ordering index and returns a function
// that removes it. A subscription added during Advance first runs on the next
// frame; one removed during Advance does not run again, even later in that frame.
func (l *Loop) Subscribe(fn TickFunc, index int) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	sub := &subscription{fn: fn, index: index, seq: l.seq}
	l.subs = append(l.subs, sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			sub.removed = true
			for i, s := range l.subs {
				if s == sub {
					l.subs = append(l.subs[:i], l.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Post queues fn to run on the loop goroutine at the start of the next frame.
// Safe for concurrent use.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.posted = append(l.posted, fn)
}

// Subscribers returns the number of active subscriptions
func (l *Loop) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Frames returns the number of completed frames
func (l *Loop) Frames() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

// Advance runs one frame: queued posts first, then every subscriber
func (l *Loop) Advance(dt float64) {
	l.mu.Lock()
	posted := l.posted
	l.posted = nil
	subs := make([]*subscription, len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, fn := range posted {
		fn()
	}

	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].index != subs[j].index {
			return subs[i].index < subs[j].index
		}
		return subs[i].seq < subs[j].seq
	})

	for _, sub := range subs {
		l.mu.Lock()
		removed := sub.removed
		l.mu.Unlock()
		if !removed {
			sub.fn(dt)
		}
	}

	l.mu.Lock()
	l.frames++
	l.mu.Unlock()
}

// Run drives Advance at fps frames per second until ctx is done
func (l *Loop) Run(ctx context.Context, fps float64) error {
	if fps <= 0 {
		fps = 60
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			l.Advance(dt)
		}
	}
}
