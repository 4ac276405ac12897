package view

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/wudi/pdfmark/observability"
)

const (
	// PixelsPerSpeed converts the speed setting to pixels per second.
	PixelsPerSpeed = 20
	DefaultSpeed   = 1
	// DefaultInterval is the driver's tick period.
	DefaultInterval = 16 * time.Millisecond
)

// Direction of an auto-scroll.
type Direction int

const (
	Up   Direction = -1
	Down Direction = 1
)

// accumulator turns elapsed time into whole-pixel scroll steps, carrying
// the fractional remainder.
type accumulator struct {
	frac float64
}

func (a *accumulator) advance(elapsed time.Duration, speed int, dir Direction) int {
	a.frac += float64(speed*PixelsPerSpeed) * elapsed.Seconds() * float64(dir)
	px := math.Trunc(a.frac)
	a.frac -= px
	return int(px)
}

// AutoScroller repeatedly calls a scroll function while running. At most
// one driver runs at a time.
type AutoScroller struct {
	scroll   func(dy int)
	interval time.Duration
	log      observability.Logger

	mu      sync.Mutex
	speed   int
	dir     Direction
	cancel  context.CancelFunc
	done    chan struct{}
	onState func(running bool, dir Direction)
	// scrolling is the done channel of the driver inside its scroll call.
	scrolling chan struct{}
}

// ScrollOption configures an AutoScroller.
type ScrollOption func(*AutoScroller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) ScrollOption {
	return func(a *AutoScroller) {
		if d > 0 {
			a.interval = d
		}
	}
}

func WithLogger(l observability.Logger) ScrollOption {
	return func(a *AutoScroller) { a.log = observability.OrNop(l) }
}

// NewAutoScroller returns a stopped scroller that reports pixel deltas to
// scroll.
func NewAutoScroller(scroll func(dy int), opts ...ScrollOption) *AutoScroller {
	a := &AutoScroller{
		scroll:   scroll,
		interval: DefaultInterval,
		log:      observability.NopLogger{},
		speed:    DefaultSpeed,
		dir:      Down,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnState registers fn to be told when the scroller starts, stops or turns.
func (a *AutoScroller) OnState(fn func(running bool, dir Direction)) {
	a.mu.Lock()
	a.onState = fn
	a.mu.Unlock()
}

// SetSpeed changes the speed of a running or future drive. It takes
// effect on the next tick.
func (a *AutoScroller) SetSpeed(speed int) {
	a.mu.Lock()
	a.speed = max(0, speed)
	a.mu.Unlock()
}

// Running reports whether a driver is active and its direction.
func (a *AutoScroller) Running() (bool, Direction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil, a.dir
}

// Toggle stops the scroller when it is already running in dir, otherwise
// (re)starts it in dir.
func (a *AutoScroller) Toggle(dir Direction) {
	a.mu.Lock()
	running := a.cancel != nil
	same := a.dir == dir
	a.mu.Unlock()
	if running && same {
		a.Stop()
		return
	}
	a.Start(dir)
}

// Start stops any running driver and starts a new one in dir.
func (a *AutoScroller) Start(dir Direction) {
	a.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.mu.Lock()
	a.dir = dir
	a.cancel = cancel
	a.done = done
	fn := a.onState
	a.mu.Unlock()

	a.log.Debug("auto-scroll started", observability.Int("direction", int(dir)))
	if fn != nil {
		fn(true, dir)
	}
	go a.drive(ctx, done, dir)
}

// Stop halts the running driver and waits for it to exit. Called while the
// driver is inside the scroll function (for example from the scroll function
// itself at the end of the document) it does not wait; the driver makes no
// further scroll calls.
func (a *AutoScroller) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	dir, fn := a.dir, a.onState
	inCallback := done != nil && a.scrolling == done
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if !inCallback {
		<-done
	}
	a.log.Debug("auto-scroll stopped")
	if fn != nil {
		fn(false, dir)
	}
}

func (a *AutoScroller) drive(ctx context.Context, done chan struct{}, dir Direction) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	var acc accumulator
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.mu.Lock()
			speed := a.speed
			a.mu.Unlock()
			px := acc.advance(now.Sub(last), speed, dir)
			last = now
			if px == 0 {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			a.mu.Lock()
			a.scrolling = done
			a.mu.Unlock()
			a.scroll(px)
			a.mu.Lock()
			if a.scrolling == done {
				a.scrolling = nil
			}
			a.mu.Unlock()
		}
	}
}
