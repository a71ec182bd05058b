package player

import (
	"errors"
	"math"
	"sync"
	"time"

	"dubsync/internal/playback"
)

// ErrClosed is returned by transport calls on a closed element.
var ErrClosed = errors.New("player: element closed")

// DefaultTickInterval is how often a playing Clock reports its position.
const DefaultTickInterval = 250 * time.Millisecond

// outputs receives transport changes so a Clock can drive real playback.
type outputs interface {
	start(position float64, muted bool) error
	stop() error
}

// Clock is a playback.Element whose position advances with wall-clock time.
type Clock struct {
	mu       sync.Mutex
	duration float64
	base     float64
	started  time.Time
	paused   bool
	muted    bool
	ended    bool
	closed   bool
	tick     time.Duration
	now      func() time.Time
	out      outputs

	events    chan playback.Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClock returns a paused Clock positioned at zero.
func NewClock(duration float64, tick time.Duration) *Clock {
	return newClock(duration, tick, nil)
}

func newClock(duration float64, tick time.Duration, out outputs) *Clock {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	c := &Clock{
		duration: math.Max(duration, 0),
		paused:   true,
		tick:     tick,
		now:      time.Now,
		out:      out,
		events:   make(chan playback.Event, 32),
		done:     make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *Clock) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.paused {
		return nil
	}
	if c.out != nil {
		if err := c.out.start(c.base, c.muted); err != nil {
			return err
		}
	}
	c.paused = false
	c.ended = false
	c.started = c.now()
	return nil
}

func (c *Clock) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return nil
	}
	c.base = c.positionLocked()
	c.paused = true
	if c.out != nil {
		return c.out.stop()
	}
	return nil
}

func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Clock) Seek(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.base = math.Min(math.Max(seconds, 0), c.duration)
	c.ended = false
	if c.paused {
		return nil
	}
	c.started = c.now()
	return c.restartLocked()
}

func (c *Clock) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.muted == muted {
		return nil
	}
	c.muted = muted
	if c.paused {
		return nil
	}
	c.base = c.positionLocked()
	c.started = c.now()
	return c.restartLocked()
}

func (c *Clock) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *Clock) Duration() float64 {
	return c.duration
}

func (c *Clock) Events() <-chan playback.Event {
	return c.events
}

// Close stops the clock and any attached output. The event channel is closed
// once the tick loop exits.
func (c *Clock) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.closed = true
		if !c.paused && c.out != nil {
			err = c.out.stop()
		}
		c.base = c.positionLocked()
		c.paused = true
		c.mu.Unlock()
		c.wg.Wait()
		close(c.events)
	})
	return err
}

// spawn runs fn as part of the clock's lifetime; Close waits for it before
// closing the event channel. Callers must hold c.mu on an open clock.
func (c *Clock) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// fail reports a playback error to the consumer and pauses the clock.
func (c *Clock) fail(err error) {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return
	}
	c.base = c.positionLocked()
	c.paused = true
	pos := c.base
	c.mu.Unlock()
	c.deliver(playback.Event{Type: playback.EventError, Position: pos, Err: err})
}

func (c *Clock) restartLocked() error {
	if c.out == nil {
		return nil
	}
	if err := c.out.stop(); err != nil {
		return err
	}
	return c.out.start(c.base, c.muted)
}

func (c *Clock) positionLocked() float64 {
	if c.paused {
		return c.base
	}
	elapsed := c.now().Sub(c.started).Seconds()
	return math.Min(c.base+elapsed, c.duration)
}

func (c *Clock) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.paused || c.ended {
			c.mu.Unlock()
			continue
		}
		pos := c.positionLocked()
		if pos < c.duration {
			c.mu.Unlock()
			select {
			case c.events <- playback.Event{Type: playback.EventTimeAdvance, Position: pos}:
			default:
			}
			continue
		}
		c.base = c.duration
		c.paused = true
		c.ended = true
		var stopErr error
		if c.out != nil {
			stopErr = c.out.stop()
		}
		c.mu.Unlock()
		if stopErr != nil {
			c.deliver(playback.Event{Type: playback.EventError, Position: pos, Err: stopErr})
			continue
		}
		c.deliver(playback.Event{Type: playback.EventEnded, Position: pos})
	}
}

// deliver blocks until the event is consumed or the clock is closed.
func (c *Clock) deliver(evt playback.Event) {
	select {
	case c.events <- evt:
	case <-c.done:
	}
}

var _ playback.Element = (*Clock)(nil)
