// Package videoclock implements the VideoClock plugin described in §4.e: a
// plugin that, once Running, schedules ticks at fps_num/fps_den Hz on a
// dedicated goroutine (the "clock thread" in spec terms) and calls
// VideoMixer.Tick on every one. It is grounded on the original's
// P1VideoClock base (p1stream.h) and its concrete OSX CVDisplayLink/
// DisplayLink subclasses, generalized to a plain ticker since no display-
// link binding ships in this module's reference code.
package videoclock

import (
	"context"
	"fmt"
	"sync"
	"time"

	rerrors "github.com/p1stream/p1stream-go/internal/errors"
	"github.com/p1stream/p1stream-go/internal/object"
	"github.com/p1stream/p1stream-go/internal/plugin"
)

// Ticker is the collaborator VideoClock drives on every scheduled tick.
type Ticker interface {
	Tick(hostTime int64)
}

// Clock is the concrete §4.e VideoClock. baseFPSNum/baseFPSDen is the raw
// rate reported by the underlying source (e.g. the display's refresh rate);
// the divisor configuration option divides it down.
type Clock struct {
	obj       *object.Object
	sink      Ticker
	baseNum   uint32
	baseDen   uint32
	now       func() int64 // host time source, overridable for tests

	mu       sync.Mutex
	divisor  uint32
	fpsNum   uint32
	fpsDen   uint32
	cancel   context.CancelFunc
	stopped  chan struct{}
}

// New constructs a Clock. sink receives Tick calls; baseNum/baseDen is the
// clock's native, undivided frame rate.
func New(id string, owner any, bus object.Publisher, sink Ticker, baseNum, baseDen uint32) *Clock {
	c := &Clock{
		sink:    sink,
		baseNum: baseNum,
		baseDen: baseDen,
		divisor: 1,
		now:     func() int64 { return time.Now().UnixNano() },
	}
	c.obj = object.New(object.KindVideoClock, id, owner, bus)
	return c
}

func (c *Clock) Object() *object.Object { return c.obj }

// FPS returns the divisor-adjusted rate, valid once Running, per §4.c's
// VideoClock contract.
func (c *Clock) FPS() (num, den uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fpsNum, c.fpsDen
}

// Config reads the divisor option: an integer >= 1, default 1 (§6's table).
func (c *Clock) Config(cfg plugin.ConfigReader) error {
	divisor := uint32(1)
	if v, ok := cfg.GetUint32("divisor"); ok {
		divisor = v
	}

	c.obj.Lock()
	defer c.obj.Unlock()

	if divisor < 1 {
		c.obj.ClearFlagLocked(object.FlagConfigValid)
		c.obj.NotifyLocked()
		return rerrors.NewConfigError("videoclock.config", fmt.Errorf("divisor must be >= 1, got %d", divisor))
	}

	c.mu.Lock()
	c.divisor = divisor
	c.mu.Unlock()

	c.obj.SetFlagLocked(object.FlagConfigValid | object.FlagCanStart)
	c.obj.NotifyLocked()
	return nil
}

// Notify is a no-op: the clock has no peer-state start prerequisite beyond
// what Config already latches.
func (c *Clock) Notify(n object.Notification) {}

// Start computes the divided rate — "a divisor configuration option skips
// ticks... and divides fps_den accordingly; the reported rate must match
// the actual delivery rate" — and launches the clock thread.
func (c *Clock) Start() error {
	c.mu.Lock()
	num, den := c.baseNum, c.baseDen*c.divisor
	c.fpsNum, c.fpsDen = num, den
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.stopped = make(chan struct{})
	stopped := c.stopped
	c.mu.Unlock()

	if num == 0 || den == 0 {
		c.obj.Lock()
		c.obj.SetFlagLocked(object.FlagError)
		c.obj.SetCurrentLocked(object.Idle)
		c.obj.Unlock()
		return rerrors.NewOperationalError("videoclock.start", fmt.Errorf("invalid rate %d/%d", num, den))
	}

	period := time.Duration(int64(time.Second) * int64(den) / int64(num))
	go c.run(ctx, period, stopped)

	c.obj.Lock()
	c.obj.SetCurrentLocked(object.Running)
	c.obj.Unlock()
	return nil
}

// run is the clock thread: it ticks at period until ctx is cancelled, then
// signals stopped once no further tick will fire — "on stop, the clock
// thread drains and only then announces Idle."
func (c *Clock) run(ctx context.Context, period time.Duration, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sink.Tick(c.now())
		}
	}
}

// Stop cancels the clock thread and blocks until it has drained, then
// announces Idle, matching the original's stop-then-drain-then-Idle order.
func (c *Clock) Stop() {
	c.obj.Lock()
	c.obj.SetCurrentLocked(object.Stopping)
	c.obj.Unlock()

	c.mu.Lock()
	cancel := c.cancel
	stopped := c.stopped
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if stopped != nil {
		<-stopped
	}

	c.obj.Lock()
	c.obj.SetCurrentLocked(object.Idle)
	c.obj.Unlock()
}

func (c *Clock) Free() {}
