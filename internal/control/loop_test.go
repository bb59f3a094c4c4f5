package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p1stream/p1stream-go/internal/logger"
	"github.com/p1stream/p1stream-go/internal/notifybus"
	"github.com/p1stream/p1stream-go/internal/object"
	"github.com/p1stream/p1stream-go/internal/plugin"
)

// fakePlugin is the minimal plugin.Plugin used to drive the loop in tests;
// it also records every Notify call so fan-out can be asserted.
type fakePlugin struct {
	obj      *object.Object
	started  int
	stopped  int
	notifies []object.Notification
	startErr error
}

func (f *fakePlugin) Object() *object.Object                  { return f.obj }
func (f *fakePlugin) Config(cfg plugin.ConfigReader) error    { return nil }
func (f *fakePlugin) Notify(n object.Notification)            { f.notifies = append(f.notifies, n) }
func (f *fakePlugin) Start() error {
	f.started++
	if f.startErr != nil {
		return f.startErr
	}
	f.obj.Lock()
	f.obj.SetCurrentLocked(object.Running)
	f.obj.Unlock()
	return nil
}
func (f *fakePlugin) Stop() {
	f.stopped++
	f.obj.Lock()
	f.obj.SetCurrentLocked(object.Idle)
	f.obj.Unlock()
}
func (f *fakePlugin) Free() {}

func newFakePlugin(kind object.Kind, id string, bus *notifybus.Bus) *fakePlugin {
	p := &fakePlugin{}
	p.obj = object.New(kind, id, nil, bus)
	return p
}

func TestLoopStartsReadyPlugin(t *testing.T) {
	bus := notifybus.New(16, 16, logger.Logger())
	loop := NewLoop(bus, logger.Logger())

	p := newFakePlugin(object.KindAudioSource, "src-1", bus)
	loop.Register(p)

	p.obj.Lock()
	p.obj.SetFlagLocked(object.FlagConfigValid | object.FlagCanStart)
	p.obj.NotifyLocked()
	p.obj.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	require.Eventually(t, func() bool { return p.started == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, object.Running, p.obj.State().Current)
}

func TestLoopStopsOnTargetIdle(t *testing.T) {
	bus := notifybus.New(16, 16, logger.Logger())
	loop := NewLoop(bus, logger.Logger())

	p := newFakePlugin(object.KindAudioMixer, "am-1", bus)
	loop.Register(p)

	p.obj.Lock()
	p.obj.SetFlagLocked(object.FlagConfigValid | object.FlagCanStart)
	p.obj.SetCurrentLocked(object.Running)
	p.obj.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	p.obj.SetTarget(object.TargetIdle)

	require.Eventually(t, func() bool { return p.stopped == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, object.Idle, p.obj.State().Current)
}

func TestLoopFlipsRestartToRunningOnceIdle(t *testing.T) {
	bus := notifybus.New(16, 16, logger.Logger())
	loop := NewLoop(bus, logger.Logger())

	p := newFakePlugin(object.KindVideoMixer, "vm-1", bus)
	loop.Register(p)

	p.obj.Lock()
	p.obj.SetFlagLocked(object.FlagConfigValid | object.FlagCanStart)
	p.obj.NotifyLocked()
	p.obj.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	p.obj.SetTarget(object.TargetRestart)

	require.Eventually(t, func() bool { return p.obj.State().Target == object.TargetRunning }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return p.started >= 1 }, time.Second, time.Millisecond)
}

func TestLoopBroadcastsNotificationsToPeersExcludingSelf(t *testing.T) {
	bus := notifybus.New(16, 16, logger.Logger())
	loop := NewLoop(bus, logger.Logger())

	a := newFakePlugin(object.KindVideoMixer, "vm-2", bus)
	b := newFakePlugin(object.KindVideoSource, "vs-1", bus)
	loop.Register(a)
	loop.Register(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	a.obj.Lock()
	a.obj.SetFlagLocked(object.FlagResync)
	a.obj.NotifyLocked()
	a.obj.Unlock()

	require.Eventually(t, func() bool { return len(b.notifies) == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, a.notifies, "a must not receive its own notification")
}
