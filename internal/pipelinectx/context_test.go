package pipelinectx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p1stream/p1stream-go/internal/audiomixer"
	"github.com/p1stream/p1stream-go/internal/logger"
	"github.com/p1stream/p1stream-go/internal/notifybus"
	"github.com/p1stream/p1stream-go/internal/object"
	"github.com/p1stream/p1stream-go/internal/plugin"
	"github.com/p1stream/p1stream-go/internal/timebase"
)

type stubConfig struct{ ints map[string]int }

func (c stubConfig) GetString(string) (string, bool) { return "", false }
func (c stubConfig) GetInt(key string) (int, bool)   { v, ok := c.ints[key]; return v, ok }
func (c stubConfig) GetUint32(string) (uint32, bool) { return 0, false }
func (c stubConfig) GetFloat(string) (float32, bool) { return 0, false }
func (c stubConfig) GetBool(string) (bool, bool)     { return false, false }
func (c stubConfig) EachString(string, func(string, string) bool) {}

type fakeConnection struct {
	obj *object.Object
}

func newFakeConnection(bus object.Publisher) *fakeConnection {
	c := &fakeConnection{}
	c.obj = object.New(object.KindConnection, "conn-1", nil, bus)
	return c
}

func (c *fakeConnection) Object() *object.Object           { return c.obj }
func (c *fakeConnection) Notify(object.Notification)       {}
func (c *fakeConnection) Free()                             {}
func (c *fakeConnection) Config(plugin.ConfigReader) error {
	c.obj.Lock()
	c.obj.SetFlagLocked(object.FlagConfigValid | object.FlagCanStart)
	c.obj.NotifyLocked()
	c.obj.Unlock()
	return nil
}
func (c *fakeConnection) Start() error {
	c.obj.Lock()
	c.obj.SetCurrentLocked(object.Running)
	c.obj.Unlock()
	return nil
}
func (c *fakeConnection) Stop() {
	c.obj.Lock()
	c.obj.SetCurrentLocked(object.Idle)
	c.obj.Unlock()
}
func (c *fakeConnection) AudioConfig(int, int) error                  { return nil }
func (c *fakeConnection) Audio(int64, []byte) error                   { return nil }
func (c *fakeConnection) VideoConfig(int, int) error                  { return nil }
func (c *fakeConnection) Video(int64, *plugin.Picture) error          { return nil }

type passthroughEncoder struct{}

func (passthroughEncoder) Encode(pcm []int16, out []byte) (int, int, error) { return 0, 0, nil }
func (passthroughEncoder) Close() error                                    { return nil }

func TestContextDrivesFixedSubsystemsToRunning(t *testing.T) {
	bus := notifybus.New(0, 0, logger.Logger())
	conn := newFakeConnection(bus)
	ctx := New(bus, "ctx-1", conn, timebase.Identity(), func() (audiomixer.Encoder, error) {
		return passthroughEncoder{}, nil
	})

	require.NoError(t, conn.Config(nil))
	require.NoError(t, ctx.Video().Config(stubConfig{ints: map[string]int{"video-width": 4, "video-height": 4}}))
	require.NoError(t, ctx.Audio().Config(nil))

	ctx.Start()
	defer ctx.Stop(true)

	require.Eventually(t, func() bool {
		return conn.Object().State().Current == object.Running
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return ctx.Video().Object().State().Current == object.Running
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return ctx.Audio().Object().State().Current == object.Running
	}, time.Second, time.Millisecond)
}

func TestContextStopReturnsSubsystemsToIdle(t *testing.T) {
	bus := notifybus.New(0, 0, logger.Logger())
	conn := newFakeConnection(bus)
	ctx := New(bus, "ctx-2", conn, timebase.Identity(), func() (audiomixer.Encoder, error) {
		return passthroughEncoder{}, nil
	})

	require.NoError(t, conn.Config(nil))
	require.NoError(t, ctx.Video().Config(stubConfig{ints: map[string]int{"video-width": 4, "video-height": 4}}))
	require.NoError(t, ctx.Audio().Config(nil))

	ctx.Start()
	require.Eventually(t, func() bool {
		return ctx.Video().Object().State().Current == object.Running
	}, time.Second, time.Millisecond)

	ctx.Stop(true)

	assert.Equal(t, object.Idle, ctx.Video().Object().State().Current)
	assert.Equal(t, object.Idle, ctx.Audio().Object().State().Current)
	assert.Equal(t, object.Idle, conn.Object().State().Current)
}
