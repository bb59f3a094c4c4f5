// Package pipelinectx implements the root Context described in the
// original's P1Context: the object that owns the three fixed subsystems
// (VideoMixer, AudioMixer, Connection), the plugin lists (VideoClock,
// VideoSources, AudioSources), the notification bus, and the control loop
// that drives every one of them. It is grounded on p1stream.h's
// struct _P1Context plus the teacher's Server struct, which plays the same
// "owns subsystems, does start/stop/Close lifecycle" role for an RTMP
// server instead of a capture pipeline.
//
// Supervision uses thejerf/suture/v4 for the Context's long-running
// services: the control loop, the diagnostics sampler and the automation
// hook manager each run as a suture service with restart-on-failure. The
// fixed subsystems and plugins are not suture services themselves; the
// control loop drives their start()/stop() from bus notifications.
package pipelinectx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/p1stream/p1stream-go/internal/audiomixer"
	"github.com/p1stream/p1stream-go/internal/automation"
	"github.com/p1stream/p1stream-go/internal/control"
	"github.com/p1stream/p1stream-go/internal/diag"
	"github.com/p1stream/p1stream-go/internal/logger"
	"github.com/p1stream/p1stream-go/internal/notifybus"
	"github.com/p1stream/p1stream-go/internal/object"
	"github.com/p1stream/p1stream-go/internal/plugin"
	"github.com/p1stream/p1stream-go/internal/timebase"
	"github.com/p1stream/p1stream-go/internal/videoclock"
	"github.com/p1stream/p1stream-go/internal/videomixer"
)

// FreeOptions mirrors P1FreeOptions: a bitmask of which collaborators
// Close releases in addition to the context's own fixed subsystems.
type FreeOptions uint8

const (
	FreeOnlySelf     FreeOptions = 0
	FreeVideoClock   FreeOptions = 1 << 0
	FreeVideoSources FreeOptions = 1 << 1
	FreeAudioSources FreeOptions = 1 << 2
	FreeEverything   FreeOptions = FreeVideoClock | FreeVideoSources | FreeAudioSources
)

// Context is the root object. It owns the bus, the control loop, the three
// fixed subsystems, and the registered plugin lists.
type Context struct {
	obj  *object.Object
	bus  *notifybus.Bus
	loop *control.Loop
	sup  *suture.Supervisor

	video *videomixer.VideoMixer
	audio *audiomixer.AudioMixer
	conn  plugin.Connection

	mu        sync.Mutex
	clock     *videoclock.Clock
	videoSrcs map[string]plugin.VideoSource
	audioSrcs map[string]plugin.AudioSource
	supCancel context.CancelFunc
	supDone   chan struct{}

	automation *automation.Manager
}

// New wires the three fixed subsystems into one Context, ready for Config
// and then Start. bus is the notification bus every plugin passed to this
// Context (conn, and later any VideoClock/VideoSource/AudioSource added
// through AddVideoSource/AddAudioSource/SetVideoClock) must itself have been
// constructed against — the control loop only reacts to notifications that
// arrive on this exact bus, so a plugin built against a different Publisher
// would never be driven to Running. conn is the out-of-scope egress
// collaborator (RTMP connection, test recorder, ...); tb is the host
// clock's tick/nanosecond ratio; makeEnc constructs the AAC encoder the
// AudioMixer drains into, another out-of-scope collaborator supplied by
// whatever binds a real encoder in.
func New(bus *notifybus.Bus, id string, conn plugin.Connection, tb timebase.Timebase, makeEnc audiomixer.EncoderFactory) *Context {
	c := &Context{
		bus:       bus,
		conn:      conn,
		videoSrcs: make(map[string]plugin.VideoSource),
		audioSrcs: make(map[string]plugin.AudioSource),
	}
	c.obj = object.New(object.KindContext, id, nil, bus)
	c.video = videomixer.New(id+"/video", c, bus, conn)
	c.audio = audiomixer.New(id+"/audio", c, bus, conn, tb, makeEnc)
	c.loop = control.NewLoop(bus, logger.Logger())
	c.loop.Register(c.video)
	c.loop.Register(c.audio)
	c.loop.Register(conn)
	c.automation = automation.NewManager(bus, automation.DefaultConfig(), logger.Logger())
	return c
}

// Bus exposes the notification bus for the host's pollable reader.
func (c *Context) Bus() *notifybus.Bus { return c.bus }

// Automation exposes the hook manager so the host can register shell/
// webhook/stdio hooks against Object state transitions before Start.
func (c *Context) Automation() *automation.Manager { return c.automation }

// Video and Audio expose the fixed subsystems for direct configuration
// plumbing (e.g. registering sources discovered by a capture backend).
func (c *Context) Video() *videomixer.VideoMixer { return c.video }
func (c *Context) Audio() *audiomixer.AudioMixer { return c.audio }

// SetVideoClock installs the video clock. Per the original's own comment,
// "only modify this when the video mixer is idle."
func (c *Context) SetVideoClock(clock *videoclock.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
	c.loop.Register(clock)
}

// AddVideoSource / AddAudioSource register a source with both the loop (for
// start/stop driving and fan-out) and the owning mixer (for composition /
// mixing).
func (c *Context) AddVideoSource(src plugin.VideoSource) {
	c.mu.Lock()
	c.videoSrcs[src.Object().ID()] = src
	c.mu.Unlock()
	c.video.RegisterSource(src)
	c.loop.Register(src)
}

func (c *Context) AddAudioSource(src plugin.AudioSource) {
	c.mu.Lock()
	c.audioSrcs[src.Object().ID()] = src
	c.mu.Unlock()
	c.audio.RegisterSource(src)
	c.loop.Register(src)
}

// Start launches the control loop and the suture supervision tree, then
// sets every fixed subsystem's target to Running; the loop takes it from
// there. Start returns once supervision is running, not once every
// subsystem has reached Running (that is asynchronous, observed via the
// bus, per §4.c).
func (c *Context) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.supCancel = cancel
	c.supDone = done
	c.mu.Unlock()

	c.sup = suture.New(c.obj.ID(), suture.Spec{
		EventHook: func(e suture.Event) { log().Debug("supervisor event", "event", e.String()) },
	})
	c.sup.Add(loopService{c.loop})
	c.sup.Add(diag.New(log(), 10*time.Second))
	c.sup.Add(c.automation)

	go func() {
		defer close(done)
		_ = c.sup.Serve(ctx)
	}()

	c.obj.Lock()
	c.obj.SetCurrentLocked(object.Running)
	c.obj.Unlock()

	c.video.Object().SetTarget(object.TargetRunning)
	c.audio.Object().SetTarget(object.TargetRunning)
	c.conn.Object().SetTarget(object.TargetRunning)
	c.mu.Lock()
	if c.clock != nil {
		c.clock.Object().SetTarget(object.TargetRunning)
	}
	c.mu.Unlock()
}

// Stop sets every subsystem's target to Idle and cancels the supervision
// tree's context. blocking selects between P1_STOP_ASYNC (return
// immediately) and P1_STOP_SYNC (block until the supervisor has exited).
func (c *Context) Stop(blocking bool) {
	c.video.Object().SetTarget(object.TargetIdle)
	c.audio.Object().SetTarget(object.TargetIdle)
	c.conn.Object().SetTarget(object.TargetIdle)
	c.mu.Lock()
	if c.clock != nil {
		c.clock.Object().SetTarget(object.TargetIdle)
	}
	cancel := c.supCancel
	done := c.supDone
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if blocking && done != nil {
		<-done
	}

	c.obj.Lock()
	c.obj.SetCurrentLocked(object.Idle)
	c.obj.Unlock()
}

// Close releases the fixed subsystems and, per opts, the registered
// plugins too — the Go analogue of p1_free(ctx, options). Call only after
// Stop has returned (sync) or the Idle notification has been observed.
func (c *Context) Close(opts FreeOptions) {
	c.video.Free()
	c.audio.Free()
	c.conn.Free()
	_ = c.automation.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if opts&FreeVideoClock != 0 && c.clock != nil {
		c.clock.Free()
		c.clock = nil
	}
	if opts&FreeVideoSources != 0 {
		for id, src := range c.videoSrcs {
			src.Free()
			delete(c.videoSrcs, id)
		}
	}
	if opts&FreeAudioSources != 0 {
		for id, src := range c.audioSrcs {
			src.Free()
			delete(c.audioSrcs, id)
		}
	}
}

func log() *slog.Logger { return logger.Logger() }
