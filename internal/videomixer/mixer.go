// Package videomixer implements the VideoMixer described in §4.g: a clock-
// driven compositor that draws every linked VideoSource onto an offscreen
// target, converts the result to planar I420, and hands the picture to the
// Connection. It is a direct port of the original's p1_video_tick /
// p1_video_start pair (video.c), with the GPU/OpenCL resource graph
// (context, shaders, interop texture, compute kernel) replaced by an
// equivalent in-process software path: none of the reference code this
// module is grounded on ships a real GPU or OpenCL binding, so the
// composition and colour conversion happen on the CPU in the same order the
// original acquired and drove its GPU resources.
package videomixer

import (
	"fmt"
	"log/slog"
	"sync"

	rerrors "github.com/p1stream/p1stream-go/internal/errors"
	"github.com/p1stream/p1stream-go/internal/logger"
	"github.com/p1stream/p1stream-go/internal/object"
	"github.com/p1stream/p1stream-go/internal/plugin"
)

// sourceEntry is the mixer-owned bookkeeping for one linked VideoSource: the
// texture the source uploads into (allocated on link, per "Link / unlink
// source") and the rectangles used during composition.
type sourceEntry struct {
	src     plugin.VideoSource
	texture *plugin.Texture
	linked  bool
}

// VideoMixer is the concrete §4.g implementation.
type VideoMixer struct {
	obj  *object.Object
	conn plugin.Connection

	mu        sync.Mutex
	width     int
	height    int
	running   bool
	target    []byte // opaque-black-cleared RGBA render target, width*height*4
	pic       *plugin.Picture
	preview   plugin.PreviewFunc
	previewUD any

	// sources preserves insertion order, per step 3's "in insertion order".
	order   []string
	sources map[string]*sourceEntry
}

// New constructs a VideoMixer. conn is the egress collaborator that receives
// VideoConfig/Video calls.
func New(id string, owner any, bus object.Publisher, conn plugin.Connection) *VideoMixer {
	m := &VideoMixer{
		conn:    conn,
		sources: make(map[string]*sourceEntry),
	}
	m.obj = object.New(object.KindVideoMixer, id, owner, bus)
	return m
}

func (m *VideoMixer) Object() *object.Object { return m.obj }

// Config validates video-width/video-height per §6's table: required, must
// be even. The original's own evenness check compiled to a no-op (testing
// `% 1`, which is always zero); this enforces the dimension constraint the
// table actually states.
func (m *VideoMixer) Config(cfg plugin.ConfigReader) error {
	width, wok := cfg.GetInt("video-width")
	height, hok := cfg.GetInt("video-height")

	m.obj.Lock()
	defer m.obj.Unlock()

	if !wok || !hok || width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		m.obj.ClearFlagLocked(object.FlagConfigValid)
		m.obj.NotifyLocked()
		return rerrors.NewConfigError("videomixer.config", fmt.Errorf("video-width/video-height must be positive and even, got %dx%d", width, height))
	}

	m.mu.Lock()
	changed := m.width != width || m.height != height
	m.width, m.height = width, height
	m.mu.Unlock()

	m.obj.SetFlagLocked(object.FlagConfigValid | object.FlagCanStart)
	if changed && m.obj.CurrentLocked() == object.Running {
		m.obj.SetFlagLocked(object.FlagNeedsRestart)
	}
	m.obj.NotifyLocked()
	return nil
}

// Notify links or unlinks a source's texture when it observes the source's
// own state transition, and otherwise ignores peer changes; this is the
// VideoMixer's half of the control loop's generic fan-out rule.
func (m *VideoMixer) Notify(n object.Notification) {
	if n.Object.Kind() != object.KindVideoSource {
		return
	}

	m.mu.Lock()
	entry, ok := m.sources[n.Object.ID()]
	running := m.running
	m.mu.Unlock()
	if !ok {
		return
	}

	switch {
	case n.State.Current == object.Running && running:
		m.linkSource(entry)
	case n.State.Current != object.Running:
		m.unlinkSource(entry)
	}
}

// RegisterSource records src as a mixer input in insertion order. Linking
// (texture allocation) happens separately, driven by state notifications,
// per "Link / unlink source".
func (m *VideoMixer) RegisterSource(src plugin.VideoSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := src.Object().ID()
	if _, exists := m.sources[id]; exists {
		return
	}
	m.sources[id] = &sourceEntry{src: src}
	m.order = append(m.order, id)
}

// UnregisterSource drops src entirely, e.g. once its owning plugin is freed.
func (m *VideoMixer) UnregisterSource(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// SetPreview installs the optional preview hook (§6's "Preview hook").
func (m *VideoMixer) SetPreview(fn plugin.PreviewFunc, userData any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preview = fn
	m.previewUD = userData
}

func (m *VideoMixer) linkSource(e *sourceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.linked {
		return
	}
	e.texture = &plugin.Texture{Width: m.width, Height: m.height, Pixels: make([]byte, m.width*m.height*4)}
	e.linked = true
}

// unlinkSource frees the texture per "upon teardown the mixer zeroes every
// source's handle without necessarily issuing a GPU delete": there is no
// GPU delete to issue here, so dropping the reference is the whole of it.
func (m *VideoMixer) unlinkSource(e *sourceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.texture = nil
	e.linked = false
}

// Start allocates the render target and I420 picture buffer and transitions
// Running, in the same acquire-then-commit order the original's GPU/compute
// resource chain used (context, target, shaders, queue, kernel, interop,
// commit) — collapsed here to the two buffers a software path actually
// needs.
func (m *VideoMixer) Start() error {
	m.mu.Lock()
	w, h := m.width, m.height
	if w <= 0 || h <= 0 || w%2 != 0 || h%2 != 0 {
		m.mu.Unlock()
		m.obj.Lock()
		m.obj.SetFlagLocked(object.FlagError)
		m.obj.SetCurrentLocked(object.Idle)
		m.obj.Unlock()
		return rerrors.NewOperationalError("videomixer.start", fmt.Errorf("invalid dimensions %dx%d", w, h))
	}

	m.target = make([]byte, w*h*4)
	m.pic = &plugin.Picture{
		Width:  w,
		Height: h,
		Y:      make([]byte, w*h),
		U:      make([]byte, (w/2)*(h/2)),
		V:      make([]byte, (w/2)*(h/2)),
	}
	m.running = true
	m.mu.Unlock()

	m.obj.Lock()
	m.obj.SetCurrentLocked(object.Running)
	m.obj.Unlock()
	return nil
}

// Stop releases the render target and I420 buffer (reverse of Start's
// acquisition) and unlinks every source.
func (m *VideoMixer) Stop() {
	m.obj.Lock()
	m.obj.SetCurrentLocked(object.Stopping)
	m.obj.Unlock()

	m.mu.Lock()
	m.running = false
	for _, e := range m.sources {
		e.texture = nil
		e.linked = false
	}
	m.target = nil
	m.pic = nil
	m.mu.Unlock()

	m.obj.Lock()
	m.obj.SetCurrentLocked(object.Idle)
	m.obj.Unlock()
}

func (m *VideoMixer) Free() {}

// Tick implements the seven-step §4.g tick(host_time) sequence.
func (m *VideoMixer) Tick(hostTime int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Step 1: if not Running, return without composing.
	if !m.running {
		return
	}

	// Step 2: clear the target to opaque black.
	clearOpaqueBlack(m.target)

	// Step 3/4: composite every linked, Running source in insertion order;
	// a single failing source aborts the tick and halts the mixer (V3).
	for _, id := range m.order {
		e := m.sources[id]
		if !e.linked || e.texture == nil {
			continue
		}
		if e.src.Object().State().Current != object.Running {
			continue
		}
		if err := e.src.Frame(e.texture); err != nil {
			log().Error("video source frame failed, aborting tick", "object_id", id, "error", err)
			m.running = false
			m.obj.Lock()
			m.obj.SetFlagLocked(object.FlagError)
			m.obj.SetCurrentLocked(object.Idle)
			m.obj.Unlock()
			return
		}
		compositeInto(m.target, m.width, m.height, e.texture, e.src.DestRect(), e.src.SrcRect())
	}

	// Step 5: optional preview hook.
	if m.preview != nil {
		m.preview(m.target, m.previewUD)
	}

	// Step 6: colour-convert and deliver if the Connection is Running.
	if m.conn.Object().State().Current == object.Running {
		rgbaToI420(m.target, m.width, m.height, m.pic)
		if err := m.conn.Video(hostTime, m.pic); err != nil {
			log().Error("video delivery failed", "error", err)
		}
	}

	// Step 7: unlock happens via the deferred Unlock above.
}

// clearOpaqueBlack fills an RGBA buffer with (0,0,0,255), the "opaque
// black" step 2 clears the target to.
func clearOpaqueBlack(buf []byte) {
	for i := 0; i < len(buf); i += 4 {
		buf[i+0] = 0
		buf[i+1] = 0
		buf[i+2] = 0
		buf[i+3] = 255
	}
}

func log() *slog.Logger { return logger.Logger() }
