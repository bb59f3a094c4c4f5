// Package audiomixer implements the AudioMixer described in §4.f: a fixed
// sample-rate/channel-count float mix buffer fed by any number of
// AudioSources, drained through an AAC encoder, and handed to the egress
// Connection. It is a direct port of the original's p1_audio_buffer /
// p1_audio_read pair (audio.c), generalized from the file-scope state the
// original used into a per-instance struct per the source's own "must be
// per-instance in the rewrite" note.
package audiomixer

import (
	"log/slog"
	"sync"
	"sync/atomic"

	rerrors "github.com/p1stream/p1stream-go/internal/errors"
	"github.com/p1stream/p1stream-go/internal/logger"
	"github.com/p1stream/p1stream-go/internal/object"
	"github.com/p1stream/p1stream-go/internal/plugin"
	"github.com/p1stream/p1stream-go/internal/timebase"
)

// Fixed parameters, per §3's AudioMixer field list. Non-goals rule out
// arbitrary sample rates, so these are compile-time constants rather than
// configuration.
const (
	SampleRate = 44100
	Channels   = 2
	BitrateBPS = 128000

	// MixBufferSamples is one second of interleaved float audio.
	MixBufferSamples = SampleRate * Channels

	// encOutBufSize is 6144/8 bits-per-channel-max-frame * channels * 64
	// frames of headroom, matching the original's fixed encoder output
	// buffer sizing.
	encOutBufSize = (6144 / 8) * Channels * 64

	// outMin is the free-tail threshold below which drain stops calling the
	// encoder again even if input remains (one worst-case AAC frame).
	outMin = (6144 / 8) * Channels
)

// Encoder is the AAC encoding collaborator. No AAC codec binding ships in
// this module (none of the retrieved reference code wraps one); concrete
// implementations live outside this package, e.g. a cgo binding to an
// installed encoder library, making Encoder the same kind of out-of-scope
// collaborator boundary the spec draws around the RTMP Connection itself.
type Encoder interface {
	// Encode consumes a prefix of pcm and appends encoded bytes to out,
	// returning how many input samples and output bytes it produced.
	// Returning consumed==0 && produced==0 signals drain to stop for this
	// pass (not enough input buffered, or output space exhausted).
	Encode(pcm []int16, out []byte) (consumed, produced int, err error)
	Close() error
}

// EncoderFactory constructs a fresh Encoder for one Start/Stop session.
type EncoderFactory func() (Encoder, error)

type sourceEntry struct {
	src    plugin.AudioSource
	mixPos int
}

// AudioMixer is the concrete §4.f implementation.
type AudioMixer struct {
	obj     *object.Object
	tb      timebase.Timebase
	conn    plugin.Connection
	makeEnc EncoderFactory

	// sentConfig tracks whether conn.AudioConfig has been sent for the
	// current session. It is read/written outside m.mu (via CompareAndSwap)
	// precisely so the mutating call into conn can happen before m.mu is
	// acquired; see Buffer.
	sentConfig atomic.Bool

	mu      sync.Mutex
	mix     []float32
	encIn   []int16
	out     []byte
	outUsed int
	encoder Encoder
	t0      int64
	sources map[string]*sourceEntry
}

// New constructs an AudioMixer. conn is the egress collaborator that
// receives AudioConfig/Audio calls; tb converts host ticks to durations for
// the t0/mix_pos bookkeeping.
func New(id string, owner any, bus object.Publisher, conn plugin.Connection, tb timebase.Timebase, makeEnc EncoderFactory) *AudioMixer {
	m := &AudioMixer{
		conn:    conn,
		tb:      tb,
		makeEnc: makeEnc,
		mix:     make([]float32, MixBufferSamples),
		encIn:   make([]int16, MixBufferSamples),
		out:     make([]byte, encOutBufSize),
		sources: make(map[string]*sourceEntry),
	}
	m.obj = object.New(object.KindAudioMixer, id, owner, bus)
	return m
}

func (m *AudioMixer) Object() *object.Object { return m.obj }

// Config has no mixer-specific keys (sample rate, channels and bitrate are
// fixed); it simply marks the object configured.
func (m *AudioMixer) Config(cfg plugin.ConfigReader) error {
	m.obj.Lock()
	m.obj.SetFlagLocked(object.FlagConfigValid | object.FlagCanStart)
	m.obj.NotifyLocked()
	m.obj.Unlock()
	return nil
}

// Notify is a no-op: the AudioMixer has no peer-state start prerequisite
// beyond the ConfigValid/CanStart pair Config already latches. Sources gate
// on the mixer's Running state themselves (symmetric to how VideoSource
// gates on VideoMixer).
func (m *AudioMixer) Notify(n object.Notification) {}

// Start allocates a fresh encoder and resets the mix buffer.
func (m *AudioMixer) Start() error {
	enc, err := m.makeEnc()
	if err != nil {
		m.obj.Lock()
		m.obj.SetFlagLocked(object.FlagError)
		m.obj.SetCurrentLocked(object.Idle)
		m.obj.Unlock()
		return rerrors.NewOperationalError("audiomixer.start", err)
	}

	m.sentConfig.Store(false)

	m.mu.Lock()
	m.encoder = enc
	m.t0 = 0
	m.outUsed = 0
	for i := range m.mix {
		m.mix[i] = 0
	}
	for _, e := range m.sources {
		e.mixPos = 0
	}
	m.mu.Unlock()

	m.obj.Lock()
	m.obj.SetCurrentLocked(object.Running)
	m.obj.Unlock()
	return nil
}

// Stop closes the encoder and releases the session.
func (m *AudioMixer) Stop() {
	m.obj.Lock()
	m.obj.SetCurrentLocked(object.Stopping)
	m.obj.Unlock()

	m.mu.Lock()
	if m.encoder != nil {
		_ = m.encoder.Close()
		m.encoder = nil
	}
	m.mu.Unlock()

	m.obj.Lock()
	m.obj.SetCurrentLocked(object.Idle)
	m.obj.Unlock()
}

func (m *AudioMixer) Free() {}

// RegisterSource attaches src's bookkeeping entry. Safe to call whether or
// not the mixer is Running.
func (m *AudioMixer) RegisterSource(src plugin.AudioSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[src.Object().ID()] = &sourceEntry{src: src}
}

// UnregisterSource removes src's bookkeeping, e.g. once it reaches Idle for
// good.
func (m *AudioMixer) UnregisterSource(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, id)
}

// Buffer implements §4.f's buffer(src, t, in, n): the entry point any audio
// capture thread calls with freshly captured interleaved float samples.
func (m *AudioMixer) Buffer(src plugin.AudioSource, hostTime int64, in []float32) {
	if m.obj.State().Current != object.Running {
		return
	}
	if m.conn.Object().State().Current != object.Running {
		return
	}

	// conn.AudioConfig is a mutating call into another object and must not be
	// made while holding m.mu (§4.b); sentConfig's CompareAndSwap makes the
	// "send it exactly once per session" decision race-free without the
	// mixer lock's help, matching audio.c's p1_conn_audio_config call before
	// pthread_mutex_lock(&audio->lock).
	if m.sentConfig.CompareAndSwap(false, true) {
		if err := m.conn.AudioConfig(SampleRate, Channels); err != nil {
			log().Error("audio config failed", "error", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sources[src.Object().ID()]
	if !ok {
		entry = &sourceEntry{src: src}
		m.sources[src.Object().ID()] = entry
	}

	if src.Master() {
		m.t0 = hostTime - m.tb.SamplesToTicks(entry.mixPos, Channels, SampleRate)
	}

	remaining := in
	for len(remaining) > 0 {
		free := MixBufferSamples - entry.mixPos
		if free <= 0 {
			overflow := rerrors.NewOverflowError("audiomixer.buffer", nil)
			log().Warn(overflow.Error(), "object_id", src.Object().ID(), "dropped_samples", len(remaining))
			break
		}
		n := len(remaining)
		if n > free {
			n = free
		}
		vol := src.Volume()
		base := entry.mixPos
		for i := 0; i < n; i++ {
			m.mix[base+i] += remaining[i] * vol
		}
		entry.mixPos += n
		remaining = remaining[n:]

		for m.drainLocked() > 0 {
			// keep draining while it frees room; buffer() loops per §4.f
			// step 5 until a drain stops producing output.
		}
	}
}

// drainLocked implements §4.f's read(): it returns the number of encoded
// bytes produced (0 if nothing could be drained), and must be called with
// m.mu held.
func (m *AudioMixer) drainLocked() int {
	k := m.minRunningMixPosLocked()
	if k <= 0 {
		return 0
	}

	for i := 0; i < k; i++ {
		m.encIn[i] = saturateInt16(m.mix[i])
	}

	consumedTotal := 0
	producedTotal := 0
	for {
		free := len(m.out) - m.outUsed
		if free < outMin {
			break
		}
		avail := k - consumedTotal
		if avail <= 0 {
			break
		}
		consumed, produced, err := m.encoder.Encode(m.encIn[consumedTotal:k], m.out[m.outUsed:])
		if err != nil {
			log().Error("AAC encoder failed", "error", err)
			m.obj.Lock()
			m.obj.SetFlagLocked(object.FlagError)
			m.obj.SetCurrentLocked(object.Idle)
			m.obj.Unlock()
			break
		}
		if consumed == 0 && produced == 0 {
			break
		}
		consumedTotal += consumed
		m.outUsed += produced
		producedTotal += produced
	}

	if consumedTotal == 0 {
		return 0
	}

	copy(m.mix, m.mix[consumedTotal:])
	for i := len(m.mix) - consumedTotal; i < len(m.mix); i++ {
		m.mix[i] = 0
	}
	for _, e := range m.sources {
		e.mixPos -= consumedTotal
		if e.mixPos < 0 {
			e.mixPos = 0
		}
	}

	baseTime := m.t0
	m.t0 += m.tb.SamplesToTicks(consumedTotal, Channels, SampleRate)

	if m.outUsed > 0 {
		payload := append([]byte(nil), m.out[:m.outUsed]...)
		m.outUsed = 0
		if err := m.conn.Audio(baseTime, payload); err != nil {
			log().Error("audio delivery failed", "error", err)
		}
	}
	return producedTotal
}

// minRunningMixPosLocked returns min(mixPos) across Running sources, or 0 if
// none are Running.
func (m *AudioMixer) minRunningMixPosLocked() int {
	min := -1
	for _, e := range m.sources {
		if e.src.Object().State().Current != object.Running {
			continue
		}
		if min == -1 || e.mixPos < min {
			min = e.mixPos
		}
	}
	if min == -1 {
		return 0
	}
	return min
}

func saturateInt16(x float32) int16 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int16(x * 32767)
}

func log() *slog.Logger { return logger.Logger() }
