// Package plugin defines the contracts implemented by every pluggable
// element of a pipeline: clocks, video sources, audio sources, and the
// egress connection. These mirror the P1Plugin vtable and its per-kind
// subclasses (P1VideoClock, P1VideoSource, P1AudioSource, P1Connection) —
// function-pointer tables in the original, plain interfaces here.
package plugin

import "github.com/p1stream/p1stream-go/internal/object"

// ConfigReader is the capability set a plugin uses to read its
// configuration. Every accessor reports success explicitly; a missing or
// ill-typed key reads as undefined and the caller applies its own default,
// exactly as §6 specifies. internal/config provides the koanf-backed
// implementation; tests may substitute a map-backed stub.
type ConfigReader interface {
	GetString(key string) (string, bool)
	GetInt(key string) (int, bool)
	GetUint32(key string) (uint32, bool)
	GetFloat(key string) (float32, bool)
	GetBool(key string) (bool, bool)
	// EachString iterates string-valued keys under prefix, stopping early if
	// iter returns false.
	EachString(prefix string, iter func(key, val string) bool)
}

// Plugin is the common vtable every clock, source, and connection
// implements: config/notify recompute ConfigValid/CanStart, start/stop drive
// the object's current state, free releases resources.
type Plugin interface {
	// Object returns the embedded state machine so the control loop and bus
	// can operate on it uniformly.
	Object() *object.Object

	// Config parses cfg and sets or clears object.FlagConfigValid (and
	// possibly object.FlagNeedsRestart if Running), then notifies. It
	// returns a *rerrors.ConfigError-wrapped error on failure for logging;
	// the flag, not the error, is what the control loop acts on.
	Config(cfg ConfigReader) error

	// Notify recomputes object.FlagCanStart in reaction to a peer's state
	// change, then notifies.
	Notify(n object.Notification)

	// Start is called by the control loop only when I4 holds. It may
	// transition the object to Starting (async) or directly to Running
	// (sync), or to Idle with FlagError on failure.
	Start() error

	// Stop transitions Stopping then Idle; may be asynchronous.
	Stop()

	// Free releases resources not already released by Stop.
	Free()
}

// Rect is a normalized rectangle, used for both destination (clip space,
// [-1,+1]) and source (texture space, [0,1]) coordinates.
type Rect struct{ X1, Y1, X2, Y2 float32 }

// Texture is the pixel buffer a VideoSource uploads into. The VideoMixer
// owns the backing storage (sized to the source's reported resolution); the
// source only ever writes through the handle it is given in Frame. Pixels
// are BGRA, 8 bits per channel, matching the original's
// TexImage2D(RGBA8, BGRA, UNSIGNED_INT_8_8_8_8_REV) upload so the same
// byte layout survives the port without a channel-order fixup at the
// boundary.
type Texture struct {
	Width, Height int
	Pixels        []byte // len == Width*Height*4
}

// VideoSource is a plugin contributing frames to the VideoMixer.
type VideoSource interface {
	Plugin

	// DestRect is the destination rectangle in clip space, default
	// (-1,-1,+1,+1).
	DestRect() Rect
	// SrcRect is the source rectangle in texture space, default (0,0,1,1).
	SrcRect() Rect

	// Frame uploads the current frame into tex. Returning an error aborts
	// the in-flight tick and halts the mixer with FlagError (V3).
	Frame(tex *Texture) error
}

// AudioSource is a plugin contributing samples to the AudioMixer.
type AudioSource interface {
	Plugin

	// Volume is applied per-sample during mixing, in [0,1].
	Volume() float32
	// Master reports whether this source retimes the mixer's base time.
	Master() bool
}

// VideoClock is a plugin that drives VideoMixer.Tick at a stated rate.
type VideoClock interface {
	Plugin

	// FPS returns the (possibly divisor-adjusted) frame rate as a
	// rational fps_num/fps_den, valid once Running.
	FPS() (num, den uint32)
}

// Picture is a planar I420 frame handed to the Connection.
type Picture struct {
	Width, Height int
	Y, U, V       []byte
}

// Connection is the egress collaborator: it receives encoder-ready audio and
// video and reports its own state through the notification bus like any
// other object.
type Connection interface {
	Plugin

	// AudioConfig is called once, before the first Audio call, to let the
	// connection emit AAC decoder configuration (e.g. an AudioSpecificConfig
	// side channel / sequence header).
	AudioConfig(sampleRate, channels int) error
	// Audio delivers one AAC access unit with its host-time timestamp.
	Audio(hostTime int64, payload []byte) error

	// VideoConfig is called once, before the first Video call.
	VideoConfig(width, height int) error
	// Video delivers one encoded frame's source picture with its host-time
	// timestamp; the connection is responsible for H.264 encoding and mux.
	Video(hostTime int64, pic *Picture) error
}

// PreviewFunc is the optional platform preview hook invoked from the clock
// thread with a platform-specific surface handle (never the raw GPU
// texture). Implementations must return promptly and must not call back
// into the mixer.
type PreviewFunc func(surface any, userData any)
