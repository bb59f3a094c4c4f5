// Package relay provides the default Connection plugin (§6's egress
// collaborator): it owns zero or more downstream RTMP destinations
// (Destination/DestinationManager, kept from the teacher's relay fan-out),
// encodes incoming audio/video access units into FLV/RTMP tags via
// internal/rtmp/media, and ships them out over whatever RTMPClient each
// destination's factory constructs.
package relay

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/p1stream/p1stream-go/internal/bufpool"
	"github.com/p1stream/p1stream-go/internal/errors"
	"github.com/p1stream/p1stream-go/internal/logger"
	"github.com/p1stream/p1stream-go/internal/object"
	"github.com/p1stream/p1stream-go/internal/plugin"
	"github.com/p1stream/p1stream-go/internal/rtmp/chunk"
	"github.com/p1stream/p1stream-go/internal/rtmp/conn"
	"github.com/p1stream/p1stream-go/internal/rtmp/media"
)

// VideoEncoder is the H.264 encoding collaborator the Connection drives on
// every VideoMixer tick. No H.264 binding ships in this module's reference
// code, so — exactly like audiomixer.Encoder — it is an out-of-scope
// collaborator interface rather than a concrete codec.
type VideoEncoder interface {
	// Encode compresses pic into one access unit.
	Encode(pic *plugin.Picture) (payload []byte, keyframe bool, err error)
	// SequenceHeader returns the AVCDecoderConfigurationRecord once the
	// encoder has produced its first frame; empty until then.
	SequenceHeader() []byte
	Close() error
}

// VideoEncoderFactory constructs a fresh VideoEncoder sized to width/height
// for one Start/Stop session.
type VideoEncoderFactory func(width, height int) (VideoEncoder, error)

// Connection is the concrete §6 Connection plugin.
type Connection struct {
	obj          *object.Object
	dm           *DestinationManager
	makeVideoEnc VideoEncoderFactory

	mu            sync.Mutex
	videoEnc      VideoEncoder
	width, height int
	sampleRate    int
	channels      int
	sentAudioSeq  bool
	sentVideoSeq  bool

	// session tracks handshake-equivalent progress for this egress
	// connection: Start() reaches Connected, the first VideoConfig/
	// AudioConfig reaches StreamCreated, and the first media send reaches
	// Publishing — the same state names conn.Session uses for an inbound
	// accept, driven here by the outbound Connect()/Publish() sequence.
	session *conn.Session
}

// New constructs a Connection backed by dm's destination set.
func New(id string, owner any, bus object.Publisher, dm *DestinationManager, makeVideoEnc VideoEncoderFactory) *Connection {
	c := &Connection{dm: dm, makeVideoEnc: makeVideoEnc, session: conn.NewSession()}
	c.obj = object.New(object.KindConnection, id, owner, bus)
	return c
}

// State reports this connection's handshake-equivalent progress.
func (c *Connection) State() conn.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State()
}

func (c *Connection) Object() *object.Object { return c.obj }

// Config has no connection-specific keys beyond the destinations already
// configured into dm; it just marks the object ready.
func (c *Connection) Config(cfg plugin.ConfigReader) error {
	c.obj.Lock()
	c.obj.SetFlagLocked(object.FlagConfigValid | object.FlagCanStart)
	c.obj.NotifyLocked()
	c.obj.Unlock()
	return nil
}

func (c *Connection) Notify(n object.Notification) {}

func (c *Connection) Start() error {
	c.mu.Lock()
	c.sentAudioSeq = false
	c.sentVideoSeq = false
	c.videoEnc = nil
	c.session = conn.NewSession()
	c.session.SetConnectInfo("", "", "", 0)
	c.mu.Unlock()

	c.obj.Lock()
	c.obj.SetCurrentLocked(object.Running)
	c.obj.Unlock()
	return nil
}

func (c *Connection) Stop() {
	c.obj.Lock()
	c.obj.SetCurrentLocked(object.Stopping)
	c.obj.Unlock()

	c.mu.Lock()
	if c.videoEnc != nil {
		_ = c.videoEnc.Close()
		c.videoEnc = nil
	}
	c.mu.Unlock()

	c.obj.Lock()
	c.obj.SetCurrentLocked(object.Idle)
	c.obj.Unlock()
}

func (c *Connection) Free() {
	if err := c.dm.Close(); err != nil {
		log().Warn("error closing relay destinations", "error", err)
	}
}

// AudioConfig synthesizes and relays an AAC AudioSpecificConfig from
// sampleRate/channels: this pipeline only ever produces AAC-LC (object
// type 2), so the two-byte ASC needs no codec binding to build.
func (c *Connection) AudioConfig(sampleRate, channels int) error {
	c.mu.Lock()
	c.sampleRate, c.channels = sampleRate, channels
	c.sentAudioSeq = false
	if c.session.State() == conn.SessionStateConnected {
		c.session.AllocateStreamID()
	}
	c.mu.Unlock()
	return nil
}

// Audio relays one AAC access unit, sending the ASC once first.
func (c *Connection) Audio(hostTime int64, payload []byte) error {
	c.mu.Lock()
	first := !c.sentAudioSeq
	sampleRate, channels := c.sampleRate, c.channels
	c.sentAudioSeq = true
	if c.session.State() == conn.SessionStateStreamCreated {
		c.session.SetStreamKey(c.obj.ID(), "audio")
	}
	c.mu.Unlock()

	if first {
		asc := buildAACAudioSpecificConfig(sampleRate, channels)
		c.relay(media.BuildAudioTag(asc, true), 8, hostTime)
	}
	c.relay(media.BuildAudioTag(payload, false), 8, hostTime)
	return nil
}

// VideoConfig records the active dimensions and constructs the encoder.
func (c *Connection) VideoConfig(width, height int) error {
	enc, err := c.makeVideoEnc(width, height)
	if err != nil {
		return errors.NewOperationalError("relay.connection.videoconfig", err)
	}
	c.mu.Lock()
	c.width, c.height = width, height
	c.videoEnc = enc
	c.sentVideoSeq = false
	if c.session.State() == conn.SessionStateConnected {
		c.session.AllocateStreamID()
	}
	c.mu.Unlock()
	return nil
}

// Video encodes pic and relays it, sending the AVCDecoderConfigurationRecord
// once the encoder has produced one.
func (c *Connection) Video(hostTime int64, pic *plugin.Picture) error {
	c.mu.Lock()
	enc := c.videoEnc
	c.mu.Unlock()
	if enc == nil {
		return fmt.Errorf("relay.connection: video before VideoConfig")
	}

	payload, keyframe, err := enc.Encode(pic)
	if err != nil {
		return errors.NewOperationalError("relay.connection.video", err)
	}

	c.mu.Lock()
	first := !c.sentVideoSeq
	c.sentVideoSeq = true
	if c.session.State() == conn.SessionStateStreamCreated {
		c.session.SetStreamKey(c.obj.ID(), "video")
	}
	c.mu.Unlock()

	if first {
		if seq := enc.SequenceHeader(); len(seq) > 0 {
			c.relay(media.BuildVideoTag(seq, true, true), 9, hostTime)
		}
	}
	c.relay(media.BuildVideoTag(payload, keyframe, false), 9, hostTime)
	return nil
}

// relay sends payload (built by media.BuildAudioTag/BuildVideoTag, and so
// backed by bufpool) to every destination. dm.RelayMessage sends to every
// destination synchronously and none retain the slice past the call, so the
// buffer is returned to the pool once it returns.
func (c *Connection) relay(payload []byte, typeID uint8, hostTime int64) {
	c.dm.RelayMessage(&chunk.Message{
		TypeID:    typeID,
		Timestamp: uint32(hostTime / 1_000_000), // host ticks are nanoseconds under the identity timebase
		Payload:   payload,
	})
	bufpool.Put(payload)
}

// buildAACAudioSpecificConfig builds the two-byte ASC for AAC-LC: 5 bits
// audio object type (2), 4 bits sampling frequency index, 4 bits channel
// configuration, 3 bits padding.
func buildAACAudioSpecificConfig(sampleRate, channels int) []byte {
	const audioObjectTypeAACLC = 2
	freqIdx := aacSamplingFrequencyIndex(sampleRate)
	b0 := byte(audioObjectTypeAACLC<<3) | byte(freqIdx>>1)
	b1 := byte(freqIdx<<7) | byte(channels<<3)
	return []byte{b0, b1}
}

func aacSamplingFrequencyIndex(rate int) int {
	table := []int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}
	for i, r := range table {
		if r == rate {
			return i
		}
	}
	return 4 // 44100, this pipeline's fixed rate
}

func log() *slog.Logger { return logger.Logger() }
