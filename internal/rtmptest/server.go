// Package rtmptest provides a minimal inbound RTMP ingest fixture for tests:
// it accepts one publisher (OBS/ffmpeg-style connect/createStream/publish),
// and hands every decoded audio/video access unit to a callback instead of
// feeding a real capture-backend VideoSource/AudioSource. It exists only to
// drive integration tests against internal/rtmp/conn + internal/rtmp/rpc
// without standing up a production ingest server — this pipeline's real
// subsystems only ever dial *out* (internal/rtmp/relay.Connection), so there
// is no production component for this inbound path to serve.
//
// Grounded on internal/rtmp/server's Server/Registry/command_integration.go,
// trimmed of recording, relay fan-out, and hook triggering — those concerns
// now live on the real egress path (internal/rtmp/relay, internal/automation)
// and have no inbound-side counterpart here.
package rtmptest

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/p1stream/p1stream-go/internal/logger"
	"github.com/p1stream/p1stream-go/internal/rtmp/amf"
	"github.com/p1stream/p1stream-go/internal/rtmp/chunk"
	iconn "github.com/p1stream/p1stream-go/internal/rtmp/conn"
	"github.com/p1stream/p1stream-go/internal/rtmp/control"
	"github.com/p1stream/p1stream-go/internal/rtmp/media"
	"github.com/p1stream/p1stream-go/internal/rtmp/rpc"
)

// MediaHandler receives one decoded audio (typeID 8) or video (typeID 9)
// access unit, with the stream key that was active when it arrived.
type MediaHandler func(streamKey string, msg *chunk.Message)

// Server is a single-publisher RTMP ingest fixture.
type Server struct {
	log     *slog.Logger
	onMedia MediaHandler

	mu      sync.Mutex
	l       net.Listener
	conn    *iconn.Connection
	closing bool
	done    chan struct{}
}

// New creates an unstarted fixture server; onMedia is called for every
// audio/video message the publisher sends after a successful publish.
func New(onMedia MediaHandler) *Server {
	return &Server{
		log:     logger.Logger().With("component", "rtmptest"),
		onMedia: onMedia,
	}
}

// Start listens on addr (":0" picks an ephemeral port) and accepts exactly
// one publisher connection in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rtmptest: listen %s: %w", addr, err)
	}

	s.mu.Lock()
	s.l = ln
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.acceptOne()
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.l == nil {
		return nil
	}
	return s.l.Addr()
}

func (s *Server) acceptOne() {
	defer close(s.done)

	s.mu.Lock()
	ln := s.l
	s.mu.Unlock()

	c, err := iconn.Accept(ln)
	if err != nil {
		s.mu.Lock()
		closing := s.closing
		s.mu.Unlock()
		if !closing {
			s.log.Warn("rtmptest: accept failed", "error", err)
		}
		return
	}

	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()

	attachDispatch(c, s.log, s.onMedia)
	c.Start()
}

// Stop closes the listener and the accepted connection, if any, and waits
// for the accept goroutine to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.l == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	ln := s.l
	conn := s.conn
	done := s.done
	s.mu.Unlock()

	_ = ln.Close()
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	return nil
}

// attachDispatch wires connect/createStream/publish handling and forwards
// every audio/video message to onMedia, mirroring command_integration.go's
// dispatcher wiring without the recorder/relay/hook plumbing that belongs to
// the real egress pipeline instead.
func attachDispatch(c *iconn.Connection, log *slog.Logger, onMedia MediaHandler) {
	var app, streamKey string
	allocator := rpc.NewStreamIDAllocator()
	codecs := &codecStore{}
	detector := &media.CodecDetector{}

	d := rpc.NewDispatcher(func() string { return app })

	d.OnConnect = func(cc *rpc.ConnectCommand, msg *chunk.Message) error {
		app = cc.App
		resp, err := rpc.BuildConnectResponse(cc.TransactionID, "Connection succeeded.")
		if err != nil {
			log.Error("rtmptest: connect response build failed", "error", err)
			return nil
		}
		if err := c.SendMessage(resp); err != nil {
			log.Error("rtmptest: connect response send failed", "error", err)
		}
		return nil
	}

	d.OnCreateStream = func(cs *rpc.CreateStreamCommand, msg *chunk.Message) error {
		resp, streamID, err := rpc.BuildCreateStreamResponse(cs.TransactionID, allocator)
		if err != nil {
			log.Error("rtmptest: createStream response build failed", "error", err)
			return nil
		}
		if err := c.SendMessage(resp); err != nil {
			log.Error("rtmptest: createStream response send failed", "error", err)
			return nil
		}
		if err := c.SendMessage(control.EncodeUserControlStreamBegin(streamID)); err != nil {
			log.Error("rtmptest: StreamBegin send failed", "error", err)
		}
		return nil
	}

	d.OnPublish = func(pc *rpc.PublishCommand, msg *chunk.Message) error {
		streamKey = pc.StreamKey

		info := map[string]interface{}{
			"level":       "status",
			"code":        "NetStream.Publish.Start",
			"description": fmt.Sprintf("Publishing %s.", pc.StreamKey),
			"details":     pc.StreamKey,
		}
		payload, err := amf.EncodeAll("onStatus", float64(0), nil, info)
		if err != nil {
			log.Error("rtmptest: onStatus encode failed", "error", err)
			return nil
		}
		onStatus := &chunk.Message{
			CSID:            5,
			TypeID:          rpc.CommandMessageAMF0TypeIDForTest(),
			MessageStreamID: msg.MessageStreamID,
			MessageLength:   uint32(len(payload)),
			Payload:         payload,
		}
		if err := c.SendMessage(onStatus); err != nil {
			log.Error("rtmptest: onStatus send failed", "error", err)
		}
		return nil
	}

	c.SetMessageHandler(func(m *chunk.Message) {
		if m == nil {
			return
		}
		if m.TypeID == 8 || m.TypeID == 9 {
			codecs.key = streamKey
			detector.Process(m.TypeID, m.Payload, codecs, log)
			if onMedia != nil {
				onMedia(streamKey, m)
			}
			return
		}
		if m.TypeID != rpc.CommandMessageAMF0TypeIDForTest() {
			return
		}
		if err := d.Dispatch(m); err != nil {
			log.Error("rtmptest: dispatch error", "error", err)
		}
	})
}

// codecStore implements media.CodecStore so the fixture can log the codec
// the publisher actually used, the way a real ingest server would before
// routing the stream to the right decoder.
type codecStore struct {
	key                    string
	audioCodec, videoCodec string
}

func (c *codecStore) SetAudioCodec(codec string) { c.audioCodec = codec }
func (c *codecStore) SetVideoCodec(codec string) { c.videoCodec = codec }
func (c *codecStore) GetAudioCodec() string      { return c.audioCodec }
func (c *codecStore) GetVideoCodec() string      { return c.videoCodec }
func (c *codecStore) StreamKey() string          { return c.key }
