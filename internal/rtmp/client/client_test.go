package client

import (
	"fmt"
	"testing"
	"time"

	"github.com/p1stream/p1stream-go/internal/rtmp/chunk"
	"github.com/p1stream/p1stream-go/internal/rtmptest"
)

// TestConnectFlow dials a real in-process ingest fixture and exercises
// handshake + connect + createStream, the same sequence relay.Destination
// performs against every configured RTMP destination.
func TestConnectFlow(t *testing.T) {
	s := rtmptest.New(nil)
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start fixture: %v", err)
	}
	defer s.Stop()
	addr := s.Addr().String()
	c, err := New(fmt.Sprintf("rtmp://%s/app/stream", addr))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_ = c.Close()
}

// TestPublishFlow ensures Publish, then SendAudio/SendVideo, reach the
// fixture's media callback.
func TestPublishFlow(t *testing.T) {
	received := make(chan *chunk.Message, 2)
	s := rtmptest.New(func(_ string, msg *chunk.Message) { received <- msg })
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start fixture: %v", err)
	}
	defer s.Stop()
	addr := s.Addr().String()
	c, err := New(fmt.Sprintf("rtmp://%s/live/testpub", addr))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Publish(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := c.SendAudio(0, []byte{0xAF, 0x00}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	if err := c.SendVideo(0, []byte{0x17, 0x00}); err != nil {
		t.Fatalf("send video: %v", err)
	}

	for i, wantType := range []uint8{8, 9} {
		select {
		case msg := <-received:
			if msg.TypeID != wantType {
				t.Fatalf("message %d: got TypeID %d, want %d", i, msg.TypeID, wantType)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("message %d: not received before timeout", i)
		}
	}
	_ = c.Close()
}
