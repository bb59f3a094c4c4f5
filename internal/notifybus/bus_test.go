package notifybus

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p1stream/p1stream-go/internal/logger"
	"github.com/p1stream/p1stream-go/internal/object"
)

func TestPublishDeliversToControlAndHost(t *testing.T) {
	b := New(4, 4, logger.Logger())
	o := object.New(object.KindAudioMixer, "am-1", nil, b)

	o.Lock()
	o.SetFlagLocked(object.FlagConfigValid)
	o.NotifyLocked()
	o.Unlock()

	n, ok := b.NextForControl()
	require.True(t, ok)
	assert.Equal(t, "am-1", n.Object.ID())

	n, ok = b.NextForHost()
	require.True(t, ok)
	assert.Equal(t, "am-1", n.Object.ID())
}

func TestHostQueueDropsOldestOnOverflow(t *testing.T) {
	b := New(16, 2, logger.Logger())
	o := object.New(object.KindVideoMixer, "vm-1", nil, b)

	for i := 0; i < 5; i++ {
		o.Lock()
		o.SetFlagLocked(object.FlagResync)
		o.NotifyLocked()
		o.Unlock()
	}

	var got []object.Notification
	for {
		n, ok := b.NextForHost()
		if !ok {
			break
		}
		got = append(got, n)
	}
	assert.Len(t, got, 2, "host queue capacity is 2; earlier notifications must be dropped")
}

func TestControlQueueNeverDropsOnOverflow(t *testing.T) {
	b := New(2, 16, logger.Logger())
	o := object.New(object.KindVideoMixer, "vm-2", nil, b)

	const published = 10
	for i := 0; i < published; i++ {
		o.Lock()
		o.SetFlagLocked(object.FlagResync)
		o.NotifyLocked()
		o.Unlock()
	}

	var got []object.Notification
	for {
		n, ok := b.NextForControl()
		if !ok {
			break
		}
		got = append(got, n)
	}
	assert.Len(t, got, published, "control queue must retain every notification even past its initial capacity hint")
}

func TestHostStreamEncodesFixedSizeRecords(t *testing.T) {
	b := New(16, 16, logger.Logger())
	o := object.New(object.KindConnection, "conn-1", nil, b)

	o.Lock()
	o.SetFlagLocked(object.FlagCanStart)
	o.NotifyLocked()
	o.Unlock()

	stream := b.HostStream()
	buf := make([]byte, recordSize*2)
	n, err := stream.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, recordSize, n)
	assert.True(t, bytes.HasPrefix(buf, []byte("conn-1")))
}
