package notifybus

import (
	"encoding/binary"

	"github.com/p1stream/p1stream-go/internal/object"
)

// recordSize is the fixed width of one encoded notification: a 16-byte
// object id (UTF-8, NUL-padded or truncated), a kind byte, then
// current/target/flags for both the new and the previous state, padded out
// to a round size for easy framing by external readers.
const recordSize = 32

// HostStream adapts a Bus's host-facing queue to the byte-stream contract
// described in §6: fixed-size records, readable in order. Internal Go code
// should prefer NextForHost/Pollable directly; HostStream exists for
// out-of-process or cross-language consumers that need the literal wire
// format.
type HostStream struct {
	bus *Bus
}

// HostStream returns the byte-stream view of the bus's host queue.
func (b *Bus) HostStream() *HostStream { return &HostStream{bus: b} }

// Read drains as many whole records as fit into p. It never blocks: if no
// notification is pending it returns (0, nil). Callers that want to block
// should select on Pollable() first.
func (s *HostStream) Read(p []byte) (int, error) {
	n := 0
	for n+recordSize <= len(p) {
		note, ok := s.bus.NextForHost()
		if !ok {
			break
		}
		encodeRecord(p[n:n+recordSize], note)
		n += recordSize
	}
	return n, nil
}

func encodeRecord(buf []byte, n object.Notification) {
	for i := range buf {
		buf[i] = 0
	}
	id := n.Object.ID()
	copy(buf[0:16], id)
	buf[16] = byte(n.Object.Kind())
	buf[17] = byte(n.State.Current)
	buf[18] = byte(n.State.Target)
	buf[19] = byte(n.State.Flags)
	buf[20] = byte(n.LastState.Current)
	buf[21] = byte(n.LastState.Target)
	buf[22] = byte(n.LastState.Flags)
	// 23:32 reserved for future fields (e.g. a monotonic sequence number).
	binary.BigEndian.PutUint64(buf[24:32], 0)
}
