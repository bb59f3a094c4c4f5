// Package notifybus is the single-producer-from-any-thread,
// single-consumer notification queue described in §4.a: every Object writes
// here on every state change, the control loop is the one required reader,
// and the same stream is additionally buffered for the host so a UI loop can
// integrate without risking the control loop's own progress.
//
// The open question the original left unresolved — what happens on
// overflow — is answered asymmetrically per §4.a/§7.3: the control-facing
// queue is never allowed to drop, since a lost transition there can stall
// control.Loop's own state-driving with no other observable signal; it grows
// to hold whatever is pending instead. Only the host-facing queue, read by
// an external, possibly-slow UI process, drops its oldest entry on overflow
// (with a Warning log) — the pipeline's own progress is allowed to outrun a
// slow host, never the other way around.
package notifybus

import (
	"log/slog"
	"sync"

	"github.com/p1stream/p1stream-go/internal/object"
)

// Bus fans a single object.Notification stream out to the control loop and
// to the host.
type Bus struct {
	logger *slog.Logger

	cmu        sync.Mutex
	control    []object.Notification
	controlSig chan struct{}

	mu      sync.Mutex
	host    []object.Notification
	hostCap int
	signal  chan struct{}
}

// New creates a Bus. controlCap only pre-sizes the control queue's backing
// slice (it never bounds it — see the package doc); hostCap bounds the
// host-facing queue, which drops its oldest pending entry rather than block
// a publisher.
func New(controlCap, hostCap int, logger *slog.Logger) *Bus {
	if controlCap <= 0 {
		controlCap = 256
	}
	if hostCap <= 0 {
		hostCap = 256
	}
	return &Bus{
		logger:     logger,
		control:    make([]object.Notification, 0, controlCap),
		controlSig: make(chan struct{}, 1),
		hostCap:    hostCap,
		signal:     make(chan struct{}, 1),
	}
}

// Publish implements object.Publisher. It never blocks on either side: the
// control-facing queue simply grows (§4.a requires the control path to
// delay, not drop, and not block the publisher), while the host-facing
// queue drops its oldest pending entry to make room when full.
func (b *Bus) Publish(n object.Notification) {
	b.cmu.Lock()
	b.control = append(b.control, n)
	b.cmu.Unlock()
	select {
	case b.controlSig <- struct{}{}:
	default:
	}

	b.mu.Lock()
	if len(b.host) >= b.hostCap {
		copy(b.host, b.host[1:])
		b.host = b.host[:len(b.host)-1]
		b.logger.Warn("host notification queue overflow, dropped oldest",
			"object_kind", n.Object.Kind().String(), "object_id", n.Object.ID())
	}
	b.host = append(b.host, n)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// ControlPending becomes readable whenever a control notification is
// pending; the control loop selects on this instead of a raw channel of
// notifications so the queue behind it can grow without bound.
func (b *Bus) ControlPending() <-chan struct{} { return b.controlSig }

// NextForControl pops the oldest pending control-facing notification, if
// any. Only the control loop should call this.
func (b *Bus) NextForControl() (object.Notification, bool) {
	b.cmu.Lock()
	defer b.cmu.Unlock()
	if len(b.control) == 0 {
		return object.Notification{}, false
	}
	n := b.control[0]
	b.control = b.control[1:]
	return n, true
}

// Pollable returns a channel that becomes readable whenever a host
// notification is pending. It stands in for the pollable file descriptor
// the original exposed over its notification pipe: a host event loop
// selects on this instead of polling NextForHost in a spin.
func (b *Bus) Pollable() <-chan struct{} { return b.signal }

// NextForHost pops the oldest pending host-facing notification, if any.
func (b *Bus) NextForHost() (object.Notification, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.host) == 0 {
		return object.Notification{}, false
	}
	n := b.host[0]
	b.host = b.host[1:]
	return n, true
}
