// Package control implements the single control thread described in §4.d:
// it owns no pipeline data of its own, consumes notifications, and drives
// every registered plugin toward its target state.
//
// Fan-out bookkeeping ("when the VideoMixer transitions to Running,
// re-evaluate all VideoSources"; "when a source transitions Running↔Idle,
// request linkage in the mixer") falls out of one uniform rule rather than
// special-cased hooks: every notification is broadcast to every other
// registered plugin's Notify, and each plugin's own Notify decides whether
// the change is relevant to it. The VideoMixer links/unlinks a source's
// texture from inside its own Notify when it sees that source's state
// change; a VideoSource sets CanStart from inside its own Notify when it
// sees its mixer reach Running. The loop itself stays ignorant of those
// per-kind rules.
package control

import (
	"context"
	"log/slog"
	"sync"

	"github.com/p1stream/p1stream-go/internal/notifybus"
	"github.com/p1stream/p1stream-go/internal/object"
	"github.com/p1stream/p1stream-go/internal/plugin"
)

// Loop drives plugin start/stop transitions from bus notifications.
type Loop struct {
	bus    *notifybus.Bus
	logger *slog.Logger

	mu      sync.RWMutex
	plugins map[string]plugin.Plugin
}

// NewLoop constructs a Loop reading from bus.
func NewLoop(bus *notifybus.Bus, logger *slog.Logger) *Loop {
	return &Loop{
		bus:     bus,
		logger:  logger,
		plugins: make(map[string]plugin.Plugin),
	}
}

// Register adds p to the set the loop drives and fans notifications to.
// Safe to call while Run is active.
func (l *Loop) Register(p plugin.Plugin) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.plugins[p.Object().ID()] = p
}

// Unregister removes a plugin, e.g. once its Free() has run.
func (l *Loop) Unregister(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.plugins, id)
}

// Run consumes notifications until ctx is cancelled. It performs no
// blocking I/O itself; Start/Stop calls on plugins are expected to return
// promptly or transition through Starting/Stopping asynchronously.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.bus.ControlPending():
		}
		for {
			n, ok := l.bus.NextForControl()
			if !ok {
				break
			}
			l.handle(n)
		}
	}
}

func (l *Loop) handle(n object.Notification) {
	l.mu.RLock()
	peers := make([]plugin.Plugin, 0, len(l.plugins))
	for _, p := range l.plugins {
		peers = append(peers, p)
	}
	self := l.plugins[n.Object.ID()]
	l.mu.RUnlock()

	for _, p := range peers {
		if p.Object() == n.Object {
			continue
		}
		p.Notify(n)
	}

	if self != nil {
		l.driveTransition(self)
	}
}

func (l *Loop) driveTransition(p plugin.Plugin) {
	o := p.Object()

	o.Lock()
	current := o.CurrentLocked()
	target := o.TargetLocked()
	ready := o.ReadyToStartLocked()
	o.Unlock()

	switch {
	case current == object.Idle && target == object.TargetRunning && ready:
		if err := p.Start(); err != nil {
			l.logger.Error("plugin start failed", "object_kind", o.Kind().String(), "object_id", o.ID(), "error", err)
		}
	case current == object.Running && (target == object.TargetIdle || target == object.TargetRestart):
		p.Stop()
	case current == object.Idle && target == object.TargetRestart:
		o.SetTarget(object.TargetRunning)
	}
}
