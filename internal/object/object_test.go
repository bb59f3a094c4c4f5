package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBus struct {
	notes []Notification
}

func (b *recordingBus) Publish(n Notification) { b.notes = append(b.notes, n) }

func TestNotifyCollapsesIdenticalObservations(t *testing.T) {
	bus := &recordingBus{}
	o := New(KindAudioMixer, "am-1", nil, bus)

	o.Lock()
	o.SetFlagLocked(FlagConfigValid)
	o.NotifyLocked()
	o.NotifyLocked() // nothing changed: must not publish again
	o.Unlock()

	require.Len(t, bus.notes, 1)
}

func TestResyncForcesNotificationEvenWithoutChange(t *testing.T) {
	bus := &recordingBus{}
	o := New(KindVideoMixer, "vm-1", nil, bus)

	o.Lock()
	o.SetFlagLocked(FlagConfigValid)
	o.NotifyLocked()
	o.SetFlagLocked(FlagResync)
	o.NotifyLocked()
	o.Unlock()

	require.Len(t, bus.notes, 2)
	assert.False(t, bus.notes[1].State.Flags.Has(FlagResync), "resync must clear itself on publish")
}

func TestSetTargetRunningClearsError(t *testing.T) {
	bus := &recordingBus{}
	o := New(KindAudioSource, "as-1", nil, bus)

	o.Lock()
	o.SetFlagLocked(FlagError)
	o.NotifyLocked()
	o.Unlock()
	require.True(t, o.State().Flags.Has(FlagError))

	o.SetTarget(TargetRunning)
	assert.False(t, o.State().Flags.Has(FlagError))
}

func TestNeedsRestartAutoClearsAtIdle(t *testing.T) {
	bus := &recordingBus{}
	o := New(KindVideoMixer, "vm-2", nil, bus)

	o.Lock()
	o.SetCurrentLocked(Running)
	o.SetFlagLocked(FlagNeedsRestart)
	o.NotifyLocked()
	o.Unlock()
	require.True(t, o.State().Flags.Has(FlagNeedsRestart))

	o.Lock()
	o.SetCurrentLocked(Idle)
	o.Unlock()
	assert.False(t, o.State().Flags.Has(FlagNeedsRestart))
}

func TestReadyToStartRequiresAllFourConditions(t *testing.T) {
	bus := &recordingBus{}
	o := New(KindAudioSource, "as-2", nil, bus)

	o.Lock()
	ready := o.ReadyToStartLocked()
	o.Unlock()
	assert.False(t, ready, "fresh object lacks ConfigValid and CanStart")

	o.Lock()
	o.SetFlagLocked(FlagConfigValid | FlagCanStart)
	o.NotifyLocked()
	ready = o.ReadyToStartLocked()
	o.Unlock()
	assert.True(t, ready)

	o.Lock()
	o.SetFlagLocked(FlagError)
	o.NotifyLocked()
	ready = o.ReadyToStartLocked()
	o.Unlock()
	assert.False(t, ready, "error flag must inhibit start")
}
