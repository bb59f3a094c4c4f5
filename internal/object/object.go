// Package object implements the common state machine shared by every live
// entity in a pipeline: the Context, the two fixed mixers, the egress
// connection, and every plugin (clocks and sources).
//
// Each concrete type embeds an *Object and drives it through the handful of
// locked accessors below rather than keeping its own current/target/flags
// bookkeeping. This mirrors the P1Object base of the original engine, which
// used structure-prefix inheritance; Go has no structural supertyping for
// structs in that sense, so embedding plus a Kind tag stands in for the
// vtable dispatch the source used.
package object

import "sync"

// Kind tags the concrete role an Object plays. Plugins are further
// distinguished by their own Go type (VideoSource vs AudioSource etc.); Kind
// exists so generic code (the notification bus, logging, the control loop)
// can label an object without a type switch.
type Kind int

const (
	KindContext Kind = iota
	KindVideoMixer
	KindAudioMixer
	KindConnection
	KindVideoClock
	KindVideoSource
	KindAudioSource
)

func (k Kind) String() string {
	switch k {
	case KindContext:
		return "context"
	case KindVideoMixer:
		return "video_mixer"
	case KindAudioMixer:
		return "audio_mixer"
	case KindConnection:
		return "connection"
	case KindVideoClock:
		return "video_clock"
	case KindVideoSource:
		return "video_source"
	case KindAudioSource:
		return "audio_source"
	default:
		return "unknown"
	}
}

// CurrentState is the state an object is actually in. Only the object's own
// code may write it, and only while holding the object's lock (I1).
type CurrentState int

const (
	Idle CurrentState = iota
	Starting
	Running
	Stopping
)

func (s CurrentState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// TargetState is the state the control loop should work the object towards.
// Any thread holding the object's lock may write it (I2).
type TargetState int

const (
	TargetRunning TargetState = iota
	TargetIdle
	// TargetRestart is Idle with a follow-up flip to Running once Idle is
	// observed (§4.c step 5).
	TargetRestart
)

func (t TargetState) String() string {
	switch t {
	case TargetRunning:
		return "running"
	case TargetIdle:
		return "idle"
	case TargetRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// Flags are additional bits that participate in the start precondition (I4)
// and in notification collapsing.
type Flags uint8

const (
	// FlagResync is one-shot: it forces a notification even when current and
	// target are unchanged, then clears itself.
	FlagResync Flags = 1 << iota
	// FlagNeedsRestart marks that config changed while Running; the control
	// loop must cycle the object through Idle. Auto-clears at Idle (I6).
	FlagNeedsRestart
	// FlagConfigValid is set iff the last config() attempt was complete and
	// well-typed.
	FlagConfigValid
	// FlagCanStart is set by notify() once peer prerequisites are satisfied.
	FlagCanStart
	// FlagError marks that the last transition to Idle was involuntary.
	// Start is inhibited until SetTarget(TargetRunning) clears it (I5).
	FlagError
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// State is the full snapshot compared across notifications.
type State struct {
	Current CurrentState
	Target  TargetState
	Flags   Flags
}

// Notification is published whenever an Object's State changes (or Resync
// is set) per §4.a/§4.b.
type Notification struct {
	Object    *Object
	State     State
	LastState State
}

// Publisher receives notifications. The bus package implements this; tests
// may substitute a recording stub.
type Publisher interface {
	Publish(Notification)
}

// Object is the common base embedded by every live pipeline entity.
type Object struct {
	mu sync.Mutex

	kind  Kind
	id    string
	owner any // back-reference to the Context; weak borrow, never retained past it

	current CurrentState
	target  TargetState
	flags   Flags

	lastState State
	bus       Publisher
}

// New constructs an Object. owner is typically the Context; it is opaque
// here to avoid an import cycle, and recovered by callers via a type
// assertion on Owner().
func New(kind Kind, id string, owner any, bus Publisher) *Object {
	return &Object{kind: kind, id: id, owner: owner, bus: bus}
}

func (o *Object) Kind() Kind { return o.kind }
func (o *Object) ID() string { return o.id }
func (o *Object) Owner() any { return o.owner }

// Lock/Unlock expose the object's mutex directly so plugin code can batch a
// config()/notify() pass's flag mutations under one critical section, per
// §4.b's "set_flag/clear_flag mutate under the caller's existing lock."
func (o *Object) Lock()   { o.mu.Lock() }
func (o *Object) Unlock() { o.mu.Unlock() }

// State returns a consistent snapshot of current/target/flags.
func (o *Object) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{Current: o.current, Target: o.target, Flags: o.flags}
}

// CurrentLocked, TargetLocked and FlagsLocked read state assuming the caller
// already holds the lock (e.g. from inside a start()/stop() implementation).
func (o *Object) CurrentLocked() CurrentState { return o.current }
func (o *Object) TargetLocked() TargetState   { return o.target }
func (o *Object) FlagsLocked() Flags          { return o.flags }

// SetFlagLocked / ClearFlagLocked mutate flags assuming the lock is held.
// Callers are responsible for calling NotifyLocked afterward if the change
// should be observed (it usually should, but config()/notify() hooks often
// want to batch several flag edits into a single notification).
func (o *Object) SetFlagLocked(f Flags)   { o.flags |= f }
func (o *Object) ClearFlagLocked(f Flags) { o.flags &^= f }

// SetCurrentLocked writes current assuming the lock is held (I1). It enforces
// I6 (NeedsRestart auto-clears at Idle) and then notifies, since every state
// write must be followed by a notification (I3) and leaving that to the
// caller is exactly the kind of thing that gets forgotten under refactoring.
func (o *Object) SetCurrentLocked(c CurrentState) {
	o.current = c
	if c == Idle {
		o.flags &^= FlagNeedsRestart
	}
	o.notifyLocked()
}

// NotifyLocked implements §4.b's notify(obj): publish iff the snapshot
// differs from last_state or Resync is set, then clear Resync and store the
// snapshot as last_state. Exported so callers who just mutated flags under
// Lock() can request a notification without going through SetCurrentLocked.
func (o *Object) NotifyLocked() { o.notifyLocked() }

func (o *Object) notifyLocked() {
	snap := State{Current: o.current, Target: o.target, Flags: o.flags}
	last := o.lastState
	if snap == last && !snap.Flags.Has(FlagResync) {
		return
	}
	o.flags &^= FlagResync
	snap.Flags = o.flags
	o.lastState = snap
	if o.bus != nil {
		o.bus.Publish(Notification{Object: o, State: snap, LastState: last})
	}
}

// SetTarget implements §4.b's target(obj, t): any thread may call this
// without already holding the lock. Setting Running unconditionally clears
// Error (I5).
func (o *Object) SetTarget(t TargetState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.target = t
	if t == TargetRunning {
		o.flags &^= FlagError
	}
	o.notifyLocked()
}

// ReadyToStartLocked implements I4, assuming the caller already holds the
// object's lock (as the control loop does while deciding whether to call
// start()).
func (o *Object) ReadyToStartLocked() bool {
	return o.current == Idle &&
		o.target == TargetRunning &&
		o.flags.Has(FlagConfigValid) &&
		o.flags.Has(FlagCanStart) &&
		!o.flags.Has(FlagError)
}
