// Package automation re-homes the teacher's hook system from RTMP
// connection/stream events onto Object state transitions: every time an
// Object's Current/Target/Flags changes, the Manager turns the
// object.Notification into an Event and fans it out to whatever hooks are
// registered for that transition, so an operator can wire a shell script,
// a webhook, or structured stdout to "video mixer went Running" the same
// way the original wired one to "stream started publishing".
package automation

import (
	"time"

	"github.com/p1stream/p1stream-go/internal/object"
)

// EventType names an Object state transition.
type EventType string

const (
	EventStarting EventType = "starting"
	EventRunning  EventType = "running"
	EventStopping EventType = "stopping"
	EventIdle     EventType = "idle"
	EventError    EventType = "error"
)

// eventTypeFor classifies a Notification's destination state. Error takes
// priority: an involuntary stop to Idle (FlagError set) is reported as
// EventError instead of EventIdle so hooks can tell the two apart.
func eventTypeFor(n object.Notification) EventType {
	if n.State.Current == object.Idle && n.State.Flags.Has(object.FlagError) {
		return EventError
	}
	switch n.State.Current {
	case object.Starting:
		return EventStarting
	case object.Running:
		return EventRunning
	case object.Stopping:
		return EventStopping
	default:
		return EventIdle
	}
}

// Event represents a single Object state transition that can trigger hooks.
type Event struct {
	Type       EventType              `json:"type"`
	Timestamp  int64                  `json:"timestamp"`
	ObjectID   string                 `json:"object_id,omitempty"`
	ObjectKind string                 `json:"object_kind,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// NewEvent builds an Event from a state-change notification.
func NewEvent(n object.Notification) *Event {
	e := &Event{
		Type:      eventTypeFor(n),
		Timestamp: time.Now().Unix(),
		Data:      make(map[string]interface{}),
	}
	if n.Object != nil {
		e.ObjectID = n.Object.ID()
		e.ObjectKind = n.Object.Kind().String()
	}
	e.Data["target"] = n.State.Target.String()
	e.Data["previous"] = n.LastState.Current.String()
	return e
}

// WithData adds a data field to the event.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// String returns a human-readable representation of the event.
func (e *Event) String() string {
	if e.ObjectID != "" {
		return string(e.Type) + ":" + e.ObjectID
	}
	return string(e.Type)
}
