package automation

import (
	"context"
	"testing"
	"time"

	"github.com/p1stream/p1stream-go/internal/object"
)

func TestEventClassifiesErrorSeparatelyFromIdle(t *testing.T) {
	obj := object.New(object.KindVideoMixer, "mixer-1", nil, noopPublisher{})
	obj.Lock()
	obj.SetFlagLocked(object.FlagError)
	obj.SetCurrentLocked(object.Idle)
	obj.Unlock()

	n := object.Notification{Object: obj, State: object.State{Current: object.Idle, Flags: object.FlagError}}
	event := NewEvent(n)
	if event.Type != EventError {
		t.Fatalf("expected EventError for an errored Idle transition, got %s", event.Type)
	}
	if event.ObjectKind != "video_mixer" {
		t.Fatalf("expected object kind video_mixer, got %s", event.ObjectKind)
	}
}

func TestEventRunningWithoutErrorFlag(t *testing.T) {
	obj := object.New(object.KindAudioMixer, "mixer-2", nil, noopPublisher{})
	n := object.Notification{Object: obj, State: object.State{Current: object.Running}}
	event := NewEvent(n)
	if event.Type != EventRunning {
		t.Fatalf("expected EventRunning, got %s", event.Type)
	}
}

func TestShellHookBasics(t *testing.T) {
	hook := NewShellHook("test-hook", "/bin/echo", 10*time.Second)
	if hook.Type() != "shell" {
		t.Fatalf("expected shell type, got %s", hook.Type())
	}
	if hook.ID() != "test-hook" {
		t.Fatalf("expected test-hook ID, got %s", hook.ID())
	}
}

func TestStdioHookBasics(t *testing.T) {
	hook := NewStdioHook("stdio-test", "json")
	if hook.Type() != "stdio" {
		t.Fatalf("expected stdio type, got %s", hook.Type())
	}
	if hook.format != "json" {
		t.Fatalf("expected json format, got %s", hook.format)
	}
}

func TestWebhookHookBasics(t *testing.T) {
	hook := NewWebhookHook("webhook-test", "https://example.com/webhook", 30*time.Second)
	hook.AddHeader("Authorization", "Bearer token")
	if hook.headers["Authorization"] != "Bearer token" {
		t.Fatalf("expected header set, got %v", hook.headers)
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(object.Notification) {}

type fakeQueue struct {
	notifications []object.Notification
	pollSignal    chan struct{}
}

func newFakeQueue(notifications []object.Notification) *fakeQueue {
	signal := make(chan struct{}, 1)
	signal <- struct{}{}
	return &fakeQueue{notifications: notifications, pollSignal: signal}
}

func (q *fakeQueue) Pollable() <-chan struct{} { return q.pollSignal }

func (q *fakeQueue) NextForHost() (object.Notification, bool) {
	if len(q.notifications) == 0 {
		return object.Notification{}, false
	}
	n := q.notifications[0]
	q.notifications = q.notifications[1:]
	return n, true
}

func TestManagerRegistersAndTriggersHooks(t *testing.T) {
	m := NewManager(newFakeQueue(nil), DefaultConfig(), nil)
	defer m.Close()

	hook := NewShellHook("noop", "/bin/true", 2*time.Second)
	if err := m.RegisterHook(EventRunning, hook); err != nil {
		t.Fatalf("RegisterHook: %v", err)
	}
	if !m.UnregisterHook(EventRunning, "noop") {
		t.Fatalf("expected UnregisterHook to find the hook")
	}

	m.TriggerEvent(context.Background(), Event{Type: EventRunning})
}

func TestServeDrainsQueueUntilCancelled(t *testing.T) {
	obj := object.New(object.KindVideoMixer, "mixer-3", nil, noopPublisher{})
	queue := newFakeQueue([]object.Notification{
		{Object: obj, State: object.State{Current: object.Running}},
	})
	m := NewManager(queue, DefaultConfig(), nil)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := m.Serve(ctx); err == nil {
		t.Fatalf("expected Serve to return ctx error on cancellation")
	}
}
