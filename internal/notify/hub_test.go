package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/approval"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []approval.Event
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, ev approval.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(zap.NewNop())
	rec := &recordingNotifier{}
	hub.Add(rec)

	ch, cancel := hub.Subscribe()
	defer cancel()

	ev := approval.Event{
		Type:       approval.EventRequested,
		ApprovalID: "appr-1",
		ToolName:   "create_issue",
		Status:     approval.StatusPending,
	}
	hub.Emit(ev)

	select {
	case got := <-ch:
		if got.ApprovalID != "appr-1" {
			t.Errorf("subscriber got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}

	deadline := time.Now().Add(time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.count() != 1 {
		t.Errorf("notifier received %d events, want 1", rec.count())
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop())

	ch, cancel := hub.Subscribe()
	cancel()

	// The channel is closed; emitting must not panic or block.
	hub.Emit(approval.Event{Type: approval.EventResolved, ApprovalID: "appr-1"})

	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(zap.NewNop())

	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			hub.Emit(approval.Event{Type: approval.EventRequested})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a lagging subscriber")
	}
}
