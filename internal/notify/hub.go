package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/approval"
)

// Notifier delivers one approval event to an operator channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev approval.Event) error
}

// Hub fans approval events out to operator channels and to in-process
// subscribers (the SSE endpoint). It implements approval.Emitter; delivery
// runs on its own goroutines so the gate never blocks on a slow channel.
type Hub struct {
	mu        sync.RWMutex
	notifiers []Notifier
	subs      map[chan approval.Event]struct{}
	timeout   time.Duration
	logger    *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:    make(map[chan approval.Event]struct{}),
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// Add registers an operator channel.
func (h *Hub) Add(n Notifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifiers = append(h.notifiers, n)
	h.logger.Info("notifier registered", zap.String("name", n.Name()))
}

// Subscribe returns a channel of approval events and a cancel func. Events
// are dropped for subscribers that fall behind; the next event still
// carries the current status.
func (h *Hub) Subscribe() (<-chan approval.Event, func()) {
	ch := make(chan approval.Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Emit delivers the event to every notifier and subscriber.
func (h *Hub) Emit(ev approval.Event) {
	h.mu.RLock()
	notifiers := append([]Notifier(nil), h.notifiers...)
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("subscriber lagging, event dropped")
		}
	}
	h.mu.RUnlock()

	for _, n := range notifiers {
		go func(n Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
			defer cancel()
			if err := n.Notify(ctx, ev); err != nil {
				h.logger.Error("notification failed",
					zap.String("notifier", n.Name()),
					zap.String("approval", ev.ApprovalID),
					zap.Error(err))
			}
		}(n)
	}
}
