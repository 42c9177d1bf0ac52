package app

import (
	"context"
	"sync"

	"lantern-quiz-service/internal/domain"
	"lantern-quiz-service/internal/metrics"
)

const defaultSubscriberBuffer = 8

// Hub is the in-process Broadcaster. Each subscriber gets a buffered channel;
// a full channel drops its oldest event so slow readers never block a win.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan domain.WinnerEvent]struct{}
	buffer      int
	metrics     *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		subscribers: make(map[chan domain.WinnerEvent]struct{}),
		buffer:      defaultSubscriberBuffer,
		metrics:     m,
	}
}

// Subscribe registers an observer until ctx is done or cancel is called,
// whichever comes first. The channel is closed on unsubscribe.
func (h *Hub) Subscribe(ctx context.Context) (<-chan domain.WinnerEvent, func()) {
	ch := make(chan domain.WinnerEvent, h.buffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberAdded()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
			h.mu.Unlock()
			h.metrics.SubscriberRemoved()
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return ch, func() {
		stop()
		cancel()
	}
}

// Announce delivers the event to every current subscriber without blocking.
func (h *Hub) Announce(_ context.Context, event domain.WinnerEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.metrics.Broadcast()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// Sends only happen under h.mu, so one receive frees a slot.
			select {
			case <-ch:
				h.metrics.BroadcastDropped()
			default:
			}
			ch <- event
		}
	}
	return nil
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close drops all subscribers, closing their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}
