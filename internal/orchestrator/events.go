package orchestrator

import (
	"sync"

	"github.com/example/mediaflow/internal/models"
)

// Hub fans run events out to subscribers. Each run keeps its full history so
// a late subscriber replays everything before receiving live events.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	capacity int // upper bound on events for the run
	history  []models.RunEvent
	subs     map[chan models.RunEvent]struct{}
	closed   bool
}

func NewHub() *Hub { return &Hub{topics: map[string]*topic{}} }

// Open registers a run that will publish at most capacity events. Subscriber
// channels are sized to hold them all, so Publish never blocks or drops.
func (h *Hub) Open(runID string, capacity int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[runID]; !ok {
		h.topics[runID] = &topic{capacity: capacity, subs: map[chan models.RunEvent]struct{}{}}
	}
}

// Subscribe returns a channel that replays the run's history and then carries
// live events. It is closed after the run's last event or on unsubscribe.
func (h *Hub) Subscribe(runID string) (<-chan models.RunEvent, func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[runID]
	if !ok {
		return nil, func() {}, false
	}
	size := t.capacity
	if size < len(t.history) {
		size = len(t.history)
	}
	ch := make(chan models.RunEvent, size)
	for _, ev := range t.history {
		ch <- ev
	}
	if t.closed {
		close(ch)
		return ch, func() {}, true
	}
	t.subs[ch] = struct{}{}
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := t.subs[ch]; ok {
			delete(t.subs, ch)
			close(ch)
		}
	}
	return ch, unsubscribe, true
}

func (h *Hub) Publish(runID string, ev models.RunEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[runID]
	if !ok || t.closed {
		return
	}
	t.history = append(t.history, ev)
	for ch := range t.subs {
		// non-blocking send; only reachable on a full channel if capacity was understated
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close ends the run's stream for current subscribers. History stays available
// for replay until Forget.
func (h *Hub) Close(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[runID]
	if !ok || t.closed {
		return
	}
	t.closed = true
	for ch := range t.subs {
		close(ch)
		delete(t.subs, ch)
	}
}

// Forget closes the run's stream and drops its history.
func (h *Hub) Forget(runID string) {
	h.Close(runID)
	h.mu.Lock()
	delete(h.topics, runID)
	h.mu.Unlock()
}
