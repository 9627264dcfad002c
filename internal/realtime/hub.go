package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

// Hub fans events out to each user's open SSE connections. Slow consumers
// lose events rather than block the publisher.
type Hub struct {
	log *logger.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:  log.With("service", "RealtimeHub"),
		subs: make(map[uuid.UUID]map[chan Event]struct{}),
	}
}

// Subscribe registers a stream for the user. The returned cancel func must
// be called when the connection closes.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[userID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Publish delivers the event to every open stream of its user.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[event.UserID] {
		select {
		case ch <- event:
		default:
			h.log.Warn("Dropping event for slow subscriber",
				"user_id", event.UserID.String(),
				"type", event.Type,
			)
		}
	}
}

// Subscribers reports how many streams a user has open.
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
