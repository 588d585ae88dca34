package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// JobEvent is the payload published by the generation_jobs trigger.
type JobEvent struct {
	Op           string    `json:"op"`
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	JobType      string    `json:"job_type"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	OutputURL    string    `json:"output_url,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const subscriberBuffer = 16

// Hub fans job events out to the subscribers of the owning user.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan JobEvent]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{subs: make(map[string]map[chan JobEvent]struct{}), logger: logger}
}

// Subscribe registers a receiver for userID. The returned cancel func closes
// the channel and must be called once the receiver is done.
func (h *Hub) Subscribe(userID string) (<-chan JobEvent, func()) {
	ch := make(chan JobEvent, subscriberBuffer)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan JobEvent]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber of ev.UserID. Slow subscribers lose
// the event rather than block the listener.
func (h *Hub) Publish(ev JobEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
			h.logger.Warn().Str("user_id", ev.UserID).Str("job_id", ev.ID).Msg("dropping job event for slow subscriber")
		}
	}
}

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// HandlePayload decodes a raw NOTIFY payload and publishes it.
func (h *Hub) HandlePayload(payload string) {
	var ev JobEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		h.logger.Warn().Err(err).Msg("malformed job event payload")
		return
	}
	if ev.UserID == "" {
		return
	}
	h.Publish(ev)
}
