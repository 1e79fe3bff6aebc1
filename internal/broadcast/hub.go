package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// SendFunc delivers one payload to a subscriber. Returning an error drops
// the subscriber from the channel.
type SendFunc func(payload any) error

// Hub fans payloads out to named channels. The engine publishes with the
// session id as the channel name; the transport subscribes connections.
type Hub struct {
	log *slog.Logger

	mu       sync.Mutex
	channels map[string]map[string]SendFunc
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:      log,
		channels: make(map[string]map[string]SendFunc),
	}
}

// Subscribe registers a subscriber on a channel and returns its id.
func (h *Hub) Subscribe(channel string, send SendFunc) string {
	id := uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[string]SendFunc)
		h.channels[channel] = subs
	}
	subs[id] = send
	return id
}

func (h *Hub) Unsubscribe(channel, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
}

// Broadcast delivers the payload to every subscriber on the channel.
// Subscribers that fail to take the payload are dropped.
func (h *Hub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	subs := make(map[string]SendFunc, len(h.channels[channel]))
	for id, send := range h.channels[channel] {
		subs[id] = send
	}
	h.mu.Unlock()

	var failed []string
	for id, send := range subs {
		if err := send(payload); err != nil {
			h.log.Debug("dropping subscriber after failed send", "channel", channel, "error", err)
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		h.Unsubscribe(channel, id)
	}
}
