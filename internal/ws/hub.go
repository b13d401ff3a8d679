package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub fans events out to the live subscribers of each topic.
// Topics are consultation ids.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{clients: make(map[string]map[*Client]struct{}), log: log}
}

// Envelope is the wire shape of every pushed event.
type Envelope struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.topic]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.topic] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.topic)
		}
	}
}

// Subscribers reports how many clients follow topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Publish never blocks. A client whose buffer is full is disconnected.
func (h *Hub) Publish(topic, event string, data any) {
	raw, err := json.Marshal(Envelope{Type: event, Topic: topic, Data: data})
	if err != nil {
		h.log.Error("ws marshal failed", "err", err, "event", event)
		return
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.clients[topic] {
		select {
		case c.send <- raw:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("ws client too slow, dropping", "topic", topic, "user_id", c.userID)
		c.Close()
	}
}
