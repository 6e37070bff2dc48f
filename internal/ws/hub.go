package ws

import (
	"log/slog"
	"sync"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages broadcast groups. Every connection of an identity joins the
// group keyed by that identity, so a group send reaches all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[Subscriber]struct{}
	log     *slog.Logger
}

// NewHub creates an initialized Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]map[Subscriber]struct{}),
		log:     logger.With("component", "ws_hub"),
	}
}

// Register adds a client to a group.
func (h *Hub) Register(group string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[group]; !ok {
		h.clients[group] = make(map[Subscriber]struct{})
	}
	h.clients[group][client] = struct{}{}
}

// Unregister removes a client. Unknown clients are ignored.
func (h *Hub) Unregister(group string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(group, client)
}

// Size returns the number of clients in a group.
func (h *Hub) Size(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[group])
}

// Broadcast sends payload to every client of a group and returns how many
// sends succeeded and failed. Failed clients are closed and dropped.
func (h *Hub) Broadcast(group string, payload []byte) (delivered, failed int) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.clients[group]))
	for c := range h.clients[group] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			failed++
			c.Close()
			h.Unregister(group, c)
			continue
		}
		delivered++
	}
	return delivered, failed
}

// BroadcastAll sends payload once to every registered client across groups.
func (h *Hub) BroadcastAll(payload []byte) (delivered, failed int) {
	type member struct {
		group  string
		client Subscriber
	}
	seen := make(map[Subscriber]struct{})
	var targets []member
	h.mu.RLock()
	for group, clients := range h.clients {
		for c := range clients {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			targets = append(targets, member{group: group, client: c})
		}
	}
	h.mu.RUnlock()

	for _, m := range targets {
		if err := m.client.Send(payload); err != nil {
			failed++
			m.client.Close()
			h.Unregister(m.group, m.client)
			continue
		}
		delivered++
	}
	if failed > 0 {
		h.log.Warn("broadcast dropped clients", "failed", failed, "delivered", delivered)
	}
	return delivered, failed
}

func (h *Hub) removeLocked(group string, client Subscriber) {
	if clients, ok := h.clients[group]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, group)
		}
	}
}
