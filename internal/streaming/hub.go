// Package streaming fans ledger change events out to Server-Sent Event clients.
package streaming

import (
	"sync"

	"github.com/rs/zerolog"
)

const (
	clientBuffer = 16
	hubBuffer    = 100
)

// Client represents a connected SSE client
type Client struct {
	Events chan SSEEvent
}

// NewClient creates a new SSE client
func NewClient() *Client {
	return &Client{
		Events: make(chan SSEEvent, clientBuffer),
	}
}

// Hub broadcasts every published event to all registered clients.
// A slow client misses events instead of blocking publishers.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	events   chan SSEEvent
	done     chan struct{}
	stopOnce sync.Once
	stopped  bool
	log      zerolog.Logger
}

// NewHub creates a hub and starts its dispatch loop. Call Close to stop it.
func NewHub(log zerolog.Logger) *Hub {
	h := &Hub{
		clients: make(map[*Client]bool),
		events:  make(chan SSEEvent, hubBuffer),
		done:    make(chan struct{}),
		log:     log,
	}
	go h.run()
	return h
}

// Register adds a client. After Close it returns a client whose channel is already closed.
func (h *Hub) Register() *Client {
	client := NewClient()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		close(client.Events)
		return client
	}
	h.clients[client] = true
	h.log.Debug().Int("clients", len(h.clients)).Msg("event client registered")
	return client
}

// Unregister removes a client and closes its channel
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		// Close already closed the channels of remaining clients
		if !h.stopped {
			close(client.Events)
		}
		h.log.Debug().Int("clients", len(h.clients)).Msg("event client unregistered")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues an event for all clients. It never blocks: when the
// queue is full the event is dropped. A nil hub discards events.
func (h *Hub) Publish(event SSEEvent) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}

	select {
	case h.events <- event:
	default:
		h.log.Warn().Str("type", string(event.Type)).Msg("event queue full, dropping event")
	}
}

// Close stops dispatching and closes every client channel
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopped = true
		for client := range h.clients {
			close(client.Events)
			delete(h.clients, client)
		}
		close(h.events)
		h.mu.Unlock()
		<-h.done
	})
}

func (h *Hub) run() {
	defer close(h.done)
	for event := range h.events {
		h.broadcastToClients(event)
	}
}

// broadcastToClients sends an event to all registered clients
func (h *Hub) broadcastToClients(event SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	for client := range h.clients {
		select {
		case client.Events <- event:
		default:
			h.log.Warn().Str("type", string(event.Type)).Msg("client channel full, skipping event")
		}
	}
}
