package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/cardledger/internal/streaming"
)

const defaultHeartbeat = 15 * time.Second

// EventsHandler streams ledger changes as Server-Sent Events
type EventsHandler struct {
	hub       *streaming.Hub
	heartbeat time.Duration
}

func NewEventsHandler(hub *streaming.Hub) *EventsHandler {
	return &EventsHandler{hub: hub, heartbeat: defaultHeartbeat}
}

// Stream handles GET /api/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("write deadline not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("event stream cannot flush")
		return
	}

	client := h.hub.Register()
	defer h.hub.Unregister(client)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			if err := writeEvent(w, event); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeEvent(w, streaming.NewHeartbeatEvent()); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event streaming.SSEEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
