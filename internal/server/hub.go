package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/karmen87/Crypto-Alarm/internal/service/monitor"
)

// message is the wire envelope in both directions.
type message struct {
	Event  string          `json:"event,omitempty"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Hub fans engine events out to every connected client.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

var _ monitor.Sink = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.close()
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
			slog.Info("client connected", "clients", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			slog.Info("client disconnected", "clients", len(h.clients))
		case data := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// slow consumer, drop it
					delete(h.clients, client)
					client.close()
				}
			}
		}
	}
}

// Publish implements monitor.Sink, delivery is best-effort.
func (h *Hub) Publish(ctx context.Context, event string, payload any) {
	h.Broadcast(event, payload)
}

func (h *Hub) Broadcast(event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		slog.Error("failed to encode event", "event", event, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("broadcast queue full, dropping event", "event", event)
	}
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(message{Event: event, Data: data})
}
