package ws

import (
	"context"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

const broadcastBuffer = 256

// Hub fans status and log events out to every UI client. It implements
// port.StatusGateway.
type Hub struct {
	clients    map[Client]bool
	broadcast  chan Event
	register   chan Client
	unregister chan Client
	quit       chan struct{}

	// last status, replayed to clients as they join
	last *Event
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Client]bool),
		broadcast:  make(chan Event, broadcastBuffer),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) PublishStatus(ctx context.Context, status domain.Status) error {
	h.enqueue(StatusEvent(status))
	return nil
}

func (h *Hub) PublishLog(ctx context.Context, entry domain.LogEntry) error {
	h.enqueue(LogEvent(entry))
	return nil
}

// enqueue never blocks the caller; the call loop must not stall on a slow UI.
func (h *Hub) enqueue(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		log.Warn().Str("event", ev.Event).Msg("Broadcast channel full, dropping event")
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			log.Info().Str("client_id", client.ID()).Msg("Client registered")
			if h.last != nil {
				h.send(client, *h.last)
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				log.Info().Str("client_id", client.ID()).Msg("Client unregistered")
			}

		case ev := <-h.broadcast:
			if ev.Event == EventStatus {
				last := ev
				h.last = &last
			}
			for client := range h.clients {
				h.send(client, ev)
			}
		}
	}
}

func (h *Hub) send(client Client, ev Event) {
	if err := client.Send(ev); err != nil {
		log.Error().Err(err).Str("client_id", client.ID()).Msg("Error sending event")
		client.Close()
		delete(h.clients, client)
	}
}

func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.quit:
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) Stop() {
	close(h.quit)
}
