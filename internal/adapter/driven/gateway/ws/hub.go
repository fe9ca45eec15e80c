package ws

import (
	"sync"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// Hub tracks every live websocket so shutdown can close them.
type Hub struct {
	mu         sync.Mutex
	clients    map[Client]bool
	register   chan Client
	unregister chan Client
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Client]bool),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Info().Str("client_id", client.ID()).Str("meeting_id", client.MeetingID().String()).Msg("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			h.mu.Unlock()
			if ok {
				log.Info().Str("client_id", client.ID()).Msg("Client unregistered")
			}
		}
	}
}

// Register reports false once the hub is stopped; the caller should close c.
func (h *Hub) Register(c Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Count reports the live connections into a meeting.
func (h *Hub) Count(meetingID domain.MeetingID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.clients {
		if c.MeetingID() == meetingID {
			n++
		}
	}
	return n
}

// Stop closes every registered client and waits for Run to return.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.done
}
