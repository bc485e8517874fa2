package events

import (
	"context"
	"encoding/json"
	"sync"

	"betclever/internal/logging"
)

// Hub tracks websocket clients and broadcasts serialized events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	log        logging.Logger
}

func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 1024),
		register:   make(chan *Client, 128),
		unregister: make(chan *Client, 128),
		log:        log,
	}
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug(ctx, "ws connected", "total_clients", total)

		case client := <-h.unregister:
			h.drop(ctx, client)

		case message := <-h.broadcast:
			h.mutex.RLock()
			snapshot := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				snapshot = append(snapshot, c)
			}
			h.mutex.RUnlock()

			for _, client := range snapshot {
				select {
				case client.send <- message:
				default:
					// too slow to keep up
					h.drop(ctx, client)
				}
			}
		}
	}
}

func (h *Hub) drop(ctx context.Context, client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mutex.Unlock()
	h.log.Debug(ctx, "ws disconnected", "total_clients", total)
}

func (h *Hub) Register(client *Client) { h.register <- client }

func (h *Hub) Unregister(client *Client) { h.unregister <- client }

func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn(context.Background(), "ws broadcast dropped", "reason", "buffer_full")
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Forward subscribes to bus and broadcasts every event until ctx is done.
func (h *Hub) Forward(ctx context.Context, bus Bus) error {
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	for e := range ch {
		b, err := json.Marshal(e)
		if err != nil {
			continue
		}
		h.Broadcast(b)
	}
	return nil
}
