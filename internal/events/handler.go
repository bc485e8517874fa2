package events

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"betclever/internal/logging"
)

type Handler struct {
	hub      *Hub
	log      logging.Logger
	upgrader websocket.Upgrader
}

// NewHandler upgrades admin requests onto the hub. Cross-origin upgrades are
// accepted only from allowedOrigins; same-host requests always pass.
func NewHandler(hub *Hub, log logging.Logger, allowedOrigins []string) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return &Handler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowed[strings.ToLower(origin)] {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "ws upgrade failed", "err", err)
		return
	}
	client := NewClient(h.hub, conn)
	h.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
}
