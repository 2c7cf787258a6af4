package relay

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"govorilka/internal/wire"
)

// Server upgrades websocket requests and hands them to the hub. Codec
// and initial identity are negotiated via query parameters.
type Server struct {
	hub      *Hub
	upgrader *websocket.Upgrader
}

func NewServer(hub *Hub) *Server {
	return &Server{
		hub: hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // dev relay, any origin
			},
		},
	}
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	codec, err := wire.CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	identity := r.URL.Query().Get("uuid")
	if identity == "" {
		identity = "guest-" + uuid.NewString()
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(s.hub, ws, codec, uuid.NewString(), identity)
	if err := conn.Handle(r.Context()); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		slog.Warn("connection closed with error", "conn", conn.id, "error", err)
	}
}
