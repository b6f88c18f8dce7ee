package server

import (
	"net/http"

	"github.com/earchibald/yoto-smart-stream-sub004/core/auth"
	"github.com/earchibald/yoto-smart-stream-sub004/core/push"
	"github.com/earchibald/yoto-smart-stream-sub004/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards connect cross-origin during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades the connection and attaches it to the push hub. The
// token travels as a query parameter because browsers cannot set headers on
// websocket upgrades.
func (h *APIHandler) WSHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusUnauthorized, "Token query parameter is required")
		return
	}
	if _, err := auth.ParseToken(token); err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &push.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 64),
	}
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
