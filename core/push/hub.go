package push

import (
	"encoding/json"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/logger"
	"github.com/earchibald/yoto-smart-stream-sub004/model"

	"github.com/gorilla/websocket"
)

// MessageType identifies a push message.
type MessageType string

const (
	MsgTypeState  MessageType = "state"  // device state update
	MsgTypeDevice MessageType = "device" // device added / removed
	MsgTypeQueue  MessageType = "queue"  // stream queue changed
	MsgTypeError  MessageType = "error"  // server-side error notice
	MsgTypePing   MessageType = "ping"   // heartbeat
	MsgTypePong   MessageType = "pong"   // heartbeat response
)

// Message is the wire format pushed to dashboard clients.
type Message struct {
	Type      MessageType     `json:"type"`
	DeviceID  string          `json:"deviceId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client is one connected dashboard websocket.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

// Hub fans device state updates out to all connected dashboards.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
}

// NewHub creates an idle Hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run processes register, unregister and broadcast events until Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			logger.Info("dashboard client connected", logger.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				logger.Info("dashboard client disconnected", logger.Int("clients", len(h.clients)))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Send buffer full, drop the client.
					delete(h.clients, client)
					close(client.Send)
				}
			}

		case <-h.done:
			for client := range h.clients {
				close(client.Send)
			}
			h.clients = make(map[*Client]bool)
			return
		}
	}
}

// Stop shuts the hub down and closes all client send channels.
func (h *Hub) Stop() {
	close(h.done)
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast sends a raw message to every connected dashboard.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		logger.Warn("push broadcast buffer full, dropping message")
	}
}

// BroadcastMessage marshals and broadcasts a typed message.
func (h *Hub) BroadcastMessage(msgType MessageType, deviceID string, data interface{}) error {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}
	msg := Message{
		Type:      msgType,
		DeviceID:  deviceID,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	}
	b, err := json.Marshal(&msg)
	if err != nil {
		return err
	}
	h.Broadcast(b)
	return nil
}

// BroadcastState pushes a device state update to all dashboards.
func (h *Hub) BroadcastState(state *model.DeviceState) {
	if err := h.BroadcastMessage(MsgTypeState, state.DeviceID, state); err != nil {
		logger.Warn("failed to broadcast device state",
			logger.ErrorField(err),
			logger.String("device", state.DeviceID))
	}
}

// ReadPump drains the client connection until it closes. Incoming messages
// are heartbeats only; the dashboard stream is one-way otherwise.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == MsgTypePing {
			pong := Message{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}
			if data, err := json.Marshal(&pong); err == nil {
				select {
				case c.Send <- data:
				default:
				}
			}
		}
	}
}

// WritePump flushes the send channel to the connection and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce whatever else is queued.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
