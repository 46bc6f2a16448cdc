package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxFrameSize = 64 << 10
	sendBuffer   = 64
)

// control is a frame sent by the browser to change its subscriptions.
type control struct {
	Op      string   `json:"op"`
	Streams []string `json:"streams"`
}

type client struct {
	hub    *Hub
	socket *websocket.Conn
	email  string
	send   chan Message

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func newClient(hub *Hub, socket *websocket.Conn, email string) *client {
	return &client{hub: hub, socket: socket, email: email, send: make(chan Message, sendBuffer)}
}

// enqueue hands message to the write pump. A client whose buffer is full is
// disconnected.
func (c *client) enqueue(message Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
		c.hub.log.Warn("disconnecting slow client", zap.String("email", c.email))
		c.closed = true
		close(c.send)
	}
}

func (c *client) readPump() {
	defer c.shutdown()

	c.socket.SetReadLimit(maxFrameSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame control
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket closed", zap.String("email", c.email), zap.Error(err))
			}
			return
		}
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.hub.log.Debug("malformed control frame", zap.String("email", c.email), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(frame.Op)) {
		case "subscribe":
			c.hub.subscribe(c, frame.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, frame.Streams)
		case "ping":
			c.enqueue(Message{Event: "pong"})
		default:
			c.hub.log.Debug("unknown control op", zap.String("op", frame.Op), zap.String("email", c.email))
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "slow consumer"))
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shutdown unregisters the client and closes the socket. The read pump exits
// on the resulting read error; the write pump on its next write.
func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		c.hub.unregister(c)
		c.mu.Lock()
		if !c.closed {
			c.closed = true
			close(c.send)
		}
		c.mu.Unlock()
		_ = c.socket.Close()
	})
}
