// Package realtime pushes notifications and approval updates to connected
// employees over websockets.
package realtime

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/accessdesk/pkg/logger"
	"github.com/charlesng35/accessdesk/pkg/metrics"
)

// Message is the JSON frame written to subscribers.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Hub fans messages out to websocket clients subscribed to known streams.
type Hub struct {
	known    map[string]struct{}
	origins  []string
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu      sync.RWMutex
	streams map[string]map[*client]struct{}
}

// NewHub constructs a hub serving the Known streams. Browser upgrades are
// accepted from the request host, loopback hosts and origins; "*" accepts any
// origin.
func NewHub(origins ...string) *Hub {
	h := &Hub{
		known:   make(map[string]struct{}, len(Known)),
		streams: make(map[string]map[*client]struct{}),
		log:     logger.WithModule("realtime"),
	}
	for _, stream := range Known {
		h.known[stream] = struct{}{}
	}
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			h.origins = append(h.origins, strings.TrimRight(origin, "/"))
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Accepts reports whether stream is served by the hub.
func (h *Hub) Accepts(stream string) bool {
	_, ok := h.known[normalizeStream(stream)]
	return ok
}

// Serve upgrades the request and subscribes email to streams until the
// connection closes.
func (h *Hub) Serve(email string, streams []string, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("email", email), zap.Error(err))
		return
	}

	c := newClient(h, socket, strings.ToLower(strings.TrimSpace(email)))
	metrics.RealtimeConnections.Inc()
	h.subscribe(c, streams)

	go c.writePump()
	c.readPump()
}

// BroadcastToUser delivers message to every connection of email on stream.
func (h *Hub) BroadcastToUser(stream, email string, message Message) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}
	h.publish(stream, message, func(c *client) bool { return c.email == email })
}

// BroadcastToUsers delivers message to each of emails on stream.
func (h *Hub) BroadcastToUsers(stream string, emails []string, message Message) {
	targets := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			targets[email] = struct{}{}
		}
	}
	h.publish(stream, message, func(c *client) bool {
		_, ok := targets[c.email]
		return ok
	})
}

// BroadcastStream delivers message to every subscriber of stream.
func (h *Hub) BroadcastStream(stream string, message Message) {
	h.publish(stream, message, func(*client) bool { return true })
}

// Subscribers counts the connections listening on stream.
func (h *Hub) Subscribers(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[normalizeStream(stream)])
}

func (h *Hub) publish(stream string, message Message, match func(*client) bool) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	var targets []*client
	for c := range h.streams[stream] {
		if match(c) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(message)
	}
}

func (h *Hub) subscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if _, ok := h.known[stream]; !ok {
			h.log.Debug("ignoring unknown stream", zap.String("stream", stream), zap.String("email", c.email))
			continue
		}
		if h.streams[stream] == nil {
			h.streams[stream] = make(map[*client]struct{})
		}
		h.streams[stream][c] = struct{}{}
	}
}

func (h *Hub) unsubscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, stream := range streams {
		h.dropLocked(c, normalizeStream(stream))
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for stream := range h.streams {
		h.dropLocked(c, stream)
	}
	metrics.RealtimeConnections.Dec()
}

func (h *Hub) dropLocked(c *client, stream string) {
	subs, ok := h.streams[stream]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.streams, stream)
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, strings.TrimRight(origin, "/")) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	requestHost := r.Host
	if i := strings.LastIndex(requestHost, ":"); i > 0 && !strings.HasSuffix(requestHost, "]") {
		requestHost = requestHost[:i]
	}
	return strings.EqualFold(host, strings.Trim(requestHost, "[]"))
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}
