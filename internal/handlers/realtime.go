package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/realtime"
	"github.com/charlesng35/accessdesk/pkg/errors"
	"github.com/charlesng35/accessdesk/pkg/response"
)

// RealtimeHandler upgrades authenticated requests into websocket streams.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Stream subscribes the caller to /ws/:stream or to ?streams=a,b. Without
// either the caller receives notifications.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	streams := queryList(c, "streams")
	if stream := strings.TrimSpace(c.Param("stream")); stream != "" {
		streams = append([]string{stream}, streams...)
	}
	if len(streams) == 0 {
		streams = []string{realtime.StreamNotifications}
	}
	for _, stream := range streams {
		if !h.hub.Accepts(stream) {
			response.Error(c, errors.ErrNotFound.WithMessage("unknown stream %q", stream))
			return
		}
	}

	h.hub.Serve(email, streams, c.Writer, c.Request)
}
