package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/services"
	"github.com/charlesng35/accessdesk/pkg/response"
)

// NotificationHandler exposes the in-app inbox.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List returns notifications for the current employee, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	in := services.ListNotificationsInput{
		Email:      email,
		UnreadOnly: strings.EqualFold(c.Query("unread"), "true"),
		Limit:      parseIntQuery(c, "limit", 25),
		Offset:     parseIntQuery(c, "offset", 0),
	}
	items, err := h.service.ListForUser(requestContext(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	unread, err := h.service.UnreadCount(requestContext(c), email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"notifications": items, "unread": unread})
}

// MarkRead flags a notification as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	item, err := h.service.MarkRead(requestContext(c), email, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// MarkAllRead flags every unread notification as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}
