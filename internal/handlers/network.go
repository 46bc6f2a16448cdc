package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/services"
	"github.com/charlesng35/accessdesk/pkg/response"
)

// NetworkHandler manages temporary perimeter exceptions.
type NetworkHandler struct {
	service *services.WhitelistService
}

// NewNetworkHandler constructs a network handler.
func NewNetworkHandler(service *services.WhitelistService) *NetworkHandler {
	return &NetworkHandler{service: service}
}

type whitelistRequest struct {
	IPAddress string `json:"ip_address" validate:"omitempty,ip"`
	Reason    string `json:"reason" validate:"required,max=500"`
}

// Whitelist allows an address for the caller. Without an address the
// request's client address is used.
func (h *NetworkHandler) Whitelist(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	var req whitelistRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ip := strings.TrimSpace(req.IPAddress)
	if ip == "" {
		ip = c.ClientIP()
	}

	entry, err := h.service.Whitelist(requestContext(c), services.WhitelistInput{
		Email:     email,
		IPAddress: ip,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, entry)
}

// List returns the caller's active entries.
func (h *NetworkHandler) List(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	entries, err := h.service.ListActive(requestContext(c), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entries)
}
