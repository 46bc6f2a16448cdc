package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/services"
	"github.com/charlesng35/accessdesk/pkg/response"
)

// IdentityHandler lets a caller act as one of the directory employees.
type IdentityHandler struct {
	service *services.IdentityService
}

// NewIdentityHandler constructs an identity handler.
func NewIdentityHandler(service *services.IdentityService) *IdentityHandler {
	return &IdentityHandler{service: service}
}

type selectIdentityRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// List returns every identity that can be selected.
func (h *IdentityHandler) List(c *gin.Context) {
	identities, err := h.service.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, identities)
}

// Select issues an access token for the chosen employee.
func (h *IdentityHandler) Select(c *gin.Context) {
	var req selectIdentityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	session, err := h.service.Select(requestContext(c), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}
