package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/services"
	"github.com/charlesng35/accessdesk/pkg/response"
)

// APIKeyHandler issues third-party API keys backed by access grants.
type APIKeyHandler struct {
	service *services.APIKeyService
}

// NewAPIKeyHandler constructs an API key handler.
func NewAPIKeyHandler(service *services.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{service: service}
}

type issueKeyRequest struct {
	Service string `json:"service" validate:"required,max=32,identifier"`
}

// Issue mints a key. The plaintext appears only in this response; callers
// without a grant get a 200 denial naming the next step.
func (h *APIKeyHandler) Issue(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	var req issueKeyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.service.Issue(requestContext(c), email, req.Service)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if result.Denied {
		status = http.StatusOK
	}
	response.Success(c, status, result)
}

// List returns the caller's active keys without secrets.
func (h *APIKeyHandler) List(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	keys, err := h.service.ListActive(requestContext(c), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, keys)
}
