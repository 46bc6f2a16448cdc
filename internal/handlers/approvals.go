package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/approval"
	"github.com/charlesng35/accessdesk/internal/services"
	"github.com/charlesng35/accessdesk/pkg/response"
)

// ApprovalHandler serves the approver tools.
type ApprovalHandler struct {
	service *services.AccessService
}

// NewApprovalHandler constructs an approval handler.
func NewApprovalHandler(service *services.AccessService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

type resolveApprovalRequest struct {
	Decision string `json:"decision" validate:"required,oneofci=approve approved reject rejected"`
	Note     string `json:"note" validate:"max=1000"`
}

// Pending lists the requests waiting on the caller.
func (h *ApprovalHandler) Pending(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	pending, err := h.service.GetPendingApprovals(requestContext(c), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, pending, &response.Meta{Total: int64(len(pending)), Limit: len(pending)})
}

// Resolve approves or rejects the request named in the path.
func (h *ApprovalHandler) Resolve(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	var req resolveApprovalRequest
	if !bindAndValidate(c, &req) {
		return
	}
	decision, err := approval.ParseDecision(req.Decision)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.service.ResolveApproval(requestContext(c), approval.ResolveInput{
		RequestID:     strings.TrimSpace(c.Param("id")),
		Decision:      decision,
		ResolverEmail: email,
		Note:          req.Note,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
