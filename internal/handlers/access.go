package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/policy"
	"github.com/charlesng35/accessdesk/internal/services"
	"github.com/charlesng35/accessdesk/pkg/response"
)

// AccessHandler serves the access check and request tools.
type AccessHandler struct {
	service *services.AccessService
}

// NewAccessHandler constructs an access handler.
func NewAccessHandler(service *services.AccessService) *AccessHandler {
	return &AccessHandler{service: service}
}

type requestAccessRequest struct {
	ResourceType string `json:"resource_type" validate:"required,identifier"`
	ResourceName string `json:"resource_name" validate:"required,identifier"`
	Reason       string `json:"reason" validate:"max=1000"`
}

type revokeGrantRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type policyView struct {
	ResourceType     string `json:"resource_type"`
	ResourceName     string `json:"resource_name"`
	RequiresApproval bool   `json:"requires_approval"`
	Conditions       string `json:"auto_approve_conditions"`
	ApproverRole     string `json:"approver_role,omitempty"`
}

// Check returns the caller's grants, pending requests and credentials.
func (h *AccessHandler) Check(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	summary, err := h.service.CheckUserAccess(requestContext(c), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// Request evaluates an access request for the caller. Auto grants answer
// 201, requests routed for approval 202 and denials 200 with the reason.
func (h *AccessHandler) Request(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	var req requestAccessRequest
	if !bindAndValidate(c, &req) {
		return
	}

	outcome, err := h.service.RequestAccess(requestContext(c), policy.Request{
		Email:        email,
		ResourceType: req.ResourceType,
		ResourceName: req.ResourceName,
		Reason:       req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	switch outcome.Decision {
	case policy.DecisionAutoGranted:
		status = http.StatusCreated
	case policy.DecisionPendingApproval:
		status = http.StatusAccepted
	}
	response.Success(c, status, outcome)
}

// Revoke retires the grant named by the :id path parameter.
func (h *AccessHandler) Revoke(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	var req revokeGrantRequest
	if !bindAndValidate(c, &req) {
		return
	}

	grant, err := h.service.RevokeGrant(requestContext(c), c.Param("id"), email, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, grant)
}

// History groups the caller's approval requests by status.
func (h *AccessHandler) History(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	history, err := h.service.GetUserRequestHistory(requestContext(c), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, history)
}

// Policies lists every resource that can be requested.
func (h *AccessHandler) Policies(c *gin.Context) {
	policies := h.service.Policies()
	out := make([]policyView, len(policies))
	for i, p := range policies {
		out[i] = policyView{
			ResourceType:     p.ResourceType,
			ResourceName:     p.ResourceName,
			RequiresApproval: p.RequiresApproval,
			Conditions:       p.Condition.String(),
			ApproverRole:     p.ApproverRole,
		}
	}
	response.Success(c, http.StatusOK, out)
}
