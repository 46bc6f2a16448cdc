package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/services"
	"github.com/charlesng35/accessdesk/internal/training"
	"github.com/charlesng35/accessdesk/pkg/errors"
	"github.com/charlesng35/accessdesk/pkg/response"
)

// TrainingHandler serves the training gate tools.
type TrainingHandler struct {
	service *services.AccessService
}

// NewTrainingHandler constructs a training handler.
func NewTrainingHandler(service *services.AccessService) *TrainingHandler {
	return &TrainingHandler{service: service}
}

type recordTrainingRequest struct {
	TrainingID     string `json:"training_id" validate:"required,identifier"`
	CompletedDate  string `json:"completed_date"`
	ExpiresAt      string `json:"expires_at"`
	CertificateURL string `json:"certificate_url" validate:"omitempty,url"`
}

// Status evaluates the caller's training against one resource.
func (h *TrainingHandler) Status(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	resourceType := strings.TrimSpace(c.Query("resource_type"))
	resourceName := strings.TrimSpace(c.Query("resource_name"))
	if resourceType == "" || resourceName == "" {
		response.Error(c, errors.NewBadRequest("resource_type and resource_name are required"))
		return
	}

	result, err := h.service.CheckUserTrainingStatus(requestContext(c), email, resourceType, resourceName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Record stores a completion for the caller.
func (h *TrainingHandler) Record(c *gin.Context) {
	email, ok := currentEmail(c)
	if !ok {
		return
	}

	var req recordTrainingRequest
	if !bindAndValidate(c, &req) {
		return
	}
	completed, err := parseDateField("completed_date", req.CompletedDate)
	if err != nil {
		response.Error(c, err)
		return
	}
	expires, err := parseDateField("expires_at", req.ExpiresAt)
	if err != nil {
		response.Error(c, err)
		return
	}

	record, err := h.service.RecordTraining(requestContext(c), training.RecordInput{
		UserEmail:      email,
		TrainingID:     req.TrainingID,
		CompletedDate:  completed,
		ExpiresAt:      expires,
		CertificateURL: req.CertificateURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, record)
}
