// Package approval tracks access requests that need a human decision.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/grants"
	"github.com/charlesng35/accessdesk/internal/integrations"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/notifications"
	"github.com/charlesng35/accessdesk/internal/store"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
	"github.com/charlesng35/accessdesk/pkg/logger"
	"github.com/charlesng35/accessdesk/pkg/metrics"
)

// TicketedResourceType lists resources whose requests also open a ticket.
const TicketedResourceType = "api_key"

// Decision is the verdict on a pending request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ParseDecision accepts approved/approve and rejected/reject in any case.
func ParseDecision(value string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "approved", "approve":
		return DecisionApproved, nil
	case "rejected", "reject":
		return DecisionRejected, nil
	}
	return "", apperrors.NewBadRequest("decision must be approved or rejected")
}

// Config tunes grants created on approval.
type Config struct {
	ApprovedAccessLevel string
	ApprovedGrantTTL    time.Duration
	// BaseURL prefixes links in notifications.
	BaseURL string
}

// Workflow creates and resolves approval requests.
type Workflow struct {
	stores   *store.Stores
	issuer   *grants.Issuer
	recorder *audit.Recorder
	notifier notifications.Notifier
	tickets  integrations.Ticketing
	cfg      Config
	now      func() time.Time
	log      *zap.Logger
}

// Option customises a Workflow.
type Option func(*Workflow)

// WithNotifier sets the channel used to reach approvers and requesters.
func WithNotifier(n notifications.Notifier) Option {
	return func(w *Workflow) { w.notifier = n }
}

// WithTicketing sets the ticket tracker used for API key requests.
func WithTicketing(t integrations.Ticketing) Option {
	return func(w *Workflow) { w.tickets = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorkflow constructs a Workflow.
func NewWorkflow(stores *store.Stores, issuer *grants.Issuer, recorder *audit.Recorder, cfg Config, opts ...Option) (*Workflow, error) {
	if stores == nil || issuer == nil {
		return nil, errors.New("approval workflow: stores and grant issuer are required")
	}
	if cfg.ApprovedAccessLevel == "" {
		cfg.ApprovedAccessLevel = "read_write"
	}
	w := &Workflow{
		stores:   stores,
		issuer:   issuer,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.WithModule("approval"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// SubmitInput carries an access request that its policy routes to approval.
type SubmitInput struct {
	Requester models.Employee
	Policy    models.AccessPolicy
	Reason    string
}

// SubmitResult is the pending request. Duplicate is set when an existing
// pending request for the same requester and resource was returned instead.
type SubmitResult struct {
	Request   models.ApprovalRequest
	Duplicate bool
}

// Submit records a pending approval request, opens a ticket when the resource
// needs one and notifies the approver. At most one request per requester and
// resource is pending at a time.
func (w *Workflow) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	if !in.Policy.RequiresApproval {
		return SubmitResult{}, apperrors.ErrBadRequest.WithMessage("policy for %s:%s does not require approval", in.Policy.ResourceType, in.Policy.ResourceName)
	}
	approver, err := w.approverFor(ctx, in.Requester, in.Policy)
	if err != nil {
		return SubmitResult{}, err
	}

	now := w.now().UTC()
	key := models.PendingKeyFor(in.Requester.Email, in.Policy.ResourceType, in.Policy.ResourceName)
	req := models.ApprovalRequest{
		RequestID:      newRequestID(now),
		RequesterEmail: in.Requester.Email,
		ResourceType:   in.Policy.ResourceType,
		ResourceName:   in.Policy.ResourceName,
		Reason:         strings.TrimSpace(in.Reason),
		ApproverEmail:  approver,
		Status:         models.ApprovalPending,
		CreatedAt:      now,
		PendingKey:     &key,
	}

	if err := w.stores.Approvals.Append(ctx, &req); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			existing, lookupErr := w.HasPendingFor(ctx, in.Requester.Email, in.Policy.ResourceType, in.Policy.ResourceName)
			if lookupErr != nil {
				return SubmitResult{}, lookupErr
			}
			if existing != nil {
				return SubmitResult{Request: *existing, Duplicate: true}, nil
			}
		}
		return SubmitResult{}, store.Classify(fmt.Errorf("approval submit: %w", err))
	}

	if req.ResourceType == TicketedResourceType {
		w.openTicket(ctx, &req)
	}

	w.notify(ctx, req.ApproverEmail, notifications.Message{
		Kind:      notifications.KindApprovalRequested,
		Subject:   fmt.Sprintf("Access request: %s:%s", req.ResourceType, req.ResourceName),
		Body:      fmt.Sprintf("%s requested access to %s:%s. Reason: %s", req.RequesterEmail, req.ResourceType, req.ResourceName, reasonOrDash(req.Reason)),
		ActionURL: w.link("/approvals"),
		Metadata:  map[string]any{"request_id": req.RequestID, "requester_email": req.RequesterEmail},
	}, req)

	return SubmitResult{Request: req}, nil
}

// approverFor picks the requester's manager, falling back to any employee
// holding the policy's approver role.
func (w *Workflow) approverFor(ctx context.Context, requester models.Employee, policy models.AccessPolicy) (string, error) {
	if requester.ManagerEmail != "" {
		return requester.ManagerEmail, nil
	}
	if policy.ApproverRole != "" {
		emp, err := w.stores.Employees.First(ctx, store.Where("role", policy.ApproverRole).Neq("email", requester.Email).OrderBy("email"))
		if err == nil {
			return emp.Email, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", store.Classify(fmt.Errorf("approval submit: find approver: %w", err))
		}
	}
	return "", apperrors.ErrNotFound.WithMessage("no approver is available for %s", requester.Email)
}

func (w *Workflow) openTicket(ctx context.Context, req *models.ApprovalRequest) {
	if w.tickets == nil {
		return
	}
	ticket, err := w.tickets.CreateTicket(ctx,
		fmt.Sprintf("API key access: %s for %s", req.ResourceName, req.RequesterEmail),
		fmt.Sprintf("Request %s\nRequester: %s\nApprover: %s\nReason: %s", req.RequestID, req.RequesterEmail, req.ApproverEmail, reasonOrDash(req.Reason)),
	)
	if err != nil {
		w.integrationFailure(ctx, "ticketing", *req, err)
		return
	}

	_, err = w.stores.Approvals.Update(ctx, store.Where("request_id", req.RequestID),
		map[string]any{"ticket_id": ticket.ID, "ticket_url": ticket.URL})
	if err != nil {
		w.log.Error("store ticket reference failed", zap.String("request_id", req.RequestID), zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	req.TicketID = &ticket.ID
	req.TicketURL = &ticket.URL
}

func (w *Workflow) notify(ctx context.Context, recipient string, msg notifications.Message, req models.ApprovalRequest) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, recipient, msg); err != nil {
		w.integrationFailure(ctx, "notification", req, err)
	}
}

func (w *Workflow) integrationFailure(ctx context.Context, integration string, req models.ApprovalRequest, err error) {
	metrics.IntegrationFailures.WithLabelValues(integration).Inc()
	w.log.Error("integration call failed",
		zap.String("integration", integration),
		zap.String("request_id", req.RequestID),
		zap.Error(err),
	)
	w.recorder.Safe(ctx, audit.Event{
		Type:         audit.EventIntegrationFailure,
		Severity:     audit.SeverityHigh,
		UserEmail:    req.RequesterEmail,
		Action:       integration,
		Result:       audit.ResultFailure,
		Description:  fmt.Sprintf("%s call for request %s failed: %v", integration, req.RequestID, err),
		ResourceType: req.ResourceType,
		ResourceName: req.ResourceName,
		Metadata:     map[string]any{"integration": integration, "request_id": req.RequestID},
	})
}

func (w *Workflow) link(path string) string {
	if w.cfg.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(w.cfg.BaseURL, "/") + path
}

func reasonOrDash(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "-"
	}
	return reason
}
