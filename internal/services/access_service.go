package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/accessdesk/internal/approval"
	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/grants"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/policy"
	"github.com/charlesng35/accessdesk/internal/realtime"
	"github.com/charlesng35/accessdesk/internal/store"
	"github.com/charlesng35/accessdesk/internal/training"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
)

// AccessSummary is everything an employee currently holds or waits on.
type AccessSummary struct {
	Employee       models.Employee          `json:"employee"`
	Grants         []models.AccessGrant     `json:"grants"`
	PendingRequest []models.ApprovalRequest `json:"pending_requests"`
	WhitelistedIPs []models.WhitelistedIP   `json:"whitelisted_ips"`
	APIKeys        []models.APIKey          `json:"api_keys"`
}

// AccessService is the tool facade of the access core.
type AccessService struct {
	employees store.Reader[models.Employee]
	evaluator *policy.Evaluator
	gate      *training.Gate
	workflow  *approval.Workflow
	issuer    *grants.Issuer
	whitelist *WhitelistService
	keys      *APIKeyService
	recorder  *audit.Recorder
	hub       *realtime.Hub
}

// AccessDeps bundles the collaborators of an AccessService.
type AccessDeps struct {
	Stores    *store.Stores
	Evaluator *policy.Evaluator
	Gate      *training.Gate
	Workflow  *approval.Workflow
	Issuer    *grants.Issuer
	Whitelist *WhitelistService
	APIKeys   *APIKeyService
	Recorder  *audit.Recorder
	Hub       *realtime.Hub
}

// NewAccessService constructs an AccessService.
func NewAccessService(deps AccessDeps) (*AccessService, error) {
	if deps.Stores == nil || deps.Evaluator == nil || deps.Gate == nil || deps.Workflow == nil || deps.Issuer == nil {
		return nil, errors.New("access service: stores, evaluator, gate, workflow and issuer are required")
	}
	return &AccessService{
		employees: deps.Stores.Employees,
		evaluator: deps.Evaluator,
		gate:      deps.Gate,
		workflow:  deps.Workflow,
		issuer:    deps.Issuer,
		whitelist: deps.Whitelist,
		keys:      deps.APIKeys,
		recorder:  deps.Recorder,
		hub:       deps.Hub,
	}, nil
}

// CheckUserAccess summarises the grants, pending requests, whitelist entries
// and API keys of email.
func (s *AccessService) CheckUserAccess(ctx context.Context, email string) (AccessSummary, error) {
	employee, err := s.Employee(ctx, email)
	if err != nil {
		return AccessSummary{}, err
	}

	summary := AccessSummary{
		Employee:       *employee,
		WhitelistedIPs: []models.WhitelistedIP{},
		APIKeys:        []models.APIKey{},
	}
	if summary.Grants, err = s.issuer.EffectiveGrants(ctx, employee.Email); err != nil {
		return AccessSummary{}, err
	}
	history, err := s.workflow.ListHistory(ctx, employee.Email)
	if err != nil {
		return AccessSummary{}, err
	}
	summary.PendingRequest = history.Pending
	if s.whitelist != nil {
		if summary.WhitelistedIPs, err = s.whitelist.ListActive(ctx, employee.Email); err != nil {
			return AccessSummary{}, err
		}
	}
	if s.keys != nil {
		if summary.APIKeys, err = s.keys.ListActive(ctx, employee.Email); err != nil {
			return AccessSummary{}, err
		}
	}

	s.recorder.Safe(ctx, audit.Event{
		Type:        audit.EventAccessChecked,
		UserEmail:   employee.Email,
		Action:      "check_access",
		Description: fmt.Sprintf("%d active grants, %d pending requests", len(summary.Grants), len(summary.PendingRequest)),
		Metadata:    map[string]any{"grants": len(summary.Grants), "pending": len(summary.PendingRequest)},
	})
	return summary, nil
}

// RequestAccess evaluates an access request and pushes the outcome to the
// requester's access stream.
func (s *AccessService) RequestAccess(ctx context.Context, req policy.Request) (policy.Outcome, error) {
	out, err := s.evaluator.RequestAccess(ctx, req)
	if err != nil {
		return out, err
	}
	if s.hub != nil {
		s.hub.BroadcastToUser(realtime.StreamAccess, req.Email, realtime.Message{
			Event: "access." + strings.ToLower(string(out.Decision)),
			Data:  out,
		})
	}
	return out, nil
}

// CheckUserTrainingStatus evaluates the training gate for a resource. The
// resource must have a policy.
func (s *AccessService) CheckUserTrainingStatus(ctx context.Context, email, resourceType, resourceName string) (training.Result, error) {
	if _, ok := s.evaluator.Catalog().Lookup(resourceType, resourceName); !ok {
		return training.Result{}, apperrors.ErrPolicyMissing.WithMessage("no access policy for %s:%s", resourceType, resourceName)
	}
	return s.gate.Evaluate(ctx, email, resourceType, resourceName)
}

// RecordTraining stores a training completion.
func (s *AccessService) RecordTraining(ctx context.Context, in training.RecordInput) (models.UserTrainingRecord, error) {
	if _, err := s.Employee(ctx, in.UserEmail); err != nil {
		return models.UserTrainingRecord{}, err
	}
	return s.gate.RecordCompletion(ctx, in)
}

// GetUserRequestHistory groups the approval requests filed by email.
func (s *AccessService) GetUserRequestHistory(ctx context.Context, email string) (approval.History, error) {
	return s.workflow.ListHistory(ctx, email)
}

// GetPendingApprovals lists the requests waiting on approverEmail.
func (s *AccessService) GetPendingApprovals(ctx context.Context, approverEmail string) ([]models.ApprovalRequest, error) {
	return s.workflow.ListPending(ctx, approverEmail)
}

// ResolveApproval approves or rejects a pending request.
func (s *AccessService) ResolveApproval(ctx context.Context, in approval.ResolveInput) (approval.ResolveResult, error) {
	return s.workflow.Resolve(ctx, in)
}

// RevokeGrant retires a grant on behalf of revokedBy and tells the holder.
func (s *AccessService) RevokeGrant(ctx context.Context, grantID, revokedBy, reason string) (models.AccessGrant, error) {
	grant, err := s.issuer.Revoke(ctx, grantID, normalizeEmail(revokedBy), strings.TrimSpace(reason))
	if err != nil {
		return models.AccessGrant{}, err
	}
	if s.hub != nil {
		s.hub.BroadcastToUser(realtime.StreamAccess, grant.UserEmail, realtime.Message{
			Event: "access.revoked",
			Data:  grant,
		})
	}
	return grant, nil
}

// Policies lists every resource with an access policy.
func (s *AccessService) Policies() []policy.Policy {
	return s.evaluator.Catalog().List()
}

// Employee loads one employee.
func (s *AccessService) Employee(ctx context.Context, email string) (*models.Employee, error) {
	employee, err := s.employees.First(ctx, store.Where("email", normalizeEmail(email)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("employee %s not found", email)
	}
	if err != nil {
		return nil, store.Classify(fmt.Errorf("access service: load employee: %w", err))
	}
	return employee, nil
}
