package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/grants"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/notifications"
	"github.com/charlesng35/accessdesk/internal/store"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
	"github.com/charlesng35/accessdesk/pkg/metrics"
)

// ResolveInput is a decision on a pending request.
type ResolveInput struct {
	RequestID     string
	Decision      Decision
	ResolverEmail string
	Note          string
}

// ResolveResult carries the terminal request and, when approved, the grant.
type ResolveResult struct {
	Request models.ApprovalRequest `json:"request"`
	Grant   *models.AccessGrant    `json:"grant,omitempty"`
}

// Resolve approves or rejects a pending request. Only the assigned approver
// or an employee holding the policy's approver role may decide, and never the
// requester. Approval creates the grant in the same transaction as the
// status change.
func (w *Workflow) Resolve(ctx context.Context, in ResolveInput) (ResolveResult, error) {
	if in.Decision != DecisionApproved && in.Decision != DecisionRejected {
		return ResolveResult{}, apperrors.NewBadRequest("decision must be approved or rejected")
	}
	resolver := strings.ToLower(strings.TrimSpace(in.ResolverEmail))
	if resolver == "" {
		return ResolveResult{}, apperrors.NewBadRequest("resolver email is required")
	}

	req, err := w.stores.Approvals.First(ctx, store.Where("request_id", strings.TrimSpace(in.RequestID)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ResolveResult{}, apperrors.ErrNotFound.WithMessage("approval request %s not found", in.RequestID)
		}
		return ResolveResult{}, store.Classify(fmt.Errorf("approval resolve: %w", err))
	}
	if req.Status.Terminal() {
		return ResolveResult{}, alreadyResolved(*req)
	}
	if err := w.authorize(ctx, *req, resolver); err != nil {
		return ResolveResult{}, err
	}

	now := w.now().UTC()
	note := strings.TrimSpace(in.Note)
	status := models.ApprovalApproved
	if in.Decision == DecisionRejected {
		status = models.ApprovalRejected
	}

	var grant *models.AccessGrant
	err = w.stores.Transaction(ctx, func(tx *store.Stores) error {
		fields := map[string]any{
			"status":      status,
			"resolved_at": now,
			"resolved_by": resolver,
			"pending_key": nil,
		}
		if note != "" {
			fields["resolution_note"] = note
		}
		n, err := tx.Approvals.Update(ctx, store.Where("request_id", req.RequestID).Eq("status", models.ApprovalPending), fields)
		if err != nil {
			return err
		}
		if n == 0 {
			return errLostRace
		}
		if status != models.ApprovalApproved {
			return nil
		}

		issued, err := w.issuer.Within(tx).Issue(ctx, grants.IssueInput{
			UserEmail:    req.RequesterEmail,
			ResourceType: req.ResourceType,
			ResourceName: req.ResourceName,
			AccessLevel:  w.cfg.ApprovedAccessLevel,
			GrantedBy:    resolver,
			TTL:          w.cfg.ApprovedGrantTTL,
			RequestID:    req.RequestID,
		})
		if err != nil {
			return err
		}
		grant = &issued
		return nil
	})
	if errors.Is(err, errLostRace) {
		return ResolveResult{}, alreadyResolved(*req)
	}
	if err != nil {
		return ResolveResult{}, store.Classify(fmt.Errorf("approval resolve: %w", err))
	}

	req.Status = status
	req.ResolvedAt = &now
	req.ResolvedBy = &resolver
	req.PendingKey = nil
	if note != "" {
		req.ResolutionNote = &note
	}
	metrics.ApprovalResolutions.WithLabelValues(string(in.Decision)).Inc()

	if grant != nil {
		w.issuer.Provision(ctx, *grant)
	}
	w.recordResolution(ctx, *req, grant)
	w.notify(ctx, req.RequesterEmail, resolutionMessage(*req), *req)

	return ResolveResult{Request: *req, Grant: grant}, nil
}

var errLostRace = errors.New("approval request resolved concurrently")

func alreadyResolved(req models.ApprovalRequest) error {
	return apperrors.ErrAlreadyResolved.WithMessage("approval request %s is already %s", req.RequestID, req.Status)
}

func (w *Workflow) authorize(ctx context.Context, req models.ApprovalRequest, resolver string) error {
	if resolver == req.RequesterEmail {
		return apperrors.ErrForbidden.WithMessage("requesters cannot resolve their own requests")
	}
	if resolver == req.ApproverEmail {
		return nil
	}

	policy, err := w.stores.Policies.First(ctx, store.Where("resource_type", req.ResourceType).Eq("resource_name", req.ResourceName))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.Classify(fmt.Errorf("approval resolve: load policy: %w", err))
	}
	if policy != nil && policy.ApproverRole != "" {
		emp, err := w.stores.Employees.First(ctx, store.Where("email", resolver))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return store.Classify(fmt.Errorf("approval resolve: load resolver: %w", err))
		}
		if emp != nil && strings.EqualFold(emp.Role, policy.ApproverRole) {
			return nil
		}
	}
	return apperrors.ErrForbidden.WithMessage("%s is not an approver for request %s", resolver, req.RequestID)
}

func (w *Workflow) recordResolution(ctx context.Context, req models.ApprovalRequest, grant *models.AccessGrant) {
	ev := audit.Event{
		Type:         audit.EventApprovalRejected,
		UserEmail:    req.RequesterEmail,
		Action:       "resolve_approval",
		Description:  fmt.Sprintf("%s rejected access to %s:%s", *req.ResolvedBy, req.ResourceType, req.ResourceName),
		ResourceType: req.ResourceType,
		ResourceName: req.ResourceName,
		Metadata: map[string]any{
			"request_id":  req.RequestID,
			"resolved_by": *req.ResolvedBy,
		},
	}
	if grant != nil {
		ev.Type = audit.EventApprovalApproved
		ev.Description = fmt.Sprintf("%s approved access to %s:%s", *req.ResolvedBy, req.ResourceType, req.ResourceName)
		ev.Metadata["grant_id"] = grant.ID
		ev.Metadata["access_level"] = grant.AccessLevel
	}
	w.recorder.Safe(ctx, ev)
}

func resolutionMessage(req models.ApprovalRequest) notifications.Message {
	verb := "rejected"
	if req.Status == models.ApprovalApproved {
		verb = "approved"
	}
	body := fmt.Sprintf("Your request for %s:%s was %s by %s.", req.ResourceType, req.ResourceName, verb, *req.ResolvedBy)
	if req.ResolutionNote != nil {
		body += " Note: " + *req.ResolutionNote
	}
	return notifications.Message{
		Kind:     notifications.KindApprovalResolved,
		Subject:  fmt.Sprintf("Access request %s", verb),
		Body:     body,
		Metadata: map[string]any{"request_id": req.RequestID, "status": string(req.Status)},
	}
}
