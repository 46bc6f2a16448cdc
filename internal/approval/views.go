package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/notifications"
	"github.com/charlesng35/accessdesk/internal/store"
)

// History groups a requester's approval requests by status, newest first.
type History struct {
	Pending  []models.ApprovalRequest `json:"pending"`
	Approved []models.ApprovalRequest `json:"approved"`
	Rejected []models.ApprovalRequest `json:"rejected"`
	Total    int                      `json:"total"`
}

// ListPending returns the requests awaiting approverEmail, newest first.
func (w *Workflow) ListPending(ctx context.Context, approverEmail string) ([]models.ApprovalRequest, error) {
	rows, err := w.stores.Approvals.Find(ctx, store.Where("approver_email", normalize(approverEmail)).
		Eq("status", models.ApprovalPending).
		OrderByDesc("created_at"))
	if err != nil {
		return nil, store.Classify(fmt.Errorf("approval list pending: %w", err))
	}
	return rows, nil
}

// ListHistory returns every request filed by requesterEmail.
func (w *Workflow) ListHistory(ctx context.Context, requesterEmail string) (History, error) {
	rows, err := w.stores.Approvals.Find(ctx, store.Where("requester_email", normalize(requesterEmail)).OrderByDesc("created_at"))
	if err != nil {
		return History{}, store.Classify(fmt.Errorf("approval history: %w", err))
	}

	h := History{
		Pending:  []models.ApprovalRequest{},
		Approved: []models.ApprovalRequest{},
		Rejected: []models.ApprovalRequest{},
		Total:    len(rows),
	}
	for _, row := range rows {
		switch row.Status {
		case models.ApprovalPending:
			h.Pending = append(h.Pending, row)
		case models.ApprovalApproved:
			h.Approved = append(h.Approved, row)
		case models.ApprovalRejected:
			h.Rejected = append(h.Rejected, row)
		}
	}
	return h, nil
}

// HasPendingFor returns the pending request for the triple, or nil.
func (w *Workflow) HasPendingFor(ctx context.Context, email, resourceType, resourceName string) (*models.ApprovalRequest, error) {
	req, err := w.stores.Approvals.First(ctx, store.Where("requester_email", normalize(email)).
		Eq("resource_type", resourceType).
		Eq("resource_name", resourceName).
		Eq("status", models.ApprovalPending))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Classify(fmt.Errorf("approval pending lookup: %w", err))
	}
	return req, nil
}

// RemindStale notifies approvers of requests pending longer than age and
// returns how many reminders were sent.
func (w *Workflow) RemindStale(ctx context.Context, age time.Duration) (int, error) {
	cutoff := w.now().UTC().Add(-age)
	rows, err := w.stores.Approvals.Find(ctx, store.Where("status", models.ApprovalPending).
		Lte("created_at", cutoff).
		OrderBy("created_at"))
	if err != nil {
		return 0, store.Classify(fmt.Errorf("approval reminders: %w", err))
	}
	if w.notifier == nil {
		return 0, nil
	}

	sent := 0
	for _, req := range rows {
		waiting := w.now().Sub(req.CreatedAt).Round(time.Hour)
		err := w.notifier.Notify(ctx, req.ApproverEmail, notifications.Message{
			Kind:      notifications.KindApprovalReminder,
			Subject:   fmt.Sprintf("Reminder: access request %s is waiting", req.RequestID),
			Body:      fmt.Sprintf("%s has been waiting %s for access to %s:%s.", req.RequesterEmail, waiting, req.ResourceType, req.ResourceName),
			ActionURL: w.link("/approvals"),
			Metadata:  map[string]any{"request_id": req.RequestID},
		})
		if err != nil {
			w.integrationFailure(ctx, "notification", req, err)
			continue
		}
		sent++
		w.recorder.Safe(ctx, audit.Event{
			Type:        audit.EventApprovalReminderSent,
			UserEmail:   req.ApproverEmail,
			Action:      "remind_approver",
			Description: fmt.Sprintf("Reminded %s about request %s", req.ApproverEmail, req.RequestID),
			Metadata:    map[string]any{"request_id": req.RequestID, "requester_email": req.RequesterEmail},
		})
	}
	return sent, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
