package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/notifications"
	"github.com/charlesng35/accessdesk/internal/realtime"
	"github.com/charlesng35/accessdesk/internal/store"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
)

// ListNotificationsInput filters a recipient's notifications.
type ListNotificationsInput struct {
	Email      string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationEventPayload is pushed to realtime subscribers.
type NotificationEventPayload struct {
	Notification   *models.Notification `json:"notification,omitempty"`
	NotificationID string               `json:"notification_id,omitempty"`
}

// NotificationService stores in-app notifications and pushes them to
// connected clients. It satisfies notifications.Notifier.
type NotificationService struct {
	records store.RecordStore[models.Notification]
	hub     *realtime.Hub
	now     func() time.Time
}

var _ notifications.Notifier = (*NotificationService)(nil)

// NewNotificationService constructs a NotificationService. hub may be nil.
func NewNotificationService(records store.RecordStore[models.Notification], hub *realtime.Hub) (*NotificationService, error) {
	if records == nil {
		return nil, errors.New("notification service: store is required")
	}
	return &NotificationService{records: records, hub: hub, now: time.Now}, nil
}

// Notify persists msg for recipient and broadcasts it.
func (s *NotificationService) Notify(ctx context.Context, recipient string, msg notifications.Message) error {
	email := normalizeEmail(recipient)
	if email == "" {
		return errors.New("notification service: recipient is required")
	}
	kind := strings.TrimSpace(msg.Kind)
	if kind == "" {
		return errors.New("notification service: kind is required")
	}

	row := models.Notification{
		RecipientEmail: email,
		Kind:           kind,
		Title:          strings.TrimSpace(msg.Subject),
		Message:        strings.TrimSpace(msg.Body),
		ActionURL:      strings.TrimSpace(msg.ActionURL),
	}
	if len(msg.Metadata) > 0 {
		row.Metadata = datatypes.JSONMap(msg.Metadata)
	}
	if err := s.records.Append(ctx, &row); err != nil {
		return store.Classify(fmt.Errorf("notification service: create: %w", err))
	}

	s.broadcast(realtime.StreamNotifications, email, "notification.created", &NotificationEventPayload{Notification: &row})
	if strings.HasPrefix(kind, "approval.") {
		s.broadcast(realtime.StreamApprovals, email, kind, &NotificationEventPayload{Notification: &row})
	}
	return nil
}

// ListForUser returns notifications newest first.
func (s *NotificationService) ListForUser(ctx context.Context, in ListNotificationsInput) ([]models.Notification, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	limit := in.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	q := store.Where("recipient_email", email)
	if in.UnreadOnly {
		q = q.Eq("is_read", false)
	}
	rows, err := s.records.Find(ctx, q.OrderByDesc("created_at").Page(limit, in.Offset))
	if err != nil {
		return nil, store.Classify(fmt.Errorf("notification service: list: %w", err))
	}
	return rows, nil
}

// UnreadCount counts unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, email string) (int64, error) {
	n, err := s.records.Count(ctx, store.Where("recipient_email", normalizeEmail(email)).Eq("is_read", false))
	if err != nil {
		return 0, store.Classify(fmt.Errorf("notification service: count unread: %w", err))
	}
	return n, nil
}

// MarkRead flags one of email's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, email, id string) (*models.Notification, error) {
	email = normalizeEmail(email)
	q := store.Where("id", strings.TrimSpace(id)).Eq("recipient_email", email)

	now := s.now().UTC()
	if _, err := s.records.Update(ctx, q.Eq("is_read", false), map[string]any{"is_read": true, "read_at": now}); err != nil {
		return nil, store.Classify(fmt.Errorf("notification service: mark read: %w", err))
	}
	row, err := s.records.First(ctx, q)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("notification %s not found", id)
	}
	if err != nil {
		return nil, store.Classify(fmt.Errorf("notification service: load: %w", err))
	}

	s.broadcast(realtime.StreamNotifications, email, "notification.read", &NotificationEventPayload{Notification: row, NotificationID: row.ID})
	return row, nil
}

// MarkAllRead flags every unread notification of email and returns how many
// changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, email string) (int64, error) {
	email = normalizeEmail(email)
	n, err := s.records.Update(ctx, store.Where("recipient_email", email).Eq("is_read", false),
		map[string]any{"is_read": true, "read_at": s.now().UTC()})
	if err != nil {
		return 0, store.Classify(fmt.Errorf("notification service: mark all read: %w", err))
	}
	if n > 0 {
		s.broadcast(realtime.StreamNotifications, email, "notification.read_all", nil)
	}
	return n, nil
}

func (s *NotificationService) broadcast(stream, email, event string, payload *NotificationEventPayload) {
	if s.hub == nil {
		return
	}
	message := realtime.Message{Stream: stream, Event: event}
	if payload != nil {
		message.Data = payload
	}
	s.hub.BroadcastToUser(stream, email, message)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
