// Package notifications delivers messages to employees. Notifier
// implementations are composed at startup: in-app, email and log delivery
// can run together through MultiNotifier, and QueueNotifier defers delivery
// to a background worker.
package notifications

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/accessdesk/pkg/logger"
)

// Message kinds.
const (
	KindApprovalRequested = "approval.requested"
	KindApprovalResolved  = "approval.resolved"
	KindApprovalReminder  = "approval.reminder"
	KindGrantExpired      = "grant.expired"
)

// Message is a channel independent notification.
type Message struct {
	Kind      string         `json:"kind"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	ActionURL string         `json:"action_url,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Notifier delivers a message to one recipient.
type Notifier interface {
	Notify(ctx context.Context, recipient string, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, recipient string, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, recipient string, msg Message) error {
	return f(ctx, recipient, msg)
}

var errNoRecipient = errors.New("notifications: recipient is required")

// LogNotifier writes messages to the structured log. It stands in for chat
// integrations such as Slack.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.WithModule("notifications")}
}

func (n *LogNotifier) Notify(ctx context.Context, recipient string, msg Message) error {
	if strings.TrimSpace(recipient) == "" {
		return errNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.Info("notification sent",
		zap.String("recipient", recipient),
		zap.String("kind", msg.Kind),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// MultiNotifier fans a message out to every notifier and combines failures.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, recipient string, msg Message) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Notify(ctx, recipient, msg))
	}
	return err
}
