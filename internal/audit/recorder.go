package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/accessdesk/internal/auditctx"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
	"github.com/charlesng35/accessdesk/pkg/logger"
	"github.com/charlesng35/accessdesk/pkg/metrics"
)

// Recorder appends audit events. It is the only writer of the audit table.
type Recorder struct {
	events store.AppendOnly[models.AuditEvent]
	scorer Scorer
	now    func() time.Time
	newID  func() string
	log    *zap.Logger
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithScorer replaces the default HeuristicScorer.
func WithScorer(scorer Scorer) Option {
	return func(r *Recorder) {
		if scorer != nil {
			r.scorer = scorer
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder constructs a Recorder writing to events.
func NewRecorder(events store.AppendOnly[models.AuditEvent], opts ...Option) (*Recorder, error) {
	if events == nil {
		return nil, errors.New("audit recorder: event store is required")
	}
	r := &Recorder{
		events: events,
		scorer: HeuristicScorer{},
		now:    time.Now,
		newID:  uuid.NewString,
		log:    logger.WithModule("audit"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Scorer returns the scorer used for derived fields.
func (r *Recorder) Scorer() Scorer { return r.scorer }

// Record fills in the event id, timestamp and defaults, derives severity,
// risk and compliance tags for resource events, and appends the event.
func (r *Recorder) Record(ctx context.Context, ev Event) (models.AuditEvent, error) {
	if ev.Type == "" {
		return models.AuditEvent{}, errors.New("audit recorder: event type is required")
	}

	row := r.build(ctx, ev)
	if err := r.events.Append(ctx, &row); err != nil {
		return models.AuditEvent{}, fmt.Errorf("audit recorder: append %s: %w", row.EventType, err)
	}

	metrics.AuditEvents.WithLabelValues(row.EventType, row.Severity).Inc()
	return row, nil
}

// Safe records ev and swallows any failure after logging it. It returns the
// event id, or an empty string when nothing was written.
func (r *Recorder) Safe(ctx context.Context, ev Event) string {
	if r == nil {
		return ""
	}
	row, err := r.Record(ctx, ev)
	if err != nil {
		metrics.AuditWriteFailures.Inc()
		r.log.Warn("audit write failed",
			zap.String("event_type", string(ev.Type)),
			zap.String("user_email", ev.UserEmail),
			zap.Error(err),
		)
		return ""
	}
	return row.EventID
}

func (r *Recorder) build(ctx context.Context, ev Event) models.AuditEvent {
	actor, hasActor := auditctx.FromContext(ctx)

	email := strings.ToLower(strings.TrimSpace(ev.UserEmail))
	if email == "" && hasActor {
		email = strings.ToLower(actor.Email)
	}

	action := strings.TrimSpace(ev.Action)
	if action == "" {
		action = strings.ToLower(string(ev.Type))
	}

	row := models.AuditEvent{
		EventID:      r.newID(),
		Timestamp:    r.now().UTC(),
		EventType:    string(ev.Type),
		Severity:     string(SeverityLow),
		UserEmail:    email,
		Action:       action,
		ActionResult: string(ResultSuccess),
		Description:  ev.Description,
	}
	if ev.Result != "" {
		row.ActionResult = string(ev.Result)
	}

	var tags []string
	if ev.hasResource() {
		resourceType, resourceName := ev.ResourceType, ev.ResourceName
		row.ResourceType = &resourceType
		row.ResourceName = &resourceName

		row.Severity = string(r.scorer.Severity(resourceType, resourceName))
		risk := clampScore(r.scorer.RiskScore(resourceType, resourceName, email))
		row.RiskScore = &risk
		tags = r.scorer.ComplianceTags(resourceType, resourceName)
	}
	if ev.Severity.Valid() {
		row.Severity = string(ev.Severity)
	}
	if ev.RiskScore != nil {
		risk := clampScore(*ev.RiskScore)
		row.RiskScore = &risk
	}
	row.ComplianceTags = mergeTags(tags, ev.ComplianceTags)

	meta := make(map[string]any, len(ev.Metadata)+3)
	if hasActor {
		for k, v := range actor.Metadata() {
			meta[k] = v
		}
	}
	for k, v := range ev.Metadata {
		meta[k] = v
	}
	row.Metadata = meta

	return row
}

func mergeTags(sets ...[]string) []string {
	out := make([]string, 0)
	seen := make(map[string]struct{})
	for _, set := range sets {
		for _, tag := range set {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}
