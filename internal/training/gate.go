// Package training decides whether an employee's completed training satisfies
// the prerequisites of a resource.
package training

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
)

// ItemState is the standing of one required training item.
type ItemState string

const (
	StateSatisfied ItemState = "satisfied"
	// StateMissing means no record exists.
	StateMissing ItemState = "missing"
	// StateIncomplete means a record exists but is not marked completed.
	StateIncomplete ItemState = "incomplete"
	// StateExpired means the item was completed but has lapsed.
	StateExpired ItemState = "expired"
)

// ItemStatus reports one required item for one employee.
type ItemStatus struct {
	TrainingID     string     `json:"training_id"`
	Name           string     `json:"name"`
	URL            string     `json:"url"`
	State          ItemState  `json:"state"`
	CompletedDate  *time.Time `json:"completed_date,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CertificateURL *string    `json:"certificate_url,omitempty"`
}

// Result is the outcome of a gate evaluation. Items keep the declared order
// of the requirement.
type Result struct {
	ResourceType   string       `json:"resource_type"`
	ResourceName   string       `json:"resource_name"`
	Required       bool         `json:"required"`
	Satisfied      bool         `json:"satisfied"`
	SatisfiedItems []ItemStatus `json:"satisfied_items"`
	MissingItems   []ItemStatus `json:"missing_items"`
	ExpiredItems   []ItemStatus `json:"expired_items"`
}

// Outstanding returns the items the employee still has to act on, missing
// items first.
func (r Result) Outstanding() []ItemStatus {
	out := make([]ItemStatus, 0, len(r.MissingItems)+len(r.ExpiredItems))
	out = append(out, r.MissingItems...)
	return append(out, r.ExpiredItems...)
}

// OnlyExpired reports whether every outstanding item is a lapsed completion.
func (r Result) OnlyExpired() bool {
	return len(r.MissingItems) == 0 && len(r.ExpiredItems) > 0
}

// Gate evaluates training prerequisites. Evaluate never writes.
type Gate struct {
	requirements store.Reader[models.TrainingRequirement]
	records      store.RecordStore[models.UserTrainingRecord]
	recorder     *audit.Recorder
	now          func() time.Time
}

// Option customises a Gate.
type Option func(*Gate)

// WithClock overrides the time used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRecorder sets the audit recorder used by RecordCompletion.
func WithRecorder(recorder *audit.Recorder) Option {
	return func(g *Gate) {
		g.recorder = recorder
	}
}

// NewGate constructs a Gate over the training tables.
func NewGate(stores *store.Stores, opts ...Option) (*Gate, error) {
	if stores == nil {
		return nil, errors.New("training gate: stores are required")
	}
	g := &Gate{
		requirements: stores.TrainingRequirements,
		records:      stores.TrainingRecords,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Evaluate reports whether email satisfies the training required for the
// resource. Resources without a requirement are always satisfied.
func (g *Gate) Evaluate(ctx context.Context, email, resourceType, resourceName string) (Result, error) {
	result := Result{
		ResourceType:   resourceType,
		ResourceName:   resourceName,
		SatisfiedItems: []ItemStatus{},
		MissingItems:   []ItemStatus{},
		ExpiredItems:   []ItemStatus{},
	}

	req, err := g.requirements.First(ctx, store.Where("resource_type", resourceType).Eq("resource_name", resourceName))
	if errors.Is(err, store.ErrNotFound) {
		result.Satisfied = true
		return result, nil
	}
	if err != nil {
		return Result{}, store.Classify(fmt.Errorf("training gate: load requirement: %w", err))
	}
	if len(req.Items) == 0 {
		result.Satisfied = true
		return result, nil
	}
	result.Required = true

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ID
	}
	records, err := g.records.Find(ctx, store.Where("user_email", normalizeEmail(email)).In("training_id", ids))
	if err != nil {
		return Result{}, store.Classify(fmt.Errorf("training gate: load records: %w", err))
	}
	byID := make(map[string]models.UserTrainingRecord, len(records))
	for _, rec := range records {
		byID[rec.TrainingID] = rec
	}

	now := g.now()
	for _, item := range req.Items {
		status := ItemStatus{TrainingID: item.ID, Name: item.Name, URL: item.URL}
		rec, ok := byID[item.ID]
		if ok {
			status.CompletedDate = rec.CompletedDate
			status.ExpiresAt = rec.ExpiresAt
			status.CertificateURL = rec.CertificateURL
		}

		switch {
		case !ok:
			status.State = StateMissing
			result.MissingItems = append(result.MissingItems, status)
		case !rec.Completed:
			status.State = StateIncomplete
			result.MissingItems = append(result.MissingItems, status)
		case rec.ExpiredAt(now):
			status.State = StateExpired
			result.ExpiredItems = append(result.ExpiredItems, status)
		default:
			status.State = StateSatisfied
			result.SatisfiedItems = append(result.SatisfiedItems, status)
		}
	}

	result.Satisfied = len(result.MissingItems) == 0 && len(result.ExpiredItems) == 0
	return result, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
