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
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
)

// RecordInput describes a training completion. A nil CompletedDate means now;
// a nil ExpiresAt derives the expiry from the item's validity period, if any.
type RecordInput struct {
	UserEmail      string
	TrainingID     string
	CompletedDate  *time.Time
	ExpiresAt      *time.Time
	CertificateURL string
}

// RecordCompletion marks a training item completed for an employee, creating
// or refreshing the record.
func (g *Gate) RecordCompletion(ctx context.Context, in RecordInput) (models.UserTrainingRecord, error) {
	email := normalizeEmail(in.UserEmail)
	trainingID := strings.TrimSpace(in.TrainingID)
	if email == "" || trainingID == "" {
		return models.UserTrainingRecord{}, apperrors.NewBadRequest("user email and training id are required")
	}

	item, err := g.lookupItem(ctx, trainingID)
	if err != nil {
		return models.UserTrainingRecord{}, err
	}

	completed := g.now().UTC()
	if in.CompletedDate != nil {
		completed = in.CompletedDate.UTC()
	}
	expires := in.ExpiresAt
	if expires == nil && item.ValidForDays > 0 {
		at := completed.AddDate(0, 0, item.ValidForDays)
		expires = &at
	}
	if expires != nil && !expires.After(completed) {
		return models.UserTrainingRecord{}, apperrors.NewBadRequest("expiry must be after the completion date")
	}
	var certificate *string
	if url := strings.TrimSpace(in.CertificateURL); url != "" {
		certificate = &url
	}

	rec, err := g.upsert(ctx, models.UserTrainingRecord{
		UserEmail:      email,
		TrainingID:     trainingID,
		TrainingName:   item.Name,
		Completed:      true,
		CompletedDate:  &completed,
		ExpiresAt:      expires,
		CertificateURL: certificate,
	})
	if err != nil {
		return models.UserTrainingRecord{}, err
	}

	meta := map[string]any{"training_id": trainingID}
	if expires != nil {
		meta["expires_at"] = expires.Format(time.RFC3339)
	}
	g.recorder.Safe(ctx, audit.Event{
		Type:           audit.EventTrainingCompleted,
		UserEmail:      email,
		Action:         "record_training",
		Description:    fmt.Sprintf("Completed training %s", item.Name),
		ComplianceTags: []string{"security_training"},
		Metadata:       meta,
	})
	return rec, nil
}

func (g *Gate) upsert(ctx context.Context, rec models.UserTrainingRecord) (models.UserTrainingRecord, error) {
	key := store.Where("user_email", rec.UserEmail).Eq("training_id", rec.TrainingID)
	fields := map[string]any{
		"training_name":   rec.TrainingName,
		"completed":       true,
		"completed_date":  rec.CompletedDate,
		"expires_at":      rec.ExpiresAt,
		"certificate_url": rec.CertificateURL,
	}

	// Two attempts cover a concurrent first completion losing the insert race.
	for attempt := 0; attempt < 2; attempt++ {
		n, err := g.records.Update(ctx, key, fields)
		if err != nil {
			return models.UserTrainingRecord{}, store.Classify(fmt.Errorf("training record: update: %w", err))
		}
		if n == 0 {
			created := rec
			err = g.records.Append(ctx, &created)
			if errors.Is(err, store.ErrDuplicate) {
				continue
			}
			if err != nil {
				return models.UserTrainingRecord{}, store.Classify(fmt.Errorf("training record: create: %w", err))
			}
			return created, nil
		}

		updated, err := g.records.First(ctx, key)
		if err != nil {
			return models.UserTrainingRecord{}, store.Classify(fmt.Errorf("training record: reload: %w", err))
		}
		return *updated, nil
	}
	return models.UserTrainingRecord{}, apperrors.ErrStoreUnavailable.WithMessage("training record for %s could not be saved", rec.TrainingID)
}

// lookupItem finds a training item by id across every requirement.
func (g *Gate) lookupItem(ctx context.Context, trainingID string) (models.TrainingItem, error) {
	reqs, err := g.requirements.Find(ctx, store.All())
	if err != nil {
		return models.TrainingItem{}, store.Classify(fmt.Errorf("training record: load requirements: %w", err))
	}
	for _, req := range reqs {
		if item, ok := req.Find(trainingID); ok {
			return item, nil
		}
	}
	return models.TrainingItem{}, apperrors.ErrNotFound.WithMessage("unknown training %q", trainingID)
}
