package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TrainingItem is one course a resource requires. ValidForDays, when set,
// bounds how long a completion stays valid.
type TrainingItem struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	URL          string `json:"url" yaml:"url"`
	ValidForDays int    `json:"valid_for_days,omitempty" yaml:"valid_for_days"`
}

// TrainingRequirement lists, in order, the training a resource requires.
type TrainingRequirement struct {
	BaseModel

	ResourceType string                            `gorm:"not null;uniqueIndex:idx_training_resource" json:"resource_type"`
	ResourceName string                            `gorm:"not null;uniqueIndex:idx_training_resource" json:"resource_name"`
	Items        datatypes.JSONSlice[TrainingItem] `json:"items"`
}

// BeforeSave rejects requirements whose items lack an id or repeat one.
func (r *TrainingRequirement) BeforeSave(tx *gorm.DB) error {
	if strings.TrimSpace(r.ResourceType) == "" || strings.TrimSpace(r.ResourceName) == "" {
		return errors.New("training requirement: resource type and name are required")
	}
	seen := make(map[string]struct{}, len(r.Items))
	for i := range r.Items {
		item := &r.Items[i]
		item.ID = strings.TrimSpace(item.ID)
		if item.ID == "" {
			return fmt.Errorf("training requirement %s:%s: item %d has no id", r.ResourceType, r.ResourceName, i)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("training requirement %s:%s: duplicate item %q", r.ResourceType, r.ResourceName, item.ID)
		}
		seen[item.ID] = struct{}{}
		if item.Name == "" {
			item.Name = item.ID
		}
	}
	return nil
}

// Find returns the requirement item with the given id.
func (r TrainingRequirement) Find(id string) (TrainingItem, bool) {
	for _, item := range r.Items {
		if item.ID == id {
			return item, true
		}
	}
	return TrainingItem{}, false
}

// UserTrainingRecord tracks one employee's progress on one training item.
// Expiry is evaluated when read and never written back.
type UserTrainingRecord struct {
	BaseModel

	UserEmail      string     `gorm:"not null;uniqueIndex:idx_user_training" json:"user_email"`
	TrainingID     string     `gorm:"not null;uniqueIndex:idx_user_training" json:"training_id"`
	TrainingName   string     `json:"training_name"`
	Completed      bool       `gorm:"default:false" json:"completed"`
	CompletedDate  *time.Time `json:"completed_date"`
	ExpiresAt      *time.Time `json:"expires_at"`
	CertificateURL *string    `json:"certificate_url"`
}

// ExpiredAt reports whether the record has lapsed at now.
func (r UserTrainingRecord) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}
