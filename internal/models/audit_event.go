package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrAuditImmutable is returned when code attempts to modify a stored audit event.
var ErrAuditImmutable = errors.New("audit events are append-only")

// AuditEvent is an immutable record of a security relevant action.
type AuditEvent struct {
	EventID        string                      `gorm:"primaryKey;type:varchar(36)" json:"event_id"`
	Timestamp      time.Time                   `gorm:"not null;index" json:"timestamp"`
	EventType      string                      `gorm:"type:varchar(64);not null;index" json:"event_type"`
	Severity       string                      `gorm:"type:varchar(16);not null;index" json:"severity"`
	UserEmail      string                      `gorm:"index" json:"user_email"`
	Action         string                      `gorm:"not null;index" json:"action"`
	ActionResult   string                      `gorm:"type:varchar(16);not null" json:"action_result"`
	Description    string                      `gorm:"type:text" json:"description"`
	ResourceType   *string                     `gorm:"index" json:"resource_type"`
	ResourceName   *string                     `gorm:"index" json:"resource_name"`
	RiskScore      *int                        `json:"risk_score"`
	ComplianceTags datatypes.JSONSlice[string] `json:"compliance_tags"`
	Metadata       datatypes.JSONMap           `json:"metadata"`
}

func (e *AuditEvent) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditImmutable
}

func (e *AuditEvent) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditImmutable
}
