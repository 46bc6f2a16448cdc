package models

import (
	"time"

	"gorm.io/gorm"
)

// GrantStatus is the lifecycle state of an AccessGrant.
type GrantStatus string

const (
	GrantActive  GrantStatus = "active"
	GrantRevoked GrantStatus = "revoked"
)

// GrantedByAuto marks grants issued without a human approver.
const GrantedByAuto = "auto"

// AccessGrant records access given to an employee. Rows are appended; only
// status, revoked_at and revoke_reason change after creation.
type AccessGrant struct {
	BaseModel

	UserEmail    string      `gorm:"not null;index:idx_grant_lookup" json:"user_email"`
	ResourceType string      `gorm:"not null;index:idx_grant_lookup" json:"resource_type"`
	ResourceName string      `gorm:"not null;index:idx_grant_lookup" json:"resource_name"`
	AccessLevel  string      `gorm:"not null" json:"access_level"`
	GrantedDate  time.Time   `gorm:"not null" json:"granted_date"`
	GrantedBy    string      `gorm:"not null" json:"granted_by"`
	ExpiresAt    *time.Time  `gorm:"index" json:"expires_at"`
	Status       GrantStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	RequestID    *string     `gorm:"index" json:"request_id"`
	RevokedAt    *time.Time  `json:"revoked_at"`
	RevokeReason *string     `json:"revoke_reason"`
}

func (g *AccessGrant) BeforeCreate(tx *gorm.DB) error {
	if err := g.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if g.Status == "" {
		g.Status = GrantActive
	}
	return nil
}

// EffectiveAt reports whether the grant is active and unexpired at now.
func (g AccessGrant) EffectiveAt(now time.Time) bool {
	if g.Status != GrantActive {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}
