package models

import "time"

// APIKey is an issued service credential. Only the bcrypt hash and a display
// prefix are stored.
type APIKey struct {
	BaseModel

	UserEmail     string      `gorm:"not null;index" json:"user_email"`
	Service       string      `gorm:"not null;index" json:"service"`
	DisplayPrefix string      `gorm:"not null" json:"display_prefix"`
	KeyHash       string      `gorm:"not null" json:"-"`
	GrantID       string      `gorm:"index" json:"grant_id"`
	Status        EntryStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	ExpiresAt     *time.Time  `gorm:"index" json:"expires_at"`
}
