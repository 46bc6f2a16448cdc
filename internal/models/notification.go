package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is an in-app message addressed to an employee.
type Notification struct {
	BaseModel

	RecipientEmail string            `gorm:"not null;index" json:"recipient_email"`
	Kind           string            `gorm:"type:varchar(64);not null" json:"kind"`
	Title          string            `gorm:"type:varchar(255);not null" json:"title"`
	Message        string            `gorm:"type:text" json:"message"`
	ActionURL      string            `gorm:"type:text" json:"action_url"`
	Metadata       datatypes.JSONMap `json:"metadata"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
