package models

import (
	"strings"
	"time"
)

// EntryStatus is shared by whitelist entries and API keys.
type EntryStatus string

const (
	EntryActive  EntryStatus = "active"
	EntryExpired EntryStatus = "expired"
	EntryRevoked EntryStatus = "revoked"
)

// WhitelistedIP allows an employee's address through the corporate perimeter.
type WhitelistedIP struct {
	BaseModel

	UserEmail string      `gorm:"not null;index" json:"user_email"`
	IPAddress string      `gorm:"not null;index" json:"ip_address"`
	Reason    string      `gorm:"type:text" json:"reason"`
	Status    EntryStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	ExpiresAt *time.Time  `gorm:"index" json:"expires_at"`
	ActiveKey *string     `gorm:"uniqueIndex" json:"-"`
}

// ActiveKeyFor builds the uniqueness key for an active whitelist entry.
func ActiveKeyFor(email, ip string) string {
	return strings.ToLower(strings.TrimSpace(email)) + "|" + ip
}
