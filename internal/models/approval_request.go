package models

import (
	"strings"
	"time"
)

// ApprovalStatus is the lifecycle state of an ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// ApprovalRequest is a pending or resolved human decision on an access request.
// PendingKey is populated only while pending; its unique index guarantees at
// most one pending request per requester and resource.
type ApprovalRequest struct {
	RequestID      string         `gorm:"primaryKey;type:varchar(64)" json:"request_id"`
	RequesterEmail string         `gorm:"not null;index" json:"requester_email"`
	ResourceType   string         `gorm:"not null" json:"resource_type"`
	ResourceName   string         `gorm:"not null" json:"resource_name"`
	Reason         string         `gorm:"type:text" json:"reason"`
	ApproverEmail  string         `gorm:"not null;index" json:"approver_email"`
	Status         ApprovalStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	ResolvedAt     *time.Time     `json:"resolved_at"`
	ResolvedBy     *string        `json:"resolved_by"`
	ResolutionNote *string        `gorm:"type:text" json:"resolution_note"`
	TicketID       *string        `json:"ticket_id"`
	TicketURL      *string        `json:"ticket_url"`
	PendingKey     *string        `gorm:"uniqueIndex" json:"-"`
}

// PendingKeyFor builds the uniqueness key for a pending request.
func PendingKeyFor(email, resourceType, resourceName string) string {
	return strings.ToLower(strings.TrimSpace(email)) + "|" + resourceType + "|" + resourceName
}
