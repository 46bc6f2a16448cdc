// Package audit records and reads the append-only trail of security relevant
// actions. A Recorder is constructed once at startup and handed to every
// component that needs to log.
package audit

import (
	"strings"
)

// EventType tags what happened.
type EventType string

const (
	EventAccessChecked          EventType = "ACCESS_CHECKED"
	EventAccessAutoGranted      EventType = "ACCESS_AUTO_GRANTED"
	EventAccessApprovalRequest  EventType = "ACCESS_APPROVAL_REQUESTED"
	EventAccessRequestDuplicate EventType = "ACCESS_REQUEST_DUPLICATE"
	EventAccessDenied           EventType = "ACCESS_DENIED"
	EventApprovalApproved       EventType = "APPROVAL_APPROVED"
	EventApprovalRejected       EventType = "APPROVAL_REJECTED"
	EventApprovalReminderSent   EventType = "APPROVAL_REMINDER_SENT"
	EventGrantExpired           EventType = "GRANT_EXPIRED"
	EventGrantRevoked           EventType = "GRANT_REVOKED"
	EventTrainingCompleted      EventType = "TRAINING_COMPLETED"
	EventIPWhitelisted          EventType = "IP_WHITELISTED"
	EventIPWhitelistExpired     EventType = "IP_WHITELIST_EXPIRED"
	EventAPIKeyIssued           EventType = "API_KEY_ISSUED"
	EventAPIKeyDenied           EventType = "API_KEY_DENIED"
	EventAPIKeyExpired          EventType = "API_KEY_EXPIRED"
	EventIdentitySelected       EventType = "IDENTITY_SELECTED"
	EventIntegrationFailure     EventType = "INTEGRATION_FAILURE"
)

// Severity classifies an event. The ordering LOW < MEDIUM < HIGH < CRITICAL
// is total.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityOrder = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns the position of s in the severity ordering, or -1 when s is
// not a known severity.
func (s Severity) Rank() int {
	for i, candidate := range severityOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// AtLeast reports whether s is ranked at or above min.
func (s Severity) AtLeast(min Severity) bool {
	r := s.Rank()
	return r >= 0 && r >= min.Rank()
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() >= 0 }

// ParseSeverity accepts any letter case.
func ParseSeverity(value string) (Severity, bool) {
	s := Severity(strings.ToUpper(strings.TrimSpace(value)))
	return s, s.Valid()
}

// SeveritiesAtLeast lists every severity ranked at or above min.
func SeveritiesAtLeast(min Severity) []Severity {
	r := min.Rank()
	if r < 0 {
		return nil
	}
	return append([]Severity(nil), severityOrder[r:]...)
}

// Result is the outcome of the audited action.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailure Result = "FAILURE"
	ResultPending Result = "PENDING"
)

// Event is the caller supplied part of an audit event. Unset fields are
// filled in by the Recorder.
type Event struct {
	Type         EventType
	Severity     Severity
	UserEmail    string
	Action       string
	Result       Result
	Description  string
	ResourceType string
	ResourceName string
	// RiskScore overrides the scorer when set.
	RiskScore      *int
	ComplianceTags []string
	Metadata       map[string]any
}

func (e Event) hasResource() bool {
	return e.ResourceType != "" && e.ResourceName != ""
}
