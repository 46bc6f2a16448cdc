package models

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// NoConditions is the condition literal meaning "always satisfied".
const NoConditions = "none"

// AccessPolicy is the static access rule for one resource.
type AccessPolicy struct {
	BaseModel

	ResourceType          string `gorm:"not null;uniqueIndex:idx_policy_resource" json:"resource_type"`
	ResourceName          string `gorm:"not null;uniqueIndex:idx_policy_resource" json:"resource_name"`
	RequiredRole          string `json:"required_role"`
	RequiresApproval      bool   `gorm:"default:false" json:"requires_approval"`
	AutoApproveConditions string `gorm:"type:text" json:"auto_approve_conditions"`
	ApproverRole          string `json:"approver_role"`
	Description           string `gorm:"type:text" json:"description"`
}

func (p *AccessPolicy) BeforeSave(tx *gorm.DB) error {
	p.ResourceType = strings.TrimSpace(p.ResourceType)
	p.ResourceName = strings.TrimSpace(p.ResourceName)
	p.AutoApproveConditions = strings.TrimSpace(p.AutoApproveConditions)
	if p.AutoApproveConditions == "" {
		p.AutoApproveConditions = NoConditions
	}
	if p.ResourceType == "" || p.ResourceName == "" {
		return errors.New("access policy: resource type and name are required")
	}
	return nil
}
